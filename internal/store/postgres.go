package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements Applications and Calls on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to the database, verifies connectivity and ensures
// the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{pool: pool}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) Close() { p.pool.Close() }

func (p *Postgres) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS applications (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    surname     TEXT NOT NULL,
    photo_key   TEXT NOT NULL DEFAULT '',
    assessment  JSONB NOT NULL,
    referral    JSONB,
    created_at  TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS calls (
    id              TEXT PRIMARY KEY,
    application_id  TEXT NOT NULL REFERENCES applications(id),
    display_name    TEXT NOT NULL,
    status          TEXT NOT NULL,
    started_at      TIMESTAMPTZ NOT NULL,
    duration        INT NOT NULL DEFAULT 0,
    transcript      JSONB
);`
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

func (p *Postgres) CreateApplication(ctx context.Context, app *Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.CreatedAt.IsZero() {
		app.CreatedAt = time.Now()
	}
	assessment, err := json.Marshal(app.Assessment)
	if err != nil {
		return fmt.Errorf("marshal assessment: %w", err)
	}
	referral, err := marshalNullable(app.Referral)
	if err != nil {
		return fmt.Errorf("marshal referral: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO applications (id, name, surname, photo_key, assessment, referral, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		app.ID, app.Name, app.Surname, app.PhotoKey, assessment, referral, app.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

func (p *Postgres) GetApplication(ctx context.Context, id string) (*Application, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, name, surname, photo_key, assessment, referral, created_at
		 FROM applications WHERE id = $1`, id)
	app, err := scanApplication(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return app, err
}

func (p *Postgres) ListApplications(ctx context.Context) ([]*Application, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, name, surname, photo_key, assessment, referral, created_at
		 FROM applications ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()
	var out []*Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, app)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateApplication(ctx context.Context, app *Application) error {
	assessment, err := json.Marshal(app.Assessment)
	if err != nil {
		return fmt.Errorf("marshal assessment: %w", err)
	}
	referral, err := marshalNullable(app.Referral)
	if err != nil {
		return fmt.Errorf("marshal referral: %w", err)
	}
	tag, err := p.pool.Exec(ctx,
		`UPDATE applications SET name=$2, surname=$3, photo_key=$4, assessment=$5, referral=$6 WHERE id=$1`,
		app.ID, app.Name, app.Surname, app.PhotoKey, assessment, referral)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) CreateCall(ctx context.Context, call *Call) error {
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	transcript, err := marshalNullable(call.Transcript)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO calls (id, application_id, display_name, status, started_at, duration, transcript)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		call.ID, call.ApplicationID, call.DisplayName, string(call.Status), call.StartedAt, call.DurationSeconds, transcript)
	if err != nil {
		return fmt.Errorf("insert call: %w", err)
	}
	return nil
}

func (p *Postgres) ListCalls(ctx context.Context) ([]*Call, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, application_id, display_name, status, started_at, duration, transcript
		 FROM calls ORDER BY started_at`)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()
	var out []*Call
	for rows.Next() {
		var c Call
		var status string
		var transcript []byte
		if err := rows.Scan(&c.ID, &c.ApplicationID, &c.DisplayName, &status, &c.StartedAt, &c.DurationSeconds, &transcript); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		c.Status = CallStatus(status)
		if len(transcript) > 0 {
			if err := json.Unmarshal(transcript, &c.Transcript); err != nil {
				return nil, fmt.Errorf("unmarshal transcript: %w", err)
			}
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateCall(ctx context.Context, call *Call) error {
	transcript, err := marshalNullable(call.Transcript)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	tag, err := p.pool.Exec(ctx,
		`UPDATE calls SET status=$2, duration=$3, transcript=$4 WHERE id=$1`,
		call.ID, string(call.Status), call.DurationSeconds, transcript)
	if err != nil {
		return fmt.Errorf("update call: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (*Application, error) {
	var app Application
	var assessment, referral []byte
	if err := row.Scan(&app.ID, &app.Name, &app.Surname, &app.PhotoKey, &assessment, &referral, &app.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(assessment, &app.Assessment); err != nil {
		return nil, fmt.Errorf("unmarshal assessment: %w", err)
	}
	if len(referral) > 0 {
		app.Referral = &Referral{}
		if err := json.Unmarshal(referral, app.Referral); err != nil {
			return nil, fmt.Errorf("unmarshal referral: %w", err)
		}
	}
	return &app, nil
}

// marshalNullable returns nil (SQL NULL) for nil pointers and empty slices.
func marshalNullable(v any) ([]byte, error) {
	switch t := v.(type) {
	case *Referral:
		if t == nil {
			return nil, nil
		}
	case []Turn:
		if len(t) == 0 {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
