package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process implementation of all store interfaces. It backs
// tests and dev mode when no database is configured.
type Memory struct {
	mu           sync.Mutex
	applications map[string]*Application
	calls        map[string]*Call
	speech       map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{
		applications: make(map[string]*Application),
		calls:        make(map[string]*Call),
		speech:       make(map[string][]byte),
	}
}

func (m *Memory) CreateApplication(ctx context.Context, app *Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	cp := *app
	m.applications[app.ID] = &cp
	return nil
}

func (m *Memory) GetApplication(ctx context.Context, id string) (*Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.applications[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *app
	return &cp, nil
}

func (m *Memory) ListApplications(ctx context.Context) ([]*Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Application, 0, len(m.applications))
	for _, app := range m.applications {
		cp := *app
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateApplication(ctx context.Context, app *Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.applications[app.ID]; !ok {
		return ErrNotFound
	}
	cp := *app
	m.applications[app.ID] = &cp
	return nil
}

func (m *Memory) CreateCall(ctx context.Context, call *Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	cp := *call
	m.calls[call.ID] = &cp
	return nil
}

func (m *Memory) ListCalls(ctx context.Context) ([]*Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Call, 0, len(m.calls))
	for _, c := range m.calls {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (m *Memory) UpdateCall(ctx context.Context, call *Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.calls[call.ID]; !ok {
		return ErrNotFound
	}
	cp := *call
	m.calls[call.ID] = &cp
	return nil
}

func (m *Memory) GetCachedSpeech(ctx context.Context, text string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	audio, ok := m.speech[text]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(audio))
	copy(cp, audio)
	return cp, nil
}

func (m *Memory) PutCachedSpeech(ctx context.Context, text string, audio []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(audio))
	copy(cp, audio)
	m.speech[text] = cp
	return nil
}
