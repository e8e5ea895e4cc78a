package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("store: not found")

// Applications persists assessment applications.
type Applications interface {
	CreateApplication(ctx context.Context, app *Application) error
	GetApplication(ctx context.Context, id string) (*Application, error)
	ListApplications(ctx context.Context) ([]*Application, error)
	UpdateApplication(ctx context.Context, app *Application) error
}

// Calls persists call records.
type Calls interface {
	CreateCall(ctx context.Context, call *Call) error
	ListCalls(ctx context.Context) ([]*Call, error)
	UpdateCall(ctx context.Context, call *Call) error
}

// SpeechCache memoizes synthesized audio keyed by the exact reply text.
// Text equality is the only invalidation key; entries never expire.
type SpeechCache interface {
	GetCachedSpeech(ctx context.Context, text string) ([]byte, error)
	PutCachedSpeech(ctx context.Context, text string, audio []byte) error
}
