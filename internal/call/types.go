package call

import (
	"context"

	"github.com/koksal000/engel/internal/store"
)

// Dialogue produces the consultant's next line. It is stateless; the full
// conversation history is replayed on every call.
type Dialogue interface {
	Reply(ctx context.Context, app *store.Application, history []store.Turn) (string, error)
}

// Synthesizer converts reply text to a playable audio asset. Implementations
// are expected to degrade to a silent asset on failure (see tts.Cached), so
// playback itself never errors visibly.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Player delivers one audio asset to the user and blocks until playback
// completes or ctx is canceled. Playback completion is the natural
// end-of-turn signal that re-arms listening.
type Player interface {
	Play(ctx context.Context, audio []byte) error
}

// Capture is the speech capture surface the session drives. It matches
// capture.Engine.
type Capture interface {
	StartListening()
	IsListening() bool
	Supported() bool
	Reset()
	Close()
}

// Phase is where the session currently is.
type Phase string

const (
	PhaseNone     Phase = "none"
	PhaseIncoming Phase = "incoming"
	PhaseActive   Phase = "active"
)

// Snapshot is the session state pushed to the rendering surface on every
// change.
type Snapshot struct {
	Phase           Phase              `json:"phase"`
	Call            *store.Call        `json:"call,omitempty"`
	Application     *store.Application `json:"application,omitempty"`
	AIThinking      bool               `json:"isAIThinking"`
	Listening       bool               `json:"isListening"`
	ElapsedSeconds  int                `json:"elapsedSeconds"`
	SpeechSupported bool               `json:"speechSupported"`
}
