package call

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/koksal000/engel/internal/store"
)

// Session is the single call session for the process. It owns the call
// lifecycle (incoming -> active -> terminated), the ring timer, all mutation
// of the Call record, and the turn-taking loop of an active call.
//
// Every async completion (dialogue reply, synthesis, playback, timers) is
// tagged with the session token minted when the call began; completions whose
// token no longer matches the live session are discarded. That guards against
// a reply arriving after hangup and incorrectly resuming capture or playing
// stale audio.
type Session struct {
	ringTimeout time.Duration
	calls       store.Calls
	dialogue    Dialogue
	synth       Synthesizer

	mu      sync.Mutex
	player  Player
	capture Capture
	notify  func(Snapshot)

	phase      Phase
	token      string
	app        *store.Application
	call       *store.Call
	acceptedAt time.Time
	history    []store.Turn
	thinking   bool
	speaking   bool
	ringTimer  *time.Timer
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewSession(calls store.Calls, dialogue Dialogue, synth Synthesizer, ringTimeout time.Duration) *Session {
	if ringTimeout <= 0 {
		ringTimeout = 25 * time.Second
	}
	return &Session{
		ringTimeout: ringTimeout,
		calls:       calls,
		dialogue:    dialogue,
		synth:       synth,
		phase:       PhaseNone,
	}
}

// Attach binds the rendering surface for the connected client and pushes the
// current state.
func (s *Session) Attach(player Player, capture Capture, notify func(Snapshot)) {
	s.mu.Lock()
	s.player = player
	s.capture = capture
	s.notify = notify
	s.mu.Unlock()
	s.publish()
}

// Detach unbinds the surface. A call in progress keeps running; its audio and
// capture simply have nowhere to go until a client reattaches.
func (s *Session) Detach() {
	s.mu.Lock()
	s.player = nil
	s.capture = nil
	s.notify = nil
	s.mu.Unlock()
}

// Occupied reports whether a call is incoming or active.
func (s *Session) Occupied() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != ""
}

// Begin transitions the session into the incoming state for the given
// application and its freshly persisted Call row, and starts the ring timer.
func (s *Session) Begin(app *store.Application, c *store.Call) error {
	s.mu.Lock()
	if s.token != "" {
		s.mu.Unlock()
		return fmt.Errorf("call session already occupied")
	}
	tok := uuid.NewString()
	s.token = tok
	s.phase = PhaseIncoming
	s.app = app
	s.call = c
	s.history = nil
	s.thinking = false
	s.speaking = false
	s.ctx, s.cancel = context.WithCancel(context.Background())
	if s.capture != nil {
		s.capture.Reset()
	}
	s.ringTimer = time.AfterFunc(s.ringTimeout, func() { s.ringExpired(tok) })
	s.mu.Unlock()

	log.Printf("incoming call %s for application %s", c.ID, app.ID)
	s.publish()
	return nil
}

// ringExpired fires when neither accept nor reject arrived in time. The
// write-ahead missed row is already correct, so no persistence update is
// needed.
func (s *Session) ringExpired(tok string) {
	s.mu.Lock()
	if s.token != tok || s.phase != PhaseIncoming {
		s.mu.Unlock()
		return
	}
	callID := s.call.ID
	s.clearLocked()
	s.mu.Unlock()

	log.Printf("call %s missed (ring timeout)", callID)
	s.publish()
}

// Accept answers the incoming call: the ring stops, the accept timestamp is
// recorded and the turn loop starts with an empty history, which produces the
// greeting.
func (s *Session) Accept() {
	s.mu.Lock()
	if s.phase != PhaseIncoming {
		s.mu.Unlock()
		return
	}
	tok := s.token
	ctx := s.ctx
	s.stopRingTimerLocked()
	s.phase = PhaseActive
	s.acceptedAt = time.Now()
	s.call.Status = store.CallAnswered
	s.thinking = true
	update := *s.call
	s.mu.Unlock()

	log.Printf("call %s accepted", update.ID)
	s.publish()
	s.persistUpdate(update)
	go s.tickElapsed(tok)
	go s.runTurn(ctx, tok)
}

// Reject declines the incoming call. Terminal: duration stays 0.
func (s *Session) Reject() {
	s.mu.Lock()
	if s.phase != PhaseIncoming {
		s.mu.Unlock()
		return
	}
	s.call.Status = store.CallRejected
	s.call.DurationSeconds = 0
	update := *s.call
	s.clearLocked()
	s.mu.Unlock()

	log.Printf("call %s rejected", update.ID)
	s.persistUpdate(update)
	s.publish()
}

// Hangup ends an active call. Terminal: duration is the whole-second delta
// from accept to now, and the conversation transcript is persisted with the
// record.
func (s *Session) Hangup() {
	s.mu.Lock()
	if s.phase != PhaseActive {
		s.mu.Unlock()
		return
	}
	s.call.Status = store.CallAnswered
	s.call.DurationSeconds = int(time.Since(s.acceptedAt).Seconds())
	s.call.Transcript = append([]store.Turn(nil), s.history...)
	update := *s.call
	s.clearLocked()
	s.mu.Unlock()

	log.Printf("call %s ended after %ds", update.ID, update.DurationSeconds)
	s.persistUpdate(update)
	s.publish()
}

// clearLocked performs terminal teardown: the session token is invalidated so
// every in-flight async result gets discarded, pending work is canceled, and
// the capture engine is shut down so no zombie mic activity outlives the call.
func (s *Session) clearLocked() {
	s.token = ""
	s.phase = PhaseNone
	s.app = nil
	s.call = nil
	s.history = nil
	s.thinking = false
	s.speaking = false
	s.stopRingTimerLocked()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
		s.ctx = nil
	}
	if s.capture != nil {
		s.capture.Close()
	}
}

func (s *Session) stopRingTimerLocked() {
	if s.ringTimer != nil {
		s.ringTimer.Stop()
		s.ringTimer = nil
	}
}

// persistUpdate writes a call record update. The in-memory session state is
// authoritative for the rest of the call, so a failed write only risks an
// incomplete history page.
func (s *Session) persistUpdate(c store.Call) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.calls.UpdateCall(ctx, &c); err != nil {
		log.Printf("persist call %s failed: %v", c.ID, err)
	}
}

// tickElapsed refreshes the elapsed-seconds display once per second while the
// call stays active.
func (s *Session) tickElapsed(tok string) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for range t.C {
		s.mu.Lock()
		live := s.token == tok && s.phase == PhaseActive
		s.mu.Unlock()
		if !live {
			return
		}
		s.publish()
	}
}

// publish pushes the current state snapshot to the attached surface.
func (s *Session) publish() {
	s.mu.Lock()
	snap := Snapshot{
		Phase:      s.phase,
		AIThinking: s.thinking,
	}
	if s.call != nil {
		c := *s.call
		snap.Call = &c
	}
	if s.app != nil {
		snap.Application = s.app
	}
	if s.capture != nil {
		snap.Listening = s.capture.IsListening()
		snap.SpeechSupported = s.capture.Supported()
	}
	if s.phase == PhaseActive {
		snap.ElapsedSeconds = int(time.Since(s.acceptedAt).Seconds())
	}
	notify := s.notify
	s.mu.Unlock()

	if notify != nil {
		notify(snap)
	}
}
