package capture

import (
	"errors"
	"log"
	"sync"
	"time"
)

var (
	// ErrCapture reports a recognition fault during a listening session.
	ErrCapture = errors.New("capture failed")
	// ErrUnsupported reports that the platform lacks speech recognition.
	ErrUnsupported = errors.New("speech recognition unsupported")
)

// Recognizer is the underlying continuous recognition capability. In
// production it relays start/stop commands to the browser's SpeechRecognition
// over the session websocket; partial results and errors come back through
// HandlePartial/HandleError/HandleEnd.
type Recognizer interface {
	Start() error
	Stop()
}

// Engine wraps a Recognizer with silence-based endpointing.
//
// State machine: idle --start--> listening --stop or silence-timeout--> idle.
// The accumulated transcript is emitted exactly once per listening session,
// at the transition back to idle. A recognition error transitions to idle and
// suppresses the emit (treated as "nothing heard"), and disables capture
// until Reset.
type Engine struct {
	rec         Recognizer
	silence     time.Duration
	initial     time.Duration
	onUtterance func(text string)

	mu         sync.Mutex
	supported  bool
	listening  bool
	disabled   bool
	closed     bool
	transcript string
	timer      *time.Timer
	gen        uint64
}

// New builds an engine. supported mirrors the client's capability flag; an
// unsupported engine never starts and reports Supported() == false.
func New(rec Recognizer, silence, initial time.Duration, supported bool, onUtterance func(string)) *Engine {
	if silence <= 0 {
		silence = 2 * time.Second
	}
	if initial <= 0 {
		initial = silence + 200*time.Millisecond
	}
	return &Engine{
		rec:         rec,
		silence:     silence,
		initial:     initial,
		supported:   supported,
		onUtterance: onUtterance,
	}
}

// Supported reports whether capture is currently available. It turns false
// for the remainder of the call after a recognition error.
func (e *Engine) Supported() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.supported && !e.disabled
}

func (e *Engine) IsListening() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listening
}

// StartListening opens a capture window. Calling it while already listening
// is a no-op.
func (e *Engine) StartListening() {
	e.mu.Lock()
	if e.listening || e.closed || e.disabled || !e.supported {
		e.mu.Unlock()
		return
	}
	e.listening = true
	e.transcript = ""
	e.gen++
	// Longer grace before the first partial arrives, in case the user says
	// nothing at all.
	e.armTimerLocked(e.initial)
	e.mu.Unlock()

	if err := e.rec.Start(); err != nil {
		log.Printf("recognizer start failed: %v", err)
		e.HandleError(err.Error())
	}
}

// StopListening explicitly closes the capture window and emits whatever
// transcript accumulated. Calling it while idle is a no-op.
func (e *Engine) StopListening() {
	e.finish()
}

// HandlePartial feeds the accumulated transcript-so-far from the recognizer.
// Every partial resets the silence timer.
func (e *Engine) HandlePartial(text string) {
	e.mu.Lock()
	if !e.listening || e.closed {
		e.mu.Unlock()
		return
	}
	e.transcript = text
	e.armTimerLocked(e.silence)
	e.mu.Unlock()
}

// HandleError reports a recognition fault. The engine goes idle, suppresses
// the result (no utterance is emitted) and disables capture until Reset.
func (e *Engine) HandleError(msg string) {
	e.mu.Lock()
	e.disabled = true
	wasListening := e.listening
	e.listening = false
	e.transcript = ""
	e.stopTimerLocked()
	e.mu.Unlock()
	if wasListening {
		log.Printf("recognition error, capture disabled: %s", msg)
		e.rec.Stop()
	}
}

// HandleEnd reports that the recognizer stopped on its own. No utterance is
// emitted; the turn loop re-arms listening when appropriate.
func (e *Engine) HandleEnd() {
	e.mu.Lock()
	e.listening = false
	e.transcript = ""
	e.stopTimerLocked()
	e.mu.Unlock()
}

// Reset clears the error-disabled state for a new call.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.disabled = false
	e.closed = false
	e.listening = false
	e.transcript = ""
	e.stopTimerLocked()
	e.mu.Unlock()
}

// Close tears the engine down at call end: the recognizer is stopped
// synchronously and no callback fires afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	wasListening := e.listening
	e.closed = true
	e.listening = false
	e.transcript = ""
	e.stopTimerLocked()
	e.mu.Unlock()
	if wasListening {
		e.rec.Stop()
	}
}

// finish moves listening -> idle and emits the transcript once. Expired
// silence timers route here via the generation check in armTimerLocked.
func (e *Engine) finish() {
	e.mu.Lock()
	if !e.listening || e.closed {
		e.mu.Unlock()
		return
	}
	e.listening = false
	text := e.transcript
	e.transcript = ""
	e.stopTimerLocked()
	cb := e.onUtterance
	e.mu.Unlock()

	e.rec.Stop()
	if cb != nil {
		cb(text)
	}
}

func (e *Engine) armTimerLocked(d time.Duration) {
	e.stopTimerLocked()
	gen := e.gen
	e.timer = time.AfterFunc(d, func() {
		e.mu.Lock()
		stale := e.gen != gen || !e.listening || e.closed
		e.mu.Unlock()
		if stale {
			return
		}
		e.finish()
	})
}

func (e *Engine) stopTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}
