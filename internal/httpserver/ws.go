package httpserver

import (
	"context"
	"encoding/base64"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/koksal000/engel/internal/call"
	"github.com/koksal000/engel/internal/capture"
)

// CaptureConfig carries the speech endpointing timings for browser sessions.
type CaptureConfig struct {
	SilenceTimeout time.Duration
	InitialSilence time.Duration
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin: func(r *http.Request) bool {
		// Allow any origin for demo use; restrict in production
		return true
	},
}

// sessionWSMessage is the single envelope both directions use.
// Client -> server types: "hello", "accept", "reject", "hangup", "partial",
// "recog-error", "recog-end", "playback-ended".
// Server -> client types: "state", "audio", "recog-start", "recog-stop".
type sessionWSMessage struct {
	Type string `json:"type"`
	// hello
	SpeechSupported bool `json:"speechSupported,omitempty"`
	// state
	State *call.Snapshot `json:"state,omitempty"`
	// audio (base64 WAV) and playback-ended
	Audio  string `json:"audio,omitempty"`
	TurnID int64  `json:"turnId,omitempty"`
	// partial / recog-error
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
}

// wsSurface is one connected browser session. It is both the audio player and
// the recognition relay: the browser runs SpeechRecognition and Audio, the
// server tells it when to start and stop.
type wsSurface struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	nextTurn int64
	waiters  map[int64]chan struct{}
	closed   chan struct{}
	once     sync.Once
}

func newWSSurface(conn *websocket.Conn) *wsSurface {
	return &wsSurface{
		conn:    conn,
		waiters: make(map[int64]chan struct{}),
		closed:  make(chan struct{}),
	}
}

func (w *wsSurface) send(msg sessionWSMessage) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.conn.WriteJSON(msg)
}

// Start asks the browser to begin speech recognition. Implements
// capture.Recognizer.
func (w *wsSurface) Start() error {
	return w.send(sessionWSMessage{Type: "recog-start"})
}

// Stop asks the browser to end speech recognition.
func (w *wsSurface) Stop() {
	_ = w.send(sessionWSMessage{Type: "recog-stop"})
}

// Play ships one audio asset to the browser and blocks until the client
// reports playback finished, the context is canceled, or the socket closes.
func (w *wsSurface) Play(ctx context.Context, audio []byte) error {
	w.mu.Lock()
	w.nextTurn++
	id := w.nextTurn
	done := make(chan struct{})
	w.waiters[id] = done
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		delete(w.waiters, id)
		w.mu.Unlock()
	}()

	msg := sessionWSMessage{
		Type:   "audio",
		Audio:  base64.StdEncoding.EncodeToString(audio),
		TurnID: id,
	}
	if err := w.send(msg); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-w.closed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *wsSurface) playbackEnded(id int64) {
	w.mu.Lock()
	done, ok := w.waiters[id]
	if ok {
		delete(w.waiters, id)
	}
	w.mu.Unlock()
	if ok {
		close(done)
	}
}

func (w *wsSurface) shutdown() {
	w.once.Do(func() { close(w.closed) })
}

// handleSessionSocket serves the single-session websocket: snapshots and audio
// go down, intents and recognition events come up.
func (s *Server) handleSessionSocket(c echo.Context) error {
	conn, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return nil
	}
	defer func() { _ = conn.Close() }()

	surface := newWSSurface(conn)
	defer surface.shutdown()

	// First frame must announce recognition capability.
	var hello sessionWSMessage
	if err := conn.ReadJSON(&hello); err != nil || hello.Type != "hello" {
		_ = surface.send(sessionWSMessage{Type: "state"})
		return nil
	}

	session := s.opts.Session
	engine := capture.New(surface, s.opts.Capture.SilenceTimeout, s.opts.Capture.InitialSilence,
		hello.SpeechSupported, session.HandleUtterance)
	session.Attach(surface, engine, func(snap call.Snapshot) {
		if err := surface.send(sessionWSMessage{Type: "state", State: &snap}); err != nil {
			log.Printf("ws state push failed: %v", err)
		}
	})
	defer session.Detach()
	defer engine.Close()

	for {
		var msg sessionWSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return nil
		}
		switch msg.Type {
		case "accept":
			session.Accept()
		case "reject":
			session.Reject()
		case "hangup":
			session.Hangup()
		case "partial":
			engine.HandlePartial(msg.Text)
		case "recog-error":
			engine.HandleError(msg.Message)
		case "recog-end":
			engine.HandleEnd()
		case "playback-ended":
			surface.playbackEnded(msg.TurnID)
		default:
			log.Printf("ws: ignoring message type %q", msg.Type)
		}
	}
}
