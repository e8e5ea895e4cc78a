package call

import (
	"context"
	"log"
	"strings"

	"github.com/koksal000/engel/internal/store"
)

// HandleUtterance receives a finalized capture result. An empty utterance is
// not a turn: capture simply re-arms so the caller can try again. A non-empty
// utterance is appended to the history and kicks off a model turn.
//
// Turns are strictly sequential: while a turn is thinking or speaking, late
// utterances are dropped rather than queued.
func (s *Session) HandleUtterance(text string) {
	text = strings.TrimSpace(text)

	s.mu.Lock()
	if s.phase != PhaseActive || s.thinking || s.speaking {
		s.mu.Unlock()
		return
	}
	if text == "" {
		if s.capture != nil {
			s.capture.StartListening()
		}
		s.mu.Unlock()
		s.publish()
		return
	}
	s.history = append(s.history, store.Turn{Role: store.RoleUser, Text: text})
	s.thinking = true
	tok := s.token
	ctx := s.ctx
	s.mu.Unlock()

	s.publish()
	go s.runTurn(ctx, tok)
}

// runTurn executes one model turn: generate a reply from the history so far,
// speak it, then hand the floor back to the caller by re-arming capture. The
// session token is re-checked after every await so results that straddle a
// hangup are discarded.
func (s *Session) runTurn(ctx context.Context, tok string) {
	s.mu.Lock()
	if s.token != tok {
		s.mu.Unlock()
		return
	}
	app := s.app
	history := append([]store.Turn(nil), s.history...)
	s.mu.Unlock()

	reply, err := s.dialogue.Reply(ctx, app, history)
	reply = strings.TrimSpace(reply)
	if err != nil || reply == "" {
		if err != nil {
			log.Printf("dialogue turn failed: %v", err)
		}
		s.recoverTurn(tok)
		return
	}

	s.mu.Lock()
	if s.token != tok {
		s.mu.Unlock()
		return
	}
	s.history = append(s.history, store.Turn{Role: store.RoleModel, Text: reply})
	s.thinking = false
	s.speaking = true
	s.mu.Unlock()
	s.publish()

	// Synthesize never leaves us without audio: on failure it hands back a
	// silent clip so the turn still completes through playback.
	audio, synthErr := s.synth.Synthesize(ctx, reply)
	if synthErr != nil {
		log.Printf("speech synthesis degraded to silence: %v", synthErr)
	}
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	if s.token != tok {
		s.mu.Unlock()
		return
	}
	player := s.player
	s.mu.Unlock()

	if player != nil {
		if err := player.Play(ctx, audio); err != nil && ctx.Err() == nil {
			log.Printf("audio playback failed: %v", err)
		}
	}

	s.mu.Lock()
	if s.token != tok {
		s.mu.Unlock()
		return
	}
	s.speaking = false
	if s.capture != nil {
		s.capture.StartListening()
	}
	s.mu.Unlock()
	s.publish()
}

// recoverTurn abandons a failed turn without ending the call: the caller gets
// the floor back and may speak again.
func (s *Session) recoverTurn(tok string) {
	s.mu.Lock()
	if s.token != tok {
		s.mu.Unlock()
		return
	}
	s.thinking = false
	s.speaking = false
	if s.capture != nil {
		s.capture.StartListening()
	}
	s.mu.Unlock()
	s.publish()
}
