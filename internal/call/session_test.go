package call

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/koksal000/engel/internal/store"
)

type recordingCalls struct {
	mu      sync.Mutex
	created []store.Call
	updated []store.Call
	failNew bool
}

func (r *recordingCalls) CreateCall(_ context.Context, c *store.Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNew {
		return errors.New("db down")
	}
	if c.ID == "" {
		c.ID = "call-1"
	}
	r.created = append(r.created, *c)
	return nil
}

func (r *recordingCalls) ListCalls(_ context.Context) ([]*store.Call, error) { return nil, nil }

func (r *recordingCalls) UpdateCall(_ context.Context, c *store.Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, *c)
	return nil
}

func (r *recordingCalls) updates() []store.Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]store.Call(nil), r.updated...)
}

type scriptedDialogue struct {
	mu      sync.Mutex
	replies []string
	err     error
	gate    chan struct{} // when non-nil, Reply blocks until the gate closes
	seen    [][]store.Turn
}

func (d *scriptedDialogue) Reply(ctx context.Context, _ *store.Application, history []store.Turn) (string, error) {
	d.mu.Lock()
	d.seen = append(d.seen, append([]store.Turn(nil), history...))
	gate := d.gate
	var reply string
	if len(d.replies) > 0 {
		reply = d.replies[0]
		d.replies = d.replies[1:]
	}
	err := d.err
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return reply, err
}

func (d *scriptedDialogue) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

func (d *scriptedDialogue) historyAt(i int) []store.Turn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[i]
}

type fakeSynth struct{}

func (fakeSynth) Synthesize(context.Context, string) ([]byte, error) {
	return []byte("RIFF"), nil
}

type fakePlayer struct {
	mu     sync.Mutex
	played int
}

func (p *fakePlayer) Play(ctx context.Context, _ []byte) error {
	p.mu.Lock()
	p.played++
	p.mu.Unlock()
	return ctx.Err()
}

func (p *fakePlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.played
}

type fakeCapture struct {
	mu        sync.Mutex
	listening bool
	starts    int
	resets    int
	closed    bool
}

func (c *fakeCapture) StartListening() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listening = true
	c.starts++
}

func (c *fakeCapture) IsListening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening
}

func (c *fakeCapture) Supported() bool { return true }

func (c *fakeCapture) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resets++
}

func (c *fakeCapture) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listening = false
	c.closed = true
}

func (c *fakeCapture) startCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts
}

func (c *fakeCapture) stopListening() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listening = false
}

// snapshotLog collects every published snapshot and wakes waiters on each one.
type snapshotLog struct {
	mu    sync.Mutex
	snaps []Snapshot
	bump  chan struct{}
}

func newSnapshotLog() *snapshotLog {
	return &snapshotLog{bump: make(chan struct{}, 64)}
}

func (l *snapshotLog) notify(s Snapshot) {
	l.mu.Lock()
	l.snaps = append(l.snaps, s)
	l.mu.Unlock()
	select {
	case l.bump <- struct{}{}:
	default:
	}
}

func (l *snapshotLog) all() []Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Snapshot(nil), l.snaps...)
}

func (l *snapshotLog) waitFor(t *testing.T, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		for _, s := range l.all() {
			if cond(s) {
				return s
			}
		}
		select {
		case <-l.bump:
		case <-deadline:
			t.Fatalf("condition not reached; snapshots: %+v", l.all())
		}
	}
}

func testApplication() *store.Application {
	return &store.Application{
		ID:      "app-1",
		Name:    "Ayşe",
		Surname: "Yılmaz",
	}
}

type sessionHarness struct {
	session  *Session
	calls    *recordingCalls
	dialogue *scriptedDialogue
	player   *fakePlayer
	capture  *fakeCapture
	log      *snapshotLog
}

func newHarness(t *testing.T, dialogue *scriptedDialogue, ringTimeout time.Duration) *sessionHarness {
	t.Helper()
	h := &sessionHarness{
		calls:    &recordingCalls{},
		dialogue: dialogue,
		player:   &fakePlayer{},
		capture:  &fakeCapture{},
		log:      newSnapshotLog(),
	}
	h.session = NewSession(h.calls, dialogue, fakeSynth{}, ringTimeout)
	h.session.Attach(h.player, h.capture, h.log.notify)
	return h
}

// utter delivers a finalized utterance the way the capture engine does:
// listening ends before the result is handed to the session.
func (h *sessionHarness) utter(text string) {
	h.capture.stopListening()
	h.session.HandleUtterance(text)
}

func (h *sessionHarness) ring(t *testing.T) *store.Call {
	t.Helper()
	sch := NewScheduler(h.session, h.calls)
	if !sch.Schedule(testApplication(), 0) {
		t.Fatal("schedule refused")
	}
	snap := h.log.waitFor(t, func(s Snapshot) bool { return s.Phase == PhaseIncoming })
	return snap.Call
}

func TestSchedulerWritesMissedRowBeforeRinging(t *testing.T) {
	h := newHarness(t, &scriptedDialogue{}, time.Minute)
	c := h.ring(t)

	if c == nil {
		t.Fatal("incoming snapshot has no call")
	}
	if c.Status != store.CallMissed {
		t.Fatalf("write-ahead status = %q, want missed", c.Status)
	}
	if c.DisplayName != "Ayşe Yılmaz" {
		t.Fatalf("display name = %q", c.DisplayName)
	}
	h.calls.mu.Lock()
	created := len(h.calls.created)
	h.calls.mu.Unlock()
	if created != 1 {
		t.Fatalf("created %d rows, want 1", created)
	}
}

func TestSchedulerRefusesWhileArmedOrOccupied(t *testing.T) {
	h := newHarness(t, &scriptedDialogue{}, time.Minute)
	sch := NewScheduler(h.session, h.calls)

	if !sch.Schedule(testApplication(), time.Hour) {
		t.Fatal("first schedule refused")
	}
	if sch.Schedule(testApplication(), 0) {
		t.Fatal("second schedule accepted while armed")
	}
	sch.Cancel()

	h.ring(t)
	if sch.Schedule(testApplication(), 0) {
		t.Fatal("schedule accepted while a call is ringing")
	}
}

func TestSchedulerDropsCallWhenPersistFails(t *testing.T) {
	h := newHarness(t, &scriptedDialogue{}, time.Minute)
	h.calls.failNew = true
	sch := NewScheduler(h.session, h.calls)
	if !sch.Schedule(testApplication(), 0) {
		t.Fatal("schedule refused")
	}

	time.Sleep(50 * time.Millisecond)
	if h.session.Occupied() {
		t.Fatal("session rang despite failed write-ahead row")
	}
	if !sch.Schedule(testApplication(), time.Hour) {
		t.Fatal("scheduler still armed after a dropped call")
	}
}

func TestRingTimeoutLeavesMissedRowUntouched(t *testing.T) {
	h := newHarness(t, &scriptedDialogue{}, 30*time.Millisecond)
	h.ring(t)

	h.log.waitFor(t, func(s Snapshot) bool { return s.Phase == PhaseNone })
	if h.session.Occupied() {
		t.Fatal("session still occupied after ring timeout")
	}
	if got := h.calls.updates(); len(got) != 0 {
		t.Fatalf("ring timeout issued %d redundant updates: %+v", len(got), got)
	}
}

func TestAcceptPersistsAnsweredAndSpeaksGreeting(t *testing.T) {
	h := newHarness(t, &scriptedDialogue{replies: []string{"ignored"}}, time.Minute)
	h.ring(t)
	h.session.Accept()

	h.log.waitFor(t, func(s Snapshot) bool {
		return s.Phase == PhaseActive && !s.AIThinking && s.Listening
	})

	ups := h.calls.updates()
	if len(ups) != 1 {
		t.Fatalf("accept issued %d updates, want 1", len(ups))
	}
	if ups[0].Status != store.CallAnswered || ups[0].DurationSeconds != 0 {
		t.Fatalf("accept persisted %+v", ups[0])
	}
	if h.dialogue.calls() != 1 {
		t.Fatalf("greeting turn ran %d times, want 1", h.dialogue.calls())
	}
	if got := h.dialogue.historyAt(0); len(got) != 0 {
		t.Fatalf("greeting turn saw history %+v, want empty", got)
	}
	if h.player.count() != 1 {
		t.Fatalf("playback ran %d times, want 1", h.player.count())
	}
}

func TestTurnStatesAreMutuallyExclusive(t *testing.T) {
	h := newHarness(t, &scriptedDialogue{replies: []string{"Merhaba", "Tabii"}}, time.Minute)
	h.ring(t)
	h.session.Accept()
	h.log.waitFor(t, func(s Snapshot) bool { return s.Phase == PhaseActive && s.Listening })
	h.utter("Randevu almak istiyorum")
	h.log.waitFor(t, func(s Snapshot) bool { return s.Listening && h.dialogue.calls() == 2 })

	for _, s := range h.log.all() {
		states := 0
		if s.AIThinking {
			states++
		}
		if s.Listening {
			states++
		}
		if states > 1 {
			t.Fatalf("snapshot holds %d concurrent turn states: %+v", states, s)
		}
	}
}

func TestEmptyUtteranceIsNotATurn(t *testing.T) {
	h := newHarness(t, &scriptedDialogue{replies: []string{"Merhaba"}}, time.Minute)
	h.ring(t)
	h.session.Accept()
	h.log.waitFor(t, func(s Snapshot) bool { return s.Phase == PhaseActive && s.Listening })
	before := h.capture.startCount()

	h.utter("   ")

	h.log.waitFor(t, func(s Snapshot) bool { return s.Listening })
	if h.capture.startCount() != before+1 {
		t.Fatal("empty utterance did not re-arm listening")
	}
	if h.dialogue.calls() != 1 {
		t.Fatalf("empty utterance started a turn: %d dialogue calls", h.dialogue.calls())
	}
}

func TestUtteranceDroppedWhileThinking(t *testing.T) {
	gate := make(chan struct{})
	d := &scriptedDialogue{replies: []string{"Merhaba", "İkinci"}, gate: gate}
	h := newHarness(t, d, time.Minute)
	h.ring(t)
	h.session.Accept()
	h.log.waitFor(t, func(s Snapshot) bool { return s.AIThinking })

	h.session.HandleUtterance("araya girdim")
	if d.calls() != 1 {
		t.Fatalf("utterance during thinking started a turn: %d dialogue calls", d.calls())
	}
	close(gate)
	h.log.waitFor(t, func(s Snapshot) bool { return s.Listening })
}

func TestHangupPersistsDurationAndTranscript(t *testing.T) {
	h := newHarness(t, &scriptedDialogue{replies: []string{"x", "Elbette"}}, time.Minute)
	h.ring(t)
	h.session.Accept()
	h.log.waitFor(t, func(s Snapshot) bool { return s.Phase == PhaseActive && s.Listening })
	h.utter("Teşekkür ederim")
	h.log.waitFor(t, func(s Snapshot) bool { return s.Listening && h.dialogue.calls() == 2 })

	h.session.Hangup()

	ups := h.calls.updates()
	final := ups[len(ups)-1]
	if final.Status != store.CallAnswered {
		t.Fatalf("final status = %q", final.Status)
	}
	if final.DurationSeconds != 0 {
		t.Fatalf("sub-second call persisted duration %d, want 0", final.DurationSeconds)
	}
	want := []store.Turn{
		{Role: store.RoleModel, Text: "x"},
		{Role: store.RoleUser, Text: "Teşekkür ederim"},
		{Role: store.RoleModel, Text: "Elbette"},
	}
	if len(final.Transcript) != len(want) {
		t.Fatalf("transcript %+v, want %+v", final.Transcript, want)
	}
	for i := range want {
		if final.Transcript[i] != want[i] {
			t.Fatalf("transcript[%d] = %+v, want %+v", i, final.Transcript[i], want[i])
		}
	}
	if !h.capture.closed {
		t.Fatal("capture not shut down on hangup")
	}
}

func TestRejectPersistsRejectedWithZeroDuration(t *testing.T) {
	h := newHarness(t, &scriptedDialogue{}, time.Minute)
	h.ring(t)
	h.session.Reject()

	ups := h.calls.updates()
	if len(ups) != 1 {
		t.Fatalf("reject issued %d updates, want 1", len(ups))
	}
	if ups[0].Status != store.CallRejected || ups[0].DurationSeconds != 0 {
		t.Fatalf("reject persisted %+v", ups[0])
	}
	if h.session.Occupied() {
		t.Fatal("session still occupied after reject")
	}

	// Terminal states do not reopen.
	h.session.Accept()
	if len(h.calls.updates()) != 1 {
		t.Fatal("accept after reject produced a write")
	}
}

func TestStaleDialogueReplyDiscardedAfterHangup(t *testing.T) {
	gate := make(chan struct{})
	d := &scriptedDialogue{replies: []string{"Merhaba", "geç kalan cevap"}, gate: gate}
	h := newHarness(t, d, time.Minute)
	h.ring(t)
	h.session.Accept()
	h.log.waitFor(t, func(s Snapshot) bool { return s.AIThinking })

	h.session.Hangup()
	playsAtHangup := h.player.count()
	startsAtHangup := h.capture.startCount()
	close(gate)

	time.Sleep(50 * time.Millisecond)
	if h.player.count() != playsAtHangup {
		t.Fatal("stale reply reached playback after hangup")
	}
	if h.capture.startCount() != startsAtHangup {
		t.Fatal("stale reply re-armed capture after hangup")
	}
	ups := h.calls.updates()
	final := ups[len(ups)-1]
	if len(final.Transcript) != 0 {
		t.Fatalf("hangup before first reply persisted transcript %+v", final.Transcript)
	}
}

func TestDialogueFailureHandsFloorBack(t *testing.T) {
	d := &scriptedDialogue{replies: []string{"Merhaba", ""}, err: nil}
	h := newHarness(t, d, time.Minute)
	h.ring(t)
	h.session.Accept()
	h.log.waitFor(t, func(s Snapshot) bool { return s.Phase == PhaseActive && s.Listening })
	plays := h.player.count()

	d.mu.Lock()
	d.err = errors.New("provider down")
	d.mu.Unlock()
	h.utter("Merhaba")

	h.log.waitFor(t, func(s Snapshot) bool { return s.Listening && !s.AIThinking && d.calls() == 2 })
	if h.player.count() != plays {
		t.Fatal("failed turn still reached playback")
	}
	h.session.Hangup()
	ups := h.calls.updates()
	final := ups[len(ups)-1]
	for _, turn := range final.Transcript {
		if turn.Role == store.RoleModel && turn.Text == "" {
			t.Fatal("failed turn left an empty model entry in the transcript")
		}
	}
}

func TestElapsedSecondsAdvancesWhileActive(t *testing.T) {
	h := newHarness(t, &scriptedDialogue{replies: []string{"Merhaba"}}, time.Minute)
	h.ring(t)
	h.session.Accept()
	h.log.waitFor(t, func(s Snapshot) bool { return s.ElapsedSeconds >= 1 })
	h.session.Hangup()

	ups := h.calls.updates()
	if final := ups[len(ups)-1]; final.DurationSeconds < 1 {
		t.Fatalf("persisted duration %d after more than a second", final.DurationSeconds)
	}
}
