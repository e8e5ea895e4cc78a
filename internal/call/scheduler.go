package call

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/koksal000/engel/internal/store"
)

// Scheduler arms at most one future call at a time. When the timer fires it
// writes the Call row ahead of ringing with status "missed", so a caller who
// never answers needs no further write.
type Scheduler struct {
	session *Session
	calls   store.Calls

	mu      sync.Mutex
	pending bool
	timer   *time.Timer
}

func NewScheduler(session *Session, calls store.Calls) *Scheduler {
	return &Scheduler{session: session, calls: calls}
}

// Schedule arms a call for the application after the given delay. It reports
// false without side effects when a call is already armed or in progress, so
// repeated triggers cannot stack calls.
func (sch *Scheduler) Schedule(app *store.Application, delay time.Duration) bool {
	if delay < 0 {
		delay = 0
	}
	sch.mu.Lock()
	defer sch.mu.Unlock()
	if sch.pending || sch.session.Occupied() {
		return false
	}
	sch.pending = true
	sch.timer = time.AfterFunc(delay, func() { sch.fire(app) })
	log.Printf("call for application %s scheduled in %s", app.ID, delay)
	return true
}

// Cancel disarms a pending call that has not fired yet.
func (sch *Scheduler) Cancel() {
	sch.mu.Lock()
	defer sch.mu.Unlock()
	if sch.timer != nil {
		sch.timer.Stop()
		sch.timer = nil
	}
	sch.pending = false
}

func (sch *Scheduler) fire(app *store.Application) {
	sch.mu.Lock()
	sch.pending = false
	sch.timer = nil
	sch.mu.Unlock()

	c := &store.Call{
		ApplicationID:   app.ID,
		DisplayName:     app.DisplayName(),
		Status:          store.CallMissed,
		StartedAt:       time.Now(),
		DurationSeconds: 0,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sch.calls.CreateCall(ctx, c); err != nil {
		// The call is lost rather than retried: the applicant can be
		// called again from the admin page.
		log.Printf("create call for application %s failed, call dropped: %v", app.ID, err)
		return
	}
	if err := sch.session.Begin(app, c); err != nil {
		log.Printf("begin call %s failed: %v", c.ID, err)
	}
}
