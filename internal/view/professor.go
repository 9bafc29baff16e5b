package view

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edusync/examroom-client/internal/channel"
	"github.com/edusync/examroom-client/internal/notify"
	"github.com/edusync/examroom-client/internal/presence"
	"github.com/edusync/examroom-client/internal/session"
)

// ProfessorView is the proctoring view: it observes session timing,
// tracks the student roster, and sends start/stop intents. The observer
// identity is fresh per mount, the way the original client derived it
// from the live connection.
type ProfessorView struct {
	ch       channel.Channel
	notifier notify.Notifier
	log      zerolog.Logger
	out      io.Writer

	examID int64

	mu         sync.Mutex
	mounted    bool
	watch      *session.Watch
	tracker    *presence.Tracker
	stopRender context.CancelFunc
}

func NewProfessor(ch channel.Channel, notifier notify.Notifier, log zerolog.Logger, out io.Writer, examID int64) *ProfessorView {
	return &ProfessorView{
		ch:       ch,
		notifier: notifier,
		log:      log.With().Str("component", "professor_view").Int64("exam_id", examID).Logger(),
		out:      out,
		examID:   examID,
	}
}

// Mount attaches the session watch and the roster tracker and starts
// the 1-second render loop.
func (v *ProfessorView) Mount() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.mounted {
		return fmt.Errorf("professor view already mounted")
	}
	v.mounted = true

	participantID := "prof-" + uuid.NewString()[:8]
	v.watch = session.Observe(v.ch, v.notifier, v.log, v.examID)
	v.tracker = presence.Open(v.ch, v.notifier, v.log, v.examID, participantID)

	renderCtx, stopRender := context.WithCancel(context.Background())
	v.stopRender = stopRender
	go v.renderLoop(renderCtx)
	return nil
}

// StartSession asks the server to run the exam for durationMin minutes.
// The view's state does not change until the exam-started event returns.
func (v *ProfessorView) StartSession(durationMin int) error {
	v.mu.Lock()
	watch := v.watch
	v.mu.Unlock()
	if watch == nil {
		return fmt.Errorf("professor view not mounted")
	}
	if err := watch.Start(durationMin); err != nil {
		v.notifier.Notify("Could not send start request: " + err.Error())
		return err
	}
	return nil
}

// StopSession asks the server to cancel the running session.
func (v *ProfessorView) StopSession() error {
	v.mu.Lock()
	watch := v.watch
	v.mu.Unlock()
	if watch == nil {
		return fmt.Errorf("professor view not mounted")
	}
	if err := watch.Stop(); err != nil {
		v.notifier.Notify("Could not send stop request: " + err.Error())
		return err
	}
	return nil
}

// Roster returns the current roster snapshot.
func (v *ProfessorView) Roster() []presence.Record {
	v.mu.Lock()
	tracker := v.tracker
	v.mu.Unlock()
	if tracker == nil {
		return nil
	}
	return tracker.Snapshot()
}

func (v *ProfessorView) renderLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.renderStatus(time.Now())
		}
	}
}

// renderStatus repaints the single countdown line once per second. The
// clock is always derived from the held deadline and the local time;
// it keeps ticking even while the channel is between reconnects.
func (v *ProfessorView) renderStatus(now time.Time) {
	v.mu.Lock()
	watch := v.watch
	tracker := v.tracker
	v.mu.Unlock()
	if watch == nil || tracker == nil {
		return
	}

	clock := "--:--"
	if remaining, ok := watch.Remaining(now); ok {
		clock = session.FormatClock(remaining)
	}
	online := 0
	for _, r := range tracker.Snapshot() {
		if r.Status == presence.StatusOnline {
			online++
		}
	}
	fmt.Fprintf(v.out, "\rExam #%d  [%s]  %s  online=%d", v.examID, watch.Phase(), clock, online)
}

// RenderOnce writes the countdown header and the roster table.
func (v *ProfessorView) RenderOnce(now time.Time) {
	v.mu.Lock()
	watch := v.watch
	tracker := v.tracker
	v.mu.Unlock()
	if watch == nil || tracker == nil {
		return
	}

	clock := "--:--"
	if remaining, ok := watch.Remaining(now); ok {
		clock = session.FormatClock(remaining)
	}
	fmt.Fprintf(v.out, "Exam #%d  [%s]  %s\n", v.examID, watch.Phase(), clock)

	rows := tracker.Snapshot()
	if len(rows) == 0 {
		fmt.Fprintln(v.out, "  no students yet")
		return
	}
	for _, r := range rows {
		joined, left := "-", "-"
		if !r.JoinedAt.IsZero() {
			joined = r.JoinedAt.Format("15:04:05")
		}
		if !r.LeftAt.IsZero() {
			left = r.LeftAt.Format("15:04:05")
		}
		fmt.Fprintf(v.out, "  %-12s %-12s in=%s out=%s %s\n", r.StudentID, r.Matricule, joined, left, r.Status)
	}
}

// Unmount detaches the watch, the tracker, and the render loop.
// Safe to call more than once.
func (v *ProfessorView) Unmount() {
	v.mu.Lock()
	if !v.mounted {
		v.mu.Unlock()
		return
	}
	v.mounted = false
	watch := v.watch
	tracker := v.tracker
	stopRender := v.stopRender
	v.watch = nil
	v.tracker = nil
	v.stopRender = nil
	v.mu.Unlock()

	if stopRender != nil {
		stopRender()
	}
	if tracker != nil {
		tracker.Close()
	}
	if watch != nil {
		watch.Close()
	}
}
