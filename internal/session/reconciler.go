package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edusync/examroom-client/internal/channel"
	"github.com/edusync/examroom-client/internal/notify"
	"github.com/edusync/examroom-client/internal/protocol"
)

// Phase is the reconciled lifecycle stage of an exam session as this
// client understands it. Transitions are server-driven; the only local
// concession is the fallback expiry check in Expired.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseRunning Phase = "running"
	PhaseWarned  Phase = "warned"
	PhaseEnded   Phase = "ended"
)

// Watch reconciles inbound session events for a single exam into a
// phase plus the authoritative deadline. The deadline always comes from
// the server; the client only ever derives the remaining time from it.
type Watch struct {
	examID   int64
	ch       channel.Channel
	notifier notify.Notifier
	log      zerolog.Logger

	mu    sync.Mutex
	phase Phase
	endAt time.Time // zero when phase is idle or unset

	cancels []func()
	now     func() time.Time
}

// Observe subscribes to session events for one exam and returns the
// watch. The caller must Close it on unmount to detach every handler.
func Observe(ch channel.Channel, notifier notify.Notifier, log zerolog.Logger, examID int64) *Watch {
	w := &Watch{
		examID:   examID,
		ch:       ch,
		notifier: notifier,
		log:      log.With().Str("component", "session").Int64("exam_id", examID).Logger(),
		phase:    PhaseIdle,
		now:      time.Now,
	}

	w.cancels = append(w.cancels,
		ch.On(protocol.EventExamStarted, w.onStarted),
		ch.On(protocol.EventExamWarning, w.onWarning),
		ch.On(protocol.EventExamEnded, w.onEnded),
		ch.On(protocol.EventExamStopped, w.onStopped),
	)
	return w
}

func (w *Watch) onStarted(msg *protocol.Message) {
	p, ok := msg.Payload.(protocol.ExamStartedPayload)
	if !ok || p.ExamID != w.examID {
		return
	}
	endAt := time.UnixMilli(p.EndAt)

	w.mu.Lock()
	// Duplicate started with the same deadline is a no-op, so a resent
	// event (the server re-pushes one on every join) cannot regress a
	// warned phase or re-trigger the start notice.
	if (w.phase == PhaseRunning || w.phase == PhaseWarned) && w.endAt.Equal(endAt) {
		w.mu.Unlock()
		return
	}
	w.phase = PhaseRunning
	w.endAt = endAt
	w.mu.Unlock()

	w.log.Info().Time("end_at", endAt).Msg("Session started")
	w.notifier.Notify("Session started")
}

func (w *Watch) onWarning(msg *protocol.Message) {
	p, ok := msg.Payload.(protocol.ExamWarningPayload)
	if !ok || p.ExamID != w.examID {
		return
	}

	w.mu.Lock()
	if w.phase != PhaseRunning && w.phase != PhaseWarned {
		w.mu.Unlock()
		return
	}
	transition := w.phase == PhaseRunning
	w.phase = PhaseWarned
	// Some servers re-push the deadline with the warning; a provided
	// value overwrites, absence keeps the one already held.
	if p.EndAt != 0 {
		w.endAt = time.UnixMilli(p.EndAt)
	}
	w.mu.Unlock()

	if transition {
		w.log.Info().Msg("Session in warning window")
		w.notifier.Notify("Time is almost up, remember to submit your work")
	}
}

func (w *Watch) onEnded(msg *protocol.Message) {
	p, ok := msg.Payload.(protocol.ExamEndedPayload)
	if !ok || p.ExamID != w.examID {
		return
	}

	w.mu.Lock()
	if w.phase != PhaseRunning && w.phase != PhaseWarned {
		w.mu.Unlock()
		return
	}
	w.phase = PhaseEnded
	// The ended event carries no deadline; receipt time becomes the
	// display cutoff so the countdown freezes at zero.
	w.endAt = w.now()
	w.mu.Unlock()

	w.log.Info().Msg("Session ended")
	w.notifier.Notify("Time is up, submissions are locked")
}

func (w *Watch) onStopped(msg *protocol.Message) {
	p, ok := msg.Payload.(protocol.ExamStoppedPayload)
	if !ok || p.ExamID != w.examID {
		return
	}

	w.mu.Lock()
	if w.phase == PhaseIdle {
		w.mu.Unlock()
		return
	}
	w.phase = PhaseIdle
	w.endAt = time.Time{}
	w.mu.Unlock()

	w.log.Info().Msg("Session stopped")
	w.notifier.Notify("Session stopped")
}

// Start asks the server to begin a timed session. The phase does not
// change here; it changes when the exam-started event comes back.
func (w *Watch) Start(durationMin int) error {
	return w.ch.Emit(protocol.IntentStartExam, protocol.StartExamPayload{
		ExamID:      w.examID,
		DurationMin: durationMin,
	})
}

// Stop asks the server to cancel the session. Intent only, like Start.
func (w *Watch) Stop() error {
	return w.ch.Emit(protocol.IntentStopExam, protocol.StopExamPayload{
		ExamID: w.examID,
	})
}

// Phase returns the current reconciled phase.
func (w *Watch) Phase() Phase {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phase
}

// EndAt returns the authoritative deadline, if one is held.
func (w *Watch) EndAt() (time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.endAt, !w.endAt.IsZero()
}

// Remaining returns the time left on the countdown at now, clamped to
// zero. ok is false when no deadline is held (idle phase).
func (w *Watch) Remaining(now time.Time) (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.endAt.IsZero() {
		return 0, false
	}
	d := w.endAt.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}

// Expired reports the fallback expiry: the local clock has passed the
// deadline while the session is still running or warned, meaning the
// authoritative ended event has not arrived yet. Gating fails closed on
// it; the phase itself still waits for the server.
func (w *Watch) Expired(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.phase != PhaseRunning && w.phase != PhaseWarned {
		return false
	}
	return !w.endAt.IsZero() && !now.Before(w.endAt)
}

// Close detaches every handler the watch registered.
func (w *Watch) Close() {
	for _, cancel := range w.cancels {
		cancel()
	}
	w.cancels = nil
}
