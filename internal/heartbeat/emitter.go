// Package heartbeat announces student liveness while an exam view is
// mounted, so the server's presence model can tell silent drops from
// graceful leaves.
package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edusync/examroom-client/internal/channel"
	"github.com/edusync/examroom-client/internal/protocol"
)

// Emitter sends a heartbeat at a fixed interval and a single leave
// intent when stopped. Stop is idempotent and also runs on context
// cancellation, so a missed leave is only possible on a hard kill —
// exactly the case the server's heartbeat timeout exists to cover.
type Emitter struct {
	ch        channel.Channel
	log       zerolog.Logger
	examID    int64
	studentID string
	interval  time.Duration

	stopOnce sync.Once
	done     chan struct{}
}

func New(ch channel.Channel, log zerolog.Logger, examID int64, studentID string, interval time.Duration) *Emitter {
	return &Emitter{
		ch:        ch,
		log:       log.With().Str("component", "heartbeat").Int64("exam_id", examID).Logger(),
		examID:    examID,
		studentID: studentID,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

// Start runs the heartbeat loop until Stop is called or ctx is
// cancelled. Call in a goroutine.
func (e *Emitter) Start(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.Stop()
			return
		case <-e.done:
			return
		case <-ticker.C:
			e.beat()
		}
	}
}

// beat sends one liveness ping. Failures are expected while the channel
// is between reconnects; the next tick simply tries again.
func (e *Emitter) beat() {
	err := e.ch.Emit(protocol.IntentHeartbeat, protocol.HeartbeatPayload{
		ExamID:    e.examID,
		StudentID: e.studentID,
	})
	if err != nil {
		e.log.Debug().Err(err).Msg("Heartbeat skipped")
	}
}

// Stop halts the ticker and announces the departure exactly once.
func (e *Emitter) Stop() {
	e.stopOnce.Do(func() {
		close(e.done)
		err := e.ch.Emit(protocol.IntentLeaveExam, protocol.LeavePayload{
			ExamID:    e.examID,
			StudentID: e.studentID,
		})
		if err != nil {
			e.log.Debug().Err(err).Msg("Leave not delivered")
		}
	})
}
