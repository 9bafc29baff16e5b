package presence

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edusync/examroom-client/internal/channel"
	"github.com/edusync/examroom-client/internal/notify"
	"github.com/edusync/examroom-client/internal/protocol"
)

// Status is a student's connection state as observed by a professor
// view. offline is a graceful leave, disconnected a timeout-detected
// drop; a later online event supersedes either.
type Status string

const (
	StatusOnline       Status = "online"
	StatusOffline      Status = "offline"
	StatusDisconnected Status = "disconnected"
)

// Record is one roster row. JoinedAt and LeftAt are local observation
// times for display only, not authoritative.
type Record struct {
	StudentID string
	Matricule string
	Status    Status
	JoinedAt  time.Time
	LeftAt    time.Time
}

// Tracker maintains the professor-side roster for one exam. Rows are
// created on the first online event for a student and never removed;
// only the status regresses. Each event is a full-status overwrite
// keyed by student, so out-of-order application is last-write-wins.
type Tracker struct {
	examID        int64
	participantID string
	ch            channel.Channel
	notifier      notify.Notifier
	log           zerolog.Logger

	mu   sync.Mutex
	rows map[string]*Record

	cancels []func()
	now     func() time.Time
}

// Open subscribes to presence events for one exam and announces the
// professor as an observer on every connect. Observer joins do not
// create roster rows. Close must be called on unmount.
func Open(ch channel.Channel, notifier notify.Notifier, log zerolog.Logger, examID int64, participantID string) *Tracker {
	t := &Tracker{
		examID:        examID,
		participantID: participantID,
		ch:            ch,
		notifier:      notifier,
		log:           log.With().Str("component", "presence").Int64("exam_id", examID).Logger(),
		rows:          make(map[string]*Record),
		now:           time.Now,
	}

	t.cancels = append(t.cancels,
		ch.OnConnect(t.announce),
		ch.On(protocol.EventStudentConnected, t.onConnected),
		ch.On(protocol.EventStudentOffline, t.onOffline),
		ch.On(protocol.EventStudentDisconnected, t.onDisconnected),
		ch.On(protocol.EventFileSubmitted, t.onFileSubmitted),
	)
	return t
}

// announce re-joins as observer. It runs on every reconnect because the
// server re-sends current state only to clients that have joined.
func (t *Tracker) announce() {
	err := t.ch.Emit(protocol.IntentJoinExam, protocol.JoinPayload{
		ExamID:    t.examID,
		StudentID: t.participantID,
		Role:      protocol.RoleProfessor,
	})
	if err != nil {
		t.log.Warn().Err(err).Msg("Observer join failed")
	}
}

func (t *Tracker) onConnected(msg *protocol.Message) {
	p, ok := msg.Payload.(protocol.StudentConnectedPayload)
	if !ok || p.ExamID != t.examID {
		return
	}

	t.mu.Lock()
	row := t.rows[p.StudentID]
	if row == nil {
		row = &Record{StudentID: p.StudentID}
		t.rows[p.StudentID] = row
	}
	row.Status = StatusOnline
	if p.Matricule != "" {
		row.Matricule = p.Matricule
	}
	row.JoinedAt = t.now()
	t.mu.Unlock()
}

func (t *Tracker) onOffline(msg *protocol.Message) {
	p, ok := msg.Payload.(protocol.StudentOfflinePayload)
	if !ok || p.ExamID != t.examID {
		return
	}

	t.mu.Lock()
	// A negative event never creates a row.
	if row := t.rows[p.StudentID]; row != nil {
		row.Status = StatusOffline
		row.LeftAt = t.now()
	}
	t.mu.Unlock()
}

func (t *Tracker) onDisconnected(msg *protocol.Message) {
	p, ok := msg.Payload.(protocol.StudentDisconnectedPayload)
	if !ok || p.ExamID != t.examID {
		return
	}

	t.mu.Lock()
	if row := t.rows[p.StudentID]; row != nil {
		row.Status = StatusDisconnected
		row.LeftAt = t.now()
	}
	t.mu.Unlock()
}

// onFileSubmitted surfaces a transient notice only; submissions are not
// roster state. Duplicates just repeat the notice.
func (t *Tracker) onFileSubmitted(msg *protocol.Message) {
	p, ok := msg.Payload.(protocol.FileSubmittedPayload)
	if !ok || p.ExamID != t.examID {
		return
	}
	count := p.FileCount
	if count < 1 {
		count = 1
	}
	t.notifier.Notify(fmt.Sprintf("%s submitted %d file(s)", p.StudentID, count))
}

// Snapshot returns the roster sorted by student ID for stable rendering.
func (t *Tracker) Snapshot() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Record, 0, len(t.rows))
	for _, row := range t.rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out
}

// Close detaches every handler the tracker registered.
func (t *Tracker) Close() {
	for _, cancel := range t.cancels {
		cancel()
	}
	t.cancels = nil
}
