package simserver

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/edusync/examroom-client/internal/protocol"
)

// conn wraps a websocket connection with a write lock, since session
// timers and the read loop both broadcast.
type conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *conn) write(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

// studentConn is the server-side presence record for one student.
type studentConn struct {
	id        string
	matricule string
	online    bool
	lastBeat  time.Time
	conn      *conn
}

// room holds every connection and session timer for one exam.
type room struct {
	examID   int64
	conns    map[*conn]struct{}
	students map[string]*studentConn

	endAt     time.Time
	warnTimer *time.Timer
	endTimer  *time.Timer
}

// Hub is the simulator's real-time core: join/leave/heartbeat
// bookkeeping, the authoritative session timer with its warning lead,
// and fan-out of every event to the exam room.
type Hub struct {
	log              zerolog.Logger
	warningLead      time.Duration
	heartbeatTimeout time.Duration

	mu    sync.Mutex
	rooms map[int64]*room
}

// NewHub creates the hub. heartbeatTimeout is how long a student may
// stay silent before being reported disconnected; the convention is
// three missed heartbeats.
func NewHub(log zerolog.Logger, warningLead, heartbeatTimeout time.Duration) *Hub {
	return &Hub{
		log:              log.With().Str("component", "sim_hub").Logger(),
		warningLead:      warningLead,
		heartbeatTimeout: heartbeatTimeout,
		rooms:            make(map[int64]*room),
	}
}

// Run sweeps for silent students until ctx is cancelled. Call in a
// goroutine.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sweepSilent(time.Now())
		}
	}
}

// sweepSilent reports students whose heartbeat stopped without a leave.
func (h *Hub) sweepSilent(now time.Time) {
	h.mu.Lock()
	type drop struct {
		examID    int64
		studentID string
	}
	var drops []drop
	for examID, r := range h.rooms {
		for _, s := range r.students {
			if s.online && now.Sub(s.lastBeat) > h.heartbeatTimeout {
				s.online = false
				drops = append(drops, drop{examID: examID, studentID: s.id})
			}
		}
	}
	h.mu.Unlock()

	for _, d := range drops {
		h.log.Info().Int64("exam_id", d.examID).Str("student_id", d.studentID).Msg("Heartbeat timeout")
		h.Broadcast(d.examID, protocol.EventStudentDisconnected, protocol.StudentDisconnectedPayload{
			ExamID:    d.examID,
			StudentID: d.studentID,
		})
	}
}

func (h *Hub) roomLocked(examID int64) *room {
	r := h.rooms[examID]
	if r == nil {
		r = &room{
			examID:   examID,
			conns:    make(map[*conn]struct{}),
			students: make(map[string]*studentConn),
		}
		h.rooms[examID] = r
	}
	return r
}

// ServeConn owns one client connection: it decodes intents until the
// connection breaks, then reports any student bound to it as
// disconnected.
func (h *Hub) ServeConn(ws *websocket.Conn) {
	c := &conn{ws: ws}
	defer ws.Close()

	for {
		ws.SetReadDeadline(time.Now().Add(5 * time.Minute))
		_, raw, err := ws.ReadMessage()
		if err != nil {
			break
		}

		msg, err := protocol.DecodeIntent(raw)
		if err != nil {
			h.log.Warn().Err(err).Msg("Dropping bad client frame")
			continue
		}
		h.handleIntent(c, msg)
	}

	h.dropConn(c)
}

func (h *Hub) handleIntent(c *conn, msg *protocol.IntentMessage) {
	switch p := msg.Payload.(type) {
	case protocol.JoinPayload:
		h.join(c, p)
	case protocol.LeavePayload:
		h.leave(p)
	case protocol.HeartbeatPayload:
		h.heartbeat(p)
	case protocol.StartExamPayload:
		h.StartSession(p.ExamID, time.Duration(p.DurationMin)*time.Minute)
	case protocol.StopExamPayload:
		h.StopSession(p.ExamID)
	case protocol.PingPayload:
		h.pong(c, p)
	}
}

// join adds the connection to the exam room. Student joins create or
// refresh the presence record and are announced to the room; professor
// joins only observe. A joining client with a running session gets the
// current deadline re-pushed, since events missed while disconnected
// are never replayed.
func (h *Hub) join(c *conn, p protocol.JoinPayload) {
	h.mu.Lock()
	r := h.roomLocked(p.ExamID)
	r.conns[c] = struct{}{}

	var announce bool
	if p.Role == protocol.RoleStudent {
		s := r.students[p.StudentID]
		if s == nil {
			s = &studentConn{id: p.StudentID}
			r.students[p.StudentID] = s
		}
		s.online = true
		s.lastBeat = time.Now()
		s.conn = c
		if p.Matricule != "" {
			s.matricule = p.Matricule
		}
		announce = true
	}
	endAt := r.endAt
	h.mu.Unlock()

	if announce {
		h.Broadcast(p.ExamID, protocol.EventStudentConnected, protocol.StudentConnectedPayload{
			ExamID:    p.ExamID,
			StudentID: p.StudentID,
			Matricule: p.Matricule,
		})
	}

	if !endAt.IsZero() && endAt.After(time.Now()) {
		frame, err := protocol.EncodeEvent(protocol.EventExamStarted, protocol.ExamStartedPayload{
			ExamID: p.ExamID,
			EndAt:  endAt.UnixMilli(),
		})
		if err == nil {
			c.write(frame)
		}
	}
}

func (h *Hub) leave(p protocol.LeavePayload) {
	h.mu.Lock()
	r := h.rooms[p.ExamID]
	var known bool
	if r != nil {
		if s := r.students[p.StudentID]; s != nil {
			s.online = false
			s.conn = nil
			known = true
		}
	}
	h.mu.Unlock()

	if known {
		h.Broadcast(p.ExamID, protocol.EventStudentOffline, protocol.StudentOfflinePayload{
			ExamID:    p.ExamID,
			StudentID: p.StudentID,
		})
	}
}

func (h *Hub) heartbeat(p protocol.HeartbeatPayload) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r := h.rooms[p.ExamID]; r != nil {
		if s := r.students[p.StudentID]; s != nil {
			s.lastBeat = time.Now()
		}
	}
}

func (h *Hub) pong(c *conn, p protocol.PingPayload) {
	frame, err := protocol.EncodeEvent(protocol.EventPong, protocol.PongPayload{From: p.From, Time: p.Time})
	if err == nil {
		c.write(frame)
	}
}

// dropConn reports every student bound to a broken connection.
func (h *Hub) dropConn(c *conn) {
	h.mu.Lock()
	type drop struct {
		examID    int64
		studentID string
	}
	var drops []drop
	for examID, r := range h.rooms {
		delete(r.conns, c)
		for _, s := range r.students {
			if s.conn == c && s.online {
				s.online = false
				s.conn = nil
				drops = append(drops, drop{examID: examID, studentID: s.id})
			}
		}
	}
	h.mu.Unlock()

	for _, d := range drops {
		h.Broadcast(d.examID, protocol.EventStudentDisconnected, protocol.StudentDisconnectedPayload{
			ExamID:    d.examID,
			StudentID: d.studentID,
		})
	}
}

// StartSession arms the authoritative session timer and announces the
// deadline. A second start overwrites the previous timers.
func (h *Hub) StartSession(examID int64, duration time.Duration) {
	endAt := time.Now().Add(duration)

	h.mu.Lock()
	r := h.roomLocked(examID)
	r.stopTimersLocked()
	r.endAt = endAt

	if lead := duration - h.warningLead; lead > 0 {
		r.warnTimer = time.AfterFunc(lead, func() {
			h.Broadcast(examID, protocol.EventExamWarning, protocol.ExamWarningPayload{
				ExamID: examID,
				EndAt:  endAt.UnixMilli(),
			})
		})
	}
	r.endTimer = time.AfterFunc(duration, func() {
		h.mu.Lock()
		if r := h.rooms[examID]; r != nil {
			r.endAt = time.Time{}
		}
		h.mu.Unlock()
		h.Broadcast(examID, protocol.EventExamEnded, protocol.ExamEndedPayload{ExamID: examID})
	})
	h.mu.Unlock()

	h.log.Info().Int64("exam_id", examID).Time("end_at", endAt).Msg("Session started")
	h.Broadcast(examID, protocol.EventExamStarted, protocol.ExamStartedPayload{
		ExamID: examID,
		EndAt:  endAt.UnixMilli(),
	})
}

// StopSession cancels the timers and announces the stop.
func (h *Hub) StopSession(examID int64) {
	h.mu.Lock()
	r := h.rooms[examID]
	var running bool
	if r != nil && !r.endAt.IsZero() {
		r.stopTimersLocked()
		r.endAt = time.Time{}
		running = true
	}
	h.mu.Unlock()

	if running {
		h.log.Info().Int64("exam_id", examID).Msg("Session stopped")
		h.Broadcast(examID, protocol.EventExamStopped, protocol.ExamStoppedPayload{ExamID: examID})
	}
}

func (r *room) stopTimersLocked() {
	if r.warnTimer != nil {
		r.warnTimer.Stop()
		r.warnTimer = nil
	}
	if r.endTimer != nil {
		r.endTimer.Stop()
		r.endTimer = nil
	}
}

// Broadcast fans one event out to every connection in the exam room.
// Connections that fail to take the write are dropped.
func (h *Hub) Broadcast(examID int64, event protocol.Event, payload any) {
	frame, err := protocol.EncodeEvent(event, payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", string(event)).Msg("Encode failed")
		return
	}

	h.mu.Lock()
	r := h.rooms[examID]
	if r == nil {
		h.mu.Unlock()
		return
	}
	conns := make([]*conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		if err := c.write(frame); err != nil {
			h.mu.Lock()
			delete(r.conns, c)
			h.mu.Unlock()
		}
	}
}

// SessionEndAt exposes the current deadline for one exam room, zero when
// no session is running.
func (h *Hub) SessionEndAt(examID int64) time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r := h.rooms[examID]; r != nil {
		return r.endAt
	}
	return time.Time{}
}
