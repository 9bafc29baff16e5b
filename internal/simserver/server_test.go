package simserver

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/edusync/examroom-client/internal/api"
	"github.com/edusync/examroom-client/internal/channel"
	"github.com/edusync/examroom-client/internal/config"
	"github.com/edusync/examroom-client/internal/notify"
	"github.com/edusync/examroom-client/internal/protocol"
	"github.com/edusync/examroom-client/internal/session"
)

func testConfig(warningLead time.Duration) *config.Config {
	return &config.Config{
		HeartbeatInterval: 50 * time.Millisecond,
		WarningLead:       warningLead,
		SimGinMode:        "test",
	}
}

// newTestServer runs the simulator behind httptest and returns it with
// an API client pointed at it and the websocket URL.
func newTestServer(t *testing.T, warningLead time.Duration) (*Server, *api.Client, string) {
	t.Helper()
	s := New(testConfig(warningLead), zerolog.Nop())
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return s, api.New(srv.URL, zerolog.Nop()), wsURL
}

func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestLoginIssuesParsableToken(t *testing.T) {
	_, apic, _ := newTestServer(t, time.Minute)

	token, err := apic.Login(context.Background(), "jean@uni.fr", "anything", "student")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	id, err := api.IdentityFromToken(token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if id.StudentID != "jean" || id.Matricule != "MAT-JEAN" || id.Role != "student" {
		t.Fatalf("identity = %+v", id)
	}
	if !id.ExpiresAt.After(time.Now()) {
		t.Fatalf("expiry in the past: %v", id.ExpiresAt)
	}
}

func TestExamEndpoints(t *testing.T) {
	_, apic, _ := newTestServer(t, time.Minute)
	ctx := context.Background()

	exams, err := apic.ListExams(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(exams) != 2 {
		t.Fatalf("seeded exams = %d, want 2", len(exams))
	}

	created, err := apic.CreateExam(ctx, api.CreateExamRequest{Title: "Réseaux", Description: "TP final"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := apic.GetExam(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Réseaux" {
		t.Fatalf("title = %q", got.Title)
	}

	if _, err := apic.GetExam(ctx, 999); !api.IsRequestError(err) {
		t.Fatalf("unknown exam err = %v", err)
	}

	err = apic.UploadResource(ctx, created.ID, api.ResourceSubject, "sujet.pdf", strings.NewReader("%PDF"))
	if err != nil {
		t.Fatalf("upload resource: %v", err)
	}
	resources, err := apic.ListResources(ctx, created.ID)
	if err != nil {
		t.Fatalf("list resources: %v", err)
	}
	if len(resources) != 1 || resources[0].Kind != api.ResourceSubject || resources[0].FileName != "sujet.pdf" {
		t.Fatalf("resources = %+v", resources)
	}
}

func TestUploadWorkEnforcesDeadline(t *testing.T) {
	s, apic, _ := newTestServer(t, time.Minute)
	ctx := context.Background()
	id := api.Identity{StudentID: "STD-1", Matricule: "MAT-1"}

	// Deadline already passed: the server rejects regardless of what the
	// client's gate decided.
	s.hub.mu.Lock()
	s.hub.roomLocked(1).endAt = time.Now().Add(-time.Minute)
	s.hub.mu.Unlock()

	err := apic.UploadWork(ctx, 1, id, "rendu.pdf", strings.NewReader("%PDF"))
	if !api.IsRequestError(err) || !strings.Contains(err.Error(), "time expired") {
		t.Fatalf("err = %v", err)
	}
	if n := len(s.store.Works(1)); n != 0 {
		t.Fatalf("works recorded = %d, want 0", n)
	}

	// Session running: the upload lands and is recorded.
	s.hub.mu.Lock()
	s.hub.roomLocked(1).endAt = time.Now().Add(time.Hour)
	s.hub.mu.Unlock()

	if err := apic.UploadWork(ctx, 1, id, "rendu.pdf", strings.NewReader("%PDF")); err != nil {
		t.Fatalf("upload: %v", err)
	}
	works := s.store.Works(1)
	if len(works) != 1 || works[0].StudentID != "STD-1" || len(works[0].FileNames) != 1 {
		t.Fatalf("works = %+v", works)
	}
}

func TestSweepSilentReportsStaleStudents(t *testing.T) {
	h := NewHub(zerolog.Nop(), time.Minute, 100*time.Millisecond)
	now := time.Now()

	h.mu.Lock()
	r := h.roomLocked(1)
	r.students["STD-1"] = &studentConn{id: "STD-1", online: true, lastBeat: now.Add(-time.Second)}
	r.students["STD-2"] = &studentConn{id: "STD-2", online: true, lastBeat: now}
	h.mu.Unlock()

	h.sweepSilent(now)

	h.mu.Lock()
	defer h.mu.Unlock()
	if r.students["STD-1"].online {
		t.Fatal("stale student still online")
	}
	if !r.students["STD-2"].online {
		t.Fatal("fresh student marked offline")
	}
}

func TestStartAndStopSession(t *testing.T) {
	h := NewHub(zerolog.Nop(), time.Minute, time.Second)

	h.StartSession(1, time.Hour)
	if h.SessionEndAt(1).IsZero() {
		t.Fatal("no deadline after start")
	}

	h.StopSession(1)
	if !h.SessionEndAt(1).IsZero() {
		t.Fatal("deadline survives stop")
	}

	// Stopping an idle room is a no-op.
	h.StopSession(1)
	h.StopSession(2)
}

// dialSession connects the real websocket client to the simulator,
// joins as studentID, and returns a session watch on examID.
func dialSession(t *testing.T, wsURL string, examID int64, studentID string) (*session.Watch, *channel.Client, *notify.Recorder) {
	t.Helper()
	cl := channel.Dial(wsURL, time.Second, time.Second, zerolog.Nop())
	t.Cleanup(func() { cl.Close() })

	rec := &notify.Recorder{}
	w := session.Observe(cl, rec, zerolog.Nop(), examID)
	t.Cleanup(w.Close)

	cl.OnConnect(func() {
		cl.Emit(protocol.IntentJoinExam, protocol.JoinPayload{
			ExamID:    examID,
			StudentID: studentID,
			Role:      protocol.RoleStudent,
		})
	})
	waitFor(t, 2*time.Second, cl.Connected, "client never connected")
	return w, cl, rec
}

func TestSessionLifecycleOverWebSocket(t *testing.T) {
	s, _, wsURL := newTestServer(t, 300*time.Millisecond)
	w, _, _ := dialSession(t, wsURL, 1, "STD-1")

	waitFor(t, 2*time.Second, func() bool {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		r := s.hub.rooms[1]
		return r != nil && len(r.conns) == 1
	}, "join never reached the hub")

	s.hub.StartSession(1, 600*time.Millisecond)

	waitFor(t, 2*time.Second, func() bool { return w.Phase() == session.PhaseRunning }, "never reached running")
	waitFor(t, 2*time.Second, func() bool { return w.Phase() == session.PhaseWarned }, "never reached warned")
	waitFor(t, 2*time.Second, func() bool { return w.Phase() == session.PhaseEnded }, "never reached ended")
}

func TestStopBroadcastResetsClients(t *testing.T) {
	s, _, wsURL := newTestServer(t, 50*time.Millisecond)
	w, _, _ := dialSession(t, wsURL, 1, "STD-1")

	s.hub.StartSession(1, time.Hour)
	waitFor(t, 2*time.Second, func() bool { return w.Phase() == session.PhaseRunning }, "never reached running")

	s.hub.StopSession(1)
	waitFor(t, 2*time.Second, func() bool { return w.Phase() == session.PhaseIdle }, "never reset to idle")
	if _, ok := w.EndAt(); ok {
		t.Fatal("deadline survives stop")
	}
}

// A client that joins mid-session gets the deadline re-pushed instead of
// a replay of missed events.
func TestLateJoinerReceivesCurrentDeadline(t *testing.T) {
	s, _, wsURL := newTestServer(t, 50*time.Millisecond)

	s.hub.StartSession(1, time.Hour)
	w, _, _ := dialSession(t, wsURL, 1, "STD-9")

	waitFor(t, 2*time.Second, func() bool { return w.Phase() == session.PhaseRunning }, "deadline never re-pushed")
	endAt, ok := w.EndAt()
	if !ok || !endAt.After(time.Now()) {
		t.Fatalf("endAt = %v, %v", endAt, ok)
	}
}

func TestGracefulLeaveMarksStudentOffline(t *testing.T) {
	s, _, wsURL := newTestServer(t, time.Minute)
	_, cl, _ := dialSession(t, wsURL, 1, "STD-1")

	waitFor(t, 2*time.Second, func() bool {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		r := s.hub.rooms[1]
		return r != nil && r.students["STD-1"] != nil && r.students["STD-1"].online
	}, "student never registered")

	cl.Emit(protocol.IntentLeaveExam, protocol.LeavePayload{ExamID: 1, StudentID: "STD-1"})
	waitFor(t, 2*time.Second, func() bool {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		return !s.hub.rooms[1].students["STD-1"].online
	}, "student never marked offline")
}
