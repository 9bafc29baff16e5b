package view

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/edusync/examroom-client/internal/api"
	"github.com/edusync/examroom-client/internal/channel/channeltest"
	"github.com/edusync/examroom-client/internal/notify"
	"github.com/edusync/examroom-client/internal/protocol"
)

const examID = int64(7)

var identity = api.Identity{StudentID: "STD-42", Matricule: "MAT-2025-001"}

// newStudentFixture wires a student view against an in-memory channel
// and a stub exam server. uploads counts /works/upload hits.
func newStudentFixture(t *testing.T, interval time.Duration) (*StudentView, *channeltest.Fake, *notify.Recorder, *atomic.Int32) {
	t.Helper()

	var uploads atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /exams/7", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(api.Exam{ID: examID, Title: "Algorithmique"})
	})
	mux.HandleFunc("GET /exams/7/resources", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]api.Resource{{Kind: api.ResourceSubject, FileName: "sujet.pdf", URL: "/uploads/sujet.pdf"}})
	})
	mux.HandleFunc("POST /works/upload", func(w http.ResponseWriter, r *http.Request) {
		uploads.Add(1)
		json.NewEncoder(w).Encode(map[string]string{"status": "received"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	fake := channeltest.New()
	rec := &notify.Recorder{}
	v := NewStudent(api.New(srv.URL, zerolog.Nop()), fake, rec, zerolog.Nop(), io.Discard, examID, identity, interval)
	t.Cleanup(v.Unmount)
	return v, fake, rec, &uploads
}

func deliverStarted(fake *channeltest.Fake, endAt time.Time) {
	fake.Deliver(&protocol.Message{
		Event:   protocol.EventExamStarted,
		Payload: protocol.ExamStartedPayload{ExamID: examID, EndAt: endAt.UnixMilli()},
	})
}

func writeTempFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rendu.pdf")
	if err := os.WriteFile(path, []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestStudentJoinsOnEveryConnect(t *testing.T) {
	v, fake, _, _ := newStudentFixture(t, time.Hour)
	fake.Connect()

	if err := v.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}
	if n := fake.CountIntent(protocol.IntentJoinExam); n != 1 {
		t.Fatalf("joins after mount = %d, want 1", n)
	}

	fake.Disconnect()
	fake.Connect()
	if n := fake.CountIntent(protocol.IntentJoinExam); n != 2 {
		t.Fatalf("joins after reconnect = %d, want 2", n)
	}

	joins := fake.EmittedIntents()
	p, ok := joins[0].Payload.(protocol.JoinPayload)
	if !ok {
		t.Fatalf("payload type %T", joins[0].Payload)
	}
	if p.Role != protocol.RoleStudent || p.StudentID != "STD-42" || p.Matricule != "MAT-2025-001" {
		t.Fatalf("join payload = %+v", p)
	}
}

func TestStudentUnmountReleasesEverything(t *testing.T) {
	v, fake, _, _ := newStudentFixture(t, 5*time.Millisecond)
	fake.Connect()

	if err := v.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if fake.CountIntent(protocol.IntentHeartbeat) == 0 {
		t.Fatal("no heartbeats while mounted")
	}

	v.Unmount()
	if n := fake.CountIntent(protocol.IntentLeaveExam); n != 1 {
		t.Fatalf("leaves = %d, want 1", n)
	}
	for _, ev := range []protocol.Event{
		protocol.EventExamStarted, protocol.EventExamWarning,
		protocol.EventExamEnded, protocol.EventExamStopped,
	} {
		if n := fake.HandlerCount(ev); n != 0 {
			t.Fatalf("%s handlers after unmount = %d", ev, n)
		}
	}

	// Let any beat already in flight land before sampling.
	time.Sleep(10 * time.Millisecond)
	beats := fake.CountIntent(protocol.IntentHeartbeat)
	time.Sleep(30 * time.Millisecond)
	if n := fake.CountIntent(protocol.IntentHeartbeat); n != beats {
		t.Fatalf("heartbeats kept flowing after unmount: %d -> %d", beats, n)
	}

	// Unmount is idempotent: no second leave.
	v.Unmount()
	if n := fake.CountIntent(protocol.IntentLeaveExam); n != 1 {
		t.Fatalf("leaves after double unmount = %d, want 1", n)
	}
}

func TestStudentRemountIsClean(t *testing.T) {
	v, fake, _, _ := newStudentFixture(t, time.Hour)
	fake.Connect()

	if err := v.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}
	v.Unmount()
	if err := v.Mount(context.Background()); err != nil {
		t.Fatalf("remount: %v", err)
	}

	if n := fake.CountIntent(protocol.IntentJoinExam); n != 2 {
		t.Fatalf("joins = %d, want 2 (one per mount)", n)
	}
	// One watch worth of handlers, not two.
	if n := fake.HandlerCount(protocol.EventExamStarted); n != 1 {
		t.Fatalf("exam-started handlers = %d, want 1", n)
	}
}

func TestRenderSafeDuringRemount(t *testing.T) {
	v, _, _, _ := newStudentFixture(t, time.Hour)
	if err := v.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}

	// A render tick from the previous mount may still be draining while
	// the next Mount loads exam data; both sides go through the lock.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			v.RenderOnce(time.Now())
			v.Resources()
		}
	}()

	for i := 0; i < 20; i++ {
		v.Unmount()
		if err := v.Mount(context.Background()); err != nil {
			t.Fatalf("remount %d: %v", i, err)
		}
	}
	<-done
}

func TestStudentDoubleMountRejected(t *testing.T) {
	v, _, _, _ := newStudentFixture(t, time.Hour)
	if err := v.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}
	if err := v.Mount(context.Background()); err == nil {
		t.Fatal("second mount accepted")
	}
}

func TestSubmitBlockedAfterExpiry(t *testing.T) {
	v, fake, rec, uploads := newStudentFixture(t, time.Hour)
	if err := v.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}

	deliverStarted(fake, time.Now().Add(-time.Second))
	v.SelectFile(writeTempFile(t))

	err := v.Submit(context.Background())
	if err == nil || !strings.Contains(err.Error(), "time_expired") {
		t.Fatalf("err = %v", err)
	}
	if n := uploads.Load(); n != 0 {
		t.Fatalf("upload attempted %d times", n)
	}
	msgs := rec.Messages()
	if len(msgs) == 0 || msgs[len(msgs)-1] != "Time is up, submissions are locked" {
		t.Fatalf("notices = %v", msgs)
	}
}

func TestSubmitBlockedWithoutFile(t *testing.T) {
	v, fake, _, uploads := newStudentFixture(t, time.Hour)
	if err := v.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}

	deliverStarted(fake, time.Now().Add(time.Hour))

	err := v.Submit(context.Background())
	if err == nil || !strings.Contains(err.Error(), "no_file") {
		t.Fatalf("err = %v", err)
	}
	if n := uploads.Load(); n != 0 {
		t.Fatalf("upload attempted %d times", n)
	}
}

func TestSubmitUploadsAndClearsSelection(t *testing.T) {
	v, fake, rec, uploads := newStudentFixture(t, time.Hour)
	if err := v.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}

	deliverStarted(fake, time.Now().Add(time.Hour))
	v.SelectFile(writeTempFile(t))

	if err := v.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if n := uploads.Load(); n != 1 {
		t.Fatalf("uploads = %d, want 1", n)
	}
	msgs := rec.Messages()
	if len(msgs) == 0 || msgs[len(msgs)-1] != "File submitted" {
		t.Fatalf("notices = %v", msgs)
	}

	// Selection is consumed; a second submit needs a new file.
	err := v.Submit(context.Background())
	if err == nil || !strings.Contains(err.Error(), "no_file") {
		t.Fatalf("second submit err = %v", err)
	}
	if n := uploads.Load(); n != 1 {
		t.Fatalf("uploads after second submit = %d, want 1", n)
	}
}

func TestMountSurvivesExamLoadFailure(t *testing.T) {
	fake := channeltest.New()
	rec := &notify.Recorder{}
	// Point at a dead server: exam metadata is unreachable.
	apic := api.New("http://127.0.0.1:1", zerolog.Nop())
	v := NewStudent(apic, fake, rec, zerolog.Nop(), io.Discard, examID, identity, time.Hour)
	t.Cleanup(v.Unmount)

	if err := v.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}
	if len(rec.Messages()) == 0 {
		t.Fatal("load failure not surfaced")
	}

	// The session machinery still works without metadata.
	deliverStarted(fake, time.Now().Add(time.Hour))
	if fake.HandlerCount(protocol.EventExamStarted) != 1 {
		t.Fatal("session watch not attached")
	}
}
