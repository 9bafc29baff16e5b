package presence

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/edusync/examroom-client/internal/channel/channeltest"
	"github.com/edusync/examroom-client/internal/notify"
	"github.com/edusync/examroom-client/internal/protocol"
)

const examID = int64(12)

func newTracker(t *testing.T) (*Tracker, *channeltest.Fake, *notify.Recorder) {
	t.Helper()
	fake := channeltest.New()
	rec := &notify.Recorder{}
	tr := Open(fake, rec, zerolog.Nop(), examID, "prof-abc")
	t.Cleanup(tr.Close)
	return tr, fake, rec
}

func connected(fake *channeltest.Fake, id int64, studentID, matricule string) {
	fake.Deliver(&protocol.Message{
		Event:   protocol.EventStudentConnected,
		Payload: protocol.StudentConnectedPayload{ExamID: id, StudentID: studentID, Matricule: matricule},
	})
}

func offline(fake *channeltest.Fake, id int64, studentID string) {
	fake.Deliver(&protocol.Message{
		Event:   protocol.EventStudentOffline,
		Payload: protocol.StudentOfflinePayload{ExamID: id, StudentID: studentID},
	})
}

func disconnected(fake *channeltest.Fake, id int64, studentID string) {
	fake.Deliver(&protocol.Message{
		Event:   protocol.EventStudentDisconnected,
		Payload: protocol.StudentDisconnectedPayload{ExamID: id, StudentID: studentID},
	})
}

// TestLastAppliedWins: whatever event lands last for a student decides
// the final status, whatever order the server happened to emit them in.
func TestLastAppliedWins(t *testing.T) {
	cases := []struct {
		name  string
		apply func(fake *channeltest.Fake)
		want  Status
	}{
		{
			name: "offline then online",
			apply: func(fake *channeltest.Fake) {
				connected(fake, examID, "STD-1", "")
				offline(fake, examID, "STD-1")
				connected(fake, examID, "STD-1", "")
			},
			want: StatusOnline,
		},
		{
			name: "online then disconnected",
			apply: func(fake *channeltest.Fake) {
				connected(fake, examID, "STD-1", "")
				disconnected(fake, examID, "STD-1")
			},
			want: StatusDisconnected,
		},
		{
			name: "disconnected then offline",
			apply: func(fake *channeltest.Fake) {
				connected(fake, examID, "STD-1", "")
				disconnected(fake, examID, "STD-1")
				offline(fake, examID, "STD-1")
			},
			want: StatusOffline,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tr, fake, _ := newTracker(t)
			c.apply(fake)

			rows := tr.Snapshot()
			if len(rows) != 1 {
				t.Fatalf("rows = %d, want 1", len(rows))
			}
			if rows[0].Status != c.want {
				t.Fatalf("status = %q, want %q", rows[0].Status, c.want)
			}
		})
	}
}

func TestNegativeEventsNeverCreateRows(t *testing.T) {
	tr, fake, _ := newTracker(t)

	offline(fake, examID, "STD-9")
	disconnected(fake, examID, "STD-9")

	if rows := tr.Snapshot(); len(rows) != 0 {
		t.Fatalf("rows = %d, want 0", len(rows))
	}
}

func TestRosterNeverShrinks(t *testing.T) {
	tr, fake, _ := newTracker(t)

	connected(fake, examID, "STD-2", "")
	connected(fake, examID, "STD-1", "")
	disconnected(fake, examID, "STD-1")
	offline(fake, examID, "STD-2")

	rows := tr.Snapshot()
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	// Sorted by student ID for stable rendering.
	if rows[0].StudentID != "STD-1" || rows[1].StudentID != "STD-2" {
		t.Fatalf("order = %s, %s", rows[0].StudentID, rows[1].StudentID)
	}
}

func TestMatriculeKeptAcrossReconnect(t *testing.T) {
	tr, fake, _ := newTracker(t)

	connected(fake, examID, "STD-1", "MAT-2025-001")
	disconnected(fake, examID, "STD-1")
	connected(fake, examID, "STD-1", "")

	rows := tr.Snapshot()
	if rows[0].Matricule != "MAT-2025-001" {
		t.Fatalf("matricule = %q", rows[0].Matricule)
	}
	if rows[0].Status != StatusOnline {
		t.Fatalf("status = %q", rows[0].Status)
	}
}

func TestTimestampsTrackTransitions(t *testing.T) {
	tr, fake, _ := newTracker(t)
	first := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return first }

	connected(fake, examID, "STD-1", "")
	rows := tr.Snapshot()
	if !rows[0].JoinedAt.Equal(first) {
		t.Fatalf("joinedAt = %v", rows[0].JoinedAt)
	}
	if !rows[0].LeftAt.IsZero() {
		t.Fatalf("leftAt set early: %v", rows[0].LeftAt)
	}

	later := first.Add(40 * time.Minute)
	tr.now = func() time.Time { return later }
	disconnected(fake, examID, "STD-1")

	rows = tr.Snapshot()
	if !rows[0].LeftAt.Equal(later) {
		t.Fatalf("leftAt = %v, want %v", rows[0].LeftAt, later)
	}
	// JoinedAt is only refreshed by online events.
	if !rows[0].JoinedAt.Equal(first) {
		t.Fatalf("joinedAt moved to %v", rows[0].JoinedAt)
	}

	// A graceful leave is a transition out of online too.
	connected(fake, examID, "STD-1", "")
	latest := later.Add(5 * time.Minute)
	tr.now = func() time.Time { return latest }
	offline(fake, examID, "STD-1")

	rows = tr.Snapshot()
	if !rows[0].LeftAt.Equal(latest) {
		t.Fatalf("leftAt after offline = %v, want %v", rows[0].LeftAt, latest)
	}
}

func TestEventsForOtherExamIgnored(t *testing.T) {
	tr, fake, _ := newTracker(t)

	connected(fake, examID+1, "STD-1", "")

	if rows := tr.Snapshot(); len(rows) != 0 {
		t.Fatalf("rows = %d, want 0", len(rows))
	}
}

func TestObserverJoinOnEveryConnect(t *testing.T) {
	tr, fake, _ := newTracker(t)

	fake.Connect()
	fake.Connect() // reconnect re-announces

	if n := fake.CountIntent(protocol.IntentJoinExam); n != 2 {
		t.Fatalf("joins = %d, want 2", n)
	}
	for _, e := range fake.EmittedIntents() {
		p := e.Payload.(protocol.JoinPayload)
		if p.Role != protocol.RoleProfessor {
			t.Fatalf("role = %q", p.Role)
		}
	}
	// The professor's own join is observation, not presence.
	if rows := tr.Snapshot(); len(rows) != 0 {
		t.Fatalf("observer created %d rows", len(rows))
	}
}

func TestFileSubmittedIsTransientNoticeOnly(t *testing.T) {
	tr, fake, rec := newTracker(t)

	fake.Deliver(&protocol.Message{
		Event:   protocol.EventFileSubmitted,
		Payload: protocol.FileSubmittedPayload{ExamID: examID, StudentID: "STD-5", FileCount: 2},
	})
	fake.Deliver(&protocol.Message{
		Event:   protocol.EventFileSubmitted,
		Payload: protocol.FileSubmittedPayload{ExamID: examID, StudentID: "STD-5"},
	})

	msgs := rec.Messages()
	if len(msgs) != 2 {
		t.Fatalf("notices = %d, want 2 (duplicates just repeat)", len(msgs))
	}
	if !strings.Contains(msgs[0], "STD-5") || !strings.Contains(msgs[0], "2 file") {
		t.Fatalf("notice = %q", msgs[0])
	}
	// A missing count still reads as one file.
	if !strings.Contains(msgs[1], "1 file") {
		t.Fatalf("notice = %q", msgs[1])
	}
	if rows := tr.Snapshot(); len(rows) != 0 {
		t.Fatalf("submission created %d roster rows", len(rows))
	}
}

func TestCloseDetachesHandlers(t *testing.T) {
	tr, fake, _ := newTracker(t)
	tr.Close()

	connected(fake, examID, "STD-1", "")
	fake.Connect()

	if rows := tr.Snapshot(); len(rows) != 0 {
		t.Fatalf("rows = %d after Close", len(rows))
	}
	if n := fake.CountIntent(protocol.IntentJoinExam); n != 0 {
		t.Fatalf("joins = %d after Close", n)
	}
}
