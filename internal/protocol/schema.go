package protocol

// ─── Intents (Client → Server) ──────────────────────────────────────

type Intent string

const (
	IntentJoinExam  Intent = "join-exam"
	IntentLeaveExam Intent = "leave-exam"
	IntentHeartbeat Intent = "heartbeat"
	IntentStartExam Intent = "start-exam"
	IntentStopExam  Intent = "stop-exam"
	IntentPing      Intent = "ping"
)

// Role identifies the kind of participant announced on join.
type Role string

const (
	RoleStudent   Role = "student"
	RoleProfessor Role = "professor"
)

// JoinPayload announces presence (student) or observation (professor)
// for one exam.
type JoinPayload struct {
	ExamID    int64  `json:"examId" validate:"required"`
	StudentID string `json:"studentId" validate:"required"`
	Role      Role   `json:"role" validate:"required,oneof=student professor"`
	Matricule string `json:"matricule,omitempty"`
}

// LeavePayload announces a graceful departure from an exam.
type LeavePayload struct {
	ExamID    int64  `json:"examId" validate:"required"`
	StudentID string `json:"studentId" validate:"required"`
}

// HeartbeatPayload is a periodic liveness ping. No reply is expected.
type HeartbeatPayload struct {
	ExamID    int64  `json:"examId" validate:"required"`
	StudentID string `json:"studentId" validate:"required"`
}

// StartExamPayload is a professor intent to start a timed session.
// The resulting state change arrives back as an exam-started event.
type StartExamPayload struct {
	ExamID      int64 `json:"examId" validate:"required"`
	DurationMin int   `json:"durationMin" validate:"required,min=1"`
}

// StopExamPayload is a professor intent to cancel a running session.
type StopExamPayload struct {
	ExamID int64 `json:"examId" validate:"required"`
}

// PingPayload is only used by the connectivity smoke test.
type PingPayload struct {
	From string `json:"from,omitempty"`
	Time string `json:"time,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventExamStarted         Event = "exam-started"
	EventExamWarning         Event = "exam-warning"
	EventExamEnded           Event = "exam-ended"
	EventExamStopped         Event = "exam-stopped"
	EventStudentConnected    Event = "student-connected"
	EventStudentOffline      Event = "student-offline"
	EventStudentDisconnected Event = "student-disconnected"
	EventFileSubmitted       Event = "file-submitted"
	EventPong                Event = "pong"
)

// ExamStartedPayload carries the authoritative session deadline.
// EndAt is epoch milliseconds; the client derives the countdown from it
// locally and never receives per-second ticks.
type ExamStartedPayload struct {
	ExamID int64 `json:"examId" validate:"required"`
	EndAt  int64 `json:"endAt" validate:"required"`
}

// ExamWarningPayload signals the warning window. Some servers re-push
// EndAt with it; zero means "keep the deadline you already have".
type ExamWarningPayload struct {
	ExamID int64 `json:"examId" validate:"required"`
	EndAt  int64 `json:"endAt,omitempty"`
}

// ExamEndedPayload carries no deadline; the client freezes the countdown
// at its own receipt time.
type ExamEndedPayload struct {
	ExamID int64 `json:"examId" validate:"required"`
}

// ExamStoppedPayload signals a session cancelled before its deadline.
type ExamStoppedPayload struct {
	ExamID int64 `json:"examId" validate:"required"`
}

// StudentConnectedPayload upserts a roster entry as online.
type StudentConnectedPayload struct {
	ExamID    int64  `json:"examId" validate:"required"`
	StudentID string `json:"studentId" validate:"required"`
	Matricule string `json:"matricule,omitempty"`
}

// StudentOfflinePayload marks a graceful leave.
type StudentOfflinePayload struct {
	ExamID    int64  `json:"examId" validate:"required"`
	StudentID string `json:"studentId" validate:"required"`
}

// StudentDisconnectedPayload marks a timeout-detected drop.
type StudentDisconnectedPayload struct {
	ExamID    int64  `json:"examId" validate:"required"`
	StudentID string `json:"studentId" validate:"required"`
}

// FileSubmittedPayload is a transient notice; it is never stored.
type FileSubmittedPayload struct {
	ExamID    int64  `json:"examId" validate:"required"`
	StudentID string `json:"studentId" validate:"required"`
	FileCount int    `json:"fileCount,omitempty"`
}

// PongPayload echoes whatever the ping carried.
type PongPayload struct {
	From string `json:"from,omitempty"`
	Time string `json:"time,omitempty"`
}
