// Package gate is the client-side submission lock. It is advisory,
// defense in depth on top of the server's own end-of-window enforcement:
// once the session is ended (or locally expired), a submit intent is
// rejected before any network request is made.
package gate

import (
	"sync"
	"time"

	"github.com/edusync/examroom-client/internal/session"
)

// Session is the slice of the reconciler the gate consults.
type Session interface {
	Phase() session.Phase
	Expired(now time.Time) bool
}

// Reason explains why a submission is blocked, so the user can tell a
// time-based lock from a missing input.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonTimeExpired Reason = "time_expired"
	ReasonNoFile      Reason = "no_file"
)

// Message returns the user-facing text for a blocking reason.
func (r Reason) Message() string {
	switch r {
	case ReasonTimeExpired:
		return "Time is up, submissions are locked"
	case ReasonNoFile:
		return "Select a file before submitting"
	default:
		return ""
	}
}

// Gate tracks the currently selected file and decides whether a submit
// attempt may proceed.
type Gate struct {
	sess Session

	mu   sync.Mutex
	file string
}

func New(sess Session) *Gate {
	return &Gate{sess: sess}
}

// SelectFile records the file path chosen for submission.
func (g *Gate) SelectFile(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.file = path
}

// ClearFile drops the current selection, e.g. after a successful upload.
func (g *Gate) ClearFile() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.file = ""
}

// File returns the currently selected file path, or empty.
func (g *Gate) File() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.file
}

// Check returns the first blocking reason at now, or ReasonNone. The
// time check comes first: an expired session blocks even with a file
// selected, and even before the authoritative ended event arrives.
func (g *Gate) Check(now time.Time) Reason {
	if g.sess.Phase() == session.PhaseEnded || g.sess.Expired(now) {
		return ReasonTimeExpired
	}
	if g.File() == "" {
		return ReasonNoFile
	}
	return ReasonNone
}

// CanSubmit reports whether a submission may be attempted at now.
func (g *Gate) CanSubmit(now time.Time) bool {
	return g.Check(now) == ReasonNone
}
