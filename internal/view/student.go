package view

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edusync/examroom-client/internal/api"
	"github.com/edusync/examroom-client/internal/channel"
	"github.com/edusync/examroom-client/internal/gate"
	"github.com/edusync/examroom-client/internal/heartbeat"
	"github.com/edusync/examroom-client/internal/notify"
	"github.com/edusync/examroom-client/internal/protocol"
	"github.com/edusync/examroom-client/internal/session"
)

// StudentView is the exam-taking view: it loads the exam and its
// resources, joins the session, keeps a heartbeat alive, renders the
// countdown, and submits work through the gate. Mount and Unmount are
// strictly paired; everything Mount acquires, Unmount releases.
type StudentView struct {
	apic     *api.Client
	ch       channel.Channel
	notifier notify.Notifier
	log      zerolog.Logger
	out      io.Writer

	examID   int64
	identity api.Identity
	interval time.Duration

	mu            sync.Mutex
	mounted       bool
	watch         *session.Watch
	gate          *gate.Gate
	hb            *heartbeat.Emitter
	cancelConnect func()
	stopRender    context.CancelFunc
	exam          *api.Exam
	resources     []api.Resource
}

func NewStudent(apic *api.Client, ch channel.Channel, notifier notify.Notifier, log zerolog.Logger, out io.Writer, examID int64, identity api.Identity, heartbeatInterval time.Duration) *StudentView {
	return &StudentView{
		apic:     apic,
		ch:       ch,
		notifier: notifier,
		log:      log.With().Str("component", "student_view").Int64("exam_id", examID).Logger(),
		out:      out,
		examID:   examID,
		identity: identity,
		interval: heartbeatInterval,
	}
}

// Mount loads exam data, attaches to the channel, and starts the
// heartbeat and the 1-second countdown render loop. A failed exam load
// is surfaced but does not abort the mount; the session machinery works
// without it.
func (v *StudentView) Mount(ctx context.Context) error {
	v.mu.Lock()
	if v.mounted {
		v.mu.Unlock()
		return fmt.Errorf("student view already mounted")
	}
	v.mounted = true
	v.mu.Unlock()

	var exam *api.Exam
	var resources []api.Resource
	if loaded, err := v.apic.GetExam(ctx, v.examID); err != nil {
		v.log.Warn().Err(err).Msg("Exam load failed")
		v.notifier.Notify("Could not load exam: " + err.Error())
	} else {
		exam = loaded
		if resources, err = v.apic.ListResources(ctx, v.examID); err != nil {
			v.notifier.Notify("Could not load exam resources: " + err.Error())
		}
	}

	watch := session.Observe(v.ch, v.notifier, v.log, v.examID)
	hb := heartbeat.New(v.ch, v.log, v.examID, v.identity.StudentID, v.interval)
	renderCtx, stopRender := context.WithCancel(context.Background())

	v.mu.Lock()
	v.exam = exam
	v.resources = resources
	v.watch = watch
	v.gate = gate.New(watch)
	v.hb = hb
	v.stopRender = stopRender
	v.cancelConnect = v.ch.OnConnect(v.join)
	v.mu.Unlock()

	go hb.Start(renderCtx)
	go v.renderLoop(renderCtx)
	return nil
}

// join announces presence. It runs on every (re)connect because the
// server only pushes session state to joined participants.
func (v *StudentView) join() {
	err := v.ch.Emit(protocol.IntentJoinExam, protocol.JoinPayload{
		ExamID:    v.examID,
		StudentID: v.identity.StudentID,
		Role:      protocol.RoleStudent,
		Matricule: v.identity.Matricule,
	})
	if err != nil {
		v.log.Warn().Err(err).Msg("Join failed")
	}
}

// renderLoop repaints the countdown every second from the held deadline
// and the local clock. It keeps ticking while disconnected; only the
// phase decides whether the numbers still mean anything.
func (v *StudentView) renderLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.RenderOnce(time.Now())
		}
	}
}

// RenderOnce writes one countdown line.
func (v *StudentView) RenderOnce(now time.Time) {
	v.mu.Lock()
	watch := v.watch
	exam := v.exam
	v.mu.Unlock()
	if watch == nil {
		return
	}

	remaining, ok := watch.Remaining(now)
	clock := "--:--:--"
	if ok {
		clock = session.FormatClockHours(remaining)
	}
	title := "Exam"
	if exam != nil && exam.Title != "" {
		title = exam.Title
	}
	fmt.Fprintf(v.out, "\r%s — time remaining: %s (%s)", title, clock, watch.Phase())
}

// SelectFile records the file to submit.
func (v *StudentView) SelectFile(path string) {
	v.mu.Lock()
	g := v.gate
	v.mu.Unlock()
	if g != nil {
		g.SelectFile(path)
	}
}

// Resources returns the exam files loaded at mount.
func (v *StudentView) Resources() []api.Resource {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.resources
}

// Submit uploads the selected file if the gate allows it. A closed gate
// rejects locally: no request is sent and the reason is surfaced as is,
// so the user can tell "time expired" from "no file selected".
func (v *StudentView) Submit(ctx context.Context) error {
	v.mu.Lock()
	g := v.gate
	v.mu.Unlock()
	if g == nil {
		return fmt.Errorf("student view not mounted")
	}

	if reason := g.Check(time.Now()); reason != gate.ReasonNone {
		v.notifier.Notify(reason.Message())
		return fmt.Errorf("submission blocked: %s", reason)
	}

	path := g.File()
	file, err := os.Open(path)
	if err != nil {
		v.notifier.Notify("Could not open file: " + err.Error())
		return err
	}
	defer file.Close()

	if err := v.apic.UploadWork(ctx, v.examID, v.identity, filepath.Base(path), file); err != nil {
		v.notifier.Notify("Upload failed: " + err.Error())
		return err
	}

	g.ClearFile()
	v.notifier.Notify("File submitted")
	return nil
}

// Unmount releases everything Mount acquired: the render loop, the
// heartbeat (which emits the leave intent), and every channel handler.
// Safe to call more than once.
func (v *StudentView) Unmount() {
	v.mu.Lock()
	if !v.mounted {
		v.mu.Unlock()
		return
	}
	v.mounted = false
	watch := v.watch
	hb := v.hb
	cancelConnect := v.cancelConnect
	stopRender := v.stopRender
	v.watch = nil
	v.gate = nil
	v.hb = nil
	v.cancelConnect = nil
	v.stopRender = nil
	v.mu.Unlock()

	if stopRender != nil {
		stopRender()
	}
	if hb != nil {
		hb.Stop()
	}
	if cancelConnect != nil {
		cancelConnect()
	}
	if watch != nil {
		watch.Close()
	}
}
