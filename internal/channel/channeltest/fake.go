// Package channeltest provides an in-memory Channel for component tests,
// so reconciler, presence, and view behavior can be driven without a
// websocket server.
package channeltest

import (
	"sync"

	"github.com/edusync/examroom-client/internal/channel"
	"github.com/edusync/examroom-client/internal/protocol"
)

// Emitted records one outbound intent seen by the fake.
type Emitted struct {
	Intent  protocol.Intent
	Payload any
}

// Fake implements channel.Channel entirely in memory. Tests deliver
// inbound events with Deliver and simulate (re)connects with Connect.
type Fake struct {
	mu         sync.Mutex
	nextID     int
	handlers   map[protocol.Event]map[int]channel.Handler
	connectFns map[int]func()
	connected  bool
	emitted    []Emitted
	emitErr    error
}

func New() *Fake {
	return &Fake{
		handlers:   make(map[protocol.Event]map[int]channel.Handler),
		connectFns: make(map[int]func()),
	}
}

func (f *Fake) On(event protocol.Event, fn channel.Handler) (cancel func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := f.nextID
	if f.handlers[event] == nil {
		f.handlers[event] = make(map[int]channel.Handler)
	}
	f.handlers[event][id] = fn

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers[event], id)
	}
}

func (f *Fake) OnConnect(fn func()) (cancel func()) {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.connectFns[id] = fn
	connected := f.connected
	f.mu.Unlock()

	if connected {
		fn()
	}

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.connectFns, id)
	}
}

func (f *Fake) Emit(intent protocol.Intent, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.emitErr != nil {
		return f.emitErr
	}
	f.emitted = append(f.emitted, Emitted{Intent: intent, Payload: payload})
	return nil
}

func (f *Fake) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Connect marks the fake connected and fires every connect callback,
// mirroring a successful (re)dial.
func (f *Fake) Connect() {
	f.mu.Lock()
	f.connected = true
	fns := make([]func(), 0, len(f.connectFns))
	for _, fn := range f.connectFns {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Disconnect marks the fake disconnected. No callbacks fire; dependents
// only learn about drops through the next Connect.
func (f *Fake) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

// Deliver dispatches one inbound event to every registered handler.
func (f *Fake) Deliver(msg *protocol.Message) {
	f.mu.Lock()
	fns := make([]channel.Handler, 0, len(f.handlers[msg.Event]))
	for _, fn := range f.handlers[msg.Event] {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(msg)
	}
}

// SetEmitError makes every subsequent Emit fail with err.
func (f *Fake) SetEmitError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitErr = err
}

// EmittedIntents returns a copy of every intent emitted so far.
func (f *Fake) EmittedIntents() []Emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Emitted, len(f.emitted))
	copy(out, f.emitted)
	return out
}

// CountIntent returns how many times one intent kind was emitted.
func (f *Fake) CountIntent(intent protocol.Intent) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.emitted {
		if e.Intent == intent {
			n++
		}
	}
	return n
}

// HandlerCount reports how many handlers are registered for an event.
// Views assert zero after unmount to prove they leak nothing.
func (f *Fake) HandlerCount(event protocol.Event) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers[event])
}
