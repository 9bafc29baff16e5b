package channel

import (
	"errors"

	"github.com/edusync/examroom-client/internal/protocol"
)

// Handler consumes one decoded inbound event.
type Handler func(msg *protocol.Message)

// ErrNotConnected is returned by Emit while no usable connection exists.
// Intents are not buffered across disconnects; the caller decides whether
// the loss matters (heartbeats do not, start/stop intents are user-retried).
var ErrNotConnected = errors.New("channel: not connected")

// Channel is the real-time link shared by every view in the process.
// Implementations must invoke connect callbacks on every usable
// connection, including each reconnect, so dependents can re-announce
// themselves; no event delivered while disconnected is ever replayed.
type Channel interface {
	// On registers a handler for one inbound event kind and returns its
	// disposer. A view must call every disposer it holds on unmount.
	On(event protocol.Event, fn Handler) (cancel func())

	// OnConnect registers a callback fired on every (re)connect. If the
	// channel is already connected the callback also fires immediately.
	OnConnect(fn func()) (cancel func())

	// Emit sends one outbound intent.
	Emit(intent protocol.Intent, payload any) error

	// Connected reports whether a usable connection currently exists.
	Connected() bool
}
