package channel

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/edusync/examroom-client/internal/protocol"
)

const (
	initialBackoff = time.Second
	writeTimeout   = 10 * time.Second
)

// Client is the websocket-backed Channel. It owns a single connection,
// redials with capped exponential backoff after any drop, and fires
// connect callbacks each time a dial succeeds.
type Client struct {
	url         string
	dialTimeout time.Duration
	maxBackoff  time.Duration
	log         zerolog.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	connected  bool
	closed     bool
	nextID     int
	handlers   map[protocol.Event]map[int]Handler
	connectFns map[int]func()

	done chan struct{}
}

// Dial creates the client and starts its connection loop. It returns
// immediately; the first connect callback signals readiness.
func Dial(url string, dialTimeout, maxBackoff time.Duration, log zerolog.Logger) *Client {
	c := &Client{
		url:         url,
		dialTimeout: dialTimeout,
		maxBackoff:  maxBackoff,
		log:         log.With().Str("component", "channel").Logger(),
		handlers:    make(map[protocol.Event]map[int]Handler),
		connectFns:  make(map[int]func()),
		done:        make(chan struct{}),
	}
	go c.run()
	return c
}

// run dials, serves one connection until it breaks, then dials again.
// Backoff resets after every successful dial.
func (c *Client) run() {
	backoff := initialBackoff

	for {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}

		conn, err := c.dial()
		if err != nil {
			c.log.Warn().Err(err).Dur("retry_in", backoff).Msg("Dial failed")
			select {
			case <-c.done:
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > c.maxBackoff {
				backoff = c.maxBackoff
			}
			continue
		}
		backoff = initialBackoff

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.connected = true
		fns := make([]func(), 0, len(c.connectFns))
		for _, fn := range c.connectFns {
			fns = append(fns, fn)
		}
		c.mu.Unlock()

		c.log.Info().Str("url", c.url).Msg("Connected")
		for _, fn := range fns {
			fn()
		}

		c.readLoop(conn)

		c.mu.Lock()
		c.connected = false
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
		c.log.Warn().Msg("Connection lost")
	}
}

func (c *Client) dial() (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.dialTimeout)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	return conn, err
}

// readLoop decodes and dispatches inbound frames until the connection
// breaks. Malformed or unknown frames are dropped with a warning.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("Unexpected close")
			}
			return
		}

		msg, err := protocol.DecodeMessage(raw)
		if err != nil {
			c.log.Warn().Err(err).Msg("Dropping bad frame")
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg *protocol.Message) {
	c.mu.Lock()
	fns := make([]Handler, 0, len(c.handlers[msg.Event]))
	for _, fn := range c.handlers[msg.Event] {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(msg)
	}
}

// On registers a handler for one inbound event kind.
func (c *Client) On(event protocol.Event, fn Handler) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[int]Handler)
	}
	c.handlers[event][id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers[event], id)
	}
}

// OnConnect registers a connect callback. If already connected it fires
// once immediately, so a view mounted mid-session still announces itself.
func (c *Client) OnConnect(fn func()) (cancel func()) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.connectFns[id] = fn
	connected := c.connected
	c.mu.Unlock()

	if connected {
		fn()
	}

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.connectFns, id)
	}
}

// Emit sends one outbound intent on the current connection.
func (c *Client) Emit(intent protocol.Intent, payload any) error {
	frame, err := protocol.EncodeIntent(intent, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.conn == nil {
		return ErrNotConnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Connected reports whether a usable connection currently exists.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Close tears the channel down for good. Only process shutdown calls
// this; individual views must use their handler disposers instead.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	close(c.done)
	if conn != nil {
		return conn.Close()
	}
	return nil
}
