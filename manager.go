// manager.go

// The session event loop. Every reaction (open, inbound message, drop, input,
// send, unmount) runs here one at a time, so session state needs no locks.
package main

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"realtime-chat-client/internal/logger"
)

// Mount starts a session and begins dialling opts.URL in the background.
// ctx bounds only the dial; the connection lives until Unmount.
func Mount(ctx context.Context, opts Options) *Client {
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{}
	}
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = time.Second
	}

	dialCtx, cancel := context.WithCancel(ctx)
	c := &Client{
		id:       uuid.NewString(),
		opts:     opts,
		send:     make(chan []byte),
		flush:    make(chan [][]byte, 1),
		state:    StateConnecting,
		opened:   make(chan *websocket.Conn),
		received: make(chan string),
		dropped:  make(chan error),
		input:    make(chan string),
		sends:    make(chan chan error),
		queries:  make(chan chan view),
		unmount:  make(chan struct{}),
		done:     make(chan struct{}),
		cancel:   cancel,
	}

	logger.Debug("connecting", "client", c.id, "url", opts.URL)

	c.workers.Add(1)
	go c.dial(dialCtx)
	go c.run()
	return c
}

// ID is the session's UUID, attached to all of its log lines.
func (c *Client) ID() string {
	return c.id
}

// Input replaces the draft with the full current value of the input field.
func (c *Client) Input(value string) {
	select {
	case c.input <- value:
	case <-c.done:
	}
}

// Send transmits the draft as typed and clears it. If the connection is not
// open nothing is sent, the draft is kept and ErrNotConnected is returned.
func (c *Client) Send() error {
	reply := make(chan error, 1)
	select {
	case c.sends <- reply:
		return <-reply
	case <-c.done:
		logger.Error("websocket is not connected", "client", c.id, "state", StateClosed)
		return ErrNotConnected
	}
}

// State reports the connection's readiness.
func (c *Client) State() ReadyState {
	return c.snapshot().state
}

// Draft returns the unsent input. It survives Unmount.
func (c *Client) Draft() string {
	return c.snapshot().draft
}

// Unmount closes the connection, whatever its state, and waits for the
// session's goroutines to finish. Queued payloads get at most
// Options.CloseTimeout to reach the peer. Further calls do nothing.
func (c *Client) Unmount() {
	c.once.Do(func() {
		close(c.unmount)
	})
	<-c.done
	c.workers.Wait()
}

func (c *Client) snapshot() view {
	reply := make(chan view, 1)
	select {
	case c.queries <- reply:
		return <-reply
	case <-c.done:
		// The loop has exited; its last writes are visible.
		return view{state: c.state, draft: c.draft}
	}
}

func (c *Client) run() {
	defer close(c.done)

	for {
		// The writer gets the oldest queued payload only when it is ready
		// for it, so a stalled peer never blocks the loop.
		var outbound chan []byte
		var next []byte
		if len(c.pending) > 0 {
			outbound, next = c.send, c.pending[0]
		}

		select {
		case outbound <- next:
			c.pending[0] = nil
			c.pending = c.pending[1:]

		case conn := <-c.opened:
			c.handleOpen(conn)

		case message := <-c.received:
			logger.Info("message from server", "client", c.id, "data", message)
			if c.opts.OnMessage != nil {
				c.opts.OnMessage(message)
			}

		case err := <-c.dropped:
			c.handleDrop(err)

		case value := <-c.input:
			c.draft = value

		case reply := <-c.sends:
			reply <- c.handleSend()

		case reply := <-c.queries:
			reply <- view{state: c.state, draft: c.draft}

		case <-c.unmount:
			c.teardown()
			return
		}
	}
}

func (c *Client) handleOpen(conn *websocket.Conn) {
	c.socket = conn
	c.state = StateOpen
	if c.opts.MaxMessageSize > 0 {
		conn.SetReadLimit(c.opts.MaxMessageSize)
	}
	logger.Info("connection established", "client", c.id, "url", c.opts.URL)

	c.workers.Add(2)
	go c.read(conn)
	go c.write(conn)

	// Queued before the loop can accept any user send.
	c.pending = append(c.pending, []byte(c.opts.Greeting))
}

func (c *Client) handleDrop(err error) {
	if c.state == StateClosed {
		return
	}
	c.state = StateClosed

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		logger.Info("connection closed", "client", c.id, "code", closeErr.Code, "reason", closeErr.Text)
		return
	}
	logger.Error("websocket error", "client", c.id, "error", err)
}

func (c *Client) handleSend() error {
	if c.state != StateOpen {
		logger.Error("websocket is not connected", "client", c.id, "state", c.state)
		return ErrNotConnected
	}
	c.pending = append(c.pending, []byte(c.draft))
	logger.Debug("message queued", "client", c.id, "bytes", len(c.draft))
	c.draft = ""
	return nil
}

func (c *Client) teardown() {
	c.cancel()
	if c.socket != nil {
		// The writer flushes what is queued, sends a close frame and closes
		// the socket. If it is stuck on a peer that stopped reading, the
		// timer closes the socket under it.
		c.flush <- c.pending
		c.pending = nil
		conn := c.socket
		time.AfterFunc(c.opts.CloseTimeout, func() { c.close(conn) })
	}
	c.state = StateClosed
	logger.Info("session unmounted", "client", c.id)
}
