// client.go
// The dial goroutine opens the connection and hands it to the event loop.
// The read goroutine pushes every server message into the loop.
// The write goroutine is the only writer: it takes payloads from the loop one
// at a time and, once the session is unmounted, flushes what is left and
// finishes with a close frame.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"realtime-chat-client/internal/logger"
)

func (c *Client) dial(ctx context.Context) {
	defer c.workers.Done()

	conn, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
	if err != nil {
		select {
		case c.dropped <- fmt.Errorf("dial %s: %w", c.opts.URL, err):
		case <-c.done:
		}
		return
	}

	select {
	case c.opened <- conn:
	case <-c.done:
		// Unmounted while the handshake was in flight.
		conn.Close()
	}
}

func (c *Client) read(conn *websocket.Conn) {
	defer c.workers.Done()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case c.dropped <- err:
			case <-c.done:
			}
			return
		}
		select {
		case c.received <- string(message):
		case <-c.done:
			return
		}
	}
}

func (c *Client) write(conn *websocket.Conn) {
	defer c.workers.Done()
	defer c.close(conn)

	failed := false
	for {
		select {
		case message := <-c.send:
			if failed {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warning("websocket write failed", "client", c.id, "error", err)
				failed = true
			}

		case remaining := <-c.flush:
			if failed {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(c.opts.CloseTimeout))
			for _, message := range remaining {
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					logger.Warning("websocket write failed", "client", c.id, "error", err)
					return
				}
			}
			err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				logger.Debug("close frame not sent", "client", c.id, "error", err)
			}
			return
		}
	}
}

// close releases the session's socket. Both the writer and the unmount
// timer call it; only the first call closes.
func (c *Client) close(conn *websocket.Conn) {
	c.closeSocket.Do(func() {
		conn.Close()
	})
}
