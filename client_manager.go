// client_manager.go
// Types for a mounted chat session: the connection handle, the draft and the
// channels the event loop reacts to.
package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by Send when the connection is absent or not open.
var ErrNotConnected = errors.New("websocket is not connected")

// ReadyState is the readiness of the connection handle.
type ReadyState int

const (
	StateConnecting ReadyState = iota
	StateOpen
	StateClosed
)

func (s ReadyState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options configures a session before it is mounted.
type Options struct {
	URL            string
	Greeting       string
	MaxMessageSize int64
	Header         http.Header
	Dialer         *websocket.Dialer

	// CloseTimeout bounds how long Unmount spends flushing queued payloads
	// to a peer that is not reading. Defaults to one second.
	CloseTimeout time.Duration

	// OnMessage sees every inbound payload after it is logged. It runs on the
	// event loop and must not call back into the Client.
	OnMessage func(string)
}

// Client is one mounted session. It exclusively owns one websocket
// connection for its lifetime.
type Client struct {
	id   string
	opts Options

	// Owned by the event loop.
	socket  *websocket.Conn
	pending [][]byte
	state   ReadyState
	draft   string

	// send hands one payload at a time to the writer; flush hands it
	// whatever is still queued at unmount.
	send  chan []byte
	flush chan [][]byte

	opened   chan *websocket.Conn
	received chan string
	dropped  chan error
	input    chan string
	sends    chan chan error
	queries  chan chan view
	unmount  chan struct{}
	done     chan struct{}

	cancel      context.CancelFunc
	once        sync.Once
	closeSocket sync.Once
	workers     sync.WaitGroup
}

type view struct {
	state ReadyState
	draft string
}
