package main

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"realtime-chat-client/internal/logger"
)

const waitTimeout = 2 * time.Second

// chatServer is a stand-in for the chat server: it records every upgrade,
// every text message and the close code each connection ends with.
type chatServer struct {
	*httptest.Server
	requests atomic.Int32
	upgrades atomic.Int32
	received chan string
	closed   chan int
	conns    chan *websocket.Conn
	gate     chan struct{}
}

func newChatServer(t *testing.T) *chatServer {
	t.Helper()
	return startChatServer(t, nil)
}

// newGatedChatServer holds every upgrade request until release is called.
func newGatedChatServer(t *testing.T) (*chatServer, func()) {
	t.Helper()
	gate := make(chan struct{})
	var once sync.Once
	s := startChatServer(t, gate)
	release := func() { once.Do(func() { close(gate) }) }
	t.Cleanup(release)
	return s, release
}

func startChatServer(t *testing.T, gate chan struct{}) *chatServer {
	s := &chatServer{
		received: make(chan string, 64),
		closed:   make(chan int, 8),
		conns:    make(chan *websocket.Conn, 8),
		gate:     gate,
	}
	upgrader := websocket.Upgrader{}

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		if s.gate != nil {
			<-s.gate
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.upgrades.Add(1)
		s.conns <- conn
		defer conn.Close()

		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				code := -1
				var closeErr *websocket.CloseError
				if errors.As(err, &closeErr) {
					code = closeErr.Code
				}
				s.closed <- code
				return
			}
			s.received <- string(message)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *chatServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
}

func (s *chatServer) expectMessage(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-s.received:
		if got != want {
			t.Fatalf("server received %q, want %q", got, want)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("server never received %q", want)
	}
}

func (s *chatServer) expectNoMessage(t *testing.T) {
	t.Helper()
	select {
	case got := <-s.received:
		t.Fatalf("server received unexpected %q", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func (s *chatServer) expectClose(t *testing.T) int {
	t.Helper()
	select {
	case code := <-s.closed:
		return code
	case <-time.After(waitTimeout):
		t.Fatal("server never saw the connection close")
		return 0
	}
}

func (s *chatServer) conn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-s.conns:
		return conn
	case <-time.After(waitTimeout):
		t.Fatal("no connection was upgraded")
		return nil
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func captureLogs(t *testing.T) *syncBuffer {
	t.Helper()
	buf := &syncBuffer{}
	logger.SetLogger(slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() {
		logger.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	})
	return buf
}
