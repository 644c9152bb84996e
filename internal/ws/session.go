package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/taskhub/realtime/internal/protocol"
	"github.com/taskhub/realtime/internal/registry"
)

// Session is one live WebSocket connection. Identity and project are written
// only by the connection's read goroutine; other goroutines read them through
// the accessors.
type Session struct {
	id           string
	conn         *websocket.Conn
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
	logger       *slog.Logger

	alive  atomic.Bool
	closed atomic.Bool

	mu        sync.RWMutex
	user      protocol.User
	authed    bool
	projectID string
}

func newSession(conn *websocket.Conn, queue int, writeTimeout time.Duration, logger *slog.Logger) *Session {
	s := &Session{
		id:           uuid.NewString(),
		conn:         conn,
		send:         make(chan []byte, queue),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
	s.logger = logger.With("conn", s.id)
	s.alive.Store(true)

	conn.SetPongHandler(func(string) error {
		s.alive.Store(true)
		return nil
	})

	go s.writePump()
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) writePump() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.logger.Debug("write failed, closing", "err", err)
				s.Close()
				return
			}
		}
	}
}

// Send queues data for the write pump. It never blocks.
func (s *Session) Send(data []byte) error {
	if s.closed.Load() {
		return registry.ErrClosed
	}
	select {
	case s.send <- data:
		return nil
	case <-s.done:
		return registry.ErrClosed
	default:
		return registry.ErrSendQueueFull
	}
}

// Reply encodes ev and queues it to this session only.
func (s *Session) Reply(ev protocol.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("reply marshal failed", "type", ev.Type, "err", err)
		return
	}
	if err := s.Send(data); err != nil {
		s.logger.Warn("reply dropped", "type", ev.Type, "err", err)
	}
}

func (s *Session) Open() bool { return !s.closed.Load() }

// Close terminates the transport. The read loop observes the failure and
// runs the normal disconnect cleanup.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

// Probe implements the liveness check. If the previous probe went
// unanswered it returns false; otherwise it clears the flag and sends a
// ping control frame.
func (s *Session) Probe() bool {
	if !s.alive.Swap(false) {
		return false
	}
	deadline := time.Now().Add(s.writeTimeout)
	if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		s.logger.Debug("ping failed", "err", err)
	}
	return true
}

func (s *Session) User() (protocol.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user, s.authed
}

func (s *Session) setUser(u protocol.User) {
	s.mu.Lock()
	s.user = u
	s.authed = true
	s.mu.Unlock()
}

func (s *Session) Project() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.projectID
}

func (s *Session) setProject(id string) {
	s.mu.Lock()
	s.projectID = id
	s.mu.Unlock()
}
