package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/taskhub/realtime/internal/protocol"
)

const (
	// ReconnectDelay is the fixed wait before redialing after an unexpected
	// close.
	ReconnectDelay = 3 * time.Second
	writeTimeout   = 10 * time.Second
	pingInterval   = 30 * time.Second
)

var ErrNotConnected = errors.New("not connected")

// WSClient manages the WebSocket connection to the collaboration server.
type WSClient struct {
	url    string
	token  string
	logger *slog.Logger

	reconnectDelay time.Duration
	pingInterval   time.Duration

	mu         sync.Mutex
	writeMu    sync.Mutex // serialises all conn writes
	conn       *websocket.Conn
	project    protocol.ID
	authed     bool
	closed     bool
	pingSent   time.Time
	pingCancel context.CancelFunc
}

func NewWSClient(url, token string, logger *slog.Logger) *WSClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSClient{
		url:            url,
		token:          token,
		logger:         logger,
		reconnectDelay: ReconnectDelay,
		pingInterval:   pingInterval,
	}
}

// --- Bubble Tea messages ---

// ConnectedMsg is sent when the WebSocket connects.
type ConnectedMsg struct{}

// DisconnectedMsg is sent when the connection drops or a dial fails.
// Intentional is set after Close.
type DisconnectedMsg struct {
	Err         error
	Intentional bool
}

// EventMsg delivers one server event.
type EventMsg struct{ Event protocol.Event }

// LatencyMsg reports the round trip of the last application ping.
type LatencyMsg struct{ RTT time.Duration }

// Listen returns a command that dials once and authenticates. It yields
// ConnectedMsg on success and DisconnectedMsg otherwise; the caller decides
// whether to Reconnect.
func (c *WSClient) Listen(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		if ctx.Err() != nil {
			return nil
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			c.logger.Debug("ws dial failed", "url", c.url, "err", err)
			return DisconnectedMsg{Err: err, Intentional: c.isClosed()}
		}

		// No write mutex needed: the connection isn't shared yet.
		if c.token != "" {
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(protocol.Request{Type: protocol.MsgAuth, Token: c.token}); err != nil {
				conn.Close()
				return DisconnectedMsg{Err: fmt.Errorf("send auth: %w", err)}
			}
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close()
			return DisconnectedMsg{Intentional: true}
		}
		if c.pingCancel != nil {
			c.pingCancel()
		}
		pingCtx, pingCancel := context.WithCancel(ctx)
		c.conn = conn
		c.authed = false
		c.pingCancel = pingCancel
		c.mu.Unlock()

		go c.pingLoop(pingCtx, conn)

		c.logger.Info("connected", "url", c.url)
		return ConnectedMsg{}
	}
}

// Reconnect waits the reconnect delay and then dials again.
func (c *WSClient) Reconnect(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.reconnectDelay):
		}
		if c.isClosed() {
			return nil
		}
		return c.Listen(ctx)()
	}
}

// ReadLoop returns a command that reads until it has one message for the
// model. Start it after ConnectedMsg and again after every message it yields.
func (c *WSClient) ReadLoop(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return DisconnectedMsg{Err: ErrNotConnected, Intentional: c.isClosed()}
		}

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return c.dropped(conn, err)
			}

			ev, err := protocol.DecodeEvent(data)
			if err != nil {
				c.logger.Debug("dropping undecodable event", "err", err)
				continue
			}

			switch ev.Type {
			case protocol.MsgPong:
				c.mu.Lock()
				sent := c.pingSent
				c.pingSent = time.Time{}
				c.mu.Unlock()
				if sent.IsZero() {
					continue
				}
				return LatencyMsg{RTT: time.Since(sent)}

			case protocol.MsgAuthSuccess:
				c.mu.Lock()
				c.authed = true
				project := c.project
				c.mu.Unlock()
				if !project.IsZero() {
					if err := c.send(protocol.Request{Type: protocol.MsgJoinProject, ProjectID: project}); err != nil {
						c.logger.Warn("rejoin failed", "project", project, "err", err)
					}
				}
			}
			return EventMsg{Event: ev}
		}
	}
}

func (c *WSClient) dropped(conn *websocket.Conn, err error) tea.Msg {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.authed = false
		if c.pingCancel != nil {
			c.pingCancel()
			c.pingCancel = nil
		}
	}
	intentional := c.closed
	c.mu.Unlock()
	conn.Close()

	if !intentional {
		c.logger.Info("connection lost", "err", err)
	}
	return DisconnectedMsg{Err: err, Intentional: intentional}
}

// pingLoop sends an application ping every interval until ctx is cancelled
// or the connection is replaced.
func (c *WSClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			current := c.conn
			c.mu.Unlock()
			if current != conn {
				return
			}
			if err := c.Ping(); err != nil {
				return
			}
		}
	}
}

// SetProject selects the project and joins it right away when the
// connection is authenticated. Otherwise the join happens after the next
// auth_success.
func (c *WSClient) SetProject(id protocol.ID) error {
	c.mu.Lock()
	c.project = id
	ready := c.conn != nil && c.authed
	c.mu.Unlock()
	if !ready || id.IsZero() {
		return nil
	}
	return c.send(protocol.Request{Type: protocol.MsgJoinProject, ProjectID: id})
}

// Project returns the selected project.
func (c *WSClient) Project() protocol.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.project
}

// Leave clears the project selection and tells the server.
func (c *WSClient) Leave() error {
	c.mu.Lock()
	c.project = protocol.ID{}
	c.mu.Unlock()
	return c.send(protocol.Request{Type: protocol.MsgLeaveProject})
}

func (c *WSClient) SendTaskUpdate(taskID protocol.ID, changes any) error {
	return c.send(protocol.Request{Type: protocol.MsgTaskUpdate, TaskID: taskID, Changes: changes})
}

func (c *WSClient) SendTaskCreate(task any) error {
	return c.send(protocol.Request{Type: protocol.MsgTaskCreate, Task: task})
}

func (c *WSClient) SendTaskDelete(taskID protocol.ID) error {
	return c.send(protocol.Request{Type: protocol.MsgTaskDelete, TaskID: taskID})
}

func (c *WSClient) SendPresence(taskID protocol.ID, action protocol.Action) error {
	return c.send(protocol.Request{Type: protocol.MsgPresence, TaskID: taskID, Action: action})
}

// Ping sends an application ping. The matching pong surfaces as LatencyMsg.
func (c *WSClient) Ping() error {
	c.mu.Lock()
	c.pingSent = time.Now()
	c.mu.Unlock()
	return c.send(protocol.Request{Type: protocol.MsgPing})
}

// Close tears the connection down for good. The pending ReadLoop returns
// DisconnectedMsg with Intentional set and no reconnect follows.
func (c *WSClient) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	if c.pingCancel != nil {
		c.pingCancel()
		c.pingCancel = nil
	}
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return conn.Close()
}

func (c *WSClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *WSClient) send(req protocol.Request) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("send %s: %w", req.Type, err)
	}
	return nil
}
