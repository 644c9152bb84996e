package ws

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskhub/realtime/internal/auth"
	"github.com/taskhub/realtime/internal/metrics"
	"github.com/taskhub/realtime/internal/protocol"
	"github.com/taskhub/realtime/internal/registry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/taskhub/realtime/internal/ws"

// Client-visible error strings.
const (
	errNotAuthenticated     = "Not authenticated"
	errInvalidToken         = "Invalid token"
	errAlreadyAuthenticated = "Already authenticated"
	errInvalidProject       = "Invalid project"
)

// Handler applies decoded client messages to a session and the registry.
type Handler struct {
	registry *registry.Registry
	verifier auth.Verifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewHandler returns a Handler that authenticates with verifier and routes
// project traffic through reg.
func NewHandler(reg *registry.Registry, verifier auth.Verifier, m *metrics.Metrics, logger *slog.Logger) *Handler {
	return &Handler{
		registry: reg,
		verifier: verifier,
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
}

// HandleFrame decodes and dispatches one frame. Decode failures and handler
// panics are logged and swallowed so the session stays usable.
func (h *Handler) HandleFrame(ctx context.Context, s *Session, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		h.metrics.Malformed()
		s.logger.Warn("dropping malformed message", "err", err)
		return
	}

	ctx, span := h.tracer.Start(ctx, "ws."+string(msg.Kind()),
		trace.WithAttributes(attribute.String("ws.conn", s.ID())))
	defer span.End()

	defer func() {
		if p := recover(); p != nil {
			h.metrics.HandlerPanic()
			span.SetStatus(codes.Error, "panic")
			s.logger.Error("message handler panicked", "type", msg.Kind(), "panic", fmt.Sprint(p))
		}
	}()

	h.metrics.Message(string(msg.Kind()))
	h.Dispatch(ctx, s, msg)
}

// Dispatch applies one decoded message on behalf of s.
func (h *Handler) Dispatch(ctx context.Context, s *Session, msg protocol.Inbound) {
	switch m := msg.(type) {
	case protocol.Auth:
		h.handleAuth(s, m)
	case protocol.JoinProject:
		h.handleJoin(s, m)
	case protocol.LeaveProject:
		h.leave(s)
	case protocol.TaskUpdate:
		h.relay(s, func(ev *protocol.Event) {
			ev.Type = protocol.MsgTaskUpdated
			ev.TaskID = m.TaskID
			ev.Changes = m.Changes
		})
	case protocol.TaskCreate:
		h.relay(s, func(ev *protocol.Event) {
			ev.Type = protocol.MsgTaskCreated
			ev.Task = m.Task
		})
	case protocol.TaskDelete:
		h.relay(s, func(ev *protocol.Event) {
			ev.Type = protocol.MsgTaskDeleted
			ev.TaskID = m.TaskID
		})
	case protocol.Presence:
		if !m.Action.Valid() {
			s.logger.Debug("dropping presence with unknown action", "action", m.Action)
			return
		}
		h.relay(s, func(ev *protocol.Event) {
			ev.Type = protocol.MsgPresence
			ev.Action = m.Action
			ev.TaskID = m.TaskID
		})
	case protocol.Ping:
		s.Reply(protocol.Pong())
	case protocol.Unknown:
		s.logger.Info("ignoring unknown message type", "type", m.Type)
	default:
		s.logger.Error("unhandled message variant", "type", fmt.Sprintf("%T", msg))
	}
}

func (h *Handler) handleAuth(s *Session, m protocol.Auth) {
	u, err := h.verifier.Verify(m.Token)
	if err != nil {
		h.metrics.AuthFailed()
		s.logger.Info("auth rejected", "err", err)
		s.Reply(protocol.AuthError(errInvalidToken))
		return
	}

	if current, ok := s.User(); ok {
		if !current.ID.Equal(u.ID) {
			s.Reply(protocol.AuthError(errAlreadyAuthenticated))
			return
		}
		s.Reply(protocol.AuthSuccess(current.ID))
		return
	}

	s.setUser(u)
	s.logger.Info("authenticated", "user", u.ID)
	s.Reply(protocol.AuthSuccess(u.ID))
}

func (h *Handler) handleJoin(s *Session, m protocol.JoinProject) {
	u, ok := s.User()
	if !ok {
		s.Reply(protocol.Error(errNotAuthenticated))
		return
	}
	projectID := m.ProjectID.String()
	if projectID == "" {
		s.Reply(protocol.Error(errInvalidProject))
		return
	}

	switch s.Project() {
	case projectID:
		s.Reply(protocol.UsersList(h.registry.ListUsers(projectID)))
		return
	case "":
	default:
		h.leave(s)
	}

	s.setProject(projectID)
	h.registry.Join(s, projectID)
	s.logger.Info("joined project", "user", u.ID, "project", projectID)

	joined := protocol.Authored(protocol.MsgUserJoined, u, h.now())
	h.broadcast(projectID, joined, s)
	s.Reply(protocol.UsersList(h.registry.ListUsers(projectID)))
}

// leave removes s from its project, if any, and tells the remaining members.
func (h *Handler) leave(s *Session) {
	projectID := s.Project()
	if projectID == "" {
		return
	}
	s.setProject("")
	if !h.registry.Leave(s, projectID) {
		return
	}

	u, _ := s.User()
	s.logger.Info("left project", "user", u.ID, "project", projectID)
	h.broadcast(projectID, protocol.Authored(protocol.MsgUserLeft, u, h.now()), nil)
}

// relay rebroadcasts a task or presence event from s to the rest of its
// project. Sessions that have not joined a project are ignored.
func (h *Handler) relay(s *Session, fill func(*protocol.Event)) {
	projectID := s.Project()
	if projectID == "" {
		return
	}
	u, _ := s.User()
	ev := protocol.Authored("", u, h.now())
	fill(&ev)
	h.broadcast(projectID, ev, s)
}

func (h *Handler) broadcast(projectID string, ev protocol.Event, exclude *Session) {
	var ex registry.Member
	if exclude != nil {
		ex = exclude
	}
	n := h.registry.Broadcast(projectID, ev, ex)
	h.metrics.Broadcast("session", n)
}

// Disconnect runs the cleanup for a closed session.
func (h *Handler) Disconnect(s *Session) {
	h.leave(s)
}
