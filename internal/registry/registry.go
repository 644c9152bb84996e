// Package registry tracks which live sessions have joined which project and
// fans messages out to them.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/taskhub/realtime/internal/metrics"
	"github.com/taskhub/realtime/internal/protocol"
)

var (
	// ErrSendQueueFull is returned by Member.Send when the recipient is not
	// draining its outbound queue.
	ErrSendQueueFull = errors.New("send queue full")
	// ErrClosed is returned by Member.Send after the member's transport closed.
	ErrClosed = errors.New("member closed")
)

// Member is a routable session. The registry only holds members for routing;
// it never closes them.
type Member interface {
	// Send queues an encoded frame without blocking.
	Send(data []byte) error
	// Open reports whether the underlying transport still accepts frames.
	Open() bool
	// User returns the authenticated identity, if any.
	User() (protocol.User, bool)
}

// Registry maps project IDs to the members joined to them. A member appears
// under at most one project; callers enforce that by leaving before joining.
type Registry struct {
	mu       sync.RWMutex
	projects map[string][]Member

	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(logger *slog.Logger, m *metrics.Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		projects: make(map[string][]Member),
		logger:   logger,
		metrics:  m,
	}
}

// Join adds m to projectID. It reports false if m was already a member.
func (r *Registry) Join(m Member, projectID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.projects[projectID]
	if slices.Contains(members, m) {
		return false
	}
	r.projects[projectID] = append(members, m)
	r.metrics.SetProjects(len(r.projects))
	return true
}

// Leave removes m from projectID, dropping the project entry once it is
// empty. It reports whether m was a member.
func (r *Registry) Leave(m Member, projectID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.projects[projectID]
	i := slices.Index(members, m)
	if i < 0 {
		return false
	}
	members = slices.Delete(members, i, i+1)
	if len(members) == 0 {
		delete(r.projects, projectID)
	} else {
		r.projects[projectID] = members
	}
	r.metrics.SetProjects(len(r.projects))
	return true
}

// Members returns a snapshot of projectID's members in join order.
func (r *Registry) Members(projectID string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.projects[projectID])
}

// ListUsers returns the distinct authenticated users joined to projectID, in
// join order. One user may hold several sessions; it is listed once.
func (r *Registry) ListUsers(projectID string) []protocol.User {
	members := r.Members(projectID)
	users := make([]protocol.User, 0, len(members))
	seen := make(map[string]bool, len(members))
	for _, m := range members {
		u, ok := m.User()
		if !ok || seen[u.ID.String()] {
			continue
		}
		seen[u.ID.String()] = true
		users = append(users, u)
	}
	return users
}

// Broadcast encodes msg once and queues it to every open member of projectID
// except exclude (which may be nil). A failing recipient is logged and
// skipped. It returns the number of members the frame was queued to.
func (r *Registry) Broadcast(projectID string, msg any, exclude Member) int {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("broadcast marshal failed", "project", projectID, "err", err)
		return 0
	}
	return r.BroadcastRaw(projectID, data, exclude)
}

// BroadcastRaw is Broadcast for an already encoded frame.
func (r *Registry) BroadcastRaw(projectID string, data []byte, exclude Member) int {
	delivered := 0
	for _, m := range r.Members(projectID) {
		if m == exclude || !m.Open() {
			continue
		}
		if err := send(m, data); err != nil {
			r.logger.Warn("broadcast send failed", "project", projectID, "err", err)
			r.metrics.SendFailed(failureReason(err))
			continue
		}
		delivered++
	}
	return delivered
}

// ProjectCount returns the number of projects with at least one member.
func (r *Registry) ProjectCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.projects)
}

// MemberCount returns the number of joined members across all projects.
func (r *Registry) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, members := range r.projects {
		n += len(members)
	}
	return n
}

// send isolates a recipient that panics instead of returning an error.
func send(m Member, data []byte) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("send panicked: %v", p)
		}
	}()
	return m.Send(data)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrSendQueueFull):
		return "queue_full"
	case errors.Is(err, ErrClosed):
		return "closed"
	default:
		return "other"
	}
}
