package ws

import (
	"github.com/taskhub/realtime/internal/metrics"
	"github.com/taskhub/realtime/internal/registry"
)

// Gateway lets code outside the connection handling, such as the REST layer
// after a successful mutation, push a server-originated event to a project.
type Gateway struct {
	registry *registry.Registry
	metrics  *metrics.Metrics
}

func NewGateway(reg *registry.Registry, m *metrics.Metrics) *Gateway {
	return &Gateway{registry: reg, metrics: m}
}

// NotifyProject sends msg to every session joined to projectID and returns
// how many it reached. A project with no sessions is a silent no-op.
func (g *Gateway) NotifyProject(projectID string, msg any) int {
	n := g.registry.Broadcast(projectID, msg, nil)
	g.metrics.Broadcast("gateway", n)
	return n
}
