// Package mock drives a demo project with synthetic collaborators so the
// server and TUI can be tried without real clients.
package mock

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/taskhub/realtime/internal/protocol"
)

// Notifier delivers server-originated events to a project. *ws.Gateway
// satisfies it.
type Notifier interface {
	NotifyProject(projectID string, msg any) int
}

type mockUser struct {
	user   protocol.User
	joined bool
	task   protocol.ID
	action protocol.Action
}

var statuses = []string{"TODO", "IN_PROGRESS", "IN_REVIEW", "DONE"}

var titles = []string{
	"Fix login redirect",
	"Write release notes",
	"Migrate billing tables",
	"Add dark mode toggle",
	"Audit API rate limits",
}

type Generator struct {
	notifier Notifier
	project  string
	interval time.Duration
	tasks    int

	rng    *rand.Rand
	now    func() time.Time
	users  []*mockUser
	tick   int
	nextID int
}

func NewGenerator(n Notifier, project string, interval time.Duration, seed int64) *Generator {
	return &Generator{
		notifier: n,
		project:  project,
		interval: interval,
		tasks:    5,
		rng:      rand.New(rand.NewSource(seed)),
		now:      time.Now,
		nextID:   100,
		users: []*mockUser{
			{user: protocol.User{ID: protocol.StringID("mock-ada"), Name: "ada"}},
			{user: protocol.User{ID: protocol.StringID("mock-linus"), Name: "linus"}},
			{user: protocol.User{ID: protocol.StringID("mock-grace"), Name: "grace"}},
		},
	}
}

// Start emits one event per interval until ctx is cancelled.
func (g *Generator) Start(ctx context.Context) {
	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Step()
		}
	}
}

// Step advances the simulation by one event, delivers it and returns it.
// Each mock user first joins the project, then announces itself viewing a
// task; after that users take turns moving between tasks and editing them.
func (g *Generator) Step() protocol.Event {
	mu := g.users[g.tick%len(g.users)]
	g.tick++

	var ev protocol.Event
	switch {
	case !mu.joined:
		mu.joined = true
		ev = protocol.Authored(protocol.MsgUserJoined, mu.user, g.now())
	case mu.action == "":
		mu.task = g.randomTask()
		mu.action = protocol.ActionViewing
		ev = g.presence(mu)
	default:
		ev = g.advance(mu)
	}

	g.notifier.NotifyProject(g.project, ev)
	return ev
}

func (g *Generator) advance(mu *mockUser) protocol.Event {
	switch roll := g.rng.Intn(10); {
	case roll < 5:
		switch mu.action {
		case protocol.ActionViewing:
			mu.action = protocol.ActionEditing
		case protocol.ActionEditing:
			mu.action = protocol.ActionIdle
		default:
			mu.task = g.randomTask()
			mu.action = protocol.ActionViewing
		}
		return g.presence(mu)

	case roll < 9:
		changes, _ := json.Marshal(map[string]string{"status": statuses[g.rng.Intn(len(statuses))]})
		ev := protocol.Authored(protocol.MsgTaskUpdated, mu.user, g.now())
		ev.TaskID = mu.task
		ev.Changes = changes
		return ev

	default:
		g.nextID++
		task, _ := json.Marshal(map[string]any{
			"id":     g.nextID,
			"title":  titles[g.rng.Intn(len(titles))],
			"status": "TODO",
		})
		ev := protocol.Authored(protocol.MsgTaskCreated, mu.user, g.now())
		ev.Task = task
		return ev
	}
}

func (g *Generator) presence(mu *mockUser) protocol.Event {
	ev := protocol.Authored(protocol.MsgPresence, mu.user, g.now())
	ev.TaskID = mu.task
	ev.Action = mu.action
	return ev
}

func (g *Generator) randomTask() protocol.ID {
	return protocol.NumberID(int64(g.rng.Intn(g.tasks) + 1))
}
