package mock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/taskhub/realtime/internal/client"
	"github.com/taskhub/realtime/internal/protocol"
)

type recorder struct {
	mu      sync.Mutex
	project []string
	events  []protocol.Event
}

func (r *recorder) NotifyProject(projectID string, msg any) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.project = append(r.project, projectID)
	r.events = append(r.events, msg.(protocol.Event))
	return 1
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestGeneratorJoinsBeforePresence(t *testing.T) {
	rec := &recorder{}
	g := NewGenerator(rec, "demo", time.Hour, 1)
	state := client.NewState()

	joined := map[protocol.ID]bool{}
	for i := 0; i < len(g.users); i++ {
		ev := g.Step()
		if ev.Type != protocol.MsgUserJoined {
			t.Fatalf("step %d = %s, want user_joined", i, ev.Type)
		}
		joined[ev.UserID] = true
		state.Apply(ev)
	}
	if len(joined) != len(g.users) {
		t.Errorf("joined %d distinct users, want %d", len(joined), len(g.users))
	}
	if n := len(state.OnlineUsers()); n != len(g.users) {
		t.Errorf("client shows %d online users, want %d", n, len(g.users))
	}

	for i := 0; i < len(g.users); i++ {
		ev := g.Step()
		if ev.Type != protocol.MsgPresence || ev.Action != protocol.ActionViewing {
			t.Fatalf("step %d = %s/%s, want presence/viewing", i, ev.Type, ev.Action)
		}
		if !joined[ev.UserID] {
			t.Errorf("presence from %s before it joined", ev.UserName)
		}
	}
}

func TestGeneratorEventsAreWellFormed(t *testing.T) {
	rec := &recorder{}
	g := NewGenerator(rec, "demo", time.Hour, 7)
	state := client.NewState()

	for i := 0; i < 200; i++ {
		ev := g.Step()
		if ev.UserID.IsZero() || ev.UserName == "" || ev.Timestamp == "" {
			t.Fatalf("step %d: unattributed event %+v", i, ev)
		}
		switch ev.Type {
		case protocol.MsgPresence:
			if !ev.Action.Valid() || ev.TaskID.IsZero() {
				t.Fatalf("step %d: bad presence %+v", i, ev)
			}
		case protocol.MsgTaskUpdated:
			if ev.TaskID.IsZero() || len(ev.Changes) == 0 {
				t.Fatalf("step %d: bad task_updated %+v", i, ev)
			}
		case protocol.MsgTaskCreated:
			if len(ev.Task) == 0 {
				t.Fatalf("step %d: bad task_created %+v", i, ev)
			}
		case protocol.MsgUserJoined:
			if i >= len(g.users) {
				t.Fatalf("step %d: late user_joined %+v", i, ev)
			}
		default:
			t.Fatalf("step %d: unexpected type %s", i, ev.Type)
		}
		state.Apply(ev)
	}

	if n := len(state.OnlineUsers()); n != len(g.users) {
		t.Errorf("client shows %d online users, want %d", n, len(g.users))
	}
	for _, p := range rec.project {
		if p != "demo" {
			t.Fatalf("event sent to project %q", p)
		}
	}
	// Users go idle before moving on, so each sits on at most one task and
	// the client view matches the generator's.
	for _, mu := range g.users {
		var found []client.PresenceEntry
		for _, taskID := range state.Tasks() {
			for _, p := range state.TaskPresence(taskID) {
				if p.UserID == mu.user.ID {
					found = append(found, p)
				}
			}
		}
		switch {
		case mu.action == protocol.ActionIdle && len(found) != 0:
			t.Errorf("idle user %s still shown on a task", mu.user.Name)
		case mu.action != protocol.ActionIdle && (len(found) != 1 || found[0].Action != mu.action):
			t.Errorf("user %s: presence %+v, want one %s entry", mu.user.Name, found, mu.action)
		}
	}
}

func TestGeneratorSameSeedSameStream(t *testing.T) {
	a := NewGenerator(&recorder{}, "p", time.Hour, 42)
	b := NewGenerator(&recorder{}, "p", time.Hour, 42)
	fixed := func() time.Time { return time.Unix(0, 0) }
	a.now, b.now = fixed, fixed

	for i := 0; i < 50; i++ {
		ea, eb := a.Step(), b.Step()
		if ea.Type != eb.Type || ea.UserID != eb.UserID || ea.TaskID != eb.TaskID || ea.Action != eb.Action {
			t.Fatalf("step %d diverged: %+v vs %+v", i, ea, eb)
		}
	}
}

func TestGeneratorStartStops(t *testing.T) {
	rec := &recorder{}
	g := NewGenerator(rec, "demo", 5*time.Millisecond, 1)

	ctx, cancel := context.WithCancel(context.Background())
	g.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for rec.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if rec.count() < 3 {
		t.Fatalf("generator emitted %d events, want at least 3", rec.count())
	}
}
