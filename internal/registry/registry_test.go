package registry

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/taskhub/realtime/internal/protocol"
)

type fakeMember struct {
	mu     sync.Mutex
	user   protocol.User
	authed bool
	closed bool
	err    error
	panics bool
	frames [][]byte
}

func newFake(id, name string) *fakeMember {
	return &fakeMember{user: protocol.User{ID: protocol.ParseID(id), Name: name}, authed: true}
}

func (f *fakeMember) Send(data []byte) error {
	if f.panics {
		panic("transport exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.frames = append(f.frames, data)
	return nil
}

func (f *fakeMember) Open() bool { return !f.closed }

func (f *fakeMember) User() (protocol.User, bool) { return f.user, f.authed }

func (f *fakeMember) received() []protocol.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []protocol.Event
	for _, data := range f.frames {
		var ev protocol.Event
		_ = json.Unmarshal(data, &ev)
		out = append(out, ev)
	}
	return out
}

func TestJoinLeave(t *testing.T) {
	r := New(nil, nil)
	a := newFake("1", "alice")

	if !r.Join(a, "42") {
		t.Fatal("first Join should report true")
	}
	if r.Join(a, "42") {
		t.Error("second Join of the same member should report false")
	}
	if got := len(r.Members("42")); got != 1 {
		t.Errorf("members = %d, want 1", got)
	}

	if !r.Leave(a, "42") {
		t.Fatal("Leave should report true for a member")
	}
	if r.Leave(a, "42") {
		t.Error("Leave of a non-member should report false")
	}
}

func TestEmptyProjectRemoved(t *testing.T) {
	r := New(nil, nil)
	a, b := newFake("1", "alice"), newFake("2", "bob")
	r.Join(a, "42")
	r.Join(b, "42")
	r.Join(a, "7")

	if got := r.ProjectCount(); got != 2 {
		t.Fatalf("ProjectCount = %d, want 2", got)
	}

	r.Leave(a, "42")
	r.Leave(b, "42")

	if got := r.ProjectCount(); got != 1 {
		t.Errorf("ProjectCount after emptying 42 = %d, want 1", got)
	}
	if users := r.ListUsers("42"); len(users) != 0 {
		t.Errorf("ListUsers(42) = %v, want empty", users)
	}
	if _, ok := r.projects["42"]; ok {
		t.Error("empty project entry still present")
	}
}

func TestListUsersDistinctInJoinOrder(t *testing.T) {
	r := New(nil, nil)
	bob := newFake("2", "bob")
	alice := newFake("1", "alice")
	aliceTab := newFake("1", "alice")
	anon := newFake("", "")
	anon.authed = false

	r.Join(bob, "p")
	r.Join(alice, "p")
	r.Join(aliceTab, "p")
	r.Join(anon, "p")

	users := r.ListUsers("p")
	want := []protocol.User{{ID: protocol.NumberID(2), Name: "bob"}, {ID: protocol.NumberID(1), Name: "alice"}}
	if len(users) != len(want) {
		t.Fatalf("ListUsers = %v, want %v", users, want)
	}
	for i := range want {
		if users[i] != want[i] {
			t.Errorf("users[%d] = %v, want %v", i, users[i], want[i])
		}
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	r := New(nil, nil)
	a, b, c := newFake("1", "a"), newFake("2", "b"), newFake("3", "c")
	r.Join(a, "p")
	r.Join(b, "p")
	r.Join(c, "other")

	n := r.Broadcast("p", protocol.Pong(), a)
	if n != 1 {
		t.Errorf("delivered = %d, want 1", n)
	}
	if got := len(a.received()); got != 0 {
		t.Errorf("sender received %d frames, want 0", got)
	}
	if got := len(b.received()); got != 1 {
		t.Errorf("peer received %d frames, want 1", got)
	}
	if got := len(c.received()); got != 0 {
		t.Errorf("member of another project received %d frames", got)
	}
}

func TestBroadcastIsolatesFailingRecipients(t *testing.T) {
	r := New(nil, nil)
	members := []*fakeMember{
		newFake("1", "a"),
		newFake("2", "b"),
		newFake("3", "c"),
		newFake("4", "d"),
		newFake("5", "e"),
	}
	members[1].err = ErrSendQueueFull
	members[2].panics = true
	members[3].closed = true

	for _, m := range members {
		r.Join(m, "p")
	}

	n := r.Broadcast("p", protocol.Error("x"), nil)
	if n != 2 {
		t.Errorf("delivered = %d, want 2", n)
	}
	for _, i := range []int{0, 4} {
		if got := len(members[i].received()); got != 1 {
			t.Errorf("member %d received %d frames, want 1", i, got)
		}
	}
	if got := len(members[3].received()); got != 0 {
		t.Errorf("closed member received %d frames", got)
	}
}

func TestBroadcastUnknownProjectIsNoop(t *testing.T) {
	r := New(nil, nil)
	if n := r.Broadcast("nobody", protocol.Pong(), nil); n != 0 {
		t.Errorf("delivered = %d, want 0", n)
	}
}

func TestBroadcastMarshalFailure(t *testing.T) {
	r := New(nil, nil)
	a := newFake("1", "a")
	r.Join(a, "p")

	if n := r.Broadcast("p", map[string]any{"bad": make(chan int)}, nil); n != 0 {
		t.Errorf("delivered = %d, want 0", n)
	}
	if len(a.received()) != 0 {
		t.Error("member received a frame for an unencodable message")
	}
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrSendQueueFull, "queue_full"},
		{ErrClosed, "closed"},
		{errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		if got := failureReason(tt.err); got != tt.want {
			t.Errorf("failureReason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestConcurrentJoinLeaveBroadcast(t *testing.T) {
	r := New(nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		m := newFake(string(rune('a'+i%26)), "u")
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Join(m, "p")
				r.Broadcast("p", protocol.Pong(), m)
				r.Leave(m, "p")
			}
		}()
	}
	wg.Wait()

	if got := r.ProjectCount(); got != 0 {
		t.Errorf("ProjectCount after churn = %d, want 0", got)
	}
	if got := r.MemberCount(); got != 0 {
		t.Errorf("MemberCount after churn = %d, want 0", got)
	}
}
