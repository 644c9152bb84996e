package client

import (
	"slices"
	"testing"

	"github.com/taskhub/realtime/internal/protocol"
)

var sid = protocol.StringID

func users(ids ...string) []protocol.User {
	out := make([]protocol.User, len(ids))
	for i, id := range ids {
		out[i] = protocol.User{ID: sid(id)}
	}
	return out
}

func userIDs(users []protocol.User) []string {
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID.String()
	}
	return ids
}

func TestOnlineUsers(t *testing.T) {
	tests := []struct {
		name   string
		events []protocol.Event
		want   []string
	}{
		{
			name: "users_list replaces and dedupes",
			events: []protocol.Event{
				{Type: protocol.MsgUserJoined, UserID: sid("9"), UserName: "old"},
				{Type: protocol.MsgUsersList, Users: users("1", "2", "1")},
			},
			want: []string{"1", "2"},
		},
		{
			name: "user_joined appends once",
			events: []protocol.Event{
				{Type: protocol.MsgUsersList, Users: users("1")},
				{Type: protocol.MsgUserJoined, UserID: sid("2")},
				{Type: protocol.MsgUserJoined, UserID: sid("2")},
			},
			want: []string{"1", "2"},
		},
		{
			name: "numeric and string ids are the same user",
			events: []protocol.Event{
				{Type: protocol.MsgUsersList, Users: []protocol.User{{ID: protocol.NumberID(1)}}},
				{Type: protocol.MsgUserJoined, UserID: sid("1")},
			},
			want: []string{"1"},
		},
		{
			name: "user_left removes",
			events: []protocol.Event{
				{Type: protocol.MsgUsersList, Users: users("1", "2")},
				{Type: protocol.MsgUserLeft, UserID: protocol.NumberID(1)},
			},
			want: []string{"2"},
		},
		{
			name: "unrelated events ignored",
			events: []protocol.Event{
				{Type: protocol.MsgTaskUpdated, UserID: sid("5"), TaskID: sid("1")},
				{Type: protocol.MsgPong},
			},
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState()
			for _, ev := range tt.events {
				s.Apply(ev)
			}
			if got := userIDs(s.OnlineUsers()); !slices.Equal(got, tt.want) {
				t.Errorf("OnlineUsers = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPresence(t *testing.T) {
	s := NewState()
	presence := func(user, task string, action protocol.Action) protocol.Event {
		return protocol.Event{Type: protocol.MsgPresence, UserID: sid(user), UserName: "u" + user, TaskID: sid(task), Action: action}
	}

	if !s.Apply(presence("1", "7", protocol.ActionViewing)) {
		t.Fatal("first presence should change state")
	}
	s.Apply(presence("2", "7", protocol.ActionViewing))
	if !s.Apply(presence("1", "7", protocol.ActionEditing)) {
		t.Fatal("action change should change state")
	}
	if s.Apply(presence("1", "7", protocol.ActionEditing)) {
		t.Error("repeat presence reported a change")
	}

	entries := s.TaskPresence(sid("7"))
	if len(entries) != 2 || entries[0].UserID.String() != "1" || entries[0].Action != protocol.ActionEditing {
		t.Fatalf("task 7 presence = %+v", entries)
	}

	s.Apply(presence("1", "7", protocol.ActionIdle))
	if entries := s.TaskPresence(sid("7")); len(entries) != 1 || entries[0].UserID.String() != "2" {
		t.Fatalf("after idle = %+v", entries)
	}

	s.Apply(presence("2", "7", protocol.ActionIdle))
	if _, ok := s.Presence()[sid("7")]; ok {
		t.Error("empty task list was not pruned")
	}
	if s.Apply(presence("3", "8", protocol.ActionIdle)) {
		t.Error("idle for an absent user reported a change")
	}
}

func TestPresenceGroupsNumericAndStringTaskIDs(t *testing.T) {
	s := NewState()
	s.Apply(protocol.Event{Type: protocol.MsgPresence, UserID: protocol.NumberID(1), TaskID: protocol.NumberID(7), Action: protocol.ActionEditing})
	s.Apply(protocol.Event{Type: protocol.MsgPresence, UserID: sid("u-2"), TaskID: sid("7"), Action: protocol.ActionViewing})

	if tasks := s.Tasks(); len(tasks) != 1 || tasks[0].String() != "7" {
		t.Fatalf("Tasks = %v, want [7]", tasks)
	}
	if n := len(s.TaskPresence(protocol.NumberID(7))); n != 2 {
		t.Errorf("task 7 presence = %d entries, want 2", n)
	}
}

func TestUserLeftClearsPresence(t *testing.T) {
	s := NewState()
	s.Apply(protocol.Event{Type: protocol.MsgUsersList, Users: users("1", "2")})
	s.Apply(protocol.Event{Type: protocol.MsgPresence, UserID: sid("1"), TaskID: sid("7"), Action: protocol.ActionEditing})
	s.Apply(protocol.Event{Type: protocol.MsgPresence, UserID: sid("1"), TaskID: sid("8"), Action: protocol.ActionViewing})
	s.Apply(protocol.Event{Type: protocol.MsgPresence, UserID: sid("2"), TaskID: sid("8"), Action: protocol.ActionViewing})

	s.Apply(protocol.Event{Type: protocol.MsgUserLeft, UserID: sid("1")})

	if tasks := s.Tasks(); len(tasks) != 1 || tasks[0].String() != "8" {
		t.Errorf("Tasks = %v, want [8]", tasks)
	}
	if entries := s.TaskPresence(sid("8")); len(entries) != 1 || entries[0].UserID.String() != "2" {
		t.Errorf("task 8 presence = %+v", entries)
	}
}

func TestResetKeepsPresence(t *testing.T) {
	s := NewState()
	s.Apply(protocol.Event{Type: protocol.MsgUsersList, Users: users("1")})
	s.Apply(protocol.Event{Type: protocol.MsgPresence, UserID: sid("1"), TaskID: sid("7"), Action: protocol.ActionViewing})

	s.Reset()

	if n := len(s.OnlineUsers()); n != 0 {
		t.Errorf("OnlineUsers after Reset = %d", n)
	}
	if n := len(s.TaskPresence(sid("7"))); n != 1 {
		t.Errorf("presence after Reset = %d entries, want 1", n)
	}
}

func TestCopiesAreIndependent(t *testing.T) {
	s := NewState()
	s.Apply(protocol.Event{Type: protocol.MsgUsersList, Users: users("1")})
	s.Apply(protocol.Event{Type: protocol.MsgPresence, UserID: sid("1"), TaskID: sid("7"), Action: protocol.ActionViewing})

	online := s.OnlineUsers()
	online[0].ID = sid("x")
	p := s.Presence()
	p[sid("7")][0].UserID = sid("x")

	if s.OnlineUsers()[0].ID.String() != "1" || s.TaskPresence(sid("7"))[0].UserID.String() != "1" {
		t.Error("mutating a copy changed the state")
	}
}
