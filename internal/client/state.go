package client

import (
	"cmp"
	"maps"
	"slices"

	"github.com/taskhub/realtime/internal/protocol"
)

// PresenceEntry is one user's activity on a task.
type PresenceEntry struct {
	UserID   protocol.ID
	UserName string
	Action   protocol.Action
}

// State is the client's view of its project, rebuilt from server events.
// It is not safe for concurrent use; the TUI model owns it. Ids are compared by
// their textual form, so task 7 and task "7" share one presence list.
type State struct {
	users    []protocol.User
	presence map[protocol.ID][]PresenceEntry
}

func NewState() *State {
	return &State{presence: make(map[protocol.ID][]PresenceEntry)}
}

// Apply folds ev into the state and reports whether anything changed.
func (s *State) Apply(ev protocol.Event) bool {
	switch ev.Type {
	case protocol.MsgUsersList:
		s.users = s.users[:0]
		for _, u := range ev.Users {
			if !s.hasUser(u.ID) {
				s.users = append(s.users, u)
			}
		}
		return true

	case protocol.MsgUserJoined:
		if ev.UserID.IsZero() || s.hasUser(ev.UserID) {
			return false
		}
		s.users = append(s.users, protocol.User{ID: ev.UserID, Name: ev.UserName})
		return true

	case protocol.MsgUserLeft:
		before := len(s.users)
		s.users = slices.DeleteFunc(s.users, func(u protocol.User) bool { return u.ID.Equal(ev.UserID) })
		removed := s.dropPresence(ev.UserID)
		return removed || len(s.users) != before

	case protocol.MsgPresence:
		if ev.TaskID.IsZero() || ev.UserID.IsZero() {
			return false
		}
		return s.applyPresence(ev)
	}
	return false
}

func (s *State) applyPresence(ev protocol.Event) bool {
	task := taskKey(ev.TaskID)
	entries := s.presence[task]
	i := slices.IndexFunc(entries, func(p PresenceEntry) bool { return p.UserID.Equal(ev.UserID) })

	if ev.Action == protocol.ActionIdle {
		if i < 0 {
			return false
		}
		entries = slices.Delete(entries, i, i+1)
		if len(entries) == 0 {
			delete(s.presence, task)
		} else {
			s.presence[task] = entries
		}
		return true
	}

	entry := PresenceEntry{UserID: ev.UserID, UserName: ev.UserName, Action: ev.Action}
	if i >= 0 {
		if entries[i] == entry {
			return false
		}
		entries[i] = entry
		return true
	}
	s.presence[task] = append(entries, entry)
	return true
}

func (s *State) dropPresence(userID protocol.ID) bool {
	changed := false
	for taskID, entries := range s.presence {
		kept := slices.DeleteFunc(entries, func(p PresenceEntry) bool { return p.UserID.Equal(userID) })
		if len(kept) == len(entries) {
			continue
		}
		changed = true
		if len(kept) == 0 {
			delete(s.presence, taskID)
		} else {
			s.presence[taskID] = kept
		}
	}
	return changed
}

func (s *State) hasUser(id protocol.ID) bool {
	return slices.ContainsFunc(s.users, func(u protocol.User) bool { return u.ID.Equal(id) })
}

// Reset clears the online users after a local disconnect. Presence is kept
// until the server says otherwise.
func (s *State) Reset() {
	s.users = nil
}

// OnlineUsers returns a copy of the online users in arrival order.
func (s *State) OnlineUsers() []protocol.User {
	return slices.Clone(s.users)
}

// Presence returns a copy of the presence map, keyed by task id in string form.
func (s *State) Presence() map[protocol.ID][]PresenceEntry {
	out := make(map[protocol.ID][]PresenceEntry, len(s.presence))
	for taskID, entries := range s.presence {
		out[taskID] = slices.Clone(entries)
	}
	return out
}

func (s *State) TaskPresence(taskID protocol.ID) []PresenceEntry {
	return slices.Clone(s.presence[taskKey(taskID)])
}

// Tasks returns the ids of tasks with at least one active user, sorted by
// their textual form.
func (s *State) Tasks() []protocol.ID {
	return slices.SortedFunc(maps.Keys(s.presence), func(a, b protocol.ID) int {
		return cmp.Compare(a.String(), b.String())
	})
}

func taskKey(id protocol.ID) protocol.ID {
	return protocol.StringID(id.String())
}
