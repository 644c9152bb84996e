// Package protocol defines the JSON wire format spoken over the /ws channel.
// Both the server and the client counterpart use these types.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

type MessageType string

// Client → server.
const (
	MsgAuth         MessageType = "auth"
	MsgJoinProject  MessageType = "join_project"
	MsgLeaveProject MessageType = "leave_project"
	MsgTaskUpdate   MessageType = "task_update"
	MsgTaskCreate   MessageType = "task_create"
	MsgTaskDelete   MessageType = "task_delete"
	MsgPresence     MessageType = "presence"
	MsgPing         MessageType = "ping"
)

// Server → client.
const (
	MsgAuthSuccess MessageType = "auth_success"
	MsgAuthError   MessageType = "auth_error"
	MsgError       MessageType = "error"
	MsgUsersList   MessageType = "users_list"
	MsgUserJoined  MessageType = "user_joined"
	MsgUserLeft    MessageType = "user_left"
	MsgTaskUpdated MessageType = "task_updated"
	MsgTaskCreated MessageType = "task_created"
	MsgTaskDeleted MessageType = "task_deleted"
	MsgPong        MessageType = "pong"
)

// TimestampLayout is an RFC 3339 layout with millisecond precision. Values
// formatted in UTC sort lexically in time order.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp formats t for the wire.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ID is a user, project or task identifier. The wire carries JSON numbers or
// strings. String gives the textual form used for lookups, so 42 and "42" name
// the same project, while MarshalJSON writes back the literal kind it was
// decoded from.
type ID struct {
	text   string
	number bool
}

// StringID returns an ID encoded as a JSON string.
func StringID(s string) ID { return ID{text: s} }

// NumberID returns an ID encoded as a JSON number.
func NumberID(n int64) ID { return ID{text: strconv.FormatInt(n, 10), number: true} }

// ParseID reads an ID typed by a person: decimal integers become numbers,
// anything else a string.
func ParseID(s string) ID {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && strconv.FormatInt(n, 10) == s {
		return NumberID(n)
	}
	return StringID(s)
}

func (id ID) String() string { return id.text }

func (id ID) IsZero() bool { return id.text == "" }

// IsNumber reports whether id is encoded as a JSON number.
func (id ID) IsNumber() bool { return id.number }

// Equal compares textual forms, ignoring the literal kind.
func (id ID) Equal(other ID) bool { return id.text == other.text }

func (id ID) MarshalJSON() ([]byte, error) {
	if id.number {
		return []byte(id.text), nil
	}
	return json.Marshal(id.text)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ID{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID{text: n.String(), number: true}
	return nil
}

// User is the public identity of a connected session.
type User struct {
	ID   ID     `json:"userId"`
	Name string `json:"userName"`
}

// Action is what a user is doing with a task.
type Action string

const (
	ActionViewing Action = "viewing"
	ActionEditing Action = "editing"
	ActionIdle    Action = "idle"
)

func (a Action) Valid() bool {
	switch a {
	case ActionViewing, ActionEditing, ActionIdle:
		return true
	}
	return false
}

// Event is the envelope for every server → client frame. Fields that do not
// apply to a given type are left empty and omitted; users_list always carries
// its users array, even when empty.
type Event struct {
	Type      MessageType     `json:"type"`
	UserID    ID              `json:"userId,omitzero"`
	UserName  string          `json:"userName,omitempty"`
	Users     []User          `json:"users,omitzero"`
	TaskID    ID              `json:"taskId,omitzero"`
	Changes   json.RawMessage `json:"changes,omitempty"`
	Task      json.RawMessage `json:"task,omitempty"`
	Action    Action          `json:"action,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

func AuthSuccess(userID ID) Event {
	return Event{Type: MsgAuthSuccess, UserID: userID}
}

func AuthError(msg string) Event {
	return Event{Type: MsgAuthError, Error: msg}
}

func Error(msg string) Event {
	return Event{Type: MsgError, Error: msg}
}

func UsersList(users []User) Event {
	if users == nil {
		users = []User{}
	}
	return Event{Type: MsgUsersList, Users: users}
}

func Pong() Event {
	return Event{Type: MsgPong}
}

// Authored builds a broadcast event attributed to u and stamped with at.
func Authored(t MessageType, u User, at time.Time) Event {
	return Event{
		Type:      t,
		UserID:    u.ID,
		UserName:  u.Name,
		Timestamp: Timestamp(at),
	}
}

// DecodeEvent parses a server → client frame.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("decode event: missing type")
	}
	return ev, nil
}
