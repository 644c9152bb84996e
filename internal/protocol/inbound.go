package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed wraps every decode failure of a client frame.
var ErrMalformed = errors.New("malformed message")

// Inbound is a decoded client → server frame. The set of implementations is
// closed; Unknown carries any type the server does not recognise.
type Inbound interface {
	Kind() MessageType
	inbound()
}

type Auth struct {
	Token string `json:"token"`
}

type JoinProject struct {
	ProjectID ID `json:"projectId"`
}

type LeaveProject struct{}

type TaskUpdate struct {
	TaskID  ID              `json:"taskId"`
	Changes json.RawMessage `json:"changes"`
}

type TaskCreate struct {
	Task json.RawMessage `json:"task"`
}

type TaskDelete struct {
	TaskID ID `json:"taskId"`
}

type Presence struct {
	Action Action `json:"action"`
	TaskID ID     `json:"taskId"`
}

type Ping struct{}

type Unknown struct {
	Type MessageType
}

func (Auth) Kind() MessageType         { return MsgAuth }
func (JoinProject) Kind() MessageType  { return MsgJoinProject }
func (LeaveProject) Kind() MessageType { return MsgLeaveProject }
func (TaskUpdate) Kind() MessageType   { return MsgTaskUpdate }
func (TaskCreate) Kind() MessageType   { return MsgTaskCreate }
func (TaskDelete) Kind() MessageType   { return MsgTaskDelete }
func (Presence) Kind() MessageType     { return MsgPresence }
func (Ping) Kind() MessageType         { return MsgPing }
func (u Unknown) Kind() MessageType    { return u.Type }

func (Auth) inbound()         {}
func (JoinProject) inbound()  {}
func (LeaveProject) inbound() {}
func (TaskUpdate) inbound()   {}
func (TaskCreate) inbound()   {}
func (TaskDelete) inbound()   {}
func (Presence) inbound()     {}
func (Ping) inbound()         {}
func (Unknown) inbound()      {}

// Decode parses one client frame. The frame must be a JSON object with a
// string "type" field.
func Decode(data []byte) (Inbound, error) {
	var env struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	switch env.Type {
	case MsgAuth:
		return decodeAs[Auth](data)
	case MsgJoinProject:
		return decodeAs[JoinProject](data)
	case MsgLeaveProject:
		return LeaveProject{}, nil
	case MsgTaskUpdate:
		return decodeAs[TaskUpdate](data)
	case MsgTaskCreate:
		return decodeAs[TaskCreate](data)
	case MsgTaskDelete:
		return decodeAs[TaskDelete](data)
	case MsgPresence:
		return decodeAs[Presence](data)
	case MsgPing:
		return Ping{}, nil
	default:
		return Unknown{Type: env.Type}, nil
	}
}

func decodeAs[T Inbound](data []byte) (Inbound, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v, nil
}

// Request is the envelope a client uses to encode any client → server frame.
type Request struct {
	Type      MessageType `json:"type"`
	Token     string      `json:"token,omitempty"`
	ProjectID ID          `json:"projectId,omitzero"`
	TaskID    ID          `json:"taskId,omitzero"`
	Changes   any         `json:"changes,omitempty"`
	Task      any         `json:"task,omitempty"`
	Action    Action      `json:"action,omitempty"`
}
