package realtime

import (
	"github.com/tidwall/gjson"

	"github.com/taskrelay/server/internal/modules/model"
)

// Client to server events.
const (
	EventJoinTask  = "join_task"
	EventLeaveTask = "leave_task"
)

// Server to client events.
const (
	EventTaskJoined  = "task_joined"
	EventTaskLeft    = "task_left"
	EventError       = "error"
	EventTaskUpdated = "task_updated"
	EventNewMessage  = "new_message"
	EventTaskCreated = "task_created"
	EventTaskDeleted = "task_deleted"
)

// Variant discriminators carried in Frame.Type.
const (
	TypeTaskJoined  = "TaskJoined"
	TypeTaskLeft    = "TaskLeft"
	TypeTaskUpdated = "TaskUpdated"
	TypeNewMessage  = "NewMessage"
	TypeTaskCreated = "TaskCreated"
	TypeTaskDeleted = "TaskDeleted"
	TypeError       = "Error"
)

// Error reason codes.
const (
	CodeInvalidPayload     = "invalid_payload"
	CodeUnknownEvent       = "unknown_event"
	CodeConnectionNotFound = "connection_not_found"
)

// Frame is the wire envelope for every server event. Type is empty for
// extension events sent through the generic broadcast helpers.
type Frame struct {
	Event string `json:"event"`
	Type  string `json:"type,omitempty"`
	Data  any    `json:"data"`
}

type TaskPayload struct {
	Task *model.Task `json:"task"`
}

type MessagePayload struct {
	Message *model.Message `json:"message"`
}

type TaskIDPayload struct {
	TaskID string `json:"task_id"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func taskUpdatedFrame(t *model.Task) Frame {
	return Frame{Event: EventTaskUpdated, Type: TypeTaskUpdated, Data: TaskPayload{Task: t}}
}

func taskCreatedFrame(t *model.Task) Frame {
	return Frame{Event: EventTaskCreated, Type: TypeTaskCreated, Data: TaskPayload{Task: t}}
}

func taskDeletedFrame(taskID string) Frame {
	return Frame{Event: EventTaskDeleted, Type: TypeTaskDeleted, Data: TaskIDPayload{TaskID: taskID}}
}

func newMessageFrame(m *model.Message) Frame {
	return Frame{Event: EventNewMessage, Type: TypeNewMessage, Data: MessagePayload{Message: m}}
}

func errorFrame(code, msg string) Frame {
	return Frame{Event: EventError, Type: TypeError, Data: ErrorPayload{Code: code, Message: msg}}
}

// clientMessage is a decoded control message from a client.
type clientMessage struct {
	Event  string
	TaskID string
}

// parseClientMessage reads {"event": ..., "data": ...} where data is either
// the task id string or an object carrying task_id.
func parseClientMessage(raw []byte) (clientMessage, bool) {
	if !gjson.ValidBytes(raw) {
		return clientMessage{}, false
	}
	root := gjson.ParseBytes(raw)
	event := root.Get("event")
	if event.Type != gjson.String {
		return clientMessage{}, false
	}

	msg := clientMessage{Event: event.String()}
	data := root.Get("data")
	switch {
	case data.Type == gjson.String:
		msg.TaskID = data.String()
	case data.IsObject():
		if id := data.Get("task_id"); id.Type == gjson.String {
			msg.TaskID = id.String()
		}
	}
	return msg, true
}
