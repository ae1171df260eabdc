package realtime

import (
	"errors"
	"strings"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/taskrelay/server/internal/modules/model"
)

// Transport delivers an encoded frame to one connection.
type Transport interface {
	Send(connID string, frame []byte) error
}

// Gateway turns domain events into frames and delivers them to the right
// connections. Delivery is best effort: send failures are logged and never
// returned to the caller.
type Gateway struct {
	registry  *Registry
	transport Transport
	log       *zap.Logger
}

func NewGateway(registry *Registry, transport Transport, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{registry: registry, transport: transport, log: log}
}

func (g *Gateway) Connect(connID string) {
	g.registry.Connect(connID)
	g.log.Debug("client connected", zap.String("conn_id", connID))
}

func (g *Gateway) Disconnect(connID string) {
	g.registry.Disconnect(connID)
	g.log.Debug("client disconnected", zap.String("conn_id", connID))
}

func (g *Gateway) Stats() Stats {
	return g.registry.Stats()
}

// HandleMessage processes one raw control message from a client. Failures are
// reported back to that client as error events.
func (g *Gateway) HandleMessage(connID string, raw []byte) {
	msg, ok := parseClientMessage(raw)
	if !ok {
		g.replyError(connID, CodeInvalidPayload, "Invalid message format")
		return
	}

	switch msg.Event {
	case EventJoinTask:
		g.JoinTask(connID, msg.TaskID)
	case EventLeaveTask:
		g.LeaveTask(connID, msg.TaskID)
	default:
		g.replyError(connID, CodeUnknownEvent, "Unknown event: "+msg.Event)
	}
}

func (g *Gateway) JoinTask(connID, taskID string) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		g.replyError(connID, CodeInvalidPayload, "Failed to join task: missing task_id")
		return
	}
	if err := g.registry.Join(connID, taskID); err != nil {
		g.replyError(connID, reasonCode(err), "Failed to join task: "+err.Error())
		return
	}
	g.log.Debug("client joined task", zap.String("conn_id", connID), zap.String("room", RoomName(taskID)))
	g.reply(connID, Frame{Event: EventTaskJoined, Type: TypeTaskJoined, Data: TaskIDPayload{TaskID: taskID}})
}

func (g *Gateway) LeaveTask(connID, taskID string) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		g.replyError(connID, CodeInvalidPayload, "Failed to leave task: missing task_id")
		return
	}
	if err := g.registry.Leave(connID, taskID); err != nil {
		g.replyError(connID, reasonCode(err), "Failed to leave task: "+err.Error())
		return
	}
	g.log.Debug("client left task", zap.String("conn_id", connID), zap.String("room", RoomName(taskID)))
	g.reply(connID, Frame{Event: EventTaskLeft, Type: TypeTaskLeft, Data: TaskIDPayload{TaskID: taskID}})
}

func reasonCode(err error) string {
	if errors.Is(err, ErrConnectionNotFound) {
		return CodeConnectionNotFound
	}
	return CodeInvalidPayload
}

func (g *Gateway) EmitTaskUpdate(task *model.Task) {
	g.toRoom(task.ID.String(), taskUpdatedFrame(task))
}

func (g *Gateway) EmitNewMessage(msg *model.Message) {
	g.toRoom(msg.TaskID.String(), newMessageFrame(msg))
}

func (g *Gateway) EmitTaskCreated(task *model.Task) {
	g.toAll(taskCreatedFrame(task))
}

func (g *Gateway) EmitTaskDeleted(taskID string) {
	g.toAll(taskDeletedFrame(taskID))
}

// BroadcastToTask sends an extension event to a task room.
func (g *Gateway) BroadcastToTask(taskID, event string, payload any) {
	g.toRoom(taskID, Frame{Event: event, Data: payload})
}

// BroadcastGlobal sends an extension event to every connection.
func (g *Gateway) BroadcastGlobal(event string, payload any) {
	g.toAll(Frame{Event: event, Data: payload})
}

func (g *Gateway) toRoom(taskID string, f Frame) {
	room := RoomName(taskID)
	g.deliver(g.registry.RoomMembers(taskID), f, room)
}

func (g *Gateway) toAll(f Frame) {
	g.deliver(g.registry.Connections(), f, "*")
}

func (g *Gateway) deliver(connIDs []string, f Frame, room string) {
	if len(connIDs) == 0 {
		return
	}
	raw, err := sonic.Marshal(f)
	if err != nil {
		g.log.Error("encode event", zap.String("event", f.Event), zap.String("room", room), zap.Error(err))
		return
	}
	for _, id := range connIDs {
		if err := g.transport.Send(id, raw); err != nil {
			g.log.Warn("event delivery failed",
				zap.String("event", f.Event),
				zap.String("room", room),
				zap.String("conn_id", id),
				zap.Error(err))
		}
	}
}

func (g *Gateway) reply(connID string, f Frame) {
	g.deliver([]string{connID}, f, "direct")
}

func (g *Gateway) replyError(connID, code, msg string) {
	g.log.Debug("client error", zap.String("conn_id", connID), zap.String("code", code), zap.String("msg", msg))
	g.reply(connID, errorFrame(code, msg))
}
