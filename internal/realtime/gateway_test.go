package realtime

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/taskrelay/server/internal/modules/model"
)

// recordingTransport captures frames per connection and can fail chosen ids.
type recordingTransport struct {
	mu     sync.Mutex
	frames map[string][]gjson.Result
	fail   map[string]bool
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{frames: make(map[string][]gjson.Result), fail: make(map[string]bool)}
}

func (r *recordingTransport) Send(connID string, frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[connID] {
		return errors.New("broken pipe")
	}
	r.frames[connID] = append(r.frames[connID], gjson.ParseBytes(frame))
	return nil
}

func (r *recordingTransport) got(connID string) []gjson.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]gjson.Result(nil), r.frames[connID]...)
}

func newTestGateway() (*Gateway, *recordingTransport) {
	tr := newRecordingTransport()
	return NewGateway(NewRegistry(), tr, zap.NewNop()), tr
}

func testTask() *model.Task {
	return model.NewTask("do it", model.ModelDescriptor{Provider: "openai", Name: "gpt-4o"})
}

func TestGateway_TaskUpdateReachesOnlyRoomMembers(t *testing.T) {
	g, tr := newTestGateway()
	task := testTask()

	g.Connect("A")
	g.Connect("B")
	g.JoinTask("A", task.ID.String())

	g.EmitTaskUpdate(task)

	a := tr.got("A")
	require.Len(t, a, 2) // join confirmation + update
	assert.Equal(t, EventTaskJoined, a[0].Get("event").String())
	assert.Equal(t, EventTaskUpdated, a[1].Get("event").String())
	assert.Equal(t, TypeTaskUpdated, a[1].Get("type").String())
	assert.Equal(t, task.ID.String(), a[1].Get("data.task.id").String())
	assert.Empty(t, tr.got("B"))
}

func TestGateway_NewMessageIsRoomScoped(t *testing.T) {
	g, tr := newTestGateway()
	task := testTask()
	g.Connect("A")
	g.Connect("B")
	g.JoinTask("B", task.ID.String())

	msg := model.NewMessage(task.ID, model.RoleAssistant, []model.ContentBlock{model.NewTextBlock("hi")})
	g.EmitNewMessage(msg)

	assert.Empty(t, tr.got("A"))
	b := tr.got("B")
	require.Len(t, b, 2)
	assert.Equal(t, EventNewMessage, b[1].Get("event").String())
	assert.Equal(t, "hi", b[1].Get("data.message.content.0.text").String())
}

func TestGateway_CreatedAndDeletedAreGlobal(t *testing.T) {
	g, tr := newTestGateway()
	task := testTask()
	g.Connect("A")
	g.Connect("B")
	g.JoinTask("A", "other-task")

	g.EmitTaskCreated(task)
	g.EmitTaskDeleted(task.ID.String())

	for _, id := range []string{"A", "B"} {
		frames := tr.got(id)
		require.GreaterOrEqual(t, len(frames), 2, id)
		created := frames[len(frames)-2]
		deleted := frames[len(frames)-1]
		assert.Equal(t, EventTaskCreated, created.Get("event").String())
		assert.Equal(t, TypeTaskCreated, created.Get("type").String())
		assert.Equal(t, EventTaskDeleted, deleted.Get("event").String())
		assert.Equal(t, task.ID.String(), deleted.Get("data.task_id").String())
	}
}

func TestGateway_DeliveryFailureDoesNotStopFanOut(t *testing.T) {
	g, tr := newTestGateway()
	task := testTask()
	for _, id := range []string{"A", "B", "C"} {
		g.Connect(id)
		g.JoinTask(id, task.ID.String())
	}
	tr.fail["B"] = true

	assert.NotPanics(t, func() { g.EmitTaskUpdate(task) })

	assert.Len(t, tr.got("A"), 2)
	assert.Len(t, tr.got("C"), 2)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, g.registry.RoomMembers(task.ID.String()))
}

func TestGateway_HandleMessage(t *testing.T) {
	tests := []struct {
		name      string
		connected bool
		raw       string
		wantEvent string
		wantCode  string
		wantTask  string
	}{
		{name: "join with bare string", connected: true, raw: `{"event":"join_task","data":"t1"}`, wantEvent: EventTaskJoined, wantTask: "t1"},
		{name: "join with object", connected: true, raw: `{"event":"join_task","data":{"task_id":"t2"}}`, wantEvent: EventTaskJoined, wantTask: "t2"},
		{name: "leave", connected: true, raw: `{"event":"leave_task","data":"t1"}`, wantEvent: EventTaskLeft, wantTask: "t1"},
		{name: "missing task id", connected: true, raw: `{"event":"join_task","data":{}}`, wantEvent: EventError, wantCode: CodeInvalidPayload},
		{name: "numeric task id", connected: true, raw: `{"event":"join_task","data":{"task_id":7}}`, wantEvent: EventError, wantCode: CodeInvalidPayload},
		{name: "not json", connected: true, raw: `join_task t1`, wantEvent: EventError, wantCode: CodeInvalidPayload},
		{name: "unknown event", connected: true, raw: `{"event":"dance","data":"t1"}`, wantEvent: EventError, wantCode: CodeUnknownEvent},
		{name: "unknown connection", connected: false, raw: `{"event":"join_task","data":"t1"}`, wantEvent: EventError, wantCode: CodeConnectionNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, tr := newTestGateway()
			if tt.connected {
				g.Connect("A")
			}

			g.HandleMessage("A", []byte(tt.raw))

			frames := tr.got("A")
			require.Len(t, frames, 1)
			assert.Equal(t, tt.wantEvent, frames[0].Get("event").String())
			if tt.wantCode != "" {
				assert.Equal(t, TypeError, frames[0].Get("type").String())
				assert.Equal(t, tt.wantCode, frames[0].Get("data.code").String())
				assert.NotEmpty(t, frames[0].Get("data.message").String())
			}
			if tt.wantTask != "" {
				assert.Equal(t, tt.wantTask, frames[0].Get("data.task_id").String())
			}
		})
	}
}

func TestGateway_JoinFailureMessage(t *testing.T) {
	g, tr := newTestGateway()
	g.JoinTask("ghost", "t1")

	frames := tr.got("ghost")
	require.Len(t, frames, 1)
	assert.Equal(t, "Failed to join task: connection not found", frames[0].Get("data.message").String())
}

func TestGateway_ExtensionBroadcasts(t *testing.T) {
	g, tr := newTestGateway()
	g.Connect("A")
	g.Connect("B")
	g.JoinTask("A", "t1")

	g.BroadcastToTask("t1", "screenshot", map[string]string{"image": "abc"})
	g.BroadcastGlobal("maintenance", map[string]int{"minutes": 5})

	a := tr.got("A")
	require.Len(t, a, 3)
	assert.Equal(t, "screenshot", a[1].Get("event").String())
	assert.False(t, a[1].Get("type").Exists())
	assert.Equal(t, "abc", a[1].Get("data.image").String())
	assert.Equal(t, "maintenance", a[2].Get("event").String())

	b := tr.got("B")
	require.Len(t, b, 1)
	assert.Equal(t, int64(5), b[0].Get("data.minutes").Int())
}

func TestGateway_LateJoinerMissesEarlierEvents(t *testing.T) {
	g, tr := newTestGateway()
	task := testTask()
	g.Connect("A")

	g.EmitTaskUpdate(task)
	g.JoinTask("A", task.ID.String())

	frames := tr.got("A")
	require.Len(t, frames, 1)
	assert.Equal(t, EventTaskJoined, frames[0].Get("event").String())
}
