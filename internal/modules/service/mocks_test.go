package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/taskrelay/server/internal/ai"
	"github.com/taskrelay/server/internal/infra/blob"
	"github.com/taskrelay/server/internal/modules/model"
	"github.com/taskrelay/server/internal/modules/repo"
)

// MockTaskRepo is a mock implementation of repo.TaskRepo
type MockTaskRepo struct {
	mock.Mock
}

func (m *MockTaskRepo) Create(ctx context.Context, t *model.Task) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTaskRepo) Get(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Task), args.Error(1)
}

func (m *MockTaskRepo) Update(ctx context.Context, t *model.Task) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTaskRepo) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTaskRepo) List(ctx context.Context, f repo.TaskFilter, page, limit int) ([]*model.Task, int64, error) {
	args := m.Called(ctx, f, page, limit)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*model.Task), args.Get(1).(int64), args.Error(2)
}

func (m *MockTaskRepo) GetByStatus(ctx context.Context, statuses ...model.TaskStatus) ([]*model.Task, error) {
	args := m.Called(ctx, statuses)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Task), args.Error(1)
}

func (m *MockTaskRepo) GetScheduledBefore(ctx context.Context, before time.Time, limit int) ([]*model.Task, error) {
	args := m.Called(ctx, before, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Task), args.Error(1)
}

func (m *MockTaskRepo) MarkQueued(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	args := m.Called(ctx, id, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockTaskRepo) ClearQueued(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockTaskRepo) CountByStatus(ctx context.Context) (map[model.TaskStatus]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[model.TaskStatus]int64), args.Error(1)
}

// MockMessageRepo is a mock implementation of repo.MessageRepo
type MockMessageRepo struct {
	mock.Mock
}

func (m *MockMessageRepo) Create(ctx context.Context, msg *model.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockMessageRepo) ListByTask(ctx context.Context, taskID uuid.UUID, limit, offset int) ([]*model.Message, error) {
	args := m.Called(ctx, taskID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Message), args.Error(1)
}

func (m *MockMessageRepo) CountByTask(ctx context.Context, taskID uuid.UUID) (int64, error) {
	args := m.Called(ctx, taskID)
	return args.Get(0).(int64), args.Error(1)
}

// MockRouter is a mock implementation of ModelRouter
type MockRouter struct {
	mock.Mock
}

func (m *MockRouter) ResolveDescriptor(name string) (model.ModelDescriptor, error) {
	args := m.Called(name)
	return args.Get(0).(model.ModelDescriptor), args.Error(1)
}

func (m *MockRouter) ListAllModels() []ai.ModelInfo {
	args := m.Called()
	return args.Get(0).([]ai.ModelInfo)
}

func (m *MockRouter) GenerateResponse(ctx context.Context, systemPrompt string, messages []model.Message, modelName string, useTools bool) ([]model.ContentBlock, error) {
	args := m.Called(ctx, systemPrompt, messages, modelName, useTools)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ContentBlock), args.Error(1)
}

// MockDispatcher is a mock implementation of Dispatcher
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Enqueue(id uuid.UUID) bool {
	return m.Called(id).Bool(0)
}

func (m *MockDispatcher) CancelTask(id uuid.UUID) bool {
	return m.Called(id).Bool(0)
}

// MockEffector is a mock implementation of effector.Effector
type MockEffector struct {
	mock.Mock
}

func (m *MockEffector) Execute(ctx context.Context, taskID string, toolUse model.ContentBlock) (model.ContentBlock, error) {
	args := m.Called(ctx, taskID, toolUse)
	return args.Get(0).(model.ContentBlock), args.Error(1)
}

// MockBroadcaster is a mock implementation of Broadcaster
type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) EmitTaskCreated(t *model.Task) { m.Called(t) }

func (m *MockBroadcaster) EmitTaskUpdate(t *model.Task) { m.Called(t) }

func (m *MockBroadcaster) EmitTaskDeleted(taskID string) { m.Called(taskID) }

func (m *MockBroadcaster) EmitNewMessage(msg *model.Message) { m.Called(msg) }

// MockPublisher is a mock implementation of EventPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishJSON(ctx context.Context, routingKey string, v any) error {
	args := m.Called(ctx, routingKey, v)
	return args.Error(0)
}

// MockTaskCache is a mock implementation of TaskCache
type MockTaskCache struct {
	mock.Mock
}

func (m *MockTaskCache) Get(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Task), args.Error(1)
}

func (m *MockTaskCache) Set(ctx context.Context, t *model.Task) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTaskCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockArchiver is a mock implementation of Archiver
type MockArchiver struct {
	mock.Mock
}

func (m *MockArchiver) ArchiveTranscript(ctx context.Context, task *model.Task, msgs []*model.Message) (*blob.UploadedMeta, error) {
	args := m.Called(ctx, task, msgs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*blob.UploadedMeta), args.Error(1)
}

// memTaskRepo keeps tasks in memory for tests that follow a task through
// several reads and writes.
type memTaskRepo struct {
	repo.TaskRepo

	mu    sync.Mutex
	tasks map[uuid.UUID]model.Task
}

func newMemTaskRepo(tasks ...*model.Task) *memTaskRepo {
	r := &memTaskRepo{tasks: make(map[uuid.UUID]model.Task)}
	for _, t := range tasks {
		r.tasks[t.ID] = *t
	}
	return r
}

func (r *memTaskRepo) Create(_ context.Context, t *model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[t.ID] = *t
	return nil
}

func (r *memTaskRepo) Get(_ context.Context, id uuid.UUID) (*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &t, nil
}

func (r *memTaskRepo) Update(_ context.Context, t *model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[t.ID]; !ok {
		return repo.ErrNotFound
	}
	r.tasks[t.ID] = *t
	return nil
}

func (r *memTaskRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return repo.ErrNotFound
	}
	delete(r.tasks, id)
	return nil
}

// GetScheduledBefore, MarkQueued, ClearQueued and GetByStatus follow the
// WHERE clauses of the gorm repo.
func (r *memTaskRepo) GetScheduledBefore(_ context.Context, before time.Time, limit int) ([]*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Task
	for _, t := range r.tasks {
		if t.Status == model.TaskStatusPending && t.Type == model.TaskTypeScheduled &&
			t.ScheduledFor != nil && !t.ScheduledFor.After(before) && t.QueuedAt == nil {
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(*out[j].ScheduledFor) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memTaskRepo) MarkQueued(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.QueuedAt != nil {
		return false, nil
	}
	t.QueuedAt = &at
	r.tasks[id] = t
	return true, nil
}

func (r *memTaskRepo) ClearQueued(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok && t.Status == model.TaskStatusPending {
		t.QueuedAt = nil
		r.tasks[id] = t
	}
	return nil
}

func (r *memTaskRepo) GetByStatus(_ context.Context, statuses ...model.TaskStatus) ([]*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Task
	for _, t := range r.tasks {
		for _, s := range statuses {
			if t.Status == s {
				out = append(out, &t)
				break
			}
		}
	}
	return out, nil
}

func (r *memTaskRepo) snapshot(id uuid.UUID) model.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks[id]
}

type memMessageRepo struct {
	mu   sync.Mutex
	msgs []*model.Message
}

func (r *memMessageRepo) Create(_ context.Context, m *model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *memMessageRepo) ListByTask(_ context.Context, taskID uuid.UUID, limit, offset int) ([]*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Message
	for _, m := range r.msgs {
		if m.TaskID == taskID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *memMessageRepo) CountByTask(_ context.Context, taskID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.msgs {
		if m.TaskID == taskID {
			n++
		}
	}
	return n, nil
}

func (r *memMessageRepo) byRole(taskID uuid.UUID, role model.Role) []*model.Message {
	all, _ := r.ListByTask(context.Background(), taskID, 0, 0)
	var out []*model.Message
	for _, m := range all {
		if m.Role == role {
			out = append(out, m)
		}
	}
	return out
}

var testModel = model.ModelDescriptor{Provider: "anthropic", Name: "claude-opus-4-20250514", Title: "Claude Opus 4"}
