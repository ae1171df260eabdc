package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taskrelay/server/internal/ai"
	"github.com/taskrelay/server/internal/infra/blob"
	"github.com/taskrelay/server/internal/modules/model"
	"github.com/taskrelay/server/internal/modules/repo"
)

type taskFixture struct {
	tasks *memTaskRepo
	msgs  *memMessageRepo
	rt    *MockRouter
	disp  *MockDispatcher
	gw    *MockBroadcaster
	arch  *MockArchiver
	svc   TaskService
}

func newTaskFixture(seed ...*model.Task) *taskFixture {
	f := &taskFixture{
		tasks: newMemTaskRepo(seed...),
		msgs:  &memMessageRepo{},
		rt:    &MockRouter{},
		disp:  &MockDispatcher{},
		gw:    &MockBroadcaster{},
		arch:  &MockArchiver{},
	}
	f.gw.On("EmitTaskCreated", mock.Anything).Maybe()
	f.gw.On("EmitTaskUpdate", mock.Anything).Maybe()
	f.gw.On("EmitTaskDeleted", mock.Anything).Maybe()
	f.gw.On("EmitNewMessage", mock.Anything).Maybe()

	log := zap.NewNop()
	f.svc = NewTaskService(TaskServiceDeps{
		Tasks:      f.tasks,
		Messages:   f.msgs,
		Router:     f.rt,
		Notifier:   NewNotifier(f.gw, nil, nil, log),
		Archiver:   f.arch,
		Dispatcher: f.disp,
		Log:        log,
	})
	return f
}

func taskIn(status model.TaskStatus, control model.Role) *model.Task {
	t := model.NewTask("book a table", testModel)
	now := time.Now().UTC()
	t.Status = status
	t.Control = control
	if status != model.TaskStatusPending {
		t.ExecutedAt = &now
	}
	if status == model.TaskStatusCompleted {
		t.CompletedAt = &now
	}
	return t
}

func TestTaskService_Create(t *testing.T) {
	t.Run("immediate task gets defaults and is dispatched", func(t *testing.T) {
		f := newTaskFixture()
		f.rt.On("ResolveDescriptor", "").Return(testModel, nil)
		f.disp.On("Enqueue", mock.Anything).Return(true).Once()

		task, err := f.svc.Create(context.Background(), CreateTaskInput{Description: "  book a table  "})
		require.NoError(t, err)

		assert.Equal(t, "book a table", task.Description)
		assert.Equal(t, model.TaskTypeImmediate, task.Type)
		assert.Equal(t, model.TaskStatusPending, task.Status)
		assert.Equal(t, model.TaskPriorityMedium, task.Priority)
		assert.Equal(t, model.RoleAssistant, task.Control)
		assert.Equal(t, model.RoleUser, task.CreatedBy)
		assert.Equal(t, testModel, task.Model.Data())

		msgs := f.msgs.byRole(task.ID, model.RoleUser)
		require.Len(t, msgs, 1)
		assert.Equal(t, "book a table", msgs[0].ExtractText())

		f.disp.AssertCalled(t, "Enqueue", task.ID)
		f.gw.AssertCalled(t, "EmitTaskCreated", mock.Anything)
		f.gw.AssertCalled(t, "EmitNewMessage", mock.Anything)
	})

	t.Run("scheduled task waits for the scheduler", func(t *testing.T) {
		f := newTaskFixture()
		f.rt.On("ResolveDescriptor", "gpt-4o").Return(model.ModelDescriptor{Provider: "openai", Name: "gpt-4o"}, nil)
		at := time.Now().Add(time.Hour)

		task, err := f.svc.Create(context.Background(), CreateTaskInput{
			Description:  "send the weekly report",
			Type:         model.TaskTypeScheduled,
			Priority:     model.TaskPriorityHigh,
			ScheduledFor: &at,
			Model:        "gpt-4o",
		})
		require.NoError(t, err)
		assert.Equal(t, model.TaskTypeScheduled, task.Type)
		assert.Equal(t, model.TaskPriorityHigh, task.Priority)
		f.disp.AssertNotCalled(t, "Enqueue", mock.Anything)
	})

	tests := []struct {
		name    string
		in      CreateTaskInput
		rtErr   error
		wantErr error
	}{
		{
			name:    "blank description",
			in:      CreateTaskInput{Description: "   "},
			wantErr: ErrEmptyDescription,
		},
		{
			name:    "unknown model",
			in:      CreateTaskInput{Description: "x", Model: "llama-3"},
			rtErr:   &ai.Error{Kind: ai.KindInvalidModel, Message: "Unknown model: llama-3"},
			wantErr: ai.ErrInvalidModel,
		},
		{
			name:    "scheduled without time",
			in:      CreateTaskInput{Description: "x", Type: model.TaskTypeScheduled},
			wantErr: model.ErrIntegrity,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTaskFixture()
			f.rt.On("ResolveDescriptor", mock.Anything).Return(testModel, tt.rtErr)

			_, err := f.svc.Create(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.tasks.tasks)
			f.disp.AssertNotCalled(t, "Enqueue", mock.Anything)
		})
	}
}

func TestTaskService_ControlHandoff(t *testing.T) {
	tests := []struct {
		name        string
		seed        *model.Task
		op          func(TaskService, context.Context, uuid.UUID) (*model.Task, error)
		setup       func(*taskFixture)
		wantStatus  model.TaskStatus
		wantControl model.Role
		wantErr     error
	}{
		{
			name: "takeover running task",
			seed: taskIn(model.TaskStatusRunning, model.RoleAssistant),
			op:   TaskService.Takeover,
			setup: func(f *taskFixture) {
				f.disp.On("CancelTask", mock.Anything).Return(true).Once()
			},
			wantStatus:  model.TaskStatusNeedsHelp,
			wantControl: model.RoleUser,
		},
		{
			name: "takeover pending task keeps it pending",
			seed: taskIn(model.TaskStatusPending, model.RoleAssistant),
			op:   TaskService.Takeover,
			setup: func(f *taskFixture) {
				f.disp.On("CancelTask", mock.Anything).Return(false).Once()
			},
			wantStatus:  model.TaskStatusPending,
			wantControl: model.RoleUser,
		},
		{
			name: "resume hands control back and dispatches",
			seed: taskIn(model.TaskStatusNeedsHelp, model.RoleUser),
			op:   TaskService.Resume,
			setup: func(f *taskFixture) {
				f.disp.On("Enqueue", mock.Anything).Return(true).Once()
			},
			wantStatus:  model.TaskStatusRunning,
			wantControl: model.RoleAssistant,
		},
		{
			name: "cancel running task archives it",
			seed: taskIn(model.TaskStatusRunning, model.RoleAssistant),
			op:   TaskService.Cancel,
			setup: func(f *taskFixture) {
				f.disp.On("CancelTask", mock.Anything).Return(true).Once()
				f.arch.On("ArchiveTranscript", mock.Anything, mock.Anything, mock.Anything).
					Return(&blob.UploadedMeta{Key: "transcripts/x.json"}, nil).Once()
			},
			wantStatus:  model.TaskStatusCancelled,
			wantControl: model.RoleAssistant,
		},
		{
			name:    "cancel completed task",
			seed:    taskIn(model.TaskStatusCompleted, model.RoleAssistant),
			op:      TaskService.Cancel,
			wantErr: model.ErrInvalidTransition,
		},
		{
			name:    "resume failed task",
			seed:    taskIn(model.TaskStatusFailed, model.RoleAssistant),
			op:      TaskService.Resume,
			wantErr: model.ErrInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTaskFixture(tt.seed)
			if tt.setup != nil {
				tt.setup(f)
			}

			got, err := tt.op(f.svc, context.Background(), tt.seed.ID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.seed.Status, f.tasks.snapshot(tt.seed.ID).Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantControl, got.Control)

			stored := f.tasks.snapshot(tt.seed.ID)
			assert.Equal(t, tt.wantStatus, stored.Status)
			f.disp.AssertExpectations(t)
			f.arch.AssertExpectations(t)
			f.gw.AssertCalled(t, "EmitTaskUpdate", mock.Anything)
		})
	}

	t.Run("missing task", func(t *testing.T) {
		f := newTaskFixture()
		_, err := f.svc.Takeover(context.Background(), uuid.New())
		assert.ErrorIs(t, err, repo.ErrNotFound)
	})
}

func TestTaskService_Update(t *testing.T) {
	t.Run("status change goes through the state machine", func(t *testing.T) {
		seed := taskIn(model.TaskStatusNeedsReview, model.RoleAssistant)
		f := newTaskFixture(seed)
		f.disp.On("CancelTask", seed.ID).Return(false).Once()
		f.arch.On("ArchiveTranscript", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, errors.New("bucket missing")).Once()

		done := model.TaskStatusCompleted
		got, err := f.svc.Update(context.Background(), seed.ID, UpdateTaskInput{Status: &done})
		require.NoError(t, err, "archive failures are not surfaced")
		assert.Equal(t, model.TaskStatusCompleted, got.Status)
		assert.NotNil(t, got.CompletedAt)
	})

	t.Run("illegal status change", func(t *testing.T) {
		seed := taskIn(model.TaskStatusPending, model.RoleAssistant)
		f := newTaskFixture(seed)

		done := model.TaskStatusCompleted
		_, err := f.svc.Update(context.Background(), seed.ID, UpdateTaskInput{Status: &done})
		assert.ErrorIs(t, err, model.ErrInvalidTransition)
	})

	t.Run("plain field update", func(t *testing.T) {
		seed := taskIn(model.TaskStatusPending, model.RoleAssistant)
		f := newTaskFixture(seed)

		urgent := model.TaskPriorityUrgent
		desc := "book a table for four"
		got, err := f.svc.Update(context.Background(), seed.ID, UpdateTaskInput{Priority: &urgent, Description: &desc})
		require.NoError(t, err)
		assert.Equal(t, model.TaskPriorityUrgent, got.Priority)
		assert.Equal(t, desc, f.tasks.snapshot(seed.ID).Description)
		f.gw.AssertCalled(t, "EmitTaskUpdate", mock.Anything)
	})

	t.Run("blank description", func(t *testing.T) {
		seed := taskIn(model.TaskStatusPending, model.RoleAssistant)
		f := newTaskFixture(seed)
		blank := " "
		_, err := f.svc.Update(context.Background(), seed.ID, UpdateTaskInput{Description: &blank})
		assert.ErrorIs(t, err, ErrEmptyDescription)
	})
}

func TestTaskService_AddUserMessage(t *testing.T) {
	tests := []struct {
		name         string
		seed         *model.Task
		wantStatus   model.TaskStatus
		wantDispatch bool
		wantErr      error
	}{
		{
			name:         "help request answered by user resumes the assistant",
			seed:         taskIn(model.TaskStatusNeedsHelp, model.RoleAssistant),
			wantStatus:   model.TaskStatusRunning,
			wantDispatch: true,
		},
		{
			name:         "review feedback resumes the assistant",
			seed:         taskIn(model.TaskStatusNeedsReview, model.RoleAssistant),
			wantStatus:   model.TaskStatusRunning,
			wantDispatch: true,
		},
		{
			name:       "user in control keeps control",
			seed:       taskIn(model.TaskStatusNeedsHelp, model.RoleUser),
			wantStatus: model.TaskStatusNeedsHelp,
		},
		{
			name:       "running task just records the message",
			seed:       taskIn(model.TaskStatusRunning, model.RoleAssistant),
			wantStatus: model.TaskStatusRunning,
		},
		{
			name:    "finished task rejects messages",
			seed:    taskIn(model.TaskStatusCompleted, model.RoleAssistant),
			wantErr: model.ErrInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTaskFixture(tt.seed)
			f.disp.On("Enqueue", tt.seed.ID).Return(true).Maybe()
			uid := uuid.New()

			m, err := f.svc.AddUserMessage(context.Background(), tt.seed.ID,
				[]model.ContentBlock{model.NewTextBlock("the password is in the vault")}, &uid)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, f.msgs.msgs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, model.RoleUser, m.Role)
			assert.Equal(t, &uid, m.UserID)
			assert.Equal(t, tt.wantStatus, f.tasks.snapshot(tt.seed.ID).Status)
			if tt.wantDispatch {
				f.disp.AssertCalled(t, "Enqueue", tt.seed.ID)
			} else {
				f.disp.AssertNotCalled(t, "Enqueue", mock.Anything)
			}
		})
	}
}

func TestTaskService_GetReadsThroughCache(t *testing.T) {
	seed := taskIn(model.TaskStatusRunning, model.RoleAssistant)

	t.Run("hit", func(t *testing.T) {
		tasks := &MockTaskRepo{}
		cache := &MockTaskCache{}
		cache.On("Get", mock.Anything, seed.ID).Return(seed, nil).Once()

		svc := NewTaskService(TaskServiceDeps{Tasks: tasks, Cache: cache, Log: zap.NewNop()})
		got, err := svc.Get(context.Background(), seed.ID)
		require.NoError(t, err)
		assert.Equal(t, seed.ID, got.ID)
		tasks.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	})

	t.Run("miss fills the cache", func(t *testing.T) {
		tasks := &MockTaskRepo{}
		cache := &MockTaskCache{}
		cache.On("Get", mock.Anything, seed.ID).Return(nil, errors.New("redis: nil")).Once()
		tasks.On("Get", mock.Anything, seed.ID).Return(seed, nil).Once()
		cache.On("Set", mock.Anything, seed).Return(nil).Once()

		svc := NewTaskService(TaskServiceDeps{Tasks: tasks, Cache: cache, Log: zap.NewNop()})
		got, err := svc.Get(context.Background(), seed.ID)
		require.NoError(t, err)
		assert.Equal(t, seed, got)
		tasks.AssertExpectations(t)
		cache.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		tasks := &MockTaskRepo{}
		id := uuid.New()
		tasks.On("Get", mock.Anything, id).Return(nil, repo.ErrNotFound).Once()

		svc := NewTaskService(TaskServiceDeps{Tasks: tasks, Log: zap.NewNop()})
		_, err := svc.Get(context.Background(), id)
		assert.ErrorIs(t, err, repo.ErrNotFound)
	})
}

func TestTaskService_Delete(t *testing.T) {
	seed := taskIn(model.TaskStatusRunning, model.RoleAssistant)
	f := newTaskFixture(seed)
	f.disp.On("CancelTask", seed.ID).Return(true).Once()

	require.NoError(t, f.svc.Delete(context.Background(), seed.ID))
	f.gw.AssertCalled(t, "EmitTaskDeleted", seed.ID.String())
	f.disp.AssertExpectations(t)

	f.disp.On("CancelTask", seed.ID).Return(false).Once()
	assert.ErrorIs(t, f.svc.Delete(context.Background(), seed.ID), repo.ErrNotFound)
}

func TestTaskService_ListMessagesChecksTask(t *testing.T) {
	f := newTaskFixture()
	_, err := f.svc.ListMessages(context.Background(), uuid.New(), 10, 0)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}
