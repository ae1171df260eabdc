package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/taskrelay/server/internal/ai"
	"github.com/taskrelay/server/internal/modules/model"
	"github.com/taskrelay/server/internal/modules/repo"
)

var ErrEmptyDescription = errors.New("description is required")

// ModelRouter is the part of the AI router the task layer needs.
type ModelRouter interface {
	ResolveDescriptor(name string) (model.ModelDescriptor, error)
	ListAllModels() []ai.ModelInfo
	GenerateResponse(ctx context.Context, systemPrompt string, messages []model.Message, modelName string, useTools bool) ([]model.ContentBlock, error)
}

// Dispatcher hands tasks to the executor.
type Dispatcher interface {
	Enqueue(id uuid.UUID) bool
	CancelTask(id uuid.UUID) bool
}

type TaskService interface {
	Create(ctx context.Context, in CreateTaskInput) (*model.Task, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Task, error)
	List(ctx context.Context, f repo.TaskFilter, page, limit int) ([]*model.Task, int64, error)
	Update(ctx context.Context, id uuid.UUID, in UpdateTaskInput) (*model.Task, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Takeover(ctx context.Context, id uuid.UUID) (*model.Task, error)
	Resume(ctx context.Context, id uuid.UUID) (*model.Task, error)
	Cancel(ctx context.Context, id uuid.UUID) (*model.Task, error)
	ListMessages(ctx context.Context, id uuid.UUID, limit, offset int) ([]*model.Message, error)
	ListRawMessages(ctx context.Context, id uuid.UUID, page, limit int) ([]*model.Message, int64, error)
	ListProcessedMessages(ctx context.Context, id uuid.UUID, page, limit int) ([]MessageGroup, error)
	AddUserMessage(ctx context.Context, id uuid.UUID, blocks []model.ContentBlock, userID *uuid.UUID) (*model.Message, error)
	Models() []ai.ModelInfo
	Counts(ctx context.Context) (map[model.TaskStatus]int64, error)
}

type TaskServiceDeps struct {
	Tasks    repo.TaskRepo
	Messages repo.MessageRepo
	Router   ModelRouter
	Notifier *Notifier
	Cache    TaskCache
	Archiver Archiver

	// Dispatcher may be nil when no executor runs in this process.
	Dispatcher Dispatcher
	Log        *zap.Logger
}

type taskService struct {
	lc     *lifecycle
	router ModelRouter
	cache  TaskCache
	disp   Dispatcher
	log    *zap.Logger
}

func NewTaskService(d TaskServiceDeps) TaskService {
	return &taskService{
		lc: &lifecycle{
			tasks:   d.Tasks,
			msgs:    d.Messages,
			notify:  orNop(d.Notifier, d.Log),
			archive: d.Archiver,
			log:     d.Log,
			now:     time.Now,
		},
		router: d.Router,
		cache:  d.Cache,
		disp:   d.Dispatcher,
		log:    d.Log,
	}
}

type CreateTaskInput struct {
	Description  string
	Type         model.TaskType
	Priority     model.TaskPriority
	ScheduledFor *time.Time
	Model        string
	CreatedBy    model.Role
	UserID       *uuid.UUID
}

func (s *taskService) Create(ctx context.Context, in CreateTaskInput) (*model.Task, error) {
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		return nil, ErrEmptyDescription
	}
	md, err := s.router.ResolveDescriptor(in.Model)
	if err != nil {
		return nil, err
	}

	t := model.NewTask(desc, md)
	if in.Type != "" {
		t.Type = in.Type
	}
	if in.Priority != "" {
		t.Priority = in.Priority
	}
	if in.CreatedBy != "" {
		t.CreatedBy = in.CreatedBy
	}
	t.ScheduledFor = in.ScheduledFor
	t.UserID = in.UserID
	if err := t.ValidateIntegrity(); err != nil {
		return nil, err
	}

	if err := s.lc.tasks.Create(ctx, t); err != nil {
		return nil, err
	}
	first := model.NewMessage(t.ID, model.RoleUser, []model.ContentBlock{model.NewTextBlock(desc)})
	first.UserID = in.UserID
	if err := s.lc.addMessage(ctx, first); err != nil {
		return nil, err
	}

	s.log.Sugar().Infow("task created", "task_id", t.ID, "type", t.Type, "model", md.Name)
	s.lc.notify.TaskCreated(ctx, t)
	if t.Type == model.TaskTypeImmediate {
		s.dispatch(t.ID)
	}
	return t, nil
}

// Get reads through the task cache.
func (s *taskService) Get(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	if s.cache != nil {
		if t, err := s.cache.Get(ctx, id); err == nil {
			return t, nil
		}
	}
	t, err := s.lc.tasks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, t); err != nil {
			s.log.Sugar().Debugw("cache task", "task_id", id, "err", err)
		}
	}
	return t, nil
}

func (s *taskService) List(ctx context.Context, f repo.TaskFilter, page, limit int) ([]*model.Task, int64, error) {
	return s.lc.tasks.List(ctx, f, page, limit)
}

type UpdateTaskInput struct {
	Status      *model.TaskStatus
	Priority    *model.TaskPriority
	Description *string
	Error       *string
	Result      datatypes.JSON
}

func (s *taskService) Update(ctx context.Context, id uuid.UUID, in UpdateTaskInput) (*model.Task, error) {
	t, err := s.lc.tasks.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Priority != nil {
		t.Priority = *in.Priority
	}
	if in.Description != nil {
		if strings.TrimSpace(*in.Description) == "" {
			return nil, ErrEmptyDescription
		}
		t.Description = strings.TrimSpace(*in.Description)
	}
	if in.Error != nil {
		t.SetError(*in.Error)
	}
	if in.Result != nil {
		t.Result = in.Result
	}

	if in.Status != nil && *in.Status != t.Status {
		action, err := model.ActionFor(t.Status, *in.Status)
		if err != nil {
			return nil, err
		}
		if err := s.lc.transition(ctx, t, action); err != nil {
			return nil, err
		}
		s.afterControl(t, action)
		return t, nil
	}

	if err := t.ValidateIntegrity(); err != nil {
		return nil, err
	}
	t.UpdatedAt = s.lc.now().UTC()
	if err := s.lc.tasks.Update(ctx, t); err != nil {
		return nil, err
	}
	s.lc.notify.TaskUpdated(ctx, t)
	return t, nil
}

func (s *taskService) Delete(ctx context.Context, id uuid.UUID) error {
	if s.disp != nil {
		s.disp.CancelTask(id)
	}
	if err := s.lc.tasks.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Sugar().Infow("task deleted", "task_id", id)
	s.lc.notify.TaskDeleted(ctx, id)
	return nil
}

func (s *taskService) Takeover(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	return s.control(ctx, id, model.ActionTakeover)
}

func (s *taskService) Resume(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	return s.control(ctx, id, model.ActionResume)
}

func (s *taskService) Cancel(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	return s.control(ctx, id, model.ActionCancel)
}

func (s *taskService) control(ctx context.Context, id uuid.UUID, action model.ControlAction) (*model.Task, error) {
	t, err := s.lc.tasks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.lc.transition(ctx, t, action); err != nil {
		return nil, err
	}
	s.afterControl(t, action)
	return t, nil
}

// afterControl keeps the executor in step with a status change made from outside it.
func (s *taskService) afterControl(t *model.Task, action model.ControlAction) {
	switch {
	case t.IsTerminal(), action == model.ActionTakeover:
		if s.disp != nil {
			s.disp.CancelTask(t.ID)
		}
	case t.Status == model.TaskStatusRunning && t.Control == model.RoleAssistant:
		s.dispatch(t.ID)
	}
}

func (s *taskService) dispatch(id uuid.UUID) {
	if s.disp == nil {
		return
	}
	if !s.disp.Enqueue(id) {
		s.log.Sugar().Debugw("task not enqueued", "task_id", id)
	}
}

func (s *taskService) ListMessages(ctx context.Context, id uuid.UUID, limit, offset int) ([]*model.Message, error) {
	if _, err := s.lc.tasks.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.lc.msgs.ListByTask(ctx, id, limit, offset)
}

// AddUserMessage records a message from the operator. A task waiting on the
// user while the assistant still holds control is resumed.
func (s *taskService) AddUserMessage(ctx context.Context, id uuid.UUID, blocks []model.ContentBlock, userID *uuid.UUID) (*model.Message, error) {
	t, err := s.lc.tasks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.IsTerminal() {
		return nil, &model.TransitionError{From: t.Status, Action: model.ActionResume}
	}

	m := model.NewMessage(t.ID, model.RoleUser, blocks)
	m.UserID = userID
	if err := s.lc.addMessage(ctx, m); err != nil {
		return nil, err
	}

	waiting := t.Status == model.TaskStatusNeedsHelp || t.Status == model.TaskStatusNeedsReview
	if waiting && t.Control == model.RoleAssistant {
		if err := s.lc.transition(ctx, t, model.ActionResume); err != nil {
			return nil, err
		}
		s.dispatch(t.ID)
	}
	return m, nil
}

func (s *taskService) Models() []ai.ModelInfo {
	return s.router.ListAllModels()
}

func (s *taskService) Counts(ctx context.Context) (map[model.TaskStatus]int64, error) {
	return s.lc.tasks.CountByStatus(ctx)
}
