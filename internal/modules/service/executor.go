package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/taskrelay/server/internal/ai"
	"github.com/taskrelay/server/internal/effector"
	"github.com/taskrelay/server/internal/modules/model"
	"github.com/taskrelay/server/internal/modules/repo"
	"github.com/taskrelay/server/internal/pkg/editor"
	"github.com/taskrelay/server/internal/telemetry"
)

type ExecutorOptions struct {
	Workers      int
	QueueSize    int
	MaxTurns     int
	SystemPrompt string
	Edits        []editor.EditStrategy
}

type ExecutorDeps struct {
	Tasks    repo.TaskRepo
	Messages repo.MessageRepo
	Router   ModelRouter
	Effector effector.Effector
	Notifier *Notifier
	Archiver Archiver
	Log      *zap.Logger
}

type ExecutorStats struct {
	Depth     int    `json:"depth"`
	Capacity  int    `json:"capacity"`
	Running   int    `json:"running"`
	Enqueued  uint64 `json:"enqueued"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
}

// Executor drives tasks through model turns on a fixed pool of workers.
type Executor struct {
	lc     *lifecycle
	router ModelRouter
	eff    effector.Effector
	opts   ExecutorOptions
	log    *zap.Logger

	queue chan uuid.UUID

	mu      sync.Mutex
	pending map[uuid.UUID]bool
	running map[uuid.UUID]*run

	enqueued  atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
}

func NewExecutor(d ExecutorDeps, opts ExecutorOptions) *Executor {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = 50
	}
	return &Executor{
		lc: &lifecycle{
			tasks:   d.Tasks,
			msgs:    d.Messages,
			notify:  orNop(d.Notifier, d.Log),
			archive: d.Archiver,
			log:     d.Log,
			now:     time.Now,
		},
		router:  d.Router,
		eff:     d.Effector,
		opts:    opts,
		log:     d.Log,
		queue:   make(chan uuid.UUID, opts.QueueSize),
		pending: make(map[uuid.UUID]bool),
		running: make(map[uuid.UUID]*run),
	}
}

// Enqueue schedules a task for execution. It returns false when the task is
// already queued or running, or when the queue is full.
func (e *Executor) Enqueue(id uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending[id] {
		return false
	}
	if _, ok := e.running[id]; ok {
		return false
	}
	select {
	case e.queue <- id:
		e.pending[id] = true
		e.enqueued.Add(1)
		return true
	default:
		e.log.Sugar().Warnw("executor queue full", "task_id", id, "capacity", cap(e.queue))
		return false
	}
}

type run struct{ cancel context.CancelFunc }

// CancelTask stops an in-flight execution. The running turn notices at its
// next context check; the task id is free to be enqueued again right away.
func (e *Executor) CancelTask(id uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.running[id]
	if ok {
		r.cancel()
		delete(e.running, id)
	}
	delete(e.pending, id)
	return ok
}

func (e *Executor) Stats() ExecutorStats {
	e.mu.Lock()
	running := len(e.running)
	e.mu.Unlock()
	return ExecutorStats{
		Depth:     len(e.queue),
		Capacity:  cap(e.queue),
		Running:   running,
		Enqueued:  e.enqueued.Load(),
		Completed: e.completed.Load(),
		Failed:    e.failed.Load(),
	}
}

// Run starts the workers and blocks until ctx is done and every worker has
// returned.
func (e *Executor) Run(ctx context.Context) error {
	e.log.Sugar().Infow("executor started", "workers", e.opts.Workers, "queue", cap(e.queue))
	var wg sync.WaitGroup
	for range e.opts.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.worker(ctx)
		}()
	}
	<-ctx.Done()
	wg.Wait()
	e.log.Sugar().Info("executor stopped")
	return nil
}

func (e *Executor) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-e.queue:
			e.mu.Lock()
			queued := e.pending[id]
			delete(e.pending, id)
			e.mu.Unlock()
			if !queued {
				continue // cancelled while waiting
			}
			if err := e.Execute(ctx, id); err != nil {
				e.failed.Add(1)
				e.log.Sugar().Warnw("task execution failed", "task_id", id, "err", err)
			} else {
				e.completed.Add(1)
			}
		}
	}
}

// Execute runs one task until it stops needing the assistant: it finishes,
// asks for help or review, is cancelled, or runs out of turns.
func (e *Executor) Execute(parent context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	e.mu.Lock()
	if _, busy := e.running[id]; busy {
		e.mu.Unlock()
		return nil
	}
	self := &run{cancel: cancel}
	e.running[id] = self
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		if e.running[id] == self {
			delete(e.running, id)
		}
		e.mu.Unlock()
	}()

	t, err := e.lc.tasks.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return err
	}
	if t.Control != model.RoleAssistant {
		return nil
	}
	switch t.Status {
	case model.TaskStatusPending:
		if err := e.lc.transition(ctx, t, model.ActionStart); err != nil {
			return err
		}
	case model.TaskStatusRunning:
	default:
		return nil
	}

	for turn := 0; turn < e.opts.MaxTurns; turn++ {
		if ctx.Err() != nil {
			return nil
		}
		done, err := e.turn(ctx, t)
		if err != nil || done {
			return err
		}
	}

	e.log.Sugar().Warnw("turn limit reached", "task_id", id, "max_turns", e.opts.MaxTurns)
	return e.finish(ctx, id, model.ActionRequestReview, func(t *model.Task) {
		t.SetError(fmt.Sprintf("stopped after %d turns", e.opts.MaxTurns))
	})
}

// turn sends the history to the model once and handles its reply.
func (e *Executor) turn(ctx context.Context, t *model.Task) (bool, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "executor.turn", trace.WithAttributes(
		attribute.String("task.id", t.ID.String()),
		attribute.String("task.model", t.Model.Data().Name),
	))
	defer span.End()

	history, err := e.lc.msgs.ListByTask(ctx, t.ID, 0, 0)
	if err != nil {
		return true, err
	}
	history, err = editor.ApplyAll(history, e.opts.Edits...)
	if err != nil {
		return true, err
	}
	msgs := make([]model.Message, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, *m)
	}

	blocks, err := e.router.GenerateResponse(ctx, e.opts.SystemPrompt, msgs, t.Model.Data().Name, true)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, ai.ErrCanceled) {
			return true, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate")
		msg := err.Error()
		ferr := e.finish(ctx, t.ID, model.ActionFail, func(t *model.Task) { t.SetError(msg) })
		return true, errors.Join(err, ferr)
	}
	if ctx.Err() != nil {
		return true, nil
	}

	reply := model.NewMessage(t.ID, model.RoleAssistant, blocks)
	if err := e.lc.addMessage(ctx, reply); err != nil {
		return true, err
	}

	uses := reply.ToolUses()
	if len(uses) == 0 {
		return true, e.finish(ctx, t.ID, model.ActionRequestReview, nil)
	}

	var (
		results []model.ContentBlock
		final   *statusRequest
	)
	for _, use := range uses {
		if use.Name == ai.ToolSetTaskStatus {
			req, res := parseStatusRequest(use)
			results = append(results, res)
			if req != nil {
				final = req
			}
			continue
		}
		results = append(results, e.runTool(ctx, t.ID, use))
	}

	if err := e.lc.addMessage(ctx, model.NewMessage(t.ID, model.RoleUser, results)); err != nil {
		return true, err
	}

	if final != nil {
		return true, e.finish(ctx, t.ID, final.action, final.apply)
	}
	return false, nil
}

func (e *Executor) runTool(ctx context.Context, taskID uuid.UUID, use model.ContentBlock) model.ContentBlock {
	if e.eff == nil {
		return model.NewToolResultBlock(use.ID, []model.ContentBlock{model.NewTextBlock("no effector configured")}, true)
	}
	ctx, span := telemetry.Tracer().Start(ctx, "executor.tool", trace.WithAttributes(
		attribute.String("task.id", taskID.String()),
		attribute.String("tool.name", use.Name),
	))
	defer span.End()

	res, err := e.eff.Execute(ctx, taskID.String(), use)
	if err != nil {
		span.RecordError(err)
		e.log.Sugar().Warnw("tool failed", "task_id", taskID, "tool", use.Name, "err", err)
		return model.NewToolResultBlock(use.ID, []model.ContentBlock{model.NewTextBlock(err.Error())}, true)
	}
	return res
}

// finish reloads the task and applies a closing action, unless someone else
// moved it in the meantime.
func (e *Executor) finish(ctx context.Context, id uuid.UUID, action model.ControlAction, mutate func(*model.Task)) error {
	ctx = context.WithoutCancel(ctx)
	t, err := e.lc.tasks.Get(ctx, id)
	if err != nil {
		return err
	}
	if t.Status != model.TaskStatusRunning || t.Control != model.RoleAssistant {
		return nil
	}
	if mutate != nil {
		mutate(t)
	}
	return e.lc.transition(ctx, t, action)
}

type statusRequest struct {
	action model.ControlAction
	apply  func(*model.Task)
}

// parseStatusRequest reads a set_task_status call. An invalid status yields
// an error result and no request.
func parseStatusRequest(use model.ContentBlock) (*statusRequest, model.ContentBlock) {
	status, _ := use.Input["status"].(string)
	desc, _ := use.Input["description"].(string)

	var req *statusRequest
	switch status {
	case "completed":
		req = &statusRequest{action: model.ActionComplete, apply: func(t *model.Task) {
			if desc != "" {
				if raw, err := sonic.Marshal(map[string]string{"summary": desc}); err == nil {
					t.Result = raw
				}
			}
		}}
	case "needs_help":
		req = &statusRequest{action: model.ActionRequestHelp}
	case "failed":
		req = &statusRequest{action: model.ActionFail, apply: func(t *model.Task) {
			if desc == "" {
				desc = "task failed"
			}
			t.SetError(desc)
		}}
	default:
		msg := fmt.Sprintf("invalid status %q: expected completed, needs_help or failed", status)
		return nil, model.NewToolResultBlock(use.ID, []model.ContentBlock{model.NewTextBlock(msg)}, true)
	}
	return req, model.NewToolResultBlock(use.ID, []model.ContentBlock{model.NewTextBlock("Task status set to " + status)}, false)
}
