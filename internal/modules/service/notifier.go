package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskrelay/server/internal/infra/queue"
	"github.com/taskrelay/server/internal/modules/model"
)

// Broadcaster pushes task events to connected clients.
type Broadcaster interface {
	EmitTaskCreated(t *model.Task)
	EmitTaskUpdate(t *model.Task)
	EmitTaskDeleted(taskID string)
	EmitNewMessage(m *model.Message)
}

// EventPublisher forwards events to out-of-process consumers.
type EventPublisher interface {
	PublishJSON(ctx context.Context, routingKey string, v any) error
}

type TaskCache interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Task, error)
	Set(ctx context.Context, t *model.Task) error
	Invalidate(ctx context.Context, id uuid.UUID) error
}

const publishTimeout = 5 * time.Second

// Notifier fans every task change out to the cache, connected clients and the
// message broker. Any of them may be nil. Failures are logged, never returned.
type Notifier struct {
	gw    Broadcaster
	pub   EventPublisher
	cache TaskCache
	log   *zap.Logger
}

func NewNotifier(gw Broadcaster, pub EventPublisher, cache TaskCache, log *zap.Logger) *Notifier {
	return &Notifier{gw: gw, pub: pub, cache: cache, log: log}
}

func orNop(n *Notifier, log *zap.Logger) *Notifier {
	if n != nil {
		return n
	}
	return NewNotifier(nil, nil, nil, log)
}

func (n *Notifier) TaskCreated(ctx context.Context, t *model.Task) {
	if n.gw != nil {
		n.gw.EmitTaskCreated(t)
	}
	n.publish(ctx, queue.KeyTaskCreated, t)
}

func (n *Notifier) TaskUpdated(ctx context.Context, t *model.Task) {
	n.invalidate(ctx, t.ID)
	if n.gw != nil {
		n.gw.EmitTaskUpdate(t)
	}
	n.publish(ctx, queue.KeyTaskUpdated, t)
}

func (n *Notifier) TaskDeleted(ctx context.Context, id uuid.UUID) {
	n.invalidate(ctx, id)
	if n.gw != nil {
		n.gw.EmitTaskDeleted(id.String())
	}
	n.publish(ctx, queue.KeyTaskDeleted, map[string]string{"task_id": id.String()})
}

func (n *Notifier) MessageCreated(ctx context.Context, m *model.Message) {
	if n.gw != nil {
		n.gw.EmitNewMessage(m)
	}
	n.publish(ctx, queue.KeyMessageCreated, m)
}

func (n *Notifier) invalidate(ctx context.Context, id uuid.UUID) {
	if n.cache == nil {
		return
	}
	if err := n.cache.Invalidate(ctx, id); err != nil {
		n.log.Sugar().Warnw("invalidate task cache", "task_id", id, "err", err)
	}
}

func (n *Notifier) publish(ctx context.Context, key string, v any) {
	if n.pub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := n.pub.PublishJSON(ctx, key, v); err != nil {
		n.log.Sugar().Warnw("publish event", "key", key, "err", err)
	}
}
