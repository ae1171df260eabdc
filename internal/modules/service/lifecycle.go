package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/taskrelay/server/internal/infra/blob"
	"github.com/taskrelay/server/internal/modules/model"
	"github.com/taskrelay/server/internal/modules/repo"
)

// Archiver stores the transcript of a finished task.
type Archiver interface {
	ArchiveTranscript(ctx context.Context, task *model.Task, msgs []*model.Message) (*blob.UploadedMeta, error)
}

// lifecycle persists status changes and messages and announces them. Both
// the REST service and the executor go through it.
type lifecycle struct {
	tasks   repo.TaskRepo
	msgs    repo.MessageRepo
	notify  *Notifier
	archive Archiver
	log     *zap.Logger
	now     func() time.Time
}

func (l *lifecycle) transition(ctx context.Context, t *model.Task, action model.ControlAction) error {
	if err := t.Apply(action, l.now().UTC()); err != nil {
		return err
	}
	if err := t.ValidateIntegrity(); err != nil {
		return err
	}
	if err := l.tasks.Update(ctx, t); err != nil {
		return err
	}
	l.log.Sugar().Infow("task transition", "task_id", t.ID, "action", action, "status", t.Status, "control", t.Control)
	l.notify.TaskUpdated(ctx, t)

	if t.IsTerminal() {
		l.archiveTranscript(ctx, t)
	}
	return nil
}

func (l *lifecycle) addMessage(ctx context.Context, m *model.Message) error {
	if err := l.msgs.Create(ctx, m); err != nil {
		return err
	}
	l.notify.MessageCreated(ctx, m)
	return nil
}

func (l *lifecycle) archiveTranscript(ctx context.Context, t *model.Task) {
	if l.archive == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	msgs, err := l.msgs.ListByTask(ctx, t.ID, 0, 0)
	if err != nil {
		l.log.Sugar().Warnw("load transcript", "task_id", t.ID, "err", err)
		return
	}
	meta, err := l.archive.ArchiveTranscript(ctx, t, msgs)
	if err != nil {
		l.log.Sugar().Warnw("archive transcript", "task_id", t.ID, "err", err)
		return
	}
	l.log.Sugar().Infow("transcript archived", "task_id", t.ID, "key", meta.Key)
}
