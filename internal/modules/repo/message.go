package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taskrelay/server/internal/modules/model"
)

type MessageRepo interface {
	Create(ctx context.Context, m *model.Message) error
	ListByTask(ctx context.Context, taskID uuid.UUID, limit, offset int) ([]*model.Message, error)
	CountByTask(ctx context.Context, taskID uuid.UUID) (int64, error)
}

type messageRepo struct{ db *gorm.DB }

func NewMessageRepo(db *gorm.DB) MessageRepo {
	return &messageRepo{db: db}
}

func (r *messageRepo) Create(ctx context.Context, m *model.Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// ListByTask returns a task's history oldest first. limit <= 0 means all.
func (r *messageRepo) ListByTask(ctx context.Context, taskID uuid.UUID, limit, offset int) ([]*model.Message, error) {
	q := r.db.WithContext(ctx).Where(&model.Message{TaskID: taskID}).Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var items []*model.Message
	return items, q.Find(&items).Error
}

func (r *messageRepo) CountByTask(ctx context.Context, taskID uuid.UUID) (int64, error) {
	var n int64
	return n, r.db.WithContext(ctx).Model(&model.Message{}).Where(&model.Message{TaskID: taskID}).Count(&n).Error
}
