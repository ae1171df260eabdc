package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taskrelay/server/internal/modules/model"
)

var ErrNotFound = errors.New("record not found")

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

type TaskFilter struct {
	Status    []model.TaskStatus
	Priority  *model.TaskPriority
	Type      *model.TaskType
	CreatedBy *model.Role
	UserID    *uuid.UUID
}

type TaskRepo interface {
	Create(ctx context.Context, t *model.Task) error
	Get(ctx context.Context, id uuid.UUID) (*model.Task, error)
	Update(ctx context.Context, t *model.Task) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f TaskFilter, page, limit int) ([]*model.Task, int64, error)
	GetByStatus(ctx context.Context, statuses ...model.TaskStatus) ([]*model.Task, error)
	GetScheduledBefore(ctx context.Context, before time.Time, limit int) ([]*model.Task, error)
	MarkQueued(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ClearQueued(ctx context.Context, id uuid.UUID) error
	CountByStatus(ctx context.Context) (map[model.TaskStatus]int64, error)
}

type taskRepo struct{ db *gorm.DB }

func NewTaskRepo(db *gorm.DB) TaskRepo {
	return &taskRepo{db: db}
}

func (r *taskRepo) Create(ctx context.Context, t *model.Task) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *taskRepo) Get(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	var t model.Task
	if err := r.db.WithContext(ctx).Where(&model.Task{ID: id}).First(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// Update writes every column, so cleared optional fields are persisted too.
func (r *taskRepo) Update(ctx context.Context, t *model.Task) error {
	res := r.db.WithContext(ctx).Model(&model.Task{ID: t.ID}).Select("*").Omit("id", "created_at").Updates(t)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *taskRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&model.Task{ID: id})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *taskRepo) List(ctx context.Context, f TaskFilter, page, limit int) ([]*model.Task, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Task{})
	if len(f.Status) > 0 {
		q = q.Where("status IN ?", f.Status)
	}
	if f.Priority != nil {
		q = q.Where("priority = ?", *f.Priority)
	}
	if f.Type != nil {
		q = q.Where("type = ?", *f.Type)
	}
	if f.CreatedBy != nil {
		q = q.Where("created_by = ?", *f.CreatedBy)
	}
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	var items []*model.Task
	err := q.Order("created_at DESC, id DESC").Offset((page - 1) * limit).Limit(limit).Find(&items).Error
	return items, total, err
}

func (r *taskRepo) GetByStatus(ctx context.Context, statuses ...model.TaskStatus) ([]*model.Task, error) {
	var items []*model.Task
	return items, r.db.WithContext(ctx).Where("status IN ?", statuses).Order("created_at ASC").Find(&items).Error
}

// GetScheduledBefore returns pending scheduled tasks that are due and not yet queued.
func (r *taskRepo) GetScheduledBefore(ctx context.Context, before time.Time, limit int) ([]*model.Task, error) {
	var items []*model.Task
	return items, r.db.WithContext(ctx).
		Where("status = ? AND type = ? AND scheduled_for <= ? AND queued_at IS NULL",
			model.TaskStatusPending, model.TaskTypeScheduled, before).
		Order("scheduled_for ASC").
		Limit(limit).
		Find(&items).Error
}

// MarkQueued stamps queued_at once. It reports false when another poller got there first.
func (r *taskRepo) MarkQueued(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND queued_at IS NULL", id).
		Updates(map[string]any{"queued_at": at, "updated_at": at})
	return res.RowsAffected > 0, res.Error
}

// ClearQueued releases a claim taken by MarkQueued so the next poll sees the
// task again. Tasks that already left PENDING are untouched.
func (r *taskRepo) ClearQueued(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND status = ?", id, model.TaskStatusPending).
		Update("queued_at", nil).Error
}

func (r *taskRepo) CountByStatus(ctx context.Context) (map[model.TaskStatus]int64, error) {
	var rows []struct {
		Status model.TaskStatus
		N      int64
	}
	if err := r.db.WithContext(ctx).Model(&model.Task{}).Select("status, count(*) AS n").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[model.TaskStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}
