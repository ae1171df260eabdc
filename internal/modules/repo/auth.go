package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taskrelay/server/internal/modules/model"
)

type AuthRepo interface {
	GetSession(ctx context.Context, id uuid.UUID) (*model.Session, error)
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
}

type authRepo struct{ db *gorm.DB }

func NewAuthRepo(db *gorm.DB) AuthRepo {
	return &authRepo{db: db}
}

func (r *authRepo) GetSession(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	var s model.Session
	if err := r.db.WithContext(ctx).Where(&model.Session{ID: id}).First(&s).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *authRepo) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).Where(&model.User{ID: id}).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}
