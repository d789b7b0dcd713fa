package repository

import (
	"context"
	"fmt"
	"time"

	"craftchain/internal/apperr"
	"craftchain/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository interface {
	// Create fails with apperr.Conflict when the email, phone or wallet is
	// already registered.
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByPhone(ctx context.Context, phone string) (*model.User, error)
	FindByWallet(ctx context.Context, address string) (*model.User, error)
	RecordLogin(ctx context.Context, id string, at time.Time) error
}

type userRepoImpl struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepoImpl{db: db}
}

func (r *userRepoImpl) Create(ctx context.Context, user *model.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(user)
	if result.Error != nil {
		return fmt.Errorf("insert user %s: %w", user.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.New(apperr.Conflict, "insert user "+user.ID, "account already registered")
	}
	return nil
}

func (r *userRepoImpl) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findBy(ctx, "id", id)
}

func (r *userRepoImpl) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findBy(ctx, "email", email)
}

func (r *userRepoImpl) FindByPhone(ctx context.Context, phone string) (*model.User, error) {
	return r.findBy(ctx, "phone", phone)
}

func (r *userRepoImpl) FindByWallet(ctx context.Context, address string) (*model.User, error) {
	return r.findBy(ctx, "wallet_address", address)
}

func (r *userRepoImpl) findBy(ctx context.Context, column, value string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).
		Where(column+" = ?", value).
		First(&user).Error

	if err != nil {
		return nil, notFoundOr(err, "find user by "+column)
	}
	return &user, nil
}

func (r *userRepoImpl) RecordLogin(ctx context.Context, id string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", id).
		Update("last_login_at", at)
	if result.Error != nil {
		return fmt.Errorf("record login for user %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.New(apperr.NotFound, "record login", "user %s not found", id)
	}
	return nil
}
