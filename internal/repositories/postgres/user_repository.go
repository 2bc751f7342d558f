package postgres

import (
	"context"
	"errors"
	"fmt"

	"collab-service/internal/collab"
	"collab-service/internal/models"

	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", id, ErrUserNotFound)
		}
		return nil, err
	}
	return &user, nil
}

// GetProfile returns the display metadata of a user.
func (r *UserRepository) GetProfile(ctx context.Context, userID string) (*collab.Profile, error) {
	user, err := r.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toProfile(user), nil
}

func toProfile(u *models.User) *collab.Profile {
	return &collab.Profile{
		Name:   u.Name,
		Email:  u.Email,
		Avatar: u.Avatar,
		Color:  u.Color,
	}
}
