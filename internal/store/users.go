package store

import (
	"context"

	"qalink/internal/models"
	"qalink/internal/qa"
)

func (s *Store) FindUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, notFound(err, qa.ErrUserNotFound)
	}
	return &u, nil
}

// FindUserByLogin matches either username or email.
func (s *Store) FindUserByLogin(ctx context.Context, login string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("username = ? OR email = ?", login, login).First(&u).Error; err != nil {
		return nil, notFound(err, qa.ErrUserNotFound)
	}
	return &u, nil
}
