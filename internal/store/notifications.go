package store

import (
	"context"
	"fmt"

	"qalink/internal/models"
	"qalink/internal/qa"
)

func (s *Store) ListNotifications(ctx context.Context, userID uint, unreadOnly bool, limit int) ([]models.Notification, error) {
	var notes []models.Notification
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&notes).Error; err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notes, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, userID, id uint) error {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true)
	if res.Error != nil {
		return fmt.Errorf("mark notification read: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return qa.ErrNotificationNotFound
	}
	return nil
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID uint) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("mark notifications read: %w", res.Error)
	}
	return res.RowsAffected, nil
}
