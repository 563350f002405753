package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"qalink/internal/models"
	"qalink/internal/qa"
)

func (s *Store) FindPost(ctx context.Context, postID uint) (*models.Post, error) {
	var p models.Post
	if err := s.db.WithContext(ctx).First(&p, postID).Error; err != nil {
		return nil, notFound(err, qa.ErrPostNotFound)
	}
	return &p, nil
}

func (s *Store) FindComment(ctx context.Context, commentID uint) (*models.Comment, error) {
	var c models.Comment
	if err := s.db.WithContext(ctx).Preload("User").First(&c, commentID).Error; err != nil {
		return nil, notFound(err, qa.ErrCommentNotFound)
	}
	return &c, nil
}

func (s *Store) ListComments(ctx context.Context, postID, afterID uint, limit int) ([]models.Comment, error) {
	var comments []models.Comment
	q := s.db.WithContext(ctx).Preload("User").
		Where("post_id = ? AND id > ?", postID, afterID).
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&comments).Error; err != nil {
		return nil, fmt.Errorf("list comments of post %d: %w", postID, err)
	}
	return comments, nil
}

func (s *Store) CountComments(ctx context.Context, postID uint, withTrashed bool) (int64, error) {
	q := s.db.WithContext(ctx)
	if withTrashed {
		q = q.Unscoped()
	}
	var n int64
	if err := q.Model(&models.Comment{}).Where("post_id = ?", postID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count comments of post %d: %w", postID, err)
	}
	return n, nil
}

func (s *Store) CreateComment(ctx context.Context, c *models.Comment, notify func(*models.Comment) *models.Notification) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("User", "Post").Create(c).Error; err != nil {
			return fmt.Errorf("create comment: %w", err)
		}
		if err := tx.First(&c.User, c.UserID).Error; err != nil {
			return fmt.Errorf("load comment author: %w", err)
		}
		if notify == nil {
			return nil
		}
		if n := notify(c); n != nil {
			if err := tx.Omit("User", "Actor").Create(n).Error; err != nil {
				return fmt.Errorf("create notification: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) UpdateComment(ctx context.Context, c *models.Comment) error {
	res := s.db.WithContext(ctx).Model(c).Updates(map[string]any{
		"raw":            c.Raw,
		"cooked":         c.Cooked,
		"cooked_version": c.CookedVersion,
	})
	if res.Error != nil {
		return fmt.Errorf("update comment %d: %w", c.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return qa.ErrCommentNotFound
	}
	return nil
}

// TrashComment soft-deletes; the row stays for ranking and the vote ledger.
func (s *Store) TrashComment(ctx context.Context, c *models.Comment) error {
	res := s.db.WithContext(ctx).Delete(&models.Comment{}, c.ID)
	if res.Error != nil {
		return fmt.Errorf("trash comment %d: %w", c.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return qa.ErrCommentNotFound
	}
	return nil
}

func (s *Store) CommentVotes(ctx context.Context, userID uint, commentIDs []uint) (map[uint]bool, error) {
	voted := make(map[uint]bool)
	if len(commentIDs) == 0 {
		return voted, nil
	}
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.Vote{}).
		Where("user_id = ? AND votable_type = ? AND votable_id IN ?", userID, models.VotableComment, commentIDs).
		Pluck("votable_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("load comment votes: %w", err)
	}
	for _, id := range ids {
		voted[id] = true
	}
	return voted, nil
}

func (s *Store) ClearReplyTo(ctx context.Context, postID uint) error {
	res := s.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", postID).
		UpdateColumn("reply_to_post_number", nil)
	if res.Error != nil {
		return fmt.Errorf("clear reply of post %d: %w", postID, res.Error)
	}
	if res.RowsAffected == 0 {
		return qa.ErrPostNotFound
	}
	return nil
}
