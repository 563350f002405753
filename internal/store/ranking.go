package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"qalink/internal/models"
	"qalink/internal/qa"
)

// LoadTopicTree reads live posts and every comment, trashed ones included, of a topic.
func (s *Store) LoadTopicTree(ctx context.Context, topicID uint) (*qa.TopicTree, error) {
	db := s.db.WithContext(ctx)

	var posts []models.Post
	err := db.Select("id", "post_number", "reply_to_post_number", "qa_vote_count", "created_at").
		Where("topic_id = ?", topicID).
		Order("post_number ASC").
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("load posts of topic %d: %w", topicID, err)
	}

	var comments []models.Comment
	err = db.Unscoped().Select("id", "post_id", "created_at").
		Where("post_id IN (?)", db.Model(&models.Post{}).Select("id").Where("topic_id = ?", topicID)).
		Order("id ASC").
		Find(&comments).Error
	if err != nil {
		return nil, fmt.Errorf("load comments of topic %d: %w", topicID, err)
	}

	tree := &qa.TopicTree{
		TopicID:  topicID,
		Posts:    make([]qa.PostNode, 0, len(posts)),
		Comments: make([]qa.CommentNode, 0, len(comments)),
	}
	for _, p := range posts {
		tree.Posts = append(tree.Posts, qa.PostNode{
			ID:                p.ID,
			PostNumber:        p.PostNumber,
			ReplyToPostNumber: p.ReplyToPostNumber,
			VoteCount:         p.QAVoteCount,
			CreatedAt:         p.CreatedAt,
		})
	}
	for _, c := range comments {
		tree.Comments = append(tree.Comments, qa.CommentNode{ID: c.ID, PostID: c.PostID, CreatedAt: c.CreatedAt})
	}
	return tree, nil
}

// SaveSortOrders writes every key in one transaction.
func (s *Store) SaveSortOrders(ctx context.Context, topicID uint, keys []qa.SortKey) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, k := range keys {
			q := tx.Model(&models.Post{})
			if k.Ref.Type == models.VotableComment {
				q = tx.Unscoped().Model(&models.Comment{})
			}
			if err := q.Where("id = ?", k.Ref.ID).UpdateColumn("sort_order", k.SortOrder).Error; err != nil {
				return fmt.Errorf("save sort order of %s in topic %d: %w", k.Ref, topicID, err)
			}
		}
		return nil
	})
}
