package services

import (
	"context"

	"qalink/internal/models"
)

// CommentStore is the persistence used by CommentService.
type CommentStore interface {
	FindPost(ctx context.Context, postID uint) (*models.Post, error)
	// FindComment loads a live comment with its author.
	FindComment(ctx context.Context, commentID uint) (*models.Comment, error)
	// ListComments returns live comments of a post with id > afterID in id order, authors loaded.
	ListComments(ctx context.Context, postID, afterID uint, limit int) ([]models.Comment, error)
	CountComments(ctx context.Context, postID uint, withTrashed bool) (int64, error)
	// CreateComment inserts the comment and, in the same transaction, the notification that
	// notify builds from the stored comment. notify may be nil or return nil.
	CreateComment(ctx context.Context, c *models.Comment, notify func(*models.Comment) *models.Notification) error
	UpdateComment(ctx context.Context, c *models.Comment) error
	TrashComment(ctx context.Context, c *models.Comment) error
	// CommentVotes returns which of commentIDs the user has voted on.
	CommentVotes(ctx context.Context, userID uint, commentIDs []uint) (map[uint]bool, error)
	// ClearReplyTo removes a post's reply-to marker, promoting it to a top-level answer.
	ClearReplyTo(ctx context.Context, postID uint) error
}

// AdminStore covers the configuration changes that flip a topic's Q&A status.
type AdminStore interface {
	SetCategoryQA(ctx context.Context, categoryID uint, enabled bool) error
	// UpdateCategoryFlags writes the like-suppression and one-to-many flags that are set.
	UpdateCategoryFlags(ctx context.Context, categoryID uint, flags models.CategoryFlags) error
	// UpdateTopicQA sets the subtype when non-nil and replaces the tags when non-nil.
	UpdateTopicQA(ctx context.Context, topicID uint, subtype *string, tags []string) error
	// TopicIDs lists topic ids, restricted to a category when categoryID is non-nil.
	TopicIDs(ctx context.Context, categoryID *uint) ([]uint, error)
}

// TopicCache is invalidated whenever a topic's Q&A inputs change.
type TopicCache interface {
	Invalidate(topicID uint)
	Purge()
}
