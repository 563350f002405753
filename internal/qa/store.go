package qa

import (
	"context"
	"time"

	"qalink/internal/models"
)

// VoteStore is the persistence needed by VoteManager.
type VoteStore interface {
	// RunInTx runs fn in a single transaction. A non-nil error from fn rolls everything back.
	RunInTx(ctx context.Context, fn func(tx VoteTx) error) error
	// CountTopicVotes counts the user's live votes on answers of a topic.
	CountTopicVotes(ctx context.Context, topicID, userID uint) (int64, error)
	// FindPost returns ErrPostNotFound for absent or deleted posts.
	FindPost(ctx context.Context, postID uint) (*models.Post, error)
	// Voters lists up to limit voters of a votable, most recent first.
	Voters(ctx context.Context, ref Ref, limit int) ([]Voter, error)
}

// VoteTx is the transactional view of the ledger and the aggregate.
type VoteTx interface {
	// LockVotable loads the votable and holds a row lock until the transaction ends.
	// It returns a NotFound error when the row is absent or deleted.
	LockVotable(ctx context.Context, ref Ref) (*Votable, error)
	// FindVote returns the user's vote, or nil when there is none.
	FindVote(ctx context.Context, ref Ref, userID uint) (*models.Vote, error)
	// CreateVote inserts a ledger row; a uniqueness violation returns ErrAlreadyVoted.
	CreateVote(ctx context.Context, vote *models.Vote) error
	// DeleteVote removes a ledger row; ErrVoteNotFound when nothing was deleted.
	DeleteVote(ctx context.Context, vote *models.Vote) error
	// AddVoteCount applies delta atomically and returns the new count.
	AddVoteCount(ctx context.Context, ref Ref, delta int) (int, error)
	// HasVotes reports whether any ledger row exists for the votable.
	HasVotes(ctx context.Context, ref Ref) (bool, error)
	// LockVoter serializes the user's fresh votes within a topic until the transaction ends,
	// so concurrent casts on different answers cannot both pass the limit check.
	LockVoter(ctx context.Context, topicID, userID uint) error
	// CountTopicVotes is CountTopicVotes under the transaction.
	CountTopicVotes(ctx context.Context, topicID, userID uint) (int64, error)
}

// TopicInfo is what the vote path needs to know about a topic.
type TopicInfo struct {
	ID         uint
	UserID     uint
	CategoryID *uint
	QAEnabled  bool
}

// TopicLookup resolves topics and their Q&A status.
type TopicLookup interface {
	Topic(ctx context.Context, topicID uint) (*TopicInfo, error)
}

// VoteChange is pushed to topic subscribers after a vote commits.
type VoteChange struct {
	Type               string `json:"type"`
	ID                 uint   `json:"id"`
	VoteCount          int    `json:"qa_vote_count"`
	HasVotes           bool   `json:"qa_has_votes"`
	UserVotedID        uint   `json:"qa_user_voted_id"`
	UserVotedDirection string `json:"qa_user_voted_direction"`
}

const (
	ChangePostVoted     = "qa_post_voted"
	ChangeCommentVoted  = "qa_comment_voted"
	ChangeCommentCreate = "qa_comment_created"
	ChangeCommentEdit   = "qa_comment_edited"
	ChangeCommentTrash  = "qa_comment_trashed"
)

// CommentChange is pushed to topic subscribers when a comment is created, edited or trashed.
type CommentChange struct {
	Type          string `json:"type"`
	ID            uint   `json:"id"`
	PostID        uint   `json:"post_id"`
	CommentsCount int64  `json:"comments_count"`
}

// Notifier delivers change notifications to topic subscribers.
type Notifier interface {
	PublishVote(ctx context.Context, topicID uint, change VoteChange) error
	PublishComment(ctx context.Context, topicID uint, change CommentChange) error
}

// RankingTrigger queues a ranking recompute for a topic.
type RankingTrigger interface {
	ScheduleUpdate(topicID uint)
}

// PostNode is a post as seen by the ranking engine.
type PostNode struct {
	ID                uint
	PostNumber        int
	ReplyToPostNumber *int
	VoteCount         int
	CreatedAt         time.Time
}

// CommentNode is a comment as seen by the ranking engine. Trashed comments are included.
type CommentNode struct {
	ID        uint
	PostID    uint
	CreatedAt time.Time
}

// TopicTree is everything the ranking engine reads for one topic.
type TopicTree struct {
	TopicID  uint
	Posts    []PostNode
	Comments []CommentNode
}

// SortKey is a computed display position.
type SortKey struct {
	Ref       Ref
	SortOrder int
}

// RankingStore loads topic trees and persists sort keys.
type RankingStore interface {
	LoadTopicTree(ctx context.Context, topicID uint) (*TopicTree, error)
	SaveSortOrders(ctx context.Context, topicID uint, keys []SortKey) error
}
