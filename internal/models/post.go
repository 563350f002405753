package models

import (
	"time"

	"gorm.io/gorm"
)

// Post 帖子。post_number 为 1 的是问题本身，reply_to_post_number 为空的其余帖子是回答。
type Post struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	TopicID           uint           `gorm:"not null;uniqueIndex:idx_posts_topic_number" json:"topic_id"`
	Topic             Topic          `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	UserID            uint           `gorm:"not null;index" json:"user_id"`
	User              User           `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	PostNumber        int            `gorm:"not null;uniqueIndex:idx_posts_topic_number" json:"post_number"`
	ReplyToPostNumber *int           `json:"reply_to_post_number"`
	Raw               string         `gorm:"type:text;not null" json:"raw"`
	Cooked            string         `gorm:"type:text" json:"cooked"`
	QAVoteCount       int            `gorm:"column:qa_vote_count;default:0;not null" json:"qa_vote_count"`
	SortOrder         int            `gorm:"default:0;not null;index" json:"sort_order"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`
}

// IsQuestion reports whether the post is the topic's root post.
func (p *Post) IsQuestion() bool {
	return p.PostNumber == 1
}

// IsReply reports whether the post carries a reply-to marker.
func (p *Post) IsReply() bool {
	return p.ReplyToPostNumber != nil
}
