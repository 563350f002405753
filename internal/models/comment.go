package models

import (
	"time"

	"gorm.io/gorm"
)

// CommentCookedVersion is bumped whenever the comment markdown rules change.
const CommentCookedVersion = 1

// Comment 挂在某个回答（或问题）下的短评论，只允许一层，删除时保留墓碑
type Comment struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	PostID        uint           `gorm:"not null;index" json:"post_id"`
	Post          Post           `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	UserID        uint           `gorm:"not null;index" json:"user_id"`
	User          User           `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"user"`
	Raw           string         `gorm:"type:text;not null" json:"raw"`
	Cooked        string         `gorm:"type:text;not null" json:"cooked"`
	CookedVersion int            `gorm:"not null" json:"cooked_version"`
	QAVoteCount   int            `gorm:"column:qa_vote_count;default:0;not null" json:"qa_vote_count"`
	SortOrder     int            `gorm:"default:0;not null" json:"sort_order"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Comment) TableName() string {
	return "qa_comments"
}
