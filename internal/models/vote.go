package models

import (
	"time"
)

type VoteDirection string

const (
	VoteUp   VoteDirection = "up"
	VoteDown VoteDirection = "down"
)

type VotableType string

const (
	VotablePost    VotableType = "Post"
	VotableComment VotableType = "Comment"
)

// Vote 投票流水，每个用户对每个对象最多一条
type Vote struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	UserID      uint          `gorm:"not null;index;uniqueIndex:idx_qa_votes_votable_user,priority:3" json:"user_id"`
	User        User          `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	VotableType VotableType   `gorm:"type:varchar(20);not null;uniqueIndex:idx_qa_votes_votable_user,priority:1" json:"votable_type"`
	VotableID   uint          `gorm:"not null;uniqueIndex:idx_qa_votes_votable_user,priority:2" json:"votable_id"`
	Direction   VoteDirection `gorm:"type:varchar(4);not null" json:"direction"`
	CreatedAt   time.Time     `gorm:"index" json:"created_at"`
}

func (Vote) TableName() string {
	return "qa_votes"
}
