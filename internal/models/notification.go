package models

import (
	"time"
)

type NotificationType string

const (
	NotificationTypeQAUserCommented NotificationType = "question_answer_user_commented"
)

type Notification struct {
	ID         uint             `gorm:"primaryKey" json:"id"`
	UserID     uint             `gorm:"not null;index" json:"user_id"` // Receiver
	User       User             `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	ActorID    *uint            `gorm:"index" json:"actor_id"` // Sender
	Actor      User             `gorm:"foreignKey:ActorID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Type       NotificationType `gorm:"type:varchar(40);not null" json:"type"`
	TopicID    uint             `gorm:"index" json:"topic_id"`
	PostNumber int              `json:"post_number"`
	Data       string           `gorm:"type:text" json:"data"` // JSON: qa_comment_id, display_username
	IsRead     bool             `gorm:"default:false;index" json:"is_read"`
	CreatedAt  time.Time        `json:"created_at"`
}
