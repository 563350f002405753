package models

import (
	"time"
)

// TopicSubtypeQuestion marks a topic created as a question regardless of tags or category.
const TopicSubtypeQuestion = "question"

type Topic struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Title           string    `gorm:"not null" json:"title"`
	UserID          uint      `gorm:"not null;index" json:"user_id"`
	User            User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	CategoryID      *uint     `gorm:"index" json:"category_id"`
	Category        *Category `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"category,omitempty"`
	Subtype         string    `gorm:"size:20" json:"subtype"`
	IsCategoryTopic bool      `gorm:"default:false" json:"is_category_topic"` // 分类说明帖
	Tags            []Tag     `gorm:"many2many:topic_tags;" json:"tags"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Tag struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"uniqueIndex;size:100;not null" json:"name"`
}

// TagNames returns the names of the topic's tags.
func (t *Topic) TagNames() []string {
	names := make([]string, 0, len(t.Tags))
	for _, tag := range t.Tags {
		names = append(names, tag.Name)
	}
	return names
}
