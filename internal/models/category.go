package models

import (
	"time"
)

// Category 分类，Q&A 开关及点赞按钮屏蔽标记都挂在分类上
type Category struct {
	ID                       uint      `gorm:"primaryKey" json:"id"`
	Name                     string    `gorm:"not null;unique" json:"name"`
	Description              string    `json:"description"`
	QAEnabled                bool      `gorm:"column:qa_enabled;default:false" json:"qa_enabled"`
	QAOneToMany              bool      `gorm:"column:qa_one_to_many;default:false" json:"qa_one_to_many"`
	QADisableLikeOnAnswers   bool      `gorm:"column:qa_disable_like_on_answers;default:false" json:"qa_disable_like_on_answers"`
	QADisableLikeOnQuestions bool      `gorm:"column:qa_disable_like_on_questions;default:false" json:"qa_disable_like_on_questions"`
	QADisableLikeOnComments  bool      `gorm:"column:qa_disable_like_on_comments;default:false" json:"qa_disable_like_on_comments"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// CategoryFlags 只更新非 nil 的字段
type CategoryFlags struct {
	OneToMany              *bool `json:"qa_one_to_many"`
	DisableLikeOnAnswers   *bool `json:"qa_disable_like_on_answers"`
	DisableLikeOnQuestions *bool `json:"qa_disable_like_on_questions"`
	DisableLikeOnComments  *bool `json:"qa_disable_like_on_comments"`
}

// Columns returns the column updates for the set flags.
func (f CategoryFlags) Columns() map[string]any {
	cols := make(map[string]any, 4)
	if f.OneToMany != nil {
		cols["qa_one_to_many"] = *f.OneToMany
	}
	if f.DisableLikeOnAnswers != nil {
		cols["qa_disable_like_on_answers"] = *f.DisableLikeOnAnswers
	}
	if f.DisableLikeOnQuestions != nil {
		cols["qa_disable_like_on_questions"] = *f.DisableLikeOnQuestions
	}
	if f.DisableLikeOnComments != nil {
		cols["qa_disable_like_on_comments"] = *f.DisableLikeOnComments
	}
	return cols
}

// Apply copies the set flags onto c.
func (f CategoryFlags) Apply(c *Category) {
	if f.OneToMany != nil {
		c.QAOneToMany = *f.OneToMany
	}
	if f.DisableLikeOnAnswers != nil {
		c.QADisableLikeOnAnswers = *f.DisableLikeOnAnswers
	}
	if f.DisableLikeOnQuestions != nil {
		c.QADisableLikeOnQuestions = *f.DisableLikeOnQuestions
	}
	if f.DisableLikeOnComments != nil {
		c.QADisableLikeOnComments = *f.DisableLikeOnComments
	}
}
