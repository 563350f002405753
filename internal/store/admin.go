package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"qalink/internal/models"
	"qalink/internal/qa"
)

func (s *Store) SetCategoryQA(ctx context.Context, categoryID uint, enabled bool) error {
	res := s.db.WithContext(ctx).Model(&models.Category{}).Where("id = ?", categoryID).
		Update("qa_enabled", enabled)
	if res.Error != nil {
		return fmt.Errorf("update category %d: %w", categoryID, res.Error)
	}
	if res.RowsAffected == 0 {
		return qa.ErrCategoryNotFound
	}
	return nil
}

func (s *Store) UpdateCategoryFlags(ctx context.Context, categoryID uint, flags models.CategoryFlags) error {
	cols := flags.Columns()
	if len(cols) == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&models.Category{}).Where("id = ?", categoryID).Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("update category %d flags: %w", categoryID, res.Error)
	}
	if res.RowsAffected == 0 {
		return qa.ErrCategoryNotFound
	}
	return nil
}

func (s *Store) UpdateTopicQA(ctx context.Context, topicID uint, subtype *string, tags []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var topic models.Topic
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&topic, topicID).Error; err != nil {
			return notFound(err, qa.ErrTopicNotFound)
		}
		if subtype != nil {
			if err := tx.Model(&topic).Update("subtype", *subtype).Error; err != nil {
				return fmt.Errorf("update subtype of topic %d: %w", topicID, err)
			}
		}
		if tags == nil {
			return nil
		}
		rows := make([]models.Tag, 0, len(tags))
		for _, name := range tags {
			tag := models.Tag{Name: name}
			if err := tx.Where(models.Tag{Name: name}).FirstOrCreate(&tag).Error; err != nil {
				return fmt.Errorf("ensure tag %q: %w", name, err)
			}
			rows = append(rows, tag)
		}
		if err := tx.Model(&topic).Association("Tags").Replace(rows); err != nil {
			return fmt.Errorf("replace tags of topic %d: %w", topicID, err)
		}
		return nil
	})
}

func (s *Store) TopicIDs(ctx context.Context, categoryID *uint) ([]uint, error) {
	q := s.db.WithContext(ctx).Model(&models.Topic{}).Order("id ASC")
	if categoryID != nil {
		q = q.Where("category_id = ?", *categoryID)
	}
	var ids []uint
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list topic ids: %w", err)
	}
	return ids, nil
}
