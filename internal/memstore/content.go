package memstore

import (
	"context"
	"slices"

	"gorm.io/gorm"

	"qalink/internal/models"
	"qalink/internal/qa"
)

func (s *Store) LoadTopicTree(ctx context.Context, topicID uint) (*qa.TopicTree, error) {
	if err := s.fail("LoadTopicTree"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.data.topics[topicID]; !ok {
		return nil, qa.ErrTopicNotFound
	}
	tree := &qa.TopicTree{TopicID: topicID}
	postIDs := make(map[uint]bool)
	for _, p := range s.data.posts {
		if p.TopicID != topicID || p.DeletedAt.Valid {
			continue
		}
		postIDs[p.ID] = true
		tree.Posts = append(tree.Posts, qa.PostNode{
			ID:                p.ID,
			PostNumber:        p.PostNumber,
			ReplyToPostNumber: p.ReplyToPostNumber,
			VoteCount:         p.QAVoteCount,
			CreatedAt:         p.CreatedAt,
		})
	}
	for _, c := range s.data.comments {
		if postIDs[c.PostID] {
			tree.Comments = append(tree.Comments, qa.CommentNode{ID: c.ID, PostID: c.PostID, CreatedAt: c.CreatedAt})
		}
	}
	slices.SortFunc(tree.Posts, func(a, b qa.PostNode) int { return a.PostNumber - b.PostNumber })
	slices.SortFunc(tree.Comments, func(a, b qa.CommentNode) int { return int(a.ID) - int(b.ID) })
	return tree, nil
}

func (s *Store) SaveSortOrders(ctx context.Context, topicID uint, keys []qa.SortKey) error {
	if err := s.fail("SaveSortOrders"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		switch k.Ref.Type {
		case models.VotablePost:
			if p, ok := s.data.posts[k.Ref.ID]; ok {
				p.SortOrder = k.SortOrder
				s.data.posts[p.ID] = p
			}
		case models.VotableComment:
			if c, ok := s.data.comments[k.Ref.ID]; ok {
				c.SortOrder = k.SortOrder
				s.data.comments[c.ID] = c
			}
		}
	}
	return nil
}

// --- comments ---

func (s *Store) FindPost(ctx context.Context, postID uint) (*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.data.posts[postID]
	if !ok || p.DeletedAt.Valid {
		return nil, qa.ErrPostNotFound
	}
	return &p, nil
}

func (s *Store) FindComment(ctx context.Context, commentID uint) (*models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.data.comments[commentID]
	if !ok || c.DeletedAt.Valid {
		return nil, qa.ErrCommentNotFound
	}
	c.User = s.data.users[c.UserID]
	return &c, nil
}

func (s *Store) ListComments(ctx context.Context, postID, afterID uint, limit int) ([]models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Comment
	for _, c := range s.data.comments {
		if c.PostID == postID && c.ID > afterID && !c.DeletedAt.Valid {
			c.User = s.data.users[c.UserID]
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b models.Comment) int { return int(a.ID) - int(b.ID) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountComments(ctx context.Context, postID uint, withTrashed bool) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, c := range s.data.comments {
		if c.PostID == postID && (withTrashed || !c.DeletedAt.Valid) {
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateComment(ctx context.Context, c *models.Comment, notify func(*models.Comment) *models.Notification) error {
	if err := s.fail("CreateComment"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.id()
	now := s.clock.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	c.User = s.data.users[c.UserID]
	s.data.comments[c.ID] = *c
	if notify == nil {
		return nil
	}
	if n := notify(c); n != nil {
		n.ID = s.id()
		n.CreatedAt = now
		s.data.notifications = append(s.data.notifications, *n)
	}
	return nil
}

func (s *Store) UpdateComment(ctx context.Context, c *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.comments[c.ID]; !ok {
		return qa.ErrCommentNotFound
	}
	c.UpdatedAt = s.clock.Now()
	s.data.comments[c.ID] = *c
	return nil
}

func (s *Store) TrashComment(ctx context.Context, c *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.data.comments[c.ID]
	if !ok || stored.DeletedAt.Valid {
		return qa.ErrCommentNotFound
	}
	stored.DeletedAt = gorm.DeletedAt{Time: s.clock.Now(), Valid: true}
	s.data.comments[c.ID] = stored
	c.DeletedAt = stored.DeletedAt
	return nil
}

func (s *Store) CommentVotes(ctx context.Context, userID uint, commentIDs []uint) (map[uint]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uint]bool)
	for _, v := range s.data.votes {
		if v.UserID == userID && v.VotableType == models.VotableComment && slices.Contains(commentIDs, v.VotableID) {
			out[v.VotableID] = true
		}
	}
	return out, nil
}

func (s *Store) ClearReplyTo(ctx context.Context, postID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.posts[postID]
	if !ok {
		return qa.ErrPostNotFound
	}
	p.ReplyToPostNumber = nil
	s.data.posts[postID] = p
	return nil
}

// --- admin ---

func (s *Store) SetCategoryQA(ctx context.Context, categoryID uint, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data.categories[categoryID]
	if !ok {
		return qa.ErrCategoryNotFound
	}
	c.QAEnabled = enabled
	s.data.categories[categoryID] = c
	return nil
}

func (s *Store) UpdateCategoryFlags(ctx context.Context, categoryID uint, flags models.CategoryFlags) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data.categories[categoryID]
	if !ok {
		return qa.ErrCategoryNotFound
	}
	flags.Apply(&c)
	s.data.categories[categoryID] = c
	return nil
}

// Category returns the stored category.
func (s *Store) Category(id uint) models.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.categories[id]
}

func (s *Store) UpdateTopicQA(ctx context.Context, topicID uint, subtype *string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.data.topics[topicID]
	if !ok {
		return qa.ErrTopicNotFound
	}
	if subtype != nil {
		t.Subtype = *subtype
	}
	if tags != nil {
		t.Tags = make([]models.Tag, 0, len(tags))
		for _, name := range tags {
			t.Tags = append(t.Tags, models.Tag{ID: s.id(), Name: name})
		}
	}
	s.data.topics[topicID] = t
	return nil
}

func (s *Store) TopicIDs(ctx context.Context, categoryID *uint) ([]uint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []uint
	for id, t := range s.data.topics {
		if categoryID != nil && (t.CategoryID == nil || *t.CategoryID != *categoryID) {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}
