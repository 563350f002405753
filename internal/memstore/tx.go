package memstore

import (
	"context"
	"slices"

	"qalink/internal/models"
	"qalink/internal/qa"
)

// RunInTx serializes fn against other transactions and restores the snapshot on error.
func (s *Store) RunInTx(ctx context.Context, fn func(tx qa.VoteTx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	if err := fn(&tx{s: s}); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) CountTopicVotes(ctx context.Context, topicID, userID uint) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countTopicVotes(topicID, userID), nil
}

func (s *Store) countTopicVotes(topicID, userID uint) int64 {
	var n int64
	for _, v := range s.data.votes {
		if v.UserID != userID || v.VotableType != models.VotablePost {
			continue
		}
		if p, ok := s.data.posts[v.VotableID]; ok && p.TopicID == topicID {
			n++
		}
	}
	return n
}

func (s *Store) Voters(ctx context.Context, ref qa.Ref, limit int) ([]qa.Voter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var votes []models.Vote
	for _, v := range s.data.votes {
		if v.VotableType == ref.Type && v.VotableID == ref.ID {
			votes = append(votes, v)
		}
	}
	slices.SortFunc(votes, func(a, b models.Vote) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return int(b.ID) - int(a.ID)
	})
	if limit > 0 && len(votes) > limit {
		votes = votes[:limit]
	}
	out := make([]qa.Voter, 0, len(votes))
	for _, v := range votes {
		out = append(out, qa.Voter{
			ID:        v.UserID,
			Username:  s.data.users[v.UserID].Username,
			Direction: v.Direction,
			VotedAt:   v.CreatedAt,
		})
	}
	return out, nil
}

type tx struct {
	s *Store
}

func (t *tx) LockVotable(ctx context.Context, ref qa.Ref) (*qa.Votable, error) {
	if err := t.s.fail("LockVotable"); err != nil {
		return nil, err
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	switch ref.Type {
	case models.VotablePost:
		p, ok := t.s.data.posts[ref.ID]
		if !ok || p.DeletedAt.Valid {
			return nil, qa.NotFoundFor(ref)
		}
		return &qa.Votable{
			Ref:        ref,
			TopicID:    p.TopicID,
			AuthorID:   p.UserID,
			VoteCount:  p.QAVoteCount,
			PostNumber: p.PostNumber,
			IsReply:    p.IsReply(),
		}, nil
	case models.VotableComment:
		c, ok := t.s.data.comments[ref.ID]
		if !ok || c.DeletedAt.Valid {
			return nil, qa.NotFoundFor(ref)
		}
		p, ok := t.s.data.posts[c.PostID]
		if !ok || p.DeletedAt.Valid {
			return nil, qa.ErrPostNotFound
		}
		return &qa.Votable{
			Ref:       ref,
			TopicID:   p.TopicID,
			AuthorID:  c.UserID,
			VoteCount: c.QAVoteCount,
		}, nil
	}
	return nil, qa.NotFoundFor(ref)
}

func (t *tx) FindVote(ctx context.Context, ref qa.Ref, userID uint) (*models.Vote, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	for _, v := range t.s.data.votes {
		if v.VotableType == ref.Type && v.VotableID == ref.ID && v.UserID == userID {
			return &v, nil
		}
	}
	return nil, nil
}

func (t *tx) CreateVote(ctx context.Context, vote *models.Vote) error {
	if err := t.s.fail("CreateVote"); err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, v := range t.s.data.votes {
		if v.VotableType == vote.VotableType && v.VotableID == vote.VotableID && v.UserID == vote.UserID {
			return qa.ErrAlreadyVoted
		}
	}
	vote.ID = t.s.id()
	if vote.CreatedAt.IsZero() {
		vote.CreatedAt = t.s.clock.Now()
	}
	t.s.data.votes[vote.ID] = *vote
	return nil
}

func (t *tx) DeleteVote(ctx context.Context, vote *models.Vote) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if _, ok := t.s.data.votes[vote.ID]; !ok {
		return qa.ErrVoteNotFound
	}
	delete(t.s.data.votes, vote.ID)
	return nil
}

func (t *tx) AddVoteCount(ctx context.Context, ref qa.Ref, delta int) (int, error) {
	if err := t.s.fail("AddVoteCount"); err != nil {
		return 0, err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	switch ref.Type {
	case models.VotablePost:
		p, ok := t.s.data.posts[ref.ID]
		if !ok {
			return 0, qa.NotFoundFor(ref)
		}
		p.QAVoteCount += delta
		t.s.data.posts[ref.ID] = p
		return p.QAVoteCount, nil
	case models.VotableComment:
		c, ok := t.s.data.comments[ref.ID]
		if !ok {
			return 0, qa.NotFoundFor(ref)
		}
		c.QAVoteCount += delta
		t.s.data.comments[ref.ID] = c
		return c.QAVoteCount, nil
	}
	return 0, qa.NotFoundFor(ref)
}

func (t *tx) HasVotes(ctx context.Context, ref qa.Ref) (bool, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	for _, v := range t.s.data.votes {
		if v.VotableType == ref.Type && v.VotableID == ref.ID {
			return true, nil
		}
	}
	return false, nil
}

// LockVoter is a no-op beyond failure injection; RunInTx already serializes.
func (t *tx) LockVoter(ctx context.Context, topicID, userID uint) error {
	return t.s.fail("LockVoter")
}

func (t *tx) CountTopicVotes(ctx context.Context, topicID, userID uint) (int64, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.s.countTopicVotes(topicID, userID), nil
}
