// Package store implements the qa and services persistence interfaces on gorm and postgres.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"qalink/internal/models"
	"qalink/internal/qa"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the handle for health checks.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) RunInTx(ctx context.Context, fn func(tx qa.VoteTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(&voteTx{db: gtx})
	})
}

func (s *Store) CountTopicVotes(ctx context.Context, topicID, userID uint) (int64, error) {
	return countTopicVotes(s.db.WithContext(ctx), topicID, userID)
}

type voterRow struct {
	ID        uint
	Username  string
	Direction models.VoteDirection
	CreatedAt time.Time
}

func (s *Store) Voters(ctx context.Context, ref qa.Ref, limit int) ([]qa.Voter, error) {
	var rows []voterRow
	err := s.db.WithContext(ctx).
		Table("qa_votes").
		Select("users.id, users.username, qa_votes.direction, qa_votes.created_at").
		Joins("JOIN users ON users.id = qa_votes.user_id").
		Where("qa_votes.votable_type = ? AND qa_votes.votable_id = ?", ref.Type, ref.ID).
		Order("qa_votes.created_at DESC, qa_votes.id DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list voters of %s: %w", ref, err)
	}
	voters := make([]qa.Voter, 0, len(rows))
	for _, r := range rows {
		voters = append(voters, qa.Voter{ID: r.ID, Username: r.Username, Direction: r.Direction, VotedAt: r.CreatedAt})
	}
	return voters, nil
}

func countTopicVotes(db *gorm.DB, topicID, userID uint) (int64, error) {
	var n int64
	err := db.Model(&models.Vote{}).
		Joins("JOIN posts ON posts.id = qa_votes.votable_id").
		Where("qa_votes.votable_type = ? AND qa_votes.user_id = ? AND posts.topic_id = ?", models.VotablePost, userID, topicID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count topic votes: %w", err)
	}
	return n, nil
}

type voteTx struct {
	db *gorm.DB
}

func (t *voteTx) LockVotable(ctx context.Context, ref qa.Ref) (*qa.Votable, error) {
	locked := t.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
	switch ref.Type {
	case models.VotablePost:
		var p models.Post
		if err := locked.First(&p, ref.ID).Error; err != nil {
			return nil, notFound(err, qa.ErrPostNotFound)
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
		var c models.Comment
		if err := locked.First(&c, ref.ID).Error; err != nil {
			return nil, notFound(err, qa.ErrCommentNotFound)
		}
		var p models.Post
		if err := t.db.WithContext(ctx).Select("id", "topic_id").First(&p, c.PostID).Error; err != nil {
			return nil, notFound(err, qa.ErrPostNotFound)
		}
		return &qa.Votable{Ref: ref, TopicID: p.TopicID, AuthorID: c.UserID, VoteCount: c.QAVoteCount}, nil
	}
	return nil, qa.NotFoundFor(ref)
}

func (t *voteTx) FindVote(ctx context.Context, ref qa.Ref, userID uint) (*models.Vote, error) {
	var v models.Vote
	err := t.db.WithContext(ctx).
		Where("votable_type = ? AND votable_id = ? AND user_id = ?", ref.Type, ref.ID, userID).
		Take(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find vote: %w", err)
	}
	return &v, nil
}

func (t *voteTx) CreateVote(ctx context.Context, vote *models.Vote) error {
	if err := t.db.WithContext(ctx).Create(vote).Error; err != nil {
		if isUniqueViolation(err) {
			return qa.ErrAlreadyVoted
		}
		return fmt.Errorf("create vote: %w", err)
	}
	return nil
}

func (t *voteTx) DeleteVote(ctx context.Context, vote *models.Vote) error {
	res := t.db.WithContext(ctx).Delete(&models.Vote{}, vote.ID)
	if res.Error != nil {
		return fmt.Errorf("delete vote: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return qa.ErrVoteNotFound
	}
	return nil
}

func (t *voteTx) AddVoteCount(ctx context.Context, ref qa.Ref, delta int) (int, error) {
	model, err := votableModel(ref)
	if err != nil {
		return 0, err
	}
	db := t.db.WithContext(ctx)
	// 原子加减，和 score + ? 一样不读后写
	res := db.Model(model).Where("id = ?", ref.ID).
		UpdateColumn("qa_vote_count", gorm.Expr("qa_vote_count + ?", delta))
	if res.Error != nil {
		return 0, fmt.Errorf("update vote count of %s: %w", ref, res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, qa.NotFoundFor(ref)
	}
	var count int
	if err := db.Model(model).Where("id = ?", ref.ID).Pluck("qa_vote_count", &count).Error; err != nil {
		return 0, fmt.Errorf("read vote count of %s: %w", ref, err)
	}
	return count, nil
}

func (t *voteTx) HasVotes(ctx context.Context, ref qa.Ref) (bool, error) {
	var n int64
	err := t.db.WithContext(ctx).Model(&models.Vote{}).
		Where("votable_type = ? AND votable_id = ?", ref.Type, ref.ID).
		Limit(1).Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check votes of %s: %w", ref, err)
	}
	return n > 0, nil
}

// LockVoter takes a transaction scoped advisory lock keyed by (topic, user).
func (t *voteTx) LockVoter(ctx context.Context, topicID, userID uint) error {
	err := t.db.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(?, ?)", int32(topicID), int32(userID)).Error
	if err != nil {
		return fmt.Errorf("lock voter %d on topic %d: %w", userID, topicID, err)
	}
	return nil
}

func (t *voteTx) CountTopicVotes(ctx context.Context, topicID, userID uint) (int64, error) {
	return countTopicVotes(t.db.WithContext(ctx), topicID, userID)
}

func votableModel(ref qa.Ref) (any, error) {
	switch ref.Type {
	case models.VotablePost:
		return &models.Post{}, nil
	case models.VotableComment:
		return &models.Comment{}, nil
	}
	return nil, qa.NotFoundFor(ref)
}

func notFound(err error, nf *qa.Error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nf
	}
	return err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE 23505") || strings.Contains(msg, "duplicate key")
}
