package qa

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"qalink/internal/models"
)

// Ledger wraps a transaction with the vote ledger operations.
type Ledger struct {
	tx    VoteTx
	clock clockwork.Clock
}

func NewLedger(tx VoteTx, clock clockwork.Clock) *Ledger {
	return &Ledger{tx: tx, clock: clock}
}

// Record writes a vote. Recording the direction the voter already holds is ErrAlreadyVoted.
// An opposing vote must be removed first.
func (l *Ledger) Record(ctx context.Context, ref Ref, voterID uint, direction models.VoteDirection) (*models.Vote, error) {
	existing, err := l.tx.FindVote(ctx, ref, voterID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyVoted
	}
	vote := &models.Vote{
		UserID:      voterID,
		VotableType: ref.Type,
		VotableID:   ref.ID,
		Direction:   direction,
		CreatedAt:   l.clock.Now(),
	}
	if err := l.tx.CreateVote(ctx, vote); err != nil {
		return nil, err
	}
	return vote, nil
}

// Find returns the voter's current vote or nil.
func (l *Ledger) Find(ctx context.Context, ref Ref, voterID uint) (*models.Vote, error) {
	return l.tx.FindVote(ctx, ref, voterID)
}

// Remove deletes a vote; ErrVoteNotFound if it is already gone.
func (l *Ledger) Remove(ctx context.Context, vote *models.Vote) error {
	return l.tx.DeleteVote(ctx, vote)
}

// MostRecentCreateTimestamp returns when the voter last cast a vote on ref.
// Flips recreate the row, so this is the time of the latest cast.
func (l *Ledger) MostRecentCreateTimestamp(ctx context.Context, ref Ref, voterID uint) (time.Time, bool, error) {
	vote, err := l.tx.FindVote(ctx, ref, voterID)
	if err != nil || vote == nil {
		return time.Time{}, false, err
	}
	return vote.CreatedAt, true, nil
}
