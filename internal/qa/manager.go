package qa

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"qalink/internal/metrics"
	"qalink/internal/models"
)

// VoteResult is the state of a votable after a committed vote operation.
type VoteResult struct {
	Ref       Ref
	TopicID   uint
	Vote      *models.Vote // nil after a removal
	VoteCount int
	HasVotes  bool
	Direction models.VoteDirection // empty after a removal
	Flipped   bool
}

// ManagerOptions tunes VoteManager. Zero timeouts mean no extra deadline.
type ManagerOptions struct {
	StoreTimeout  time.Duration
	NotifyTimeout time.Duration
	Metrics       *metrics.Metrics
	Logger        *logrus.Entry
}

// VoteManager casts and removes votes.
type VoteManager struct {
	store    VoteStore
	topics   TopicLookup
	notifier Notifier
	ranking  RankingTrigger
	policy   Policy
	undo     UndoPolicy
	clock    clockwork.Clock
	opts     ManagerOptions
	log      *logrus.Entry
}

func NewVoteManager(store VoteStore, topics TopicLookup, notifier Notifier, ranking RankingTrigger,
	policy Policy, clock clockwork.Clock, opts ManagerOptions) *VoteManager {
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &VoteManager{
		store:    store,
		topics:   topics,
		notifier: notifier,
		ranking:  ranking,
		policy:   policy,
		undo:     UndoPolicy{WindowMinutes: policy.UndoWindowMinutes, Clock: clock},
		clock:    clock,
		opts:     opts,
		log:      log,
	}
}

// Policy returns the policy the manager was built with.
func (m *VoteManager) Policy() Policy {
	return m.policy
}

// CastVote records a vote by actor on ref. An opposing vote is flipped in the same transaction
// with a delta of ±2. All checks run before any write; on error nothing is committed.
func (m *VoteManager) CastVote(ctx context.Context, actor Actor, ref Ref, direction models.VoteDirection) (*VoteResult, error) {
	start := m.clock.Now()
	var result VoteResult

	err := m.inTx(ctx, func(ctx context.Context, tx VoteTx) error {
		cache := NewRequestCache(m.topics)
		v, err := m.lockVotable(ctx, tx, cache, ref)
		if err != nil {
			return err
		}
		if v.AuthorID == actor.ID {
			return ErrSelfVote
		}
		if ref.Type == models.VotableComment && direction != models.VoteUp {
			return ErrCommentDownvote
		}

		ledger := NewLedger(tx, m.clock)
		existing, err := ledger.Find(ctx, ref, actor.ID)
		if err != nil {
			return err
		}

		delta := Delta(direction)
		switch {
		case existing != nil && existing.Direction == direction:
			return ErrAlreadyVoted
		case existing != nil:
			if err := ledger.Remove(ctx, existing); err != nil {
				return err
			}
			delta *= 2
			result.Flipped = true
		default:
			if err := m.checkVoteLimit(ctx, tx, actor, ref, v.TopicID); err != nil {
				return err
			}
		}

		vote, err := ledger.Record(ctx, ref, actor.ID, direction)
		if err != nil {
			return err
		}
		count, err := tx.AddVoteCount(ctx, ref, delta)
		if err != nil {
			return err
		}

		result = VoteResult{
			Ref:       ref,
			TopicID:   v.TopicID,
			Vote:      vote,
			VoteCount: count,
			HasVotes:  true,
			Direction: direction,
			Flipped:   result.Flipped,
		}
		return nil
	})

	outcome := metrics.ResultCast
	if result.Flipped {
		outcome = metrics.ResultFlipped
	}
	m.observe(ref, outcome, err, start)
	if err != nil {
		return nil, err
	}

	m.afterCommit(ctx, actor, &result)
	return &result, nil
}

// RemoveVote takes back the actor's vote on ref. Post votes are subject to the undo window;
// comment votes are not.
func (m *VoteManager) RemoveVote(ctx context.Context, actor Actor, ref Ref) (*VoteResult, error) {
	start := m.clock.Now()
	var result VoteResult

	err := m.inTx(ctx, func(ctx context.Context, tx VoteTx) error {
		cache := NewRequestCache(m.topics)
		v, err := m.lockVotable(ctx, tx, cache, ref)
		if err != nil {
			return err
		}

		ledger := NewLedger(tx, m.clock)
		existing, err := ledger.Find(ctx, ref, actor.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrHasNotVoted
		}
		if ref.Type == models.VotablePost {
			ok, err := m.undo.CanUndo(ctx, ledger, ref, actor.ID)
			if err != nil {
				return err
			}
			if !ok {
				return UndoWindowExpired(m.policy.UndoWindowMinutes)
			}
		}

		if err := ledger.Remove(ctx, existing); err != nil {
			return err
		}
		count, err := tx.AddVoteCount(ctx, ref, -Delta(existing.Direction))
		if err != nil {
			return err
		}
		hasVotes, err := tx.HasVotes(ctx, ref)
		if err != nil {
			return err
		}

		result = VoteResult{Ref: ref, TopicID: v.TopicID, VoteCount: count, HasVotes: hasVotes}
		return nil
	})

	m.observe(ref, metrics.ResultRemoved, err, start)
	if err != nil {
		return nil, err
	}

	m.afterCommit(ctx, actor, &result)
	return &result, nil
}

// CanVote reports whether actor may cast a fresh vote on an answer of the topic.
func (m *VoteManager) CanVote(ctx context.Context, actor Actor, topicID uint) (bool, error) {
	if !m.policy.Enabled {
		return false, nil
	}
	limit, ok := m.policy.VoteLimit(actor.TrustLevel)
	if !ok {
		return true, nil
	}
	count, err := m.store.CountTopicVotes(ctx, topicID, actor.ID)
	if err != nil {
		return false, err
	}
	return count < int64(limit), nil
}

// Voters lists the most recent voters of an answer, bounded by the configured limit.
func (m *VoteManager) Voters(ctx context.Context, ref Ref) ([]Voter, error) {
	if ref.Type != models.VotablePost {
		return nil, NotFoundFor(ref)
	}
	if _, err := m.store.FindPost(ctx, ref.ID); err != nil {
		return nil, err
	}
	limit := m.policy.VotersLimit
	if limit <= 0 {
		limit = 20
	}
	return m.store.Voters(ctx, ref, limit)
}

func (m *VoteManager) lockVotable(ctx context.Context, tx VoteTx, cache *RequestCache, ref Ref) (*Votable, error) {
	v, err := tx.LockVotable(ctx, ref)
	if err != nil {
		return nil, err
	}
	topic, err := cache.Topic(ctx, v.TopicID)
	if err != nil {
		return nil, err
	}
	if !topic.QAEnabled {
		return nil, ErrQANotEnabled
	}
	if ref.Type == models.VotablePost && (v.PostNumber == 1 || v.IsReply) {
		return nil, ErrVotingNotAllowed
	}
	return v, nil
}

// checkVoteLimit only guards fresh answer votes; flips and removals never count.
func (m *VoteManager) checkVoteLimit(ctx context.Context, tx VoteTx, actor Actor, ref Ref, topicID uint) error {
	if ref.Type != models.VotablePost {
		return nil
	}
	limit, ok := m.policy.VoteLimit(actor.TrustLevel)
	if !ok {
		return nil
	}
	if err := tx.LockVoter(ctx, topicID, actor.ID); err != nil {
		return err
	}
	count, err := tx.CountTopicVotes(ctx, topicID, actor.ID)
	if err != nil {
		return err
	}
	if count >= int64(limit) {
		return ErrVoteLimitExceeded
	}
	return nil
}

func (m *VoteManager) inTx(ctx context.Context, fn func(ctx context.Context, tx VoteTx) error) error {
	if m.opts.StoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.StoreTimeout)
		defer cancel()
	}
	return m.store.RunInTx(ctx, func(tx VoteTx) error {
		return fn(ctx, tx)
	})
}

// afterCommit runs only once the transaction is durable.
func (m *VoteManager) afterCommit(ctx context.Context, actor Actor, r *VoteResult) {
	if r.Ref.Type == models.VotablePost && m.ranking != nil {
		m.ranking.ScheduleUpdate(r.TopicID)
	}
	if m.notifier == nil {
		return
	}

	change := VoteChange{
		Type:               ChangePostVoted,
		ID:                 r.Ref.ID,
		VoteCount:          r.VoteCount,
		HasVotes:           r.HasVotes,
		UserVotedID:        actor.ID,
		UserVotedDirection: string(r.Direction),
	}
	if r.Ref.Type == models.VotableComment {
		change.Type = ChangeCommentVoted
	}

	pubCtx := context.WithoutCancel(ctx)
	if m.opts.NotifyTimeout > 0 {
		var cancel context.CancelFunc
		pubCtx, cancel = context.WithTimeout(pubCtx, m.opts.NotifyTimeout)
		defer cancel()
	}
	err := m.notifier.PublishVote(pubCtx, r.TopicID, change)
	m.opts.Metrics.ObserveNotification(change.Type, err)
	if err != nil {
		m.log.WithError(err).WithFields(logrus.Fields{
			"topic_id": r.TopicID,
			"votable":  r.Ref.String(),
		}).Warn("publish vote change failed")
	}
}

func (m *VoteManager) observe(ref Ref, outcome string, err error, start time.Time) {
	if err != nil {
		outcome = metrics.ResultError
		if KindOf(err) != 0 {
			outcome = metrics.ResultRejected
		}
	}
	m.opts.Metrics.ObserveVote(string(ref.Type), outcome, m.clock.Since(start))
}
