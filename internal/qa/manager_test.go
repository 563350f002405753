package qa_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qalink/internal/logging"
	"qalink/internal/memstore"
	"qalink/internal/metrics"
	"qalink/internal/models"
	"qalink/internal/qa"
)

type recordingNotifier struct {
	mu       sync.Mutex
	votes    []qa.VoteChange
	comments []qa.CommentChange
	err      error
}

func (n *recordingNotifier) PublishVote(ctx context.Context, topicID uint, change qa.VoteChange) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.votes = append(n.votes, change)
	return n.err
}

func (n *recordingNotifier) PublishComment(ctx context.Context, topicID uint, change qa.CommentChange) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.comments = append(n.comments, change)
	return n.err
}

type recordingTrigger struct {
	mu     sync.Mutex
	topics []uint
}

func (r *recordingTrigger) ScheduleUpdate(topicID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topicID)
}

type fixture struct {
	store    *memstore.Store
	clock    *clockwork.FakeClock
	notifier *recordingNotifier
	ranking  *recordingTrigger
	metrics  *metrics.Metrics
	votes    *qa.VoteManager

	asker, answerer, voter models.User
	topic                  models.Topic
	question, answer       models.Post
	reply                  models.Post
}

func defaultPolicy() qa.Policy {
	return qa.Policy{
		Enabled:           true,
		UndoWindowMinutes: 10,
		VoteLimits:        [5]int{1, 10, 10, 10, 10},
		VotersLimit:       20,
	}
}

func newFixture(t *testing.T, mutate ...func(*qa.Policy)) *fixture {
	t.Helper()
	policy := defaultPolicy()
	for _, fn := range mutate {
		fn(&policy)
	}

	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	st := memstore.New(clock, policy)
	f := &fixture{
		store:    st,
		clock:    clock,
		notifier: &recordingNotifier{},
		ranking:  &recordingTrigger{},
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	f.asker = st.AddUser(models.User{Username: "asker", TrustLevel: 1})
	f.answerer = st.AddUser(models.User{Username: "answerer", TrustLevel: 1})
	f.voter = st.AddUser(models.User{Username: "voter", TrustLevel: 1})

	cat := st.AddCategory(models.Category{Name: "Q&A", QAEnabled: true})
	f.topic = st.AddTopic(models.Topic{Title: "How?", UserID: f.asker.ID, CategoryID: &cat.ID})
	f.question = st.AddPost(models.Post{TopicID: f.topic.ID, UserID: f.asker.ID, Raw: "question"})
	f.answer = st.AddPost(models.Post{TopicID: f.topic.ID, UserID: f.answerer.ID, Raw: "answer"})
	replyTo := f.answer.PostNumber
	f.reply = st.AddPost(models.Post{TopicID: f.topic.ID, UserID: f.asker.ID, Raw: "reply", ReplyToPostNumber: &replyTo})

	f.votes = qa.NewVoteManager(st, st, f.notifier, f.ranking, policy, clock, qa.ManagerOptions{
		Metrics: f.metrics,
		Logger:  logging.Discard(),
	})
	return f
}

func (f *fixture) actor(u models.User) qa.Actor {
	return qa.ActorFromUser(&u)
}

func TestCastVote_Up(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.votes.CastVote(ctx, f.actor(f.voter), qa.PostRef(f.answer.ID), models.VoteUp)
	require.NoError(t, err)

	assert.Equal(t, 1, res.VoteCount)
	assert.True(t, res.HasVotes)
	assert.False(t, res.Flipped)
	assert.Equal(t, models.VoteUp, res.Direction)
	assert.Equal(t, 1, f.store.Post(f.answer.ID).QAVoteCount)

	votes := f.store.Votes()
	require.Len(t, votes, 1)
	assert.Equal(t, f.voter.ID, votes[0].UserID)
	assert.Equal(t, models.VotablePost, votes[0].VotableType)
	assert.Equal(t, f.clock.Now(), votes[0].CreatedAt)

	require.Len(t, f.notifier.votes, 1)
	assert.Equal(t, qa.VoteChange{
		Type:               qa.ChangePostVoted,
		ID:                 f.answer.ID,
		VoteCount:          1,
		HasVotes:           true,
		UserVotedID:        f.voter.ID,
		UserVotedDirection: "up",
	}, f.notifier.votes[0])
	assert.Equal(t, []uint{f.topic.ID}, f.ranking.topics)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.VotesProcessed.WithLabelValues("Post", metrics.ResultCast)))
}

func TestCastVote_FlipIsAtomicDoubleDelta(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := qa.PostRef(f.answer.ID)

	res, err := f.votes.CastVote(ctx, f.actor(f.voter), ref, models.VoteDown)
	require.NoError(t, err)
	assert.Equal(t, -1, res.VoteCount)

	res, err = f.votes.CastVote(ctx, f.actor(f.voter), ref, models.VoteUp)
	require.NoError(t, err)
	assert.True(t, res.Flipped)
	assert.Equal(t, 1, res.VoteCount)

	votes := f.store.Votes()
	require.Len(t, votes, 1)
	assert.Equal(t, models.VoteUp, votes[0].Direction)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.VotesProcessed.WithLabelValues("Post", metrics.ResultFlipped)))
}

func TestCastVote_SameDirectionTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := qa.PostRef(f.answer.ID)

	_, err := f.votes.CastVote(ctx, f.actor(f.voter), ref, models.VoteUp)
	require.NoError(t, err)

	_, err = f.votes.CastVote(ctx, f.actor(f.voter), ref, models.VoteUp)
	assert.ErrorIs(t, err, qa.ErrAlreadyVoted)
	assert.Equal(t, 1, f.store.Post(f.answer.ID).QAVoteCount)
	assert.Len(t, f.store.Votes(), 1)
	assert.Len(t, f.notifier.votes, 1)
}

func TestCastVote_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	plain := f.store.AddTopic(models.Topic{Title: "chit chat", UserID: f.asker.ID})
	f.store.AddPost(models.Post{TopicID: plain.ID, UserID: f.asker.ID})
	plainAnswer := f.store.AddPost(models.Post{TopicID: plain.ID, UserID: f.answerer.ID})

	tests := []struct {
		name  string
		actor models.User
		ref   qa.Ref
		dir   models.VoteDirection
		want  error
	}{
		{"missing post", f.voter, qa.PostRef(9999), models.VoteUp, qa.ErrPostNotFound},
		{"missing comment", f.voter, qa.CommentRef(9999), models.VoteUp, qa.ErrCommentNotFound},
		{"not a qa topic", f.voter, qa.PostRef(plainAnswer.ID), models.VoteUp, qa.ErrQANotEnabled},
		{"question", f.voter, qa.PostRef(f.question.ID), models.VoteUp, qa.ErrVotingNotAllowed},
		{"reply", f.voter, qa.PostRef(f.reply.ID), models.VoteUp, qa.ErrVotingNotAllowed},
		{"own answer", f.answerer, qa.PostRef(f.answer.ID), models.VoteUp, qa.ErrSelfVote},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.votes.CastVote(ctx, f.actor(tt.actor), tt.ref, tt.dir)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, f.store.Votes())
	assert.Empty(t, f.notifier.votes)
	assert.Empty(t, f.ranking.topics)
}

func TestCastVote_DeletedAnswer(t *testing.T) {
	f := newFixture(t)
	gone := f.store.AddPost(models.Post{TopicID: f.topic.ID, UserID: f.answerer.ID})
	gone.DeletedAt.Valid = true
	gone.DeletedAt.Time = f.clock.Now()
	f.store.AddPost(gone)

	_, err := f.votes.CastVote(context.Background(), f.actor(f.voter), qa.PostRef(gone.ID), models.VoteUp)
	assert.ErrorIs(t, err, qa.ErrPostNotFound)
}

func TestCastVote_Comment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	comment := f.store.AddComment(models.Comment{PostID: f.answer.ID, UserID: f.asker.ID, Raw: "nice answer"})
	ref := qa.CommentRef(comment.ID)

	_, err := f.votes.CastVote(ctx, f.actor(f.voter), ref, models.VoteDown)
	assert.ErrorIs(t, err, qa.ErrCommentDownvote)

	res, err := f.votes.CastVote(ctx, f.actor(f.voter), ref, models.VoteUp)
	require.NoError(t, err)
	assert.Equal(t, 1, res.VoteCount)
	assert.Equal(t, 1, f.store.Comment(comment.ID).QAVoteCount)
	assert.Equal(t, 0, f.store.Post(f.answer.ID).QAVoteCount)

	require.Len(t, f.notifier.votes, 1)
	assert.Equal(t, qa.ChangeCommentVoted, f.notifier.votes[0].Type)
	assert.Empty(t, f.ranking.topics, "comment votes do not reorder")

	_, err = f.votes.CastVote(ctx, f.actor(f.asker), ref, models.VoteUp)
	assert.ErrorIs(t, err, qa.ErrSelfVote)
}

func TestRemoveVote_WithinWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := qa.PostRef(f.answer.ID)

	_, err := f.votes.CastVote(ctx, f.actor(f.voter), ref, models.VoteDown)
	require.NoError(t, err)
	f.clock.Advance(9 * time.Minute)

	res, err := f.votes.RemoveVote(ctx, f.actor(f.voter), ref)
	require.NoError(t, err)
	assert.Equal(t, 0, res.VoteCount)
	assert.False(t, res.HasVotes)
	assert.Empty(t, f.store.Votes())
	assert.Equal(t, "", f.notifier.votes[1].UserVotedDirection)
	assert.False(t, f.notifier.votes[1].HasVotes)
}

func TestRemoveVote_WindowExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := qa.PostRef(f.answer.ID)

	_, err := f.votes.CastVote(ctx, f.actor(f.voter), ref, models.VoteUp)
	require.NoError(t, err)
	f.clock.Advance(10 * time.Minute)

	_, err = f.votes.RemoveVote(ctx, f.actor(f.voter), ref)
	require.ErrorIs(t, err, qa.ErrUndoWindowExpired)
	var qe *qa.Error
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, "You can only undo votes within 10 minutes of voting.", qe.Message())
	assert.Equal(t, 1, f.store.Post(f.answer.ID).QAVoteCount)
	assert.Len(t, f.store.Votes(), 1)
}

func TestRemoveVote_FlipRestartsWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := qa.PostRef(f.answer.ID)

	_, err := f.votes.CastVote(ctx, f.actor(f.voter), ref, models.VoteUp)
	require.NoError(t, err)
	f.clock.Advance(30 * time.Minute)
	_, err = f.votes.CastVote(ctx, f.actor(f.voter), ref, models.VoteDown)
	require.NoError(t, err)
	f.clock.Advance(5 * time.Minute)

	res, err := f.votes.RemoveVote(ctx, f.actor(f.voter), ref)
	require.NoError(t, err)
	assert.Equal(t, 0, res.VoteCount)
}

func TestRemoveVote_NoWindow(t *testing.T) {
	f := newFixture(t, func(p *qa.Policy) { p.UndoWindowMinutes = 0 })
	ctx := context.Background()
	ref := qa.PostRef(f.answer.ID)

	_, err := f.votes.CastVote(ctx, f.actor(f.voter), ref, models.VoteUp)
	require.NoError(t, err)
	f.clock.Advance(72 * time.Hour)

	_, err = f.votes.RemoveVote(ctx, f.actor(f.voter), ref)
	assert.NoError(t, err)
}

func TestRemoveVote_HasNotVoted(t *testing.T) {
	f := newFixture(t)
	_, err := f.votes.RemoveVote(context.Background(), f.actor(f.voter), qa.PostRef(f.answer.ID))
	assert.ErrorIs(t, err, qa.ErrHasNotVoted)
}

func TestRemoveVote_CommentHasNoWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	comment := f.store.AddComment(models.Comment{PostID: f.answer.ID, UserID: f.asker.ID, Raw: "nice answer"})
	ref := qa.CommentRef(comment.ID)

	_, err := f.votes.CastVote(ctx, f.actor(f.voter), ref, models.VoteUp)
	require.NoError(t, err)
	f.clock.Advance(24 * time.Hour)

	res, err := f.votes.RemoveVote(ctx, f.actor(f.voter), ref)
	require.NoError(t, err)
	assert.Equal(t, 0, res.VoteCount)
}

func TestCastVote_TrustLevelLimit(t *testing.T) {
	f := newFixture(t, func(p *qa.Policy) { p.TrustLevelVoteLimits = true })
	ctx := context.Background()
	second := f.store.AddPost(models.Post{TopicID: f.topic.ID, UserID: f.answerer.ID})

	// trust level 1 allows 10, trust level 0 only 1
	newbie := f.store.AddUser(models.User{Username: "newbie", TrustLevel: 0})

	_, err := f.votes.CastVote(ctx, f.actor(newbie), qa.PostRef(f.answer.ID), models.VoteUp)
	require.NoError(t, err)

	ok, err := f.votes.CanVote(ctx, f.actor(newbie), f.topic.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.votes.CastVote(ctx, f.actor(newbie), qa.PostRef(second.ID), models.VoteUp)
	assert.ErrorIs(t, err, qa.ErrVoteLimitExceeded)

	// flipping an existing vote does not count against the limit
	res, err := f.votes.CastVote(ctx, f.actor(newbie), qa.PostRef(f.answer.ID), models.VoteDown)
	require.NoError(t, err)
	assert.Equal(t, -1, res.VoteCount)

	ok, err = f.votes.CanVote(ctx, f.actor(f.voter), f.topic.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCastVote_LimitsOffByDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	newbie := f.store.AddUser(models.User{Username: "newbie", TrustLevel: 0})
	for i := 0; i < 3; i++ {
		p := f.store.AddPost(models.Post{TopicID: f.topic.ID, UserID: f.answerer.ID})
		_, err := f.votes.CastVote(ctx, f.actor(newbie), qa.PostRef(p.ID), models.VoteUp)
		require.NoError(t, err)
	}
}

func TestCastVote_RollsBackOnStoreFailure(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("disk full")
	f.store.FailOn("AddVoteCount", boom)

	_, err := f.votes.CastVote(context.Background(), f.actor(f.voter), qa.PostRef(f.answer.ID), models.VoteUp)
	require.ErrorIs(t, err, boom)

	assert.Empty(t, f.store.Votes())
	assert.Equal(t, 0, f.store.Post(f.answer.ID).QAVoteCount)
	assert.Empty(t, f.notifier.votes)
	assert.Empty(t, f.ranking.topics)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.VotesProcessed.WithLabelValues("Post", metrics.ResultError)))
}

func TestCastVote_FlipRollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := qa.PostRef(f.answer.ID)
	_, err := f.votes.CastVote(ctx, f.actor(f.voter), ref, models.VoteUp)
	require.NoError(t, err)

	f.store.FailOn("CreateVote", errors.New("constraint"))
	_, err = f.votes.CastVote(ctx, f.actor(f.voter), ref, models.VoteDown)
	require.Error(t, err)

	votes := f.store.Votes()
	require.Len(t, votes, 1)
	assert.Equal(t, models.VoteUp, votes[0].Direction)
	assert.Equal(t, 1, f.store.Post(f.answer.ID).QAVoteCount)
}

func TestCastVote_NotifierFailureDoesNotFailVote(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("redis down")

	res, err := f.votes.CastVote(context.Background(), f.actor(f.voter), qa.PostRef(f.answer.ID), models.VoteUp)
	require.NoError(t, err)
	assert.Equal(t, 1, res.VoteCount)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Notifications.WithLabelValues(qa.ChangePostVoted, "error")))
}

func TestCastVote_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := qa.PostRef(f.answer.ID)

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n*2)
	for i := 0; i < n; i++ {
		u := f.store.AddUser(models.User{Username: fmt.Sprintf("user%d", i), TrustLevel: 1})
		wg.Add(1)
		go func() {
			defer wg.Done()
			// each user submits twice; exactly one of the two lands
			_, err1 := f.votes.CastVote(ctx, f.actor(u), ref, models.VoteUp)
			_, err2 := f.votes.CastVote(ctx, f.actor(u), ref, models.VoteUp)
			errs <- err1
			errs <- err2
		}()
	}
	wg.Wait()
	close(errs)

	already := 0
	for err := range errs {
		if err != nil {
			require.ErrorIs(t, err, qa.ErrAlreadyVoted)
			already++
		}
	}
	assert.Equal(t, n, already)
	assert.Equal(t, n, f.store.Post(f.answer.ID).QAVoteCount)
	assert.Len(t, f.store.Votes(), n)
}

// ledgerSum is the count implied by the live votes on ref.
func ledgerSum(st *memstore.Store, ref qa.Ref) int {
	sum := 0
	for _, v := range st.Votes() {
		if v.VotableType == ref.Type && v.VotableID == ref.ID {
			sum += qa.Delta(v.Direction)
		}
	}
	return sum
}

func TestVoteCountMatchesLedger(t *testing.T) {
	for _, seed := range []uint64{1, 7, 42, 2024} {
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			rng := rand.New(rand.NewPCG(seed, seed))
			ref := qa.PostRef(f.answer.ID)

			users := make([]models.User, 6)
			for i := range users {
				users[i] = f.store.AddUser(models.User{Username: fmt.Sprintf("u%d", i), TrustLevel: 1})
			}

			for step := 0; step < 300; step++ {
				actor := f.actor(users[rng.IntN(len(users))])
				var err error
				switch rng.IntN(3) {
				case 0:
					_, err = f.votes.CastVote(ctx, actor, ref, models.VoteUp)
				case 1:
					_, err = f.votes.CastVote(ctx, actor, ref, models.VoteDown)
				default:
					_, err = f.votes.RemoveVote(ctx, actor, ref)
				}
				if err != nil {
					require.True(t, errors.Is(err, qa.ErrAlreadyVoted) || errors.Is(err, qa.ErrHasNotVoted), err)
				}
				require.Equal(t, ledgerSum(f.store, ref), f.store.Post(f.answer.ID).QAVoteCount, "step %d", step)
			}
		})
	}
}

func TestVoters_MostRecentFirst(t *testing.T) {
	f := newFixture(t, func(p *qa.Policy) { p.VotersLimit = 2 })
	ctx := context.Background()
	ref := qa.PostRef(f.answer.ID)

	for _, name := range []string{"a", "b", "c"} {
		u := f.store.AddUser(models.User{Username: name, TrustLevel: 1})
		_, err := f.votes.CastVote(ctx, f.actor(u), ref, models.VoteUp)
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}

	voters, err := f.votes.Voters(ctx, ref)
	require.NoError(t, err)
	require.Len(t, voters, 2)
	assert.Equal(t, "c", voters[0].Username)
	assert.Equal(t, "b", voters[1].Username)
	assert.Equal(t, models.VoteUp, voters[0].Direction)
}

func TestVoters_UnknownPost(t *testing.T) {
	f := newFixture(t)
	_, err := f.votes.Voters(context.Background(), qa.PostRef(9999))
	assert.ErrorIs(t, err, qa.ErrPostNotFound)

	_, err = f.votes.Voters(context.Background(), qa.CommentRef(9999))
	assert.ErrorIs(t, err, qa.ErrCommentNotFound)
}

func TestCastVote_LimitTakesVoterLock(t *testing.T) {
	f := newFixture(t, func(p *qa.Policy) { p.TrustLevelVoteLimits = true })
	ctx := context.Background()
	lockErr := errors.New("lock timeout")
	f.store.FailOn("LockVoter", lockErr)

	_, err := f.votes.CastVote(ctx, f.actor(f.voter), qa.PostRef(f.answer.ID), models.VoteUp)
	require.ErrorIs(t, err, lockErr)
	assert.Empty(t, f.store.Votes())

	// comment votes never count toward the limit, so no lock is needed
	c := f.store.AddComment(models.Comment{PostID: f.answer.ID, UserID: f.answerer.ID, Raw: "hm"})
	_, err = f.votes.CastVote(ctx, f.actor(f.voter), qa.CommentRef(c.ID), models.VoteUp)
	require.NoError(t, err)

	f.store.FailOn("LockVoter", nil)
	_, err = f.votes.CastVote(ctx, f.actor(f.voter), qa.PostRef(f.answer.ID), models.VoteUp)
	require.NoError(t, err)
}

func TestCanVote_Disabled(t *testing.T) {
	f := newFixture(t, func(p *qa.Policy) { p.Enabled = false })
	ok, err := f.votes.CanVote(context.Background(), f.actor(f.voter), f.topic.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}
