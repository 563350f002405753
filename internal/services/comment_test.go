package services_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qalink/internal/logging"
	"qalink/internal/memstore"
	"qalink/internal/models"
	"qalink/internal/qa"
	"qalink/internal/services"
)

type recordingNotifier struct {
	mu       sync.Mutex
	comments []qa.CommentChange
}

func (n *recordingNotifier) PublishVote(ctx context.Context, topicID uint, change qa.VoteChange) error {
	return nil
}

func (n *recordingNotifier) PublishComment(ctx context.Context, topicID uint, change qa.CommentChange) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.comments = append(n.comments, change)
	return nil
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

type commentFixture struct {
	store    *memstore.Store
	clock    *clockwork.FakeClock
	notifier *recordingNotifier
	ranking  *recordingTrigger
	svc      *services.CommentService

	asker, answerer, other, staff models.User
	topic                         models.Topic
	question, answer, reply       models.Post
}

func newCommentFixture(t *testing.T) *commentFixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	st := memstore.New(clock, qa.Policy{Enabled: true})
	f := &commentFixture{store: st, clock: clock, notifier: &recordingNotifier{}, ranking: &recordingTrigger{}}

	f.asker = st.AddUser(models.User{Username: "asker"})
	f.answerer = st.AddUser(models.User{Username: "answerer"})
	f.other = st.AddUser(models.User{Username: "other"})
	f.staff = st.AddUser(models.User{Username: "mod", Role: models.RoleModerator})

	f.topic = st.AddTopic(models.Topic{UserID: f.asker.ID, Subtype: models.TopicSubtypeQuestion})
	f.question = st.AddPost(models.Post{TopicID: f.topic.ID, UserID: f.asker.ID})
	f.answer = st.AddPost(models.Post{TopicID: f.topic.ID, UserID: f.answerer.ID})
	replyTo := f.answer.PostNumber
	f.reply = st.AddPost(models.Post{TopicID: f.topic.ID, UserID: f.other.ID, ReplyToPostNumber: &replyTo})

	rules := qa.CommentRules{MinRawLength: 5, MaxRawLength: 40, LimitPerPost: 3}
	f.svc = services.NewCommentService(st, st, f.notifier, f.ranking, rules, services.CommentOptions{
		Logger: logging.Discard(),
	})
	return f
}

func actorOf(u models.User) qa.Actor {
	return qa.ActorFromUser(&u)
}

func TestCommentService_Create(t *testing.T) {
	f := newCommentFixture(t)
	ctx := context.Background()

	view, err := f.svc.Create(ctx, actorOf(f.other), f.answer.ID, "Have you tried\n\nturning it off?")
	require.NoError(t, err)

	assert.Equal(t, f.answer.ID, view.PostID)
	assert.Equal(t, "other", view.Username)
	assert.True(t, view.CanEdit)
	assert.NotContains(t, view.Cooked, "\n")
	assert.Contains(t, view.Cooked, "Have you tried turning it off?")

	stored := f.store.Comment(view.ID)
	assert.Equal(t, models.CommentCookedVersion, stored.CookedVersion)

	notes := f.store.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, f.answerer.ID, notes[0].UserID)
	assert.Equal(t, models.NotificationTypeQAUserCommented, notes[0].Type)
	assert.Equal(t, f.answer.PostNumber, notes[0].PostNumber)
	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(notes[0].Data), &data))
	assert.EqualValues(t, view.ID, data["qa_comment_id"])
	assert.Equal(t, "other", data["display_username"])

	require.Len(t, f.notifier.comments, 1)
	assert.Equal(t, qa.CommentChange{
		Type: qa.ChangeCommentCreate, ID: view.ID, PostID: f.answer.ID, CommentsCount: 1,
	}, f.notifier.comments[0])
	assert.Equal(t, []uint{f.topic.ID}, f.ranking.topics)
}

func TestCommentService_CreateOnOwnPostDoesNotNotify(t *testing.T) {
	f := newCommentFixture(t)
	_, err := f.svc.Create(context.Background(), actorOf(f.answerer), f.answer.ID, "edit: fixed typo")
	require.NoError(t, err)
	assert.Empty(t, f.store.Notifications())
}

func TestCommentService_CreateRejections(t *testing.T) {
	f := newCommentFixture(t)
	ctx := context.Background()
	plain := f.store.AddTopic(models.Topic{UserID: f.asker.ID})
	plainPost := f.store.AddPost(models.Post{TopicID: plain.ID, UserID: f.asker.ID})

	tests := []struct {
		name   string
		postID uint
		raw    string
		code   string
	}{
		{"not a qa topic", plainPost.ID, "hello there", qa.CodeCommentQANotEnabled},
		{"reply post", f.reply.ID, "hello there", qa.CodeCommentNotPermitted},
		{"too short", f.answer.ID, "  hi \n ", qa.CodeCommentTooShort},
		{"too long", f.answer.ID, strings.Repeat("a", 41), qa.CodeCommentTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, actorOf(f.other), tt.postID, tt.raw)
			var qe *qa.Error
			require.ErrorAs(t, err, &qe)
			assert.Equal(t, tt.code, qe.Code)
			assert.Equal(t, qa.KindValidation, qe.Kind)
		})
	}

	_, err := f.svc.Create(ctx, actorOf(f.other), 9999, "hello there")
	assert.ErrorIs(t, err, qa.ErrPostNotFound)
}

func TestCommentService_LimitCountsTrashed(t *testing.T) {
	f := newCommentFixture(t)
	ctx := context.Background()

	var last *services.CommentView
	for i := 0; i < 3; i++ {
		v, err := f.svc.Create(ctx, actorOf(f.other), f.answer.ID, "comment number")
		require.NoError(t, err)
		last = v
	}
	require.NoError(t, f.svc.Delete(ctx, actorOf(f.other), last.ID))

	_, err := f.svc.Create(ctx, actorOf(f.other), f.answer.ID, "one more please")
	var qe *qa.Error
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, qa.CodeCommentLimitExceeded, qe.Code)
	assert.Equal(t, "This post has reached the limit of 3 comments.", qe.Message())
}

func TestCommentService_ListPaginates(t *testing.T) {
	f := newCommentFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, actorOf(f.other), f.question.ID, "first comment")
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, actorOf(f.answerer), f.question.ID, "second comment")
	require.NoError(t, err)

	voter := actorOf(f.asker)
	_, err = qa.NewVoteManager(f.store, f.store, nil, nil, qa.Policy{Enabled: true}, f.clock, qa.ManagerOptions{Logger: logging.Discard()}).
		CastVote(ctx, voter, qa.CommentRef(second.ID), models.VoteUp)
	require.NoError(t, err)

	page, err := f.svc.List(ctx, &voter, f.question.ID, 0, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.CommentsCount)
	require.Len(t, page.Comments, 2)
	assert.Equal(t, first.ID, page.Comments[0].ID)
	assert.False(t, page.Comments[0].UserVoted)
	assert.True(t, page.Comments[1].UserVoted)
	assert.Equal(t, 1, page.Comments[1].QAVoteCount)

	page, err = f.svc.List(ctx, nil, f.question.ID, first.ID, 20)
	require.NoError(t, err)
	require.Len(t, page.Comments, 1)
	assert.Equal(t, second.ID, page.Comments[0].ID)
	assert.False(t, page.Comments[0].CanEdit)
}

func TestCommentService_UpdateAndDelete(t *testing.T) {
	f := newCommentFixture(t)
	ctx := context.Background()
	view, err := f.svc.Create(ctx, actorOf(f.other), f.answer.ID, "original text")
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, actorOf(f.asker), view.ID, "hijacked text")
	assert.ErrorIs(t, err, qa.Forbidden(qa.CodeCommentEditForbidden))

	updated, err := f.svc.Update(ctx, actorOf(f.other), view.ID, "**better** text")
	require.NoError(t, err)
	assert.Contains(t, updated.Cooked, "<strong>better</strong>")
	assert.Equal(t, "**better** text", f.store.Comment(view.ID).Raw)

	_, err = f.svc.Update(ctx, actorOf(f.staff), view.ID, "moderated text")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Delete(ctx, actorOf(f.asker), view.ID), qa.Forbidden(qa.CodeCommentEditForbidden))
	require.NoError(t, f.svc.Delete(ctx, actorOf(f.staff), view.ID))
	assert.True(t, f.store.Comment(view.ID).DeletedAt.Valid)

	_, err = f.svc.Update(ctx, actorOf(f.other), view.ID, "too late now")
	assert.ErrorIs(t, err, qa.ErrCommentNotFound)

	kinds := make([]string, 0, len(f.notifier.comments))
	for _, c := range f.notifier.comments {
		kinds = append(kinds, c.Type)
	}
	assert.Equal(t, []string{
		qa.ChangeCommentCreate, qa.ChangeCommentEdit, qa.ChangeCommentEdit, qa.ChangeCommentTrash,
	}, kinds)
	assert.EqualValues(t, 0, f.notifier.comments[3].CommentsCount)
}

func TestCommentService_SetAsAnswer(t *testing.T) {
	f := newCommentFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.SetAsAnswer(ctx, actorOf(f.asker), f.reply.ID), qa.ErrInvalidAccess)

	require.NoError(t, f.svc.SetAsAnswer(ctx, actorOf(f.staff), f.reply.ID))
	assert.Nil(t, f.store.Post(f.reply.ID).ReplyToPostNumber)
	assert.Equal(t, []uint{f.topic.ID}, f.ranking.topics)

	assert.ErrorIs(t, f.svc.SetAsAnswer(ctx, actorOf(f.staff), 9999), qa.ErrPostNotFound)
}
