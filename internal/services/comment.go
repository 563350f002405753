package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"qalink/internal/metrics"
	"qalink/internal/models"
	"qalink/internal/qa"
	"qalink/internal/utils"
)

// CommentView is a comment as returned to clients.
type CommentView struct {
	ID          uint      `json:"id"`
	PostID      uint      `json:"post_id"`
	UserID      uint      `json:"user_id"`
	Username    string    `json:"username"`
	Raw         string    `json:"raw"`
	Cooked      string    `json:"cooked"`
	QAVoteCount int       `json:"qa_vote_count"`
	UserVoted   bool      `json:"user_voted"`
	CreatedAt   time.Time `json:"created_at"`
	CanEdit     bool      `json:"can_edit"`
}

// CommentPage is one load-more page of a post's comments.
type CommentPage struct {
	Comments      []CommentView `json:"comments"`
	CommentsCount int64         `json:"comments_count"`
}

type CommentOptions struct {
	NotifyTimeout time.Duration
	Metrics       *metrics.Metrics
	Logger        *logrus.Entry
}

// CommentService 问答评论：单层、可投赞成票、软删除
type CommentService struct {
	store    CommentStore
	topics   qa.TopicLookup
	notifier qa.Notifier
	ranking  qa.RankingTrigger
	rules    qa.CommentRules
	opts     CommentOptions
	log      *logrus.Entry
}

func NewCommentService(store CommentStore, topics qa.TopicLookup, notifier qa.Notifier, ranking qa.RankingTrigger,
	rules qa.CommentRules, opts CommentOptions) *CommentService {
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &CommentService{
		store:    store,
		topics:   topics,
		notifier: notifier,
		ranking:  ranking,
		rules:    rules,
		opts:     opts,
		log:      log,
	}
}

// List returns live comments after afterID in id order. viewer may be nil.
func (s *CommentService) List(ctx context.Context, viewer *qa.Actor, postID, afterID uint, limit int) (*CommentPage, error) {
	if _, err := s.store.FindPost(ctx, postID); err != nil {
		return nil, err
	}
	comments, err := s.store.ListComments(ctx, postID, afterID, limit)
	if err != nil {
		return nil, err
	}
	total, err := s.store.CountComments(ctx, postID, false)
	if err != nil {
		return nil, err
	}

	voted := map[uint]bool{}
	if viewer != nil && len(comments) > 0 {
		ids := make([]uint, 0, len(comments))
		for _, c := range comments {
			ids = append(ids, c.ID)
		}
		if voted, err = s.store.CommentVotes(ctx, viewer.ID, ids); err != nil {
			return nil, err
		}
	}

	page := &CommentPage{Comments: make([]CommentView, 0, len(comments)), CommentsCount: total}
	for i := range comments {
		page.Comments = append(page.Comments, s.view(&comments[i], viewer, voted[comments[i].ID]))
	}
	return page, nil
}

// Create adds a comment under a question or an answer and notifies the post author.
func (s *CommentService) Create(ctx context.Context, actor qa.Actor, postID uint, raw string) (*CommentView, error) {
	post, err := s.store.FindPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	topic, err := s.topics.Topic(ctx, post.TopicID)
	if err != nil {
		return nil, err
	}
	if !topic.QAEnabled {
		return nil, qa.Validation(qa.CodeCommentQANotEnabled)
	}
	if post.IsReply() {
		return nil, qa.Validation(qa.CodeCommentNotPermitted)
	}
	// 墓碑也算在上限里
	count, err := s.store.CountComments(ctx, postID, true)
	if err != nil {
		return nil, err
	}
	if s.rules.LimitPerPost > 0 && count >= int64(s.rules.LimitPerPost) {
		return nil, qa.Validation(qa.CodeCommentLimitExceeded, "limit", s.rules.LimitPerPost)
	}
	if err := s.checkLength(raw); err != nil {
		return nil, err
	}

	comment := &models.Comment{
		PostID:        postID,
		UserID:        actor.ID,
		Raw:           raw,
		Cooked:        utils.CookComment(raw),
		CookedVersion: models.CommentCookedVersion,
	}
	var notify func(*models.Comment) *models.Notification
	if post.UserID != actor.ID {
		notify = func(c *models.Comment) *models.Notification {
			return s.notification(actor, post, c)
		}
	}
	if err := s.store.CreateComment(ctx, comment, notify); err != nil {
		return nil, err
	}

	s.publish(ctx, post.TopicID, qa.ChangeCommentCreate, comment)
	if s.ranking != nil {
		s.ranking.ScheduleUpdate(post.TopicID)
	}
	view := s.view(comment, &actor, false)
	return &view, nil
}

// Update replaces the raw of a comment. Owner or staff only.
func (s *CommentService) Update(ctx context.Context, actor qa.Actor, commentID uint, raw string) (*CommentView, error) {
	comment, err := s.store.FindComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if !canModify(actor, comment) {
		return nil, qa.Forbidden(qa.CodeCommentEditForbidden)
	}
	if err := s.checkLength(raw); err != nil {
		return nil, err
	}
	post, err := s.store.FindPost(ctx, comment.PostID)
	if err != nil {
		return nil, err
	}

	comment.Raw = raw
	comment.Cooked = utils.CookComment(raw)
	comment.CookedVersion = models.CommentCookedVersion
	if err := s.store.UpdateComment(ctx, comment); err != nil {
		return nil, err
	}

	s.publish(ctx, post.TopicID, qa.ChangeCommentEdit, comment)
	view := s.view(comment, &actor, false)
	return &view, nil
}

// Delete trashes a comment. The row stays so ranking and the ledger still see it.
func (s *CommentService) Delete(ctx context.Context, actor qa.Actor, commentID uint) error {
	comment, err := s.store.FindComment(ctx, commentID)
	if err != nil {
		return err
	}
	if !canModify(actor, comment) {
		return qa.Forbidden(qa.CodeCommentEditForbidden)
	}
	post, err := s.store.FindPost(ctx, comment.PostID)
	if err != nil {
		return err
	}
	if err := s.store.TrashComment(ctx, comment); err != nil {
		return err
	}
	s.publish(ctx, post.TopicID, qa.ChangeCommentTrash, comment)
	return nil
}

// SetAsAnswer turns a reply into a top-level answer. Staff only.
func (s *CommentService) SetAsAnswer(ctx context.Context, actor qa.Actor, postID uint) error {
	if !actor.Staff {
		return qa.ErrInvalidAccess
	}
	post, err := s.store.FindPost(ctx, postID)
	if err != nil {
		return err
	}
	if !post.IsReply() {
		return nil
	}
	if err := s.store.ClearReplyTo(ctx, postID); err != nil {
		return err
	}
	if s.ranking != nil {
		s.ranking.ScheduleUpdate(post.TopicID)
	}
	return nil
}

func (s *CommentService) checkLength(raw string) error {
	n := utils.StrippedLength(raw)
	if n < s.rules.MinRawLength {
		return qa.Validation(qa.CodeCommentTooShort, "min", s.rules.MinRawLength)
	}
	if s.rules.MaxRawLength > 0 && n > s.rules.MaxRawLength {
		return qa.Validation(qa.CodeCommentTooLong, "max", s.rules.MaxRawLength)
	}
	return nil
}

func (s *CommentService) notification(actor qa.Actor, post *models.Post, c *models.Comment) *models.Notification {
	data, _ := json.Marshal(map[string]any{
		"qa_comment_id":    c.ID,
		"display_username": actor.Username,
		"excerpt":          utils.Excerpt(c.Cooked, 100),
	})
	actorID := actor.ID
	return &models.Notification{
		UserID:     post.UserID,
		ActorID:    &actorID,
		Type:       models.NotificationTypeQAUserCommented,
		TopicID:    post.TopicID,
		PostNumber: post.PostNumber,
		Data:       string(data),
	}
}

// publish 在写入完成后推送，失败只记日志
func (s *CommentService) publish(ctx context.Context, topicID uint, kind string, c *models.Comment) {
	if s.notifier == nil {
		return
	}
	pubCtx := context.WithoutCancel(ctx)
	if s.opts.NotifyTimeout > 0 {
		var cancel context.CancelFunc
		pubCtx, cancel = context.WithTimeout(pubCtx, s.opts.NotifyTimeout)
		defer cancel()
	}

	count, err := s.store.CountComments(pubCtx, c.PostID, false)
	if err == nil {
		err = s.notifier.PublishComment(pubCtx, topicID, qa.CommentChange{
			Type:          kind,
			ID:            c.ID,
			PostID:        c.PostID,
			CommentsCount: count,
		})
	}
	s.opts.Metrics.ObserveNotification(kind, err)
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"topic_id":   topicID,
			"comment_id": c.ID,
		}).Warn("publish comment change failed")
	}
}

func (s *CommentService) view(c *models.Comment, viewer *qa.Actor, voted bool) CommentView {
	v := CommentView{
		ID:          c.ID,
		PostID:      c.PostID,
		UserID:      c.UserID,
		Username:    c.User.Username,
		Raw:         c.Raw,
		Cooked:      c.Cooked,
		QAVoteCount: c.QAVoteCount,
		UserVoted:   voted,
		CreatedAt:   c.CreatedAt,
	}
	if viewer != nil {
		v.CanEdit = canModify(*viewer, c)
	}
	return v
}

func canModify(actor qa.Actor, c *models.Comment) bool {
	return actor.Staff || actor.ID == c.UserID
}
