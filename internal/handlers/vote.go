package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"qalink/internal/models"
	"qalink/internal/qa"
)

type VoteHandler struct {
	votes *qa.VoteManager
	log   *logrus.Entry
}

func NewVoteHandler(votes *qa.VoteManager, log *logrus.Entry) *VoteHandler {
	return &VoteHandler{votes: votes, log: log}
}

type postVoteRequest struct {
	PostID    uint   `json:"post_id" form:"post_id" binding:"required"`
	Direction string `json:"direction" form:"direction"`
}

type commentVoteRequest struct {
	CommentID uint `json:"comment_id" form:"comment_id" binding:"required"`
}

// Create 对回答投票，方向默认为 up，相反方向的旧票会被翻转
func (h *VoteHandler) Create(c *gin.Context) {
	var req postVoteRequest
	if !bind(c, &req) {
		return
	}
	direction, err := qa.ParseDirection(req.Direction)
	if err != nil {
		RenderError(c, h.log, err)
		return
	}
	actor := currentActor(c)
	result, err := h.votes.CastVote(c.Request.Context(), actor, qa.PostRef(req.PostID), direction)
	if err != nil {
		RenderError(c, h.log, err)
		return
	}
	h.renderPostVote(c, actor, result)
}

// Destroy 撤销回答上的投票，受撤销时间窗限制
func (h *VoteHandler) Destroy(c *gin.Context) {
	var req postVoteRequest
	if !bind(c, &req) {
		return
	}
	actor := currentActor(c)
	result, err := h.votes.RemoveVote(c.Request.Context(), actor, qa.PostRef(req.PostID))
	if err != nil {
		RenderError(c, h.log, err)
		return
	}
	h.renderPostVote(c, actor, result)
}

// CreateCommentVote 评论只能投赞成票
func (h *VoteHandler) CreateCommentVote(c *gin.Context) {
	var req commentVoteRequest
	if !bind(c, &req) {
		return
	}
	result, err := h.votes.CastVote(c.Request.Context(), currentActor(c), qa.CommentRef(req.CommentID), models.VoteUp)
	if err != nil {
		RenderError(c, h.log, err)
		return
	}
	h.renderCommentVote(c, result, true)
}

// DestroyCommentVote 评论投票没有撤销时间窗
func (h *VoteHandler) DestroyCommentVote(c *gin.Context) {
	var req commentVoteRequest
	if !bind(c, &req) {
		return
	}
	result, err := h.votes.RemoveVote(c.Request.Context(), currentActor(c), qa.CommentRef(req.CommentID))
	if err != nil {
		RenderError(c, h.log, err)
		return
	}
	h.renderCommentVote(c, result, false)
}

type votersRequest struct {
	PostID uint `form:"post_id" binding:"required"`
}

// Voters 最近的投票人，最多 voters_limit 个
func (h *VoteHandler) Voters(c *gin.Context) {
	var req votersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		renderBadRequest(c, err)
		return
	}
	voters, err := h.votes.Voters(c.Request.Context(), qa.PostRef(req.PostID))
	if err != nil {
		RenderError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"voters": voters})
}

func (h *VoteHandler) renderPostVote(c *gin.Context, actor qa.Actor, r *qa.VoteResult) {
	canVote, err := h.votes.CanVote(c.Request.Context(), actor, r.TopicID)
	if err != nil {
		h.log.WithError(err).WithField("topic_id", r.TopicID).Warn("compute can_vote failed")
	}
	c.JSON(http.StatusOK, gin.H{
		"post_id":                 r.Ref.ID,
		"qa_vote_count":           r.VoteCount,
		"qa_has_votes":            r.HasVotes,
		"qa_user_voted_direction": r.Direction,
		"qa_can_vote":             canVote,
	})
}

func (h *VoteHandler) renderCommentVote(c *gin.Context, r *qa.VoteResult, voted bool) {
	c.JSON(http.StatusOK, gin.H{
		"comment_id":    r.Ref.ID,
		"qa_vote_count": r.VoteCount,
		"qa_has_votes":  r.HasVotes,
		"user_voted":    voted,
	})
}
