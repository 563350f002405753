package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"qalink/internal/services"
)

const commentsPageSize = 20

type CommentHandler struct {
	comments *services.CommentService
	log      *logrus.Entry
}

func NewCommentHandler(comments *services.CommentService, log *logrus.Entry) *CommentHandler {
	return &CommentHandler{comments: comments, log: log}
}

type listCommentsRequest struct {
	PostID        uint `form:"post_id" binding:"required"`
	LastCommentID uint `form:"last_comment_id"`
}

// List 加载更多评论，从 last_comment_id 之后开始
func (h *CommentHandler) List(c *gin.Context) {
	var req listCommentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		renderBadRequest(c, err)
		return
	}
	page, err := h.comments.List(c.Request.Context(), optionalActor(c), req.PostID, req.LastCommentID, commentsPageSize)
	if err != nil {
		RenderError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

type createCommentRequest struct {
	PostID uint   `json:"post_id" form:"post_id" binding:"required"`
	Raw    string `json:"raw" form:"raw"`
}

func (h *CommentHandler) Create(c *gin.Context) {
	var req createCommentRequest
	if !bind(c, &req) {
		return
	}
	view, err := h.comments.Create(c.Request.Context(), currentActor(c), req.PostID, req.Raw)
	if err != nil {
		RenderError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type updateCommentRequest struct {
	CommentID uint   `json:"comment_id" form:"comment_id" binding:"required"`
	Raw       string `json:"raw" form:"raw"`
}

func (h *CommentHandler) Update(c *gin.Context) {
	var req updateCommentRequest
	if !bind(c, &req) {
		return
	}
	view, err := h.comments.Update(c.Request.Context(), currentActor(c), req.CommentID, req.Raw)
	if err != nil {
		RenderError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type deleteCommentRequest struct {
	CommentID uint `json:"comment_id" form:"comment_id" binding:"required"`
}

func (h *CommentHandler) Destroy(c *gin.Context) {
	var req deleteCommentRequest
	if !bind(c, &req) {
		return
	}
	if err := h.comments.Delete(c.Request.Context(), currentActor(c), req.CommentID); err != nil {
		RenderError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": "OK"})
}

type setAsAnswerRequest struct {
	PostID uint `json:"post_id" form:"post_id" binding:"required"`
}

// SetAsAnswer 管理员把楼中回复提升为独立回答
func (h *CommentHandler) SetAsAnswer(c *gin.Context) {
	var req setAsAnswerRequest
	if !bind(c, &req) {
		return
	}
	if err := h.comments.SetAsAnswer(c.Request.Context(), currentActor(c), req.PostID); err != nil {
		RenderError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": "OK"})
}
