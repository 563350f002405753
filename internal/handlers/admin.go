package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"qalink/internal/models"
	"qalink/internal/services"
	"qalink/internal/utils"
)

type AdminHandler struct {
	admin *services.AdminService
	log   *logrus.Entry
}

func NewAdminHandler(admin *services.AdminService, log *logrus.Entry) *AdminHandler {
	return &AdminHandler{admin: admin, log: log}
}

type categoryQARequest struct {
	QAEnabled *bool `json:"qa_enabled"`
	models.CategoryFlags
}

// UpdateCategory 切换分类的问答开关和点赞屏蔽标记，开关变化时分类下的话题在后台重排
func (h *AdminHandler) UpdateCategory(c *gin.Context) {
	id, ok := utils.ParseID(c.Param("id"))
	if !ok {
		renderBadRequest(c, errors.New("invalid category id"))
		return
	}
	var req categoryQARequest
	if !bind(c, &req) {
		return
	}
	hasFlags := len(req.CategoryFlags.Columns()) > 0
	if req.QAEnabled == nil && !hasFlags {
		renderBadRequest(c, errors.New("nothing to update"))
		return
	}
	ctx, actor := c.Request.Context(), currentActor(c)
	if hasFlags {
		if err := h.admin.SetCategoryFlags(ctx, actor, id, req.CategoryFlags); err != nil {
			RenderError(c, h.log, err)
			return
		}
	}
	if req.QAEnabled != nil {
		if err := h.admin.SetCategoryQA(ctx, actor, id, *req.QAEnabled); err != nil {
			RenderError(c, h.log, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": "OK"})
}

type topicQARequest struct {
	Subtype *string  `json:"subtype"`
	Tags    []string `json:"tags"`
}

// UpdateTopic 修改话题的 subtype 或标签并重排
func (h *AdminHandler) UpdateTopic(c *gin.Context) {
	id, ok := utils.ParseID(c.Param("id"))
	if !ok {
		renderBadRequest(c, errors.New("invalid topic id"))
		return
	}
	var req topicQARequest
	if !bind(c, &req) {
		return
	}
	if err := h.admin.UpdateTopicQA(c.Request.Context(), currentActor(c), id, req.Subtype, req.Tags); err != nil {
		RenderError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": "OK"})
}
