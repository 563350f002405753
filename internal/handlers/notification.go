package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"qalink/internal/models"
	"qalink/internal/utils"
)

const notificationsPageSize = 50

// NotificationStore reads and acknowledges a user's notifications.
type NotificationStore interface {
	ListNotifications(ctx context.Context, userID uint, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id uint) error
	MarkAllNotificationsRead(ctx context.Context, userID uint) (int64, error)
}

type NotificationHandler struct {
	store NotificationStore
	log   *logrus.Entry
}

func NewNotificationHandler(store NotificationStore, log *logrus.Entry) *NotificationHandler {
	return &NotificationHandler{store: store, log: log}
}

type notificationView struct {
	ID         uint                    `json:"id"`
	Type       models.NotificationType `json:"notification_type"`
	TopicID    uint                    `json:"topic_id"`
	PostNumber int                     `json:"post_number"`
	Data       json.RawMessage         `json:"data"`
	Read       bool                    `json:"read"`
	CreatedAt  time.Time               `json:"created_at"`
}

// List 当前用户最近的通知，unread=true 时只返回未读
func (h *NotificationHandler) List(c *gin.Context) {
	user := currentActor(c)
	notes, err := h.store.ListNotifications(c.Request.Context(), user.ID, c.Query("unread") == "true", notificationsPageSize)
	if err != nil {
		RenderError(c, h.log, err)
		return
	}

	views := make([]notificationView, 0, len(notes))
	for _, n := range notes {
		data := json.RawMessage(n.Data)
		if !json.Valid(data) {
			data = json.RawMessage("{}")
		}
		views = append(views, notificationView{
			ID:         n.ID,
			Type:       n.Type,
			TopicID:    n.TopicID,
			PostNumber: n.PostNumber,
			Data:       data,
			Read:       n.IsRead,
			CreatedAt:  n.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"notifications": views})
}

func (h *NotificationHandler) Read(c *gin.Context) {
	id, ok := utils.ParseID(c.Param("id"))
	if !ok {
		renderBadRequest(c, errors.New("invalid notification id"))
		return
	}
	if err := h.store.MarkNotificationRead(c.Request.Context(), currentActor(c).ID, id); err != nil {
		RenderError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": "OK"})
}

func (h *NotificationHandler) ReadAll(c *gin.Context) {
	n, err := h.store.MarkAllNotificationsRead(c.Request.Context(), currentActor(c).ID)
	if err != nil {
		RenderError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": "OK", "marked": n})
}
