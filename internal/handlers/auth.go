package handlers

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"qalink/internal/middleware"
	"qalink/internal/models"
	"qalink/internal/utils"
)

// UserFinder looks users up by username or email.
type UserFinder interface {
	FindUserByLogin(ctx context.Context, login string) (*models.User, error)
}

type AuthHandler struct {
	users UserFinder
	log   *logrus.Entry
}

func NewAuthHandler(users UserFinder, log *logrus.Entry) *AuthHandler {
	return &AuthHandler{users: users, log: log}
}

type loginRequest struct {
	Login    string `json:"login" form:"login" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

// Login 用户名或邮箱登录，成功后写入 session
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bind(c, &req) {
		return
	}
	user, err := h.users.FindUserByLogin(c.Request.Context(), req.Login)
	if err != nil || !utils.CheckPasswordHash(req.Password, user.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"errors":     []string{"Incorrect username, email or password."},
			"error_type": "invalid_login",
		})
		return
	}

	session := sessions.Default(c)
	session.Set(middleware.SessionUserKey, user.ID)
	if err := session.Save(); err != nil {
		RenderError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": user.ID, "username": user.Username, "trust_level": user.TrustLevel})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		RenderError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": "OK"})
}
