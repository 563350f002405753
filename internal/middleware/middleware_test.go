package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qalink/internal/models"
)

func withUser(u *models.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		if u != nil {
			c.Set(CheckUserKey, u)
		}
		c.Next()
	}
}

func serve(r *gin.Engine, method, path, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = ip + ":1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ok := func(c *gin.Context) { c.Status(http.StatusNoContent) }

	anon := gin.New()
	anon.GET("/", withUser(nil), AuthRequired(), ok)
	w := serve(anon, http.MethodGet, "/", "10.0.0.1")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "not_logged_in")

	logged := gin.New()
	logged.GET("/", withUser(&models.User{ID: 7}), AuthRequired(), ok)
	assert.Equal(t, http.StatusNoContent, serve(logged, http.MethodGet, "/", "10.0.0.1").Code)
}

type users map[uint]*models.User

func (u users) FindUser(_ context.Context, id uint) (*models.User, error) {
	if user, ok := u[id]; ok {
		return user, nil
	}
	return nil, errors.New("not found")
}

func TestRateLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter, err := NewRateLimiter(60, 2, 100)
	require.NoError(t, err)

	r := gin.New()
	r.Use(limiter.Middleware())
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodPost, "/", "10.0.0.1").Code)
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodPost, "/", "10.0.0.1").Code)
	w := serve(r, http.MethodPost, "/", "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate_limit")

	// 其它 IP 不受影响
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodPost, "/", "10.0.0.2").Code)

	_, err = NewRateLimiter(60, 2, 0)
	assert.Error(t, err)
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger, hook := logtest.NewNullLogger()

	r := gin.New()
	r.Use(withUser(&models.User{ID: 3}), RequestLogger(logrus.NewEntry(logger)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusForbidden) })

	serve(r, http.MethodGet, "/ok", "10.0.0.1")
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "/ok", entry.Data["path"])
	assert.Equal(t, uint(3), entry.Data["user_id"])

	serve(r, http.MethodGet, "/bad", "10.0.0.1")
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestLoadUserFromSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(sessions.Sessions("test", cookie.NewStore([]byte("secret"))))
	r.POST("/login", func(c *gin.Context) {
		s := sessions.Default(c)
		s.Set(SessionUserKey, uint(5))
		require.NoError(t, s.Save())
		c.Status(http.StatusNoContent)
	})
	r.GET("/me", LoadUser(users{5: {ID: 5, Username: "bob"}}), func(c *gin.Context) {
		u, ok := CurrentUser(c)
		if !ok {
			c.Status(http.StatusUnauthorized)
			return
		}
		c.String(http.StatusOK, u.Username)
	})

	w := serve(r, http.MethodPost, "/login", "10.0.0.1")
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bob", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/me", "10.0.0.1").Code)
}
