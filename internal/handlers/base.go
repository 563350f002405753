package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"qalink/internal/middleware"
	"qalink/internal/qa"
)

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error) int {
	switch qa.KindOf(err) {
	case qa.KindNotFound:
		return http.StatusNotFound
	case qa.KindForbidden, qa.KindValidation:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// RenderError writes the JSON error body. Unknown errors are logged and hidden.
func RenderError(c *gin.Context, log *logrus.Entry, err error) {
	var qe *qa.Error
	if errors.As(err, &qe) {
		c.JSON(StatusFor(err), gin.H{
			"errors":     []string{qe.Message()},
			"error_type": qe.Code,
		})
		return
	}
	log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{
		"errors":     []string{"Something went wrong. Please try again."},
		"error_type": "internal_error",
	})
}

func renderBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"errors":     []string{err.Error()},
		"error_type": "invalid_parameters",
	})
}

// bind reads JSON bodies, and form or query values otherwise.
func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBind(req); err != nil {
		renderBadRequest(c, err)
		return false
	}
	return true
}

// currentActor assumes AuthRequired ran.
func currentActor(c *gin.Context) qa.Actor {
	user, _ := middleware.CurrentUser(c)
	return qa.ActorFromUser(user)
}

// optionalActor returns nil for anonymous requests.
func optionalActor(c *gin.Context) *qa.Actor {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return nil
	}
	actor := qa.ActorFromUser(user)
	return &actor
}
