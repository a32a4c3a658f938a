package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"docinsight/internal/app"
	"docinsight/internal/pkg/jwtutil"
	"docinsight/internal/transport/http/middleware"
	"docinsight/internal/transport/http/response"
)

func getUserIDFromContext(c *gin.Context) (uint, bool) {
	userIDAny, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := userIDAny.(uint)
	return userID, ok && userID > 0
}

func getClaimsFromContext(c *gin.Context) (*jwtutil.Claims, bool) {
	claimsAny, exists := c.Get(middleware.ContextClaimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := claimsAny.(*jwtutil.Claims)
	return claims, ok
}

// writeError maps service errors onto the JSON envelope.
func writeError(c *gin.Context, err error, fallback string) {
	var verr *app.ValidationError
	switch {
	case errors.As(err, &verr):
		response.Invalid(c, verr.Error(), verr.Fields)
	case errors.Is(err, app.ErrDocumentUnreadable):
		response.Error(c, http.StatusBadRequest, response.CodeDocumentUnreadable, "Could not process the document. "+err.Error())
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrEmailExists):
		response.Error(c, http.StatusConflict, response.CodeEmailExists, err.Error())
	case errors.Is(err, app.ErrInvalidCredential):
		response.Error(c, http.StatusUnauthorized, response.CodeInvalidCredentials, err.Error())
	case errors.Is(err, app.ErrUserNotFound):
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, err.Error())
	case errors.Is(err, app.ErrPermissionDenied):
		response.Error(c, http.StatusForbidden, response.CodeForbidden, "you do not have access to this record")
	case errors.Is(err, app.ErrSummaryNotFound):
		response.Error(c, http.StatusNotFound, response.CodeSummaryNotFound, err.Error())
	case errors.Is(err, app.ErrRunNotFound):
		response.Error(c, http.StatusNotFound, response.CodeRunNotFound, err.Error())
	case errors.Is(err, app.ErrWorkflowEnqueue):
		response.Error(c, http.StatusServiceUnavailable, response.CodeUnavailable, "Could not process the document. The processing queue is unavailable.")
	default:
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}

func setTokenCookie(c *gin.Context, token string, ttl time.Duration, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.TokenCookie, token, int(ttl.Seconds()), "/", "", secure, true)
}

func clearTokenCookie(c *gin.Context, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.TokenCookie, "", -1, "/", "", secure, true)
}

func sanitizeSSE(input string) string {
	replaced := strings.ReplaceAll(input, "\r\n", "\\n")
	replaced = strings.ReplaceAll(replaced, "\n", "\\n")
	return replaced
}

// sseStream writes server-sent events and flushes after each one.
type sseStream struct {
	c       *gin.Context
	flusher http.Flusher
}

func openSSE(c *gin.Context) (*sseStream, bool) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return nil, false
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	flusher.Flush()
	return &sseStream{c: c, flusher: flusher}, true
}

func (s *sseStream) event(name string, data []byte) error {
	if _, err := fmt.Fprintf(s.c.Writer, "event: %s\ndata: %s\n\n", name, sanitizeSSE(string(data))); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseStream) ping() error {
	if _, err := s.c.Writer.Write([]byte(": ping\n\n")); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
