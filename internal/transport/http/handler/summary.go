package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"docinsight/internal/app"
	"docinsight/internal/transport/http/response"
	"docinsight/internal/view"
)

type SummaryWatcher interface {
	Subscribe(ctx context.Context, summaryID string) (<-chan struct{}, func(), error)
}

type SummaryHandler struct {
	historyService *app.HistoryService
	watcher        SummaryWatcher
}

type UpdateSummaryRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func NewSummaryHandler(historyService *app.HistoryService, watcher SummaryWatcher) *SummaryHandler {
	return &SummaryHandler{historyService: historyService, watcher: watcher}
}

func (h *SummaryHandler) List(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	summaries, err := h.historyService.List(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err, "list summaries failed")
		return
	}
	response.OK(c, summaries)
}

func (h *SummaryHandler) Get(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	detail, err := h.loadDetail(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err, "get summary failed")
		return
	}
	response.OK(c, detail)
}

func (h *SummaryHandler) Update(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req UpdateSummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	summary, err := h.historyService.Update(c.Request.Context(), app.UpdateSummaryInput{
		UserID:    userID,
		SummaryID: c.Param("id"),
		Title:     req.Title,
		Content:   req.Content,
	})
	if err != nil {
		writeError(c, err, "update summary failed")
		return
	}
	response.OK(c, summary)
}

func (h *SummaryHandler) Delete(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	if err := h.historyService.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		writeError(c, err, "delete summary failed")
		return
	}
	response.OK(c, gin.H{"id": c.Param("id")})
}

// Events pushes a fresh detail whenever the summary changes and a final
// "deleted" event when it disappears.
func (h *SummaryHandler) Events(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	summaryID := c.Param("id")
	ctx := c.Request.Context()

	changes, stop, err := h.watcher.Subscribe(ctx, summaryID)
	if err != nil {
		writeError(c, err, "subscribe summary failed")
		return
	}
	defer stop()

	detail, err := h.loadDetail(ctx, userID, summaryID)
	if err != nil {
		writeError(c, err, "get summary failed")
		return
	}

	stream, ok := openSSE(c)
	if !ok {
		return
	}
	if !sendDetail(stream, detail) {
		return
	}

	ticker := time.NewTicker(ssePingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if stream.ping() != nil {
				return
			}
		case _, ok := <-changes:
			if !ok {
				return
			}
			detail, err := h.loadDetail(ctx, userID, summaryID)
			switch {
			case errors.Is(err, app.ErrSummaryNotFound), errors.Is(err, app.ErrPermissionDenied):
				_ = stream.event("deleted", []byte(summaryID))
				return
			case err != nil:
				_ = stream.event("error", []byte(err.Error()))
				return
			}
			if !sendDetail(stream, detail) {
				return
			}
		}
	}
}

func (h *SummaryHandler) loadDetail(ctx context.Context, userID uint, summaryID string) (*view.Detail, error) {
	detail, err := h.historyService.Get(ctx, userID, summaryID)
	if err != nil {
		return nil, err
	}
	return view.NewDetail(*detail)
}

func sendDetail(stream *sseStream, detail *view.Detail) bool {
	payload, err := json.Marshal(detail)
	if err != nil {
		return false
	}
	return stream.event("summary", payload) == nil
}
