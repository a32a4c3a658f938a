package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"docinsight/internal/app"
	"docinsight/internal/model"
	"docinsight/internal/transport/http/response"
)

const (
	formTitleField    = "title"
	formDocumentField = "document"
	multipartOverhead = 1 << 20
	ssePingInterval   = 15 * time.Second
)

type RunWatcher interface {
	Subscribe(ctx context.Context, runID string) (<-chan model.WorkflowRun, func(), error)
}

type WorkflowHandler struct {
	workflowService *app.WorkflowService
	runs            RunWatcher
}

func NewWorkflowHandler(workflowService *app.WorkflowService, runs RunWatcher) *WorkflowHandler {
	return &WorkflowHandler{workflowService: workflowService, runs: runs}
}

func (h *WorkflowHandler) Submit(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	title, uploads, cleanup, err := readWorkflowForm(c, h.workflowService.Constraints())
	defer cleanup()
	if err != nil {
		writeError(c, err, "read upload failed")
		return
	}

	run, err := h.workflowService.Submit(c.Request.Context(), app.SubmitWorkflowInput{
		UserID: userID,
		Title:  title,
		Files:  uploads,
	})
	if err != nil {
		writeError(c, err, "submit workflow failed")
		return
	}
	response.Accepted(c, run)
}

func (h *WorkflowHandler) Get(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	run, err := h.workflowService.GetRun(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err, "get workflow run failed")
		return
	}
	response.OK(c, run)
}

// Events streams run snapshots until the run reaches a terminal state.
func (h *WorkflowHandler) Events(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	runID := c.Param("id")
	ctx := c.Request.Context()

	if _, err := h.workflowService.GetRun(ctx, userID, runID); err != nil {
		writeError(c, err, "get workflow run failed")
		return
	}

	updates, stop, err := h.runs.Subscribe(ctx, runID)
	if err != nil {
		writeError(c, err, "subscribe workflow run failed")
		return
	}
	defer stop()

	// Re-read after subscribing so a transition between the two calls is not lost.
	current, err := h.workflowService.GetRun(ctx, userID, runID)
	if err != nil {
		writeError(c, err, "get workflow run failed")
		return
	}

	stream, ok := openSSE(c)
	if !ok {
		return
	}
	if done := sendRun(stream, current); done {
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
		case run, ok := <-updates:
			if !ok {
				return
			}
			if done := sendRun(stream, &run); done {
				return
			}
		}
	}
}

// sendRun writes one snapshot and reports whether the stream should end.
func sendRun(stream *sseStream, run *model.WorkflowRun) bool {
	payload, err := json.Marshal(run)
	if err != nil {
		return true
	}
	if err := stream.event("run", payload); err != nil {
		return true
	}
	if run.State.Terminal() {
		_ = stream.event("done", []byte(run.State))
		return true
	}
	return false
}

// readWorkflowForm parses the multipart body. Oversized bodies are reported
// as the same field error the constraints produce.
func readWorkflowForm(c *gin.Context, constraints app.WorkflowConstraints) (string, []app.DocumentUpload, func(), error) {
	noop := func() {}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, constraints.MaxFileBytes+multipartOverhead)

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, noop, constraints.FileTooLarge()
		}
		return "", nil, noop, app.ErrInvalidInput
	}
	cleanup := func() { _ = form.RemoveAll() }

	title := ""
	if values := form.Value[formTitleField]; len(values) > 0 {
		title = values[0]
	}
	headers := form.File[formDocumentField]
	uploads := make([]app.DocumentUpload, 0, len(headers))
	for _, fh := range headers {
		uploads = append(uploads, toUpload(fh))
	}
	return title, uploads, cleanup, nil
}

func toUpload(fh *multipart.FileHeader) app.DocumentUpload {
	return app.DocumentUpload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}
