package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docinsight/internal/app"
	"docinsight/internal/model"
	"docinsight/internal/transport/http/middleware"
	"docinsight/internal/view"
)

const recentSummaryCount = 5

// PageHandler serves the server-rendered HTML surface.
type PageHandler struct {
	authService     *app.AuthService
	workflowService *app.WorkflowService
	historyService  *app.HistoryService
	cookieSecure    bool
}

func NewPageHandler(authService *app.AuthService, workflowService *app.WorkflowService, historyService *app.HistoryService, cookieSecure bool) *PageHandler {
	return &PageHandler{
		authService:     authService,
		workflowService: workflowService,
		historyService:  historyService,
		cookieSecure:    cookieSecure,
	}
}

func (h *PageHandler) Landing(c *gin.Context) {
	h.render(c, http.StatusOK, "landing", gin.H{"PageTitle": "Document insights"})
}

func (h *PageHandler) Login(c *gin.Context) {
	h.render(c, http.StatusOK, "login", gin.H{
		"PageTitle": "Sign in",
		"Next":      safeNext(c.Query("next")),
	})
}

func (h *PageHandler) SignIn(c *gin.Context) {
	next := safeNext(c.PostForm("next"))
	result, err := h.authService.Login(c.Request.Context(), app.LoginInput{
		Email:    c.PostForm("email"),
		Password: c.PostForm("password"),
	})
	if err != nil {
		status, message := http.StatusInternalServerError, "Sign in failed. Try again later."
		if errors.Is(err, app.ErrInvalidCredential) || errors.Is(err, app.ErrInvalidInput) {
			status, message = http.StatusUnauthorized, "Incorrect email or password."
		}
		h.render(c, status, "login", gin.H{
			"PageTitle":  "Sign in",
			"Next":       next,
			"Email":      c.PostForm("email"),
			"LoginError": message,
		})
		return
	}
	setTokenCookie(c, result.Token, h.authService.TokenTTL(), h.cookieSecure)
	c.Redirect(http.StatusSeeOther, next)
}

func (h *PageHandler) SignUp(c *gin.Context) {
	next := safeNext(c.PostForm("next"))
	result, err := h.authService.Register(c.Request.Context(), app.RegisterInput{
		Email:       c.PostForm("email"),
		Password:    c.PostForm("password"),
		DisplayName: c.PostForm("display_name"),
	})
	if err != nil {
		data := gin.H{
			"PageTitle":     "Sign in",
			"Next":          next,
			"RegisterEmail": c.PostForm("email"),
			"DisplayName":   c.PostForm("display_name"),
		}
		var verr *app.ValidationError
		status := http.StatusBadRequest
		switch {
		case errors.As(err, &verr):
			data["RegisterErrors"] = verr.Fields
		case errors.Is(err, app.ErrEmailExists):
			data["RegisterErrors"] = map[string]string{"email": "An account with this email already exists."}
		default:
			status = http.StatusInternalServerError
			data["RegisterErrors"] = map[string]string{"form": "Sign up failed. Try again later."}
		}
		h.render(c, status, "login", data)
		return
	}
	setTokenCookie(c, result.Token, h.authService.TokenTTL(), h.cookieSecure)
	c.Redirect(http.StatusSeeOther, next)
}

func (h *PageHandler) SignOut(c *gin.Context) {
	if claims, ok := getClaimsFromContext(c); ok {
		if err := h.authService.Logout(c.Request.Context(), claims); err != nil {
			_ = c.Error(err)
		}
	}
	clearTokenCookie(c, h.cookieSecure)
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *PageHandler) Dashboard(c *gin.Context) {
	userID, _ := getUserIDFromContext(c)
	ctx := c.Request.Context()

	user, err := h.authService.GetUserByID(ctx, userID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	summaries, err := h.historyService.List(ctx, userID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	recent := summaries
	if len(recent) > recentSummaryCount {
		recent = recent[:recentSummaryCount]
	}
	h.render(c, http.StatusOK, "dashboard", gin.H{
		"PageTitle": "Dashboard",
		"User":      user,
		"Total":     len(summaries),
		"Recent":    recent,
	})
}

func (h *PageHandler) NewWorkflow(c *gin.Context) {
	h.render(c, http.StatusOK, "new_workflow", h.workflowFormData(nil, ""))
}

func (h *PageHandler) SubmitWorkflow(c *gin.Context) {
	userID, _ := getUserIDFromContext(c)

	title, uploads, cleanup, err := readWorkflowForm(c, h.workflowService.Constraints())
	defer cleanup()
	if err == nil {
		var run *model.WorkflowRun
		run, err = h.workflowService.Submit(c.Request.Context(), app.SubmitWorkflowInput{
			UserID: userID,
			Title:  title,
			Files:  uploads,
		})
		if err == nil {
			c.Redirect(http.StatusSeeOther, "/dashboard/runs/"+run.ID)
			return
		}
	}

	var verr *app.ValidationError
	switch {
	case errors.As(err, &verr):
		h.render(c, http.StatusBadRequest, "new_workflow", h.workflowFormData(verr.Fields, title))
	case errors.Is(err, app.ErrDocumentUnreadable), errors.Is(err, app.ErrInvalidInput):
		h.render(c, http.StatusBadRequest, "new_workflow", h.workflowFormData(map[string]string{
			"form": "Could not process the document. " + err.Error(),
		}, title))
	case errors.Is(err, app.ErrWorkflowEnqueue):
		h.render(c, http.StatusServiceUnavailable, "new_workflow", h.workflowFormData(map[string]string{
			"form": "Could not process the document. The processing queue is unavailable.",
		}, title))
	default:
		h.renderError(c, err)
	}
}

func (h *PageHandler) Run(c *gin.Context) {
	userID, _ := getUserIDFromContext(c)
	run, err := h.workflowService.GetRun(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	h.render(c, http.StatusOK, "run", gin.H{
		"PageTitle": run.Title,
		"Run":       run,
	})
}

func (h *PageHandler) History(c *gin.Context) {
	userID, _ := getUserIDFromContext(c)
	summaries, err := h.historyService.List(c.Request.Context(), userID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	h.render(c, http.StatusOK, "history", gin.H{
		"PageTitle": "History",
		"Summaries": summaries,
	})
}

func (h *PageHandler) Detail(c *gin.Context) {
	userID, _ := getUserIDFromContext(c)
	h.renderDetail(c, userID, c.Param("id"), http.StatusOK, nil, nil)
}

func (h *PageHandler) EditSummary(c *gin.Context) {
	userID, _ := getUserIDFromContext(c)
	summaryID := c.Param("id")

	_, err := h.historyService.Update(c.Request.Context(), app.UpdateSummaryInput{
		UserID:    userID,
		SummaryID: summaryID,
		Title:     c.PostForm("title"),
		Content:   c.PostForm("content"),
	})
	var verr *app.ValidationError
	switch {
	case err == nil:
		c.Redirect(http.StatusSeeOther, "/dashboard/history/"+summaryID)
	case errors.As(err, &verr):
		h.renderDetail(c, userID, summaryID, http.StatusBadRequest, verr.Fields, gin.H{
			"Title":   c.PostForm("title"),
			"Content": c.PostForm("content"),
		})
	default:
		h.renderError(c, err)
	}
}

func (h *PageHandler) DeleteSummary(c *gin.Context) {
	userID, _ := getUserIDFromContext(c)
	if err := h.historyService.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.renderError(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/dashboard/history")
}

func (h *PageHandler) NotFound(c *gin.Context) {
	h.render(c, http.StatusNotFound, "error", gin.H{
		"PageTitle": "Not found",
		"Status":    http.StatusNotFound,
		"Message":   "This page does not exist.",
	})
}

func (h *PageHandler) renderDetail(c *gin.Context, userID uint, summaryID string, status int, formErrors map[string]string, form gin.H) {
	detail, err := h.historyService.Get(c.Request.Context(), userID, summaryID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	page, err := view.NewDetail(*detail)
	if err != nil {
		h.renderError(c, err)
		return
	}
	if form == nil {
		form = gin.H{"Title": page.Title, "Content": page.Content}
	}
	h.render(c, status, "detail", gin.H{
		"PageTitle":  page.Title,
		"Detail":     page,
		"Form":       form,
		"FormErrors": formErrors,
	})
}

func (h *PageHandler) workflowFormData(formErrors map[string]string, title string) gin.H {
	constraints := h.workflowService.Constraints()
	return gin.H{
		"PageTitle":     "New workflow",
		"FormErrors":    formErrors,
		"FormTitle":     title,
		"TitleMaxRunes": constraints.TitleMaxRunes,
		"MaxFileBytes":  constraints.MaxFileBytes,
	}
}

// renderError shows a page-level error matching the failure.
func (h *PageHandler) renderError(c *gin.Context, err error) {
	status, message := http.StatusInternalServerError, "Something went wrong. Try again later."
	switch {
	case errors.Is(err, app.ErrPermissionDenied):
		status, message = http.StatusForbidden, "You do not have permission to view this record."
	case errors.Is(err, app.ErrSummaryNotFound), errors.Is(err, app.ErrRunNotFound):
		status, message = http.StatusNotFound, "This record does not exist or was deleted."
	case errors.Is(err, app.ErrUserNotFound):
		status, message = http.StatusUnauthorized, "Your account could not be found. Sign in again."
	default:
		_ = c.Error(err)
	}
	h.render(c, status, "error", gin.H{
		"PageTitle": http.StatusText(status),
		"Status":    status,
		"Message":   message,
	})
}

func (h *PageHandler) render(c *gin.Context, status int, name string, data gin.H) {
	if email, ok := c.Get(middleware.ContextEmailKey); ok {
		data["SignedInAs"] = email
	}
	c.HTML(status, name, data)
}

// safeNext keeps post-login redirects on this site.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/dashboard"
	}
	return next
}
