package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appsvc "docinsight/internal/app"
	"docinsight/internal/bootstrap"
	"docinsight/internal/config"
	"docinsight/internal/transport/http/handler"
	"docinsight/internal/transport/http/middleware"
	"docinsight/internal/transport/http/web"
)

// Dependencies is everything the router needs. Tests build it from fakes.
type Dependencies struct {
	Config         *config.Config
	Logger         *zap.Logger
	Auth           *appsvc.AuthService
	Workflows      *appsvc.WorkflowService
	History        *appsvc.HistoryService
	RunWatcher     handler.RunWatcher
	SummaryWatcher handler.SummaryWatcher
	SubmitLimiter  middleware.Limiter
	Metrics        Metrics
	Health         *handler.HealthHandler
}

// Metrics is the request recorder that also exposes a scrape endpoint.
type Metrics interface {
	middleware.RequestRecorder
	Handler() http.Handler
}

func NewRouter(app *bootstrap.App) (*gin.Engine, error) {
	probes := []handler.Probe{
		handler.MySQLProbe(app.MySQL),
		handler.RedisProbe(app.Redis),
		handler.RabbitMQProbe(app.MQConn),
	}
	if app.Mongo != nil {
		probes = append(probes, handler.MongoProbe(app.Mongo))
	}

	return NewEngine(Dependencies{
		Config:         app.Config,
		Logger:         app.Logger,
		Auth:           app.AuthService,
		Workflows:      app.WorkflowService,
		History:        app.HistoryService,
		RunWatcher:     app.RunStore,
		SummaryWatcher: app.SummaryEvents,
		SubmitLimiter:  app.SubmitLimiter,
		Metrics:        app.Metrics,
		Health:         handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt, probes...),
	})
}

func NewEngine(deps Dependencies) (*gin.Engine, error) {
	gin.SetMode(deps.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.Recovery(deps.Logger), middleware.Logger(deps.Logger))
	if deps.Metrics != nil {
		router.Use(middleware.Metrics(deps.Metrics))
	}
	if origins := deps.Config.CORS.AllowOrigins; len(origins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	templates, err := web.Templates()
	if err != nil {
		return nil, fmt.Errorf("load templates failed: %w", err)
	}
	router.SetHTMLTemplate(templates)
	router.StaticFS("/static", web.Static())
	router.MaxMultipartMemory = deps.Workflows.Constraints().MaxFileBytes

	if deps.Health != nil {
		router.GET("/healthz", deps.Health.Check)
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	authHandler := handler.NewAuthHandler(deps.Auth, deps.Config.Auth.CookieSecure)
	workflowHandler := handler.NewWorkflowHandler(deps.Workflows, deps.RunWatcher)
	summaryHandler := handler.NewSummaryHandler(deps.History, deps.SummaryWatcher)
	pageHandler := handler.NewPageHandler(deps.Auth, deps.Workflows, deps.History, deps.Config.Auth.CookieSecure)

	requireAPI := middleware.AuthJWT(deps.Auth)
	submitGuards := []gin.HandlerFunc{}
	if deps.SubmitLimiter != nil {
		submitGuards = append(submitGuards, middleware.RateLimit(deps.SubmitLimiter, deps.Logger))
	}

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/logout", requireAPI, authHandler.Logout)
	authGroup.GET("/me", requireAPI, authHandler.Me)
	authGroup.PATCH("/me", requireAPI, authHandler.UpdateMe)

	workflowGroup := v1.Group("/workflows")
	workflowGroup.Use(requireAPI)
	workflowGroup.POST("", append(submitGuards, workflowHandler.Submit)...)
	workflowGroup.GET("/:id", workflowHandler.Get)
	workflowGroup.GET("/:id/events", workflowHandler.Events)

	summaryGroup := v1.Group("/summaries")
	summaryGroup.Use(requireAPI)
	summaryGroup.GET("", summaryHandler.List)
	summaryGroup.GET("/:id", summaryHandler.Get)
	summaryGroup.PUT("/:id", summaryHandler.Update)
	summaryGroup.DELETE("/:id", summaryHandler.Delete)
	summaryGroup.GET("/:id/events", summaryHandler.Events)

	public := router.Group("")
	public.Use(middleware.OptionalAuth(deps.Auth))
	public.GET("/", pageHandler.Landing)
	public.GET("/login", pageHandler.Login)
	public.POST("/login", pageHandler.SignIn)
	public.POST("/register", pageHandler.SignUp)

	pages := router.Group("")
	pages.Use(middleware.AuthPage(deps.Auth))
	pages.POST("/logout", pageHandler.SignOut)
	pages.GET("/dashboard", pageHandler.Dashboard)
	pages.GET("/dashboard/new-workflow", pageHandler.NewWorkflow)
	pages.POST("/dashboard/new-workflow", append(submitGuards, pageHandler.SubmitWorkflow)...)
	pages.GET("/dashboard/runs/:id", pageHandler.Run)
	pages.GET("/dashboard/history", pageHandler.History)
	pages.GET("/dashboard/history/:id", pageHandler.Detail)
	pages.POST("/dashboard/history/:id/edit", pageHandler.EditSummary)
	pages.POST("/dashboard/history/:id/delete", pageHandler.DeleteSummary)

	router.NoRoute(middleware.OptionalAuth(deps.Auth), pageHandler.NotFound)

	return router, nil
}
