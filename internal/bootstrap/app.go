package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"docinsight/internal/ai"
	"docinsight/internal/app"
	"docinsight/internal/cache"
	"docinsight/internal/config"
	"docinsight/internal/logging"
	"docinsight/internal/model"
	"docinsight/internal/observability/metrics"
	mongoClient "docinsight/internal/platform/mongo"
	mysqlClient "docinsight/internal/platform/mysql"
	rabbitmqClient "docinsight/internal/platform/rabbitmq"
	redisClient "docinsight/internal/platform/redis"
	"docinsight/internal/repository"
	"docinsight/internal/repository/mongostore"
	"docinsight/internal/worker"
)

const submitWindow = time.Minute

type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	MySQL   *gorm.DB
	Mongo   *mongo.Client
	Redis   *redis.Client
	MQConn  *amqp.Connection
	Metrics *metrics.Metrics

	AuthService     *app.AuthService
	WorkflowService *app.WorkflowService
	HistoryService  *app.HistoryService
	RunStore        *cache.RunStore
	SummaryEvents   *cache.SummaryEvents
	SubmitLimiter   *cache.RateLimiter
	JobPublisher    *rabbitmqClient.JobPublisher
	WorkflowWorker  *worker.WorkflowWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	logger := logging.New(cfg.App.Name, cfg.Log)

	a := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}
	if err := a.connect(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	summaryStore, err := a.summaryStore(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.wire(summaryStore)

	if err := a.WorkflowWorker.Start(ctx); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("start workflow worker failed: %w", err)
	}

	a.StartedAt = time.Now()
	logger.Info("application bootstrapped",
		zap.String("env", cfg.App.Env),
		zap.String("store", cfg.Store.Driver),
	)
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN(), strings.EqualFold(cfg.Log.Level, "debug"))
	if err != nil {
		return err
	}
	a.MySQL = mysqlDB

	// Users always live in MySQL; summaries follow store.driver.
	tables := []any{&model.User{}}
	if cfg.Store.Driver == config.StoreDriverMySQL {
		tables = append(tables, &model.Summary{}, &model.Insight{})
	}
	if err := mysqlDB.AutoMigrate(tables...); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}

	if cfg.Store.Driver == config.StoreDriverMongo {
		mongoCli, err := mongoClient.New(ctx, cfg.Mongo.URI)
		if err != nil {
			return err
		}
		a.Mongo = mongoCli
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	a.Redis = redisCli

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.WorkflowQueue)
	if err != nil {
		return err
	}
	a.MQConn = mqConn
	return nil
}

func (a *App) summaryStore(ctx context.Context) (app.SummaryStore, error) {
	if a.Mongo == nil {
		return repository.NewSummaryRepository(a.MySQL), nil
	}
	store := mongostore.NewSummaryStore(a.Mongo.Database(a.Config.Mongo.Database), a.Logger)
	if err := store.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (a *App) wire(summaryStore app.SummaryStore) {
	cfg := a.Config
	logger := a.Logger

	chat := ai.NewChatClient(ai.ClientConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		Breaker: ai.BreakerConfig{
			Enabled:      cfg.LLM.BreakerEnabled,
			MinRequests:  cfg.LLM.BreakerMinReqs,
			FailureRatio: cfg.LLM.BreakerRatio,
			OpenTimeout:  time.Duration(cfg.LLM.BreakerOpenSec) * time.Second,
		},
	}, logger.Named("ai"))

	a.RunStore = cache.NewRunStore(a.Redis, time.Duration(cfg.Redis.RunTTLSeconds)*time.Second)
	a.SummaryEvents = cache.NewSummaryEvents(a.Redis)
	a.SubmitLimiter = cache.NewRateLimiter(a.Redis, "submit", cfg.RateLimit.SubmitPerMinute, submitWindow)
	a.JobPublisher = rabbitmqClient.NewJobPublisher(a.MQConn, cfg.RabbitMQ.WorkflowQueue)

	a.AuthService = app.NewAuthService(
		repository.NewUserRepository(a.MySQL),
		cache.NewTokenDenylist(a.Redis),
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
	)
	a.WorkflowService = app.NewWorkflowService(app.WorkflowServiceDeps{
		Constraints: app.WorkflowConstraints{
			TitleMinRunes: 1,
			TitleMaxRunes: cfg.Workflow.TitleMaxRunes,
			MaxFileBytes:  cfg.Workflow.MaxFileBytes,
		},
		Summarizer: ai.NewSummarizer(chat, cfg.LLM.SummaryModel),
		Extractor:  ai.NewInsightExtractor(chat, cfg.LLM.InsightModel),
		Store:      summaryStore,
		Runs:       a.RunStore,
		Jobs:       a.JobPublisher,
		Observer:   a.Metrics,
		Logger:     logger.Named("workflow"),
	})
	a.HistoryService = app.NewHistoryService(
		summaryStore,
		cache.NewDetailCache(a.Redis,
			time.Duration(cfg.Redis.DetailTTLSeconds)*time.Second,
			time.Duration(cfg.Redis.DetailDirtyTTLSecond)*time.Second,
		),
		a.SummaryEvents,
		logger.Named("history"),
	)
	a.WorkflowWorker = worker.NewWorkflowWorker(
		a.MQConn,
		a.WorkflowService,
		a.Metrics,
		cfg.RabbitMQ.WorkflowQueue,
		cfg.RabbitMQ.Prefetch,
		logger.Named("worker"),
	)
}

// Close releases resources in reverse dependency order and reports every failure.
func (a *App) Close() error {
	var errs []error
	if a.WorkflowWorker != nil {
		a.WorkflowWorker.Close()
	}
	if a.JobPublisher != nil {
		if err := a.JobPublisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Mongo.Disconnect(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return errors.Join(errs...)
}
