package ai

import (
	"context"
	"errors"
	"fmt"
	neturl "net/url"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// ErrMalformedResponse means the model answered but not in the expected shape.
var ErrMalformedResponse = errors.New("malformed model response")

type BreakerConfig struct {
	Enabled          bool
	MinRequests      uint32
	FailureRatio     float64
	OpenTimeout      time.Duration
	HalfOpenMaxCalls uint32
}

type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Breaker BreakerConfig
}

// ChatClient issues single chat completions against an OpenAI-compatible
// endpoint. Requests are never retried; when the breaker is open calls fail
// without reaching the endpoint.
type ChatClient struct {
	api     openai.Client
	breaker *gobreaker.CircuitBreaker[string]
	logger  *zap.Logger
}

func NewChatClient(cfg ClientConfig, logger *zap.Logger) *ChatClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if base := normalizeBaseURL(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	c := &ChatClient{
		api:    openai.NewClient(opts...),
		logger: logger,
	}
	if cfg.Breaker.Enabled {
		c.breaker = newBreaker("llm.chat", cfg.Breaker, logger)
	}
	return c
}

func (c *ChatClient) Complete(ctx context.Context, model string, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	call := func() (string, error) {
		resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model:    openai.ChatModel(model),
			Messages: messages,
		})
		if err != nil {
			return "", fmt.Errorf("model request failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("%w: no choices", ErrMalformedResponse)
		}
		content := strings.TrimSpace(resp.Choices[0].Message.Content)
		if content == "" {
			return "", fmt.Errorf("%w: empty content", ErrMalformedResponse)
		}
		return content, nil
	}

	if c.breaker == nil {
		return call()
	}
	content, err := c.breaker.Execute(call)
	if IsCircuitOpen(err) {
		return "", fmt.Errorf("model endpoint temporarily unavailable: %w", err)
	}
	return content, err
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func newBreaker(name string, cfg BreakerConfig, logger *zap.Logger) *gobreaker.CircuitBreaker[string] {
	if cfg.HalfOpenMaxCalls == 0 {
		cfg.HalfOpenMaxCalls = 1
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = 1
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenMaxCalls,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
		// A well-formed HTTP exchange with an unusable body, or a caller
		// that gave up, says nothing about endpoint health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrMalformedResponse) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return gobreaker.NewCircuitBreaker[string](settings)
}

// normalizeBaseURL makes sure the path ends in /v1/ so that relative
// endpoint paths resolve under it.
func normalizeBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return ""
	}
	parsed, err := neturl.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.TrimRight(base, "/") + "/"
	}
	path := strings.TrimRight(parsed.Path, "/")
	if !strings.HasSuffix(path, "/v1") {
		path += "/v1"
	}
	parsed.Path = path + "/"
	return parsed.String()
}
