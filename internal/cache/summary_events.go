package cache

import (
	"context"
	"fmt"

	redisv9 "github.com/redis/go-redis/v9"
)

// SummaryEvents announces that a stored summary changed.
type SummaryEvents struct {
	client *redisv9.Client
}

func NewSummaryEvents(client *redisv9.Client) *SummaryEvents {
	return &SummaryEvents{client: client}
}

func (e *SummaryEvents) PublishSummaryChanged(ctx context.Context, summaryID string) error {
	if err := e.client.Publish(ctx, summaryChannel(summaryID), summaryID).Err(); err != nil {
		return fmt.Errorf("redis publish summary change failed: %w", err)
	}
	return nil
}

// Subscribe yields one value per change notification until ctx ends or stop is called.
func (e *SummaryEvents) Subscribe(ctx context.Context, summaryID string) (<-chan struct{}, func(), error) {
	sub := e.client.Subscribe(ctx, summaryChannel(summaryID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("redis subscribe summary failed: %w", err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, func() { _ = sub.Close() }, nil
}

func summaryChannel(id string) string {
	return "summary:events:" + id
}
