package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"docinsight/internal/model"
)

// RunStore keeps workflow run snapshots in Redis and fans every saved
// snapshot out on a per-run pub/sub channel.
type RunStore struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewRunStore(client *redisv9.Client, ttl time.Duration) *RunStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RunStore{client: client, ttl: ttl}
}

func (s *RunStore) Save(ctx context.Context, run *model.WorkflowRun) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal workflow run failed: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, runKey(run.ID), payload, s.ttl)
	pipe.Publish(ctx, runChannel(run.ID), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save workflow run failed: %w", err)
	}
	return nil
}

func (s *RunStore) Get(ctx context.Context, id string) (*model.WorkflowRun, error) {
	raw, err := s.client.Get(ctx, runKey(id)).Bytes()
	if err == redisv9.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get workflow run failed: %w", err)
	}
	var run model.WorkflowRun
	if err := json.Unmarshal(raw, &run); err != nil {
		return nil, fmt.Errorf("unmarshal workflow run failed: %w", err)
	}
	return &run, nil
}

// Subscribe streams snapshots saved after the subscription is confirmed. The
// channel closes when ctx ends or the returned stop func is called.
func (s *RunStore) Subscribe(ctx context.Context, id string) (<-chan model.WorkflowRun, func(), error) {
	sub := s.client.Subscribe(ctx, runChannel(id))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("redis subscribe workflow run failed: %w", err)
	}

	out := make(chan model.WorkflowRun, 8)
	go func() {
		defer close(out)
		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var run model.WorkflowRun
				if err := json.Unmarshal([]byte(msg.Payload), &run); err != nil {
					continue
				}
				select {
				case out <- run:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, func() { _ = sub.Close() }, nil
}

func runKey(id string) string {
	return "workflow:run:" + id
}

func runChannel(id string) string {
	return "workflow:run:events:" + id
}
