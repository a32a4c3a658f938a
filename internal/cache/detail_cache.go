package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"docinsight/internal/app"
)

// setIfClean stores the detail only while no dirty marker exists, so the check
// and the write cannot interleave with a concurrent MarkDirty.
var setIfClean = redisv9.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 1 then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

// DetailCache holds rendered-ready summary details. A short-lived dirty marker
// set on every write keeps readers from repopulating the entry with stale data.
type DetailCache struct {
	client         *redisv9.Client
	detailTTL      time.Duration
	dirtyMarkerTTL time.Duration
}

func NewDetailCache(client *redisv9.Client, detailTTL, dirtyMarkerTTL time.Duration) *DetailCache {
	if detailTTL <= 0 {
		detailTTL = 60 * time.Second
	}
	if dirtyMarkerTTL <= 0 {
		dirtyMarkerTTL = 5 * time.Second
	}
	return &DetailCache{
		client:         client,
		detailTTL:      detailTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

func (c *DetailCache) Get(ctx context.Context, summaryID string) (*app.SummaryDetail, bool, error) {
	raw, err := c.client.Get(ctx, c.detailKey(summaryID)).Bytes()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get summary detail failed: %w", err)
	}

	var detail app.SummaryDetail
	if err := json.Unmarshal(raw, &detail); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached summary detail failed: %w", err)
	}
	return &detail, true, nil
}

// Set is a no-op while the summary is marked dirty.
func (c *DetailCache) Set(ctx context.Context, detail *app.SummaryDetail) error {
	payload, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("marshal summary detail failed: %w", err)
	}
	id := detail.Summary.ID
	keys := []string{c.detailKey(id), c.dirtyKey(id)}
	if err := setIfClean.Run(ctx, c.client, keys, payload, c.detailTTL.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis set summary detail failed: %w", err)
	}
	return nil
}

func (c *DetailCache) Delete(ctx context.Context, summaryID string) error {
	if err := c.client.Del(ctx, c.detailKey(summaryID)).Err(); err != nil {
		return fmt.Errorf("redis delete summary detail failed: %w", err)
	}
	return nil
}

func (c *DetailCache) MarkDirty(ctx context.Context, summaryID string) error {
	if err := c.client.Set(ctx, c.dirtyKey(summaryID), "1", c.dirtyMarkerTTL).Err(); err != nil {
		return fmt.Errorf("redis set dirty marker failed: %w", err)
	}
	return nil
}

func (c *DetailCache) IsDirty(ctx context.Context, summaryID string) (bool, error) {
	exists, err := c.client.Exists(ctx, c.dirtyKey(summaryID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	return exists > 0, nil
}

func (c *DetailCache) detailKey(summaryID string) string {
	return "summary:detail:" + summaryID
}

func (c *DetailCache) dirtyKey(summaryID string) string {
	return "summary:detail:dirty:" + summaryID
}
