package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"photogram/internal/models"
	"photogram/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Snapshot store keys and TTLs. Snapshots only warm-start the cache after a
// daemon restart; authoritative state always comes from the gateway, so short
// TTLs are fine.
const (
	snapshotKeyPrefix = "snapshot:%s:%s"
	snapshotTTL       = 30 * time.Minute
)

var snapshotClient *redis.Client

type metricsHook struct{}

func (h metricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h metricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, redis.Nil) {
			observability.RedisErrors.WithLabelValues(cmd.Name()).Inc()
		}
		return err
	}
}

func (h metricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if err != nil && !errors.Is(err, redis.Nil) {
			observability.RedisErrors.WithLabelValues("pipeline").Inc()
		}
		return err
	}
}

// InitSnapshotStore initializes the Redis client backing cache snapshots.
// When Redis is unreachable the store stays disabled and the runtime cold
// starts instead.
func InitSnapshotStore(addr string) {
	var opts *redis.Options
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			log.Printf("Redis connection warning: invalid REDIS_URL %q: %v (continuing without snapshots)", addr, err)
			snapshotClient = nil
			return
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}

	snapshotClient = redis.NewClient(opts)
	snapshotClient.AddHook(metricsHook{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := snapshotClient.Ping(ctx).Err(); err != nil {
		log.Printf("Redis connection warning: %v (continuing without snapshots)", err)
		snapshotClient = nil
	} else {
		log.Println("Redis connected successfully")
	}
}

// SnapshotClient returns the current Redis client instance, nil when disabled.
func SnapshotClient() *redis.Client {
	return snapshotClient
}

// SetSnapshotClient overrides the snapshot client. Used by tests with miniredis.
func SetSnapshotClient(c *redis.Client) {
	snapshotClient = c
}

func snapshotKey(userID, key string) string {
	return fmt.Sprintf(snapshotKeyPrefix, userID, key)
}

type feedSnapshot struct {
	Posts   []*models.Post `json:"posts"`
	SavedAt time.Time      `json:"saved_at"`
}

// SaveFeedSnapshot persists the materialized feed document for a user so a
// restarted daemon can render immediately while the first fetch is in flight.
func SaveFeedSnapshot(ctx context.Context, userID string, posts []*models.Post) {
	if snapshotClient == nil {
		return
	}
	raw, err := json.Marshal(feedSnapshot{Posts: posts, SavedAt: time.Now().UTC()})
	if err != nil {
		return
	}
	snapshotClient.Set(ctx, snapshotKey(userID, GetFeed.Name), raw, snapshotTTL)
}

// LoadFeedSnapshot returns the last persisted feed document for a user, or
// ok=false when none exists or the store is disabled.
func LoadFeedSnapshot(ctx context.Context, userID string) ([]*models.Post, bool) {
	if snapshotClient == nil {
		return nil, false
	}
	raw, err := snapshotClient.Get(ctx, snapshotKey(userID, GetFeed.Name)).Bytes()
	if err != nil {
		return nil, false
	}
	var snap feedSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, false
	}
	return snap.Posts, true
}

// InvalidateSnapshots drops every persisted snapshot for a user. Called on
// sign-out alongside Cache.Clear.
func InvalidateSnapshots(ctx context.Context, userID string) {
	if snapshotClient == nil {
		return
	}
	pattern := snapshotKey(userID, "*")
	iter := snapshotClient.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		snapshotClient.Del(ctx, iter.Val())
	}
}
