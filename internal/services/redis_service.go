package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// RosterChangedChannel carries the id of a document whose roster changed.
	RosterChangedChannel = "collab:roster-changed"

	rosterKeyPrefix  = "collab:roster:"
	profileKeyPrefix = "collab:profile:"
	rateKeyPrefix    = "collab:ratelimit:"
)

// ErrCacheMiss is returned by Get when the key does not exist.
var ErrCacheMiss = errors.New("cache miss")

type RedisService struct {
	client *redis.Client
}

func NewRedisService(client *redis.Client) *RedisService {
	return &RedisService{
		client: client,
	}
}

func (r *RedisService) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// =============================================================================
// Roster Change Signals
// =============================================================================

func (r *RedisService) PublishRosterChanged(ctx context.Context, documentID string) error {
	err := r.client.Publish(ctx, RosterChangedChannel, documentID).Err()
	if err != nil {
		slog.Error("Failed to publish roster change", "documentID", documentID, "error", err)
		return err
	}

	slog.Debug("Published roster change", "documentID", documentID)
	return nil
}

// SubscribeRosterChanges delivers document ids published on
// RosterChangedChannel until ctx is done. The subscription is confirmed
// before it returns.
func (r *RedisService) SubscribeRosterChanges(ctx context.Context) (<-chan string, error) {
	pubsub := r.client.Subscribe(ctx, RosterChangedChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", RosterChangedChannel, err)
	}
	slog.Debug("Subscribed to channels", "channels", []string{RosterChangedChannel})

	out := make(chan string)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// =============================================================================
// Rate Limiting
// =============================================================================

// CheckRateLimit records one hit for key and reports whether fewer than limit
// hits were seen within window before it.
func (r *RedisService) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	key = rateKeyPrefix + key
	now := time.Now()
	windowStart := now.Add(-window).UnixNano()

	pipe := r.client.Pipeline()

	// Remove old entries
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart))

	// Count current entries
	count := pipe.ZCard(ctx, key)

	// Add current request
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})

	// Set expiration
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return count.Val() < int64(limit), nil
}

// =============================================================================
// Cache Operations
// =============================================================================

func (r *RedisService) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return r.client.Set(ctx, key, data, expiration).Err()
}

func (r *RedisService) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return err
	}

	return json.Unmarshal([]byte(data), dest)
}

func (r *RedisService) Delete(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

func RosterKey(documentID string) string {
	return rosterKeyPrefix + documentID
}

func ProfileKey(userID string) string {
	return profileKeyPrefix + userID
}
