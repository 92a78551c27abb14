package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ViolationRepo is the per-(chat, user) violation counter. Counters use the
// atomic INCR primitive, so concurrent violations from duplicate webhook
// deliveries are never lost. A missing key counts as zero.
type ViolationRepo struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewViolationRepo(client *goredis.Client, ttl time.Duration) *ViolationRepo {
	return &ViolationRepo{client: client, ttl: ttl}
}

func (r *ViolationRepo) Increment(ctx context.Context, chatID, userID int64) (int64, error) {
	if r.client == nil {
		return 0, fmt.Errorf("redis client is nil")
	}
	if chatID == 0 || userID <= 0 {
		return 0, fmt.Errorf("invalid violation key payload")
	}

	key := violationKey(chatID, userID)
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("increment violation count: %w", err)
	}
	if r.ttl > 0 {
		if err := r.client.Expire(ctx, key, r.ttl).Err(); err != nil {
			return 0, fmt.Errorf("set violation count ttl: %w", err)
		}
	}
	return count, nil
}

func (r *ViolationRepo) Count(ctx context.Context, chatID, userID int64) (int64, error) {
	if r.client == nil {
		return 0, fmt.Errorf("redis client is nil")
	}
	if chatID == 0 || userID <= 0 {
		return 0, fmt.Errorf("invalid violation key payload")
	}

	raw, err := r.client.Get(ctx, violationKey(chatID, userID)).Result()
	if err == goredis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get violation count: %w", err)
	}

	count, parseErr := strconv.ParseInt(raw, 10, 64)
	if parseErr != nil || count < 0 {
		// Corrupt counter reads as absent and self-heals on the next write.
		return 0, nil
	}
	return count, nil
}

func (r *ViolationRepo) Reset(ctx context.Context, chatID, userID int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if chatID == 0 || userID <= 0 {
		return fmt.Errorf("invalid violation key payload")
	}

	if err := r.client.Del(ctx, violationKey(chatID, userID)).Err(); err != nil {
		return fmt.Errorf("reset violation count: %w", err)
	}
	return nil
}

// Decrement lowers the counter by one, floored at zero. Read-modify-write:
// a concurrent increment may be overwritten, which is acceptable for a
// manual forgive action.
func (r *ViolationRepo) Decrement(ctx context.Context, chatID, userID int64) (int64, error) {
	count, err := r.Count(ctx, chatID, userID)
	if err != nil {
		return 0, err
	}
	if count <= 0 {
		return 0, r.Reset(ctx, chatID, userID)
	}

	next := count - 1
	if next == 0 {
		return 0, r.Reset(ctx, chatID, userID)
	}
	if err := r.client.Set(ctx, violationKey(chatID, userID), next, goredis.KeepTTL).Err(); err != nil {
		return 0, fmt.Errorf("decrement violation count: %w", err)
	}
	return next, nil
}

func violationKey(chatID, userID int64) string {
	return "violations:chat:" + strconv.FormatInt(chatID, 10) + ":user:" + strconv.FormatInt(userID, 10)
}
