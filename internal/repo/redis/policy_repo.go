package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ivankudzin/groupguard/internal/domain/model"
)

type PolicyRepo struct {
	client *goredis.Client
}

func NewPolicyRepo(client *goredis.Client) *PolicyRepo {
	return &PolicyRepo{client: client}
}

// Get returns the stored policy for a chat. A missing or corrupt record is
// reported as absent; the caller falls back to defaults.
func (r *PolicyRepo) Get(ctx context.Context, chatID int64) (model.ChatPolicy, bool, error) {
	if r.client == nil {
		return model.ChatPolicy{}, false, fmt.Errorf("redis client is nil")
	}
	if chatID == 0 {
		return model.ChatPolicy{}, false, fmt.Errorf("chat id is required")
	}

	raw, err := r.client.Get(ctx, policyKey(chatID)).Result()
	if err == goredis.Nil {
		return model.ChatPolicy{}, false, nil
	}
	if err != nil {
		return model.ChatPolicy{}, false, fmt.Errorf("get chat policy: %w", err)
	}

	var policy model.ChatPolicy
	if err := json.Unmarshal([]byte(raw), &policy); err != nil || !policy.Valid() {
		return model.ChatPolicy{}, false, nil
	}
	return policy, true, nil
}

func (r *PolicyRepo) Set(ctx context.Context, chatID int64, policy model.ChatPolicy) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if chatID == 0 {
		return fmt.Errorf("chat id is required")
	}
	if !policy.Valid() {
		return fmt.Errorf("invalid chat policy: threshold=%d mute=%ds", policy.ViolationThreshold, policy.MuteDurationSeconds)
	}

	raw, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("marshal chat policy: %w", err)
	}
	if err := r.client.Set(ctx, policyKey(chatID), raw, 0).Err(); err != nil {
		return fmt.Errorf("set chat policy: %w", err)
	}
	return nil
}

func (r *PolicyRepo) Delete(ctx context.Context, chatID int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if chatID == 0 {
		return fmt.Errorf("chat id is required")
	}

	if err := r.client.Del(ctx, policyKey(chatID)).Err(); err != nil {
		return fmt.Errorf("delete chat policy: %w", err)
	}
	return nil
}

func policyKey(chatID int64) string {
	return "policy:chat:" + strconv.FormatInt(chatID, 10)
}
