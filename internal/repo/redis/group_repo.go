package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ivankudzin/groupguard/internal/domain/model"
)

type GroupRepo struct {
	client *goredis.Client
}

func NewGroupRepo(client *goredis.Client) *GroupRepo {
	return &GroupRepo{client: client}
}

func (r *GroupRepo) Register(ctx context.Context, group model.Group) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if group.ChatID == 0 {
		return fmt.Errorf("chat id is required")
	}

	raw, err := json.Marshal(group)
	if err != nil {
		return fmt.Errorf("marshal group record: %w", err)
	}
	if err := r.client.Set(ctx, groupKey(group.ChatID), raw, 0).Err(); err != nil {
		return fmt.Errorf("register group: %w", err)
	}
	return nil
}

func (r *GroupRepo) Get(ctx context.Context, chatID int64) (model.Group, bool, error) {
	if r.client == nil {
		return model.Group{}, false, fmt.Errorf("redis client is nil")
	}
	if chatID == 0 {
		return model.Group{}, false, fmt.Errorf("chat id is required")
	}

	raw, err := r.client.Get(ctx, groupKey(chatID)).Result()
	if err == goredis.Nil {
		return model.Group{}, false, nil
	}
	if err != nil {
		return model.Group{}, false, fmt.Errorf("get group record: %w", err)
	}

	var group model.Group
	if err := json.Unmarshal([]byte(raw), &group); err != nil {
		return model.Group{}, false, nil
	}
	return group, true, nil
}

func (r *GroupRepo) Delete(ctx context.Context, chatID int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if chatID == 0 {
		return fmt.Errorf("chat id is required")
	}

	if err := r.client.Del(ctx, groupKey(chatID)).Err(); err != nil {
		return fmt.Errorf("delete group record: %w", err)
	}
	return nil
}

func groupKey(chatID int64) string {
	return "group:chat:" + strconv.FormatInt(chatID, 10)
}
