package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ivankudzin/groupguard/internal/domain/model"
)

const (
	taskPrefix    = "deltask:"
	taskScanCount = 200
)

// TaskRepo persists deferred deletion tasks. The due time is encoded in the
// key (deltask:<due-unix, zero-padded>:<chat>:<message>), so a sweep decides
// due-ness from the key alone and never fetches values of pending tasks.
type TaskRepo struct {
	client *goredis.Client
}

// DueTask pairs a due task with its storage key so the caller can remove
// exactly the entry it executed.
type DueTask struct {
	Key  string
	Task model.DeletionTask
}

func NewTaskRepo(client *goredis.Client) *TaskRepo {
	return &TaskRepo{client: client}
}

func (r *TaskRepo) Put(ctx context.Context, task model.DeletionTask) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if task.ChatID == 0 || task.MessageID <= 0 {
		return fmt.Errorf("invalid deletion task payload")
	}
	if task.NotAfter.IsZero() {
		return fmt.Errorf("deletion task due time is required")
	}

	raw, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal deletion task: %w", err)
	}
	if err := r.client.Set(ctx, taskKey(task), raw, 0).Err(); err != nil {
		return fmt.Errorf("set deletion task: %w", err)
	}
	return nil
}

// ListDue scans the task prefix, following cursors until exhausted, and
// returns every task whose due time is at or before now. Entries with a
// malformed key or value are removed so they cannot jam future sweeps.
func (r *TaskRepo) ListDue(ctx context.Context, now time.Time) ([]DueTask, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}

	var due []DueTask
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, taskPrefix+"*", taskScanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("scan deletion tasks: %w", err)
		}

		for _, key := range keys {
			dueAt, ok := dueFromKey(key)
			if !ok {
				_ = r.client.Del(ctx, key).Err()
				continue
			}
			if dueAt.After(now) {
				continue
			}

			raw, err := r.client.Get(ctx, key).Result()
			if err == goredis.Nil {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("get deletion task: %w", err)
			}

			var task model.DeletionTask
			if err := json.Unmarshal([]byte(raw), &task); err != nil || task.ChatID == 0 || task.MessageID <= 0 {
				_ = r.client.Del(ctx, key).Err()
				continue
			}
			due = append(due, DueTask{Key: key, Task: task})
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}
	return due, nil
}

func (r *TaskRepo) Remove(ctx context.Context, key string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if !strings.HasPrefix(key, taskPrefix) {
		return fmt.Errorf("invalid deletion task key %q", key)
	}

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("remove deletion task: %w", err)
	}
	return nil
}

func taskKey(task model.DeletionTask) string {
	return fmt.Sprintf("%s%010d:%d:%d", taskPrefix, task.NotAfter.Unix(), task.ChatID, task.MessageID)
}

func dueFromKey(key string) (time.Time, bool) {
	parts := strings.Split(strings.TrimPrefix(key, taskPrefix), ":")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	unix, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || unix <= 0 {
		return time.Time{}, false
	}
	return time.Unix(unix, 0), true
}
