package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/groupguard/internal/domain/model"
	redrepo "github.com/ivankudzin/groupguard/internal/repo/redis"
)

var ErrValidation = errors.New("validation error")

type Store interface {
	Put(ctx context.Context, task model.DeletionTask) error
	ListDue(ctx context.Context, now time.Time) ([]redrepo.DueTask, error)
	Remove(ctx context.Context, key string) error
}

type Deleter interface {
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

// Service is the deferred deletion scheduler. It holds no timers of its own:
// an external trigger (ticker loop or HTTP endpoint) drives Sweep.
type Service struct {
	store   Store
	deleter Deleter
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(store Store, deleter Deleter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		store:   store,
		deleter: deleter,
		logger:  logger,
		now:     time.Now,
	}
}

// Schedule persists a request to delete a message no earlier than delay from
// now. companionMessageID optionally names a second message to remove in the
// same pass; pass 0 for none.
func (s *Service) Schedule(ctx context.Context, chatID int64, messageID int, delay time.Duration, companionMessageID int) error {
	if chatID == 0 || messageID <= 0 {
		return ErrValidation
	}
	if s.store == nil {
		return fmt.Errorf("task store is nil")
	}
	if delay < 0 {
		delay = 0
	}

	task := model.DeletionTask{
		ChatID:             chatID,
		MessageID:          messageID,
		CompanionMessageID: companionMessageID,
		NotAfter:           s.now().Add(delay),
	}
	if err := s.store.Put(ctx, task); err != nil {
		return fmt.Errorf("schedule deletion task: %w", err)
	}
	return nil
}

// Sweep executes every task due at or before now and returns how many tasks
// completed. One task's failure never aborts the batch: a task whose gateway
// call fails is retained and retried on the next sweep, which is safe
// because message deletion is idempotent.
func (s *Service) Sweep(ctx context.Context, now time.Time) (int, error) {
	if s.store == nil || s.deleter == nil {
		return 0, fmt.Errorf("scheduler dependencies are not configured")
	}
	if now.IsZero() {
		now = s.now()
	}

	due, err := s.store.ListDue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list due deletion tasks: %w", err)
	}

	completed := 0
	for _, entry := range due {
		if !s.execute(ctx, entry.Task) {
			continue
		}
		if err := s.store.Remove(ctx, entry.Key); err != nil {
			s.logger.Warn("failed to remove completed deletion task", zap.Error(err), zap.String("key", entry.Key))
			continue
		}
		completed++
	}

	if completed > 0 {
		s.logger.Info("deletion sweep completed", zap.Int("deleted", completed), zap.Int("due", len(due)))
	}
	return completed, nil
}

func (s *Service) execute(ctx context.Context, task model.DeletionTask) bool {
	ok := true
	if err := s.deleter.DeleteMessage(ctx, task.ChatID, task.MessageID); err != nil {
		s.logger.Warn("failed to delete scheduled message",
			zap.Error(err),
			zap.Int64("chat_id", task.ChatID),
			zap.Int("message_id", task.MessageID),
		)
		ok = false
	}
	if task.CompanionMessageID > 0 {
		if err := s.deleter.DeleteMessage(ctx, task.ChatID, task.CompanionMessageID); err != nil {
			s.logger.Warn("failed to delete companion message",
				zap.Error(err),
				zap.Int64("chat_id", task.ChatID),
				zap.Int("message_id", task.CompanionMessageID),
			)
			ok = false
		}
	}
	return ok
}
