package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	redrepo "github.com/ivankudzin/groupguard/internal/repo/redis"
)

type fakeDeleter struct {
	deleted []int
	failFor map[int]error
}

func (f *fakeDeleter) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err, ok := f.failFor[messageID]; ok {
		return err
	}
	f.deleted = append(f.deleted, messageID)
	return nil
}

func newTestService(t *testing.T) (*miniredis.Miniredis, *goredis.Client, *Service, *fakeDeleter) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	deleter := &fakeDeleter{}
	svc := NewService(redrepo.NewTaskRepo(client), deleter, nil)
	return mr, client, svc, deleter
}

func TestSweepHonorsDelayLowerBound(t *testing.T) {
	mr, client, svc, deleter := newTestService(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	ctx := context.Background()
	scheduledAt := time.Now()

	if err := svc.Schedule(ctx, -100500, 10, 30*time.Second, 0); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	completed, err := svc.Sweep(ctx, scheduledAt.Add(5*time.Second))
	if err != nil {
		t.Fatalf("early sweep: %v", err)
	}
	if completed != 0 || len(deleter.deleted) != 0 {
		t.Fatalf("task executed before its due time: completed=%d deleted=%v", completed, deleter.deleted)
	}

	completed, err = svc.Sweep(ctx, scheduledAt.Add(31*time.Second))
	if err != nil {
		t.Fatalf("due sweep: %v", err)
	}
	if completed != 1 {
		t.Fatalf("expected 1 completed task, got %d", completed)
	}
	if len(deleter.deleted) != 1 || deleter.deleted[0] != 10 {
		t.Fatalf("unexpected deletions: %v", deleter.deleted)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	mr, client, svc, deleter := newTestService(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	ctx := context.Background()
	scheduledAt := time.Now()

	if err := svc.Schedule(ctx, -100500, 10, time.Second, 0); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	due := scheduledAt.Add(2 * time.Second)
	if _, err := svc.Sweep(ctx, due); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	completed, err := svc.Sweep(ctx, due)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}

	if completed != 0 {
		t.Fatalf("second sweep must be a no-op, completed %d", completed)
	}
	if len(deleter.deleted) != 1 {
		t.Fatalf("expected at most one deletion call per task, got %d", len(deleter.deleted))
	}
}

func TestSweepDeletesCompanionMessage(t *testing.T) {
	mr, client, svc, deleter := newTestService(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	ctx := context.Background()

	if err := svc.Schedule(ctx, -100500, 10, 0, 11); err != nil {
		t.Fatalf("schedule with companion: %v", err)
	}

	completed, err := svc.Sweep(ctx, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if completed != 1 {
		t.Fatalf("expected 1 completed task, got %d", completed)
	}
	if len(deleter.deleted) != 2 {
		t.Fatalf("expected target and companion deleted, got %v", deleter.deleted)
	}
}

func TestSweepRetainsFailedTaskForRetry(t *testing.T) {
	mr, client, svc, deleter := newTestService(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	ctx := context.Background()
	deleter.failFor = map[int]error{20: errors.New("telegram: internal error")}

	if err := svc.Schedule(ctx, -100500, 10, 0, 0); err != nil {
		t.Fatalf("schedule #10: %v", err)
	}
	if err := svc.Schedule(ctx, -100500, 20, 0, 0); err != nil {
		t.Fatalf("schedule #20: %v", err)
	}
	if err := svc.Schedule(ctx, -100500, 30, 0, 0); err != nil {
		t.Fatalf("schedule #30: %v", err)
	}

	now := time.Now().Add(time.Second)
	completed, err := svc.Sweep(ctx, now)
	if err != nil {
		t.Fatalf("sweep with one failing task: %v", err)
	}
	if completed != 2 {
		t.Fatalf("healthy tasks must complete despite the failure, got %d", completed)
	}

	// The failed task is retried once the gateway recovers.
	deleter.failFor = nil
	completed, err = svc.Sweep(ctx, now)
	if err != nil {
		t.Fatalf("retry sweep: %v", err)
	}
	if completed != 1 {
		t.Fatalf("expected the retained task to complete on retry, got %d", completed)
	}
}

func TestScheduleValidatesInput(t *testing.T) {
	mr, client, svc, _ := newTestService(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	if err := svc.Schedule(context.Background(), 0, 10, time.Second, 0); err != ErrValidation {
		t.Fatalf("expected validation error for zero chat id, got %v", err)
	}
	if err := svc.Schedule(context.Background(), -100500, 0, time.Second, 0); err != ErrValidation {
		t.Fatalf("expected validation error for zero message id, got %v", err)
	}
}
