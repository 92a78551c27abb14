package moderation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ivankudzin/groupguard/internal/config"
	"github.com/ivankudzin/groupguard/internal/domain/model"
	redrepo "github.com/ivankudzin/groupguard/internal/repo/redis"
	policysvc "github.com/ivankudzin/groupguard/internal/services/policy"
)

type fakeGateway struct {
	deleted    []int
	deleteErr  error
	restricted []time.Duration
	unmuted    int
	notices    []string
	nextMsgID  int
	scheduled  []int
}

func (f *fakeGateway) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeGateway) RestrictMember(ctx context.Context, chatID, userID int64, duration time.Duration) error {
	f.restricted = append(f.restricted, duration)
	return nil
}

func (f *fakeGateway) UnrestrictMember(ctx context.Context, chatID, userID int64) error {
	f.unmuted++
	return nil
}

func (f *fakeGateway) SendText(ctx context.Context, chatID int64, text string) (int, error) {
	f.notices = append(f.notices, text)
	f.nextMsgID++
	return 1000 + f.nextMsgID, nil
}

func (f *fakeGateway) Schedule(ctx context.Context, chatID int64, messageID int, delay time.Duration, companionMessageID int) error {
	f.scheduled = append(f.scheduled, messageID)
	return nil
}

func newTestService(t *testing.T) (*miniredis.Miniredis, *goredis.Client, *Service, *fakeGateway) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	policies := policysvc.NewService(redrepo.NewPolicyRepo(client), config.ModerationConfig{
		LinkFilterEnabled:    true,
		ForwardFilterEnabled: true,
		ViolationThreshold:   3,
		MuteDuration:         30 * time.Minute,
	})
	ledger := redrepo.NewViolationRepo(client, time.Hour)

	gw := &fakeGateway{}
	svc := NewService(Dependencies{
		Policies:   policies,
		Ledger:     ledger,
		Deleter:    gw,
		Restrictor: gw,
		Notifier:   gw,
		Notices:    gw,
	}, 30*time.Second, nil)

	return mr, client, svc, gw
}

func linkMessage(messageID int) model.Message {
	return model.Message{
		ChatID:    -100500,
		MessageID: messageID,
		SenderID:  42,
		Text:      "buy now https://spam.example.org/offer",
	}
}

func TestThresholdConvergence(t *testing.T) {
	mr, client, svc, gw := newTestService(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if err := svc.HandleMessage(ctx, linkMessage(i)); err != nil {
			t.Fatalf("handle violation #%d: %v", i, err)
		}
	}

	if len(gw.deleted) != 3 {
		t.Fatalf("expected 3 deleted messages, got %d", len(gw.deleted))
	}
	if len(gw.restricted) != 1 {
		t.Fatalf("expected exactly one mute per threshold, got %d", len(gw.restricted))
	}
	if gw.restricted[0] != 30*time.Minute {
		t.Fatalf("unexpected mute duration: %s", gw.restricted[0])
	}

	if len(gw.notices) != 3 {
		t.Fatalf("expected 3 notices, got %d", len(gw.notices))
	}
	if !strings.Contains(gw.notices[0], "1/3") {
		t.Fatalf("first warning should read 1/3: %q", gw.notices[0])
	}
	if !strings.Contains(gw.notices[1], "2/3") {
		t.Fatalf("second warning should read 2/3: %q", gw.notices[1])
	}
	if !strings.Contains(gw.notices[2], "muted") {
		t.Fatalf("third notice should announce mute: %q", gw.notices[2])
	}

	// Every notice is itself scheduled for self-deletion.
	if len(gw.scheduled) != 3 {
		t.Fatalf("expected 3 self-deleting notices, got %d", len(gw.scheduled))
	}

	ledger := redrepo.NewViolationRepo(client, 0)
	count, err := ledger.Count(ctx, -100500, 42)
	if err != nil {
		t.Fatalf("ledger count: %v", err)
	}
	if count != 0 {
		t.Fatalf("ledger must be 0 after mute, got %d", count)
	}

	// A second full cycle mutes exactly once more.
	for i := 4; i <= 6; i++ {
		if err := svc.HandleMessage(ctx, linkMessage(i)); err != nil {
			t.Fatalf("handle violation #%d: %v", i, err)
		}
	}
	if len(gw.restricted) != 2 {
		t.Fatalf("expected 2 mutes after 6 violations, got %d", len(gw.restricted))
	}
}

func TestHandleMessageIgnoresCleanAndSenderless(t *testing.T) {
	mr, client, svc, gw := newTestService(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	ctx := context.Background()

	clean := model.Message{ChatID: -100500, MessageID: 1, SenderID: 42, Text: "hello everyone"}
	if err := svc.HandleMessage(ctx, clean); err != nil {
		t.Fatalf("handle clean message: %v", err)
	}

	channelPost := model.Message{ChatID: -100500, MessageID: 2, Text: "https://spam.example.org"}
	if err := svc.HandleMessage(ctx, channelPost); err != nil {
		t.Fatalf("handle channel post: %v", err)
	}

	if len(gw.deleted) != 0 || len(gw.notices) != 0 {
		t.Fatalf("no side effects expected: deleted=%d notices=%d", len(gw.deleted), len(gw.notices))
	}
}

func TestEscalationSurvivesDeleteFailure(t *testing.T) {
	mr, client, svc, gw := newTestService(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	ctx := context.Background()
	gw.deleteErr = errors.New("telegram: rate limited")

	if err := svc.HandleMessage(ctx, linkMessage(1)); err != nil {
		t.Fatalf("handle with failing deleter: %v", err)
	}

	if len(gw.notices) != 1 {
		t.Fatalf("warning should still be sent, got %d notices", len(gw.notices))
	}

	ledger := redrepo.NewViolationRepo(client, 0)
	count, err := ledger.Count(ctx, -100500, 42)
	if err != nil {
		t.Fatalf("ledger count: %v", err)
	}
	if count != 1 {
		t.Fatalf("ledger should still count the violation, got %d", count)
	}
}

func TestManualWarnEscalates(t *testing.T) {
	mr, client, svc, gw := newTestService(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if err := svc.Warn(ctx, -100500, 42, 0); err != nil {
			t.Fatalf("manual warn #%d: %v", i, err)
		}
	}

	if len(gw.restricted) != 1 {
		t.Fatalf("three manual warns should mute once, got %d", len(gw.restricted))
	}
	if len(gw.deleted) != 0 {
		t.Fatalf("manual warn without message must not delete anything, got %d", len(gw.deleted))
	}
}

func TestForgiveFloorsAtZero(t *testing.T) {
	mr, client, svc, _ := newTestService(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	ctx := context.Background()

	count, err := svc.Forgive(ctx, -100500, 42)
	if err != nil {
		t.Fatalf("forgive at zero: %v", err)
	}
	if count != 0 {
		t.Fatalf("forgive at zero must stay zero, got %d", count)
	}

	if err := svc.Warn(ctx, -100500, 42, 0); err != nil {
		t.Fatalf("warn: %v", err)
	}
	count, err = svc.Forgive(ctx, -100500, 42)
	if err != nil {
		t.Fatalf("forgive: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 after forgiving single warning, got %d", count)
	}
}

func TestMuteUsesPolicyDurationByDefault(t *testing.T) {
	mr, client, svc, gw := newTestService(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	ctx := context.Background()

	if err := svc.Mute(ctx, -100500, 42, 0); err != nil {
		t.Fatalf("mute: %v", err)
	}
	if len(gw.restricted) != 1 || gw.restricted[0] != 30*time.Minute {
		t.Fatalf("unexpected restrictions: %v", gw.restricted)
	}

	if err := svc.Mute(ctx, -100500, 42, 5*time.Minute); err != nil {
		t.Fatalf("mute with duration: %v", err)
	}
	if len(gw.restricted) != 2 || gw.restricted[1] != 5*time.Minute {
		t.Fatalf("unexpected restrictions: %v", gw.restricted)
	}

	if err := svc.Unmute(ctx, -100500, 42); err != nil {
		t.Fatalf("unmute: %v", err)
	}
	if gw.unmuted != 1 {
		t.Fatalf("expected one unrestrict call, got %d", gw.unmuted)
	}
}
