package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/groupguard/internal/domain/model"
	"github.com/ivankudzin/groupguard/internal/domain/rules"
)

var ErrValidation = errors.New("validation error")

type PolicyProvider interface {
	Get(ctx context.Context, chatID int64) (model.ChatPolicy, error)
}

type Ledger interface {
	Increment(ctx context.Context, chatID, userID int64) (int64, error)
	Reset(ctx context.Context, chatID, userID int64) error
	Decrement(ctx context.Context, chatID, userID int64) (int64, error)
}

type Deleter interface {
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

type Restrictor interface {
	RestrictMember(ctx context.Context, chatID, userID int64, duration time.Duration) error
	UnrestrictMember(ctx context.Context, chatID, userID int64) error
}

type Notifier interface {
	SendText(ctx context.Context, chatID int64, text string) (int, error)
}

type NoticeScheduler interface {
	Schedule(ctx context.Context, chatID int64, messageID int, delay time.Duration, companionMessageID int) error
}

// Service is the escalation controller: it turns classified violations into
// message deletions, ledger updates, warnings and mutes. Gateway failures
// are logged and swallowed so one failed side effect never fails a whole
// message-handling pass.
type Service struct {
	policies   PolicyProvider
	ledger     Ledger
	deleter    Deleter
	restrictor Restrictor
	notifier   Notifier
	notices    NoticeScheduler
	noticeTTL  time.Duration
	logger     *zap.Logger
}

type Dependencies struct {
	Policies   PolicyProvider
	Ledger     Ledger
	Deleter    Deleter
	Restrictor Restrictor
	Notifier   Notifier
	Notices    NoticeScheduler
}

func NewService(deps Dependencies, noticeTTL time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		policies:   deps.Policies,
		ledger:     deps.Ledger,
		deleter:    deps.Deleter,
		restrictor: deps.Restrictor,
		notifier:   deps.Notifier,
		notices:    deps.Notices,
		noticeTTL:  noticeTTL,
		logger:     logger,
	}
}

// HandleMessage runs the full moderation pass for one inbound message:
// classify, delete the offending message, escalate.
func (s *Service) HandleMessage(ctx context.Context, msg model.Message) error {
	if msg.ChatID == 0 {
		return ErrValidation
	}
	if msg.SenderID == 0 {
		return nil
	}
	if s.policies == nil || s.ledger == nil {
		return fmt.Errorf("moderation service dependencies are not configured")
	}

	policy, err := s.policies.Get(ctx, msg.ChatID)
	if err != nil {
		return err
	}

	violation := rules.Evaluate(msg, policy)
	if violation == rules.ViolationNone {
		return nil
	}

	return s.escalate(ctx, policy, msg.ChatID, msg.SenderID, msg.MessageID, violation)
}

// Warn applies a manual violation, bypassing the evaluator. messageID may be
// 0 when there is no offending message to remove.
func (s *Service) Warn(ctx context.Context, chatID, userID int64, messageID int) error {
	if chatID == 0 || userID <= 0 {
		return ErrValidation
	}
	if s.policies == nil || s.ledger == nil {
		return fmt.Errorf("moderation service dependencies are not configured")
	}

	policy, err := s.policies.Get(ctx, chatID)
	if err != nil {
		return err
	}
	return s.escalate(ctx, policy, chatID, userID, messageID, "manual")
}

// Forgive lowers a user's violation count by one, floored at zero.
func (s *Service) Forgive(ctx context.Context, chatID, userID int64) (int64, error) {
	if chatID == 0 || userID <= 0 {
		return 0, ErrValidation
	}
	if s.ledger == nil {
		return 0, fmt.Errorf("moderation service dependencies are not configured")
	}
	return s.ledger.Decrement(ctx, chatID, userID)
}

// Mute restricts a member directly. A zero duration uses the chat policy.
func (s *Service) Mute(ctx context.Context, chatID, userID int64, duration time.Duration) error {
	if chatID == 0 || userID <= 0 {
		return ErrValidation
	}
	if s.restrictor == nil || s.policies == nil {
		return fmt.Errorf("moderation service dependencies are not configured")
	}

	if duration <= 0 {
		policy, err := s.policies.Get(ctx, chatID)
		if err != nil {
			return err
		}
		duration = policy.MuteDuration()
	}

	if err := s.restrictor.RestrictMember(ctx, chatID, userID, duration); err != nil {
		return fmt.Errorf("restrict member: %w", err)
	}
	s.sendNotice(ctx, chatID, fmt.Sprintf("User muted for %s.", duration))
	return nil
}

func (s *Service) Unmute(ctx context.Context, chatID, userID int64) error {
	if chatID == 0 || userID <= 0 {
		return ErrValidation
	}
	if s.restrictor == nil {
		return fmt.Errorf("moderation service dependencies are not configured")
	}

	if err := s.restrictor.UnrestrictMember(ctx, chatID, userID); err != nil {
		return fmt.Errorf("unrestrict member: %w", err)
	}
	s.sendNotice(ctx, chatID, "User unmuted.")
	return nil
}

// escalate deletes the offending message before touching the ledger, so a
// burst of violations never leaves prohibited content visible while the
// bookkeeping races.
func (s *Service) escalate(ctx context.Context, policy model.ChatPolicy, chatID, userID int64, messageID int, reason rules.Violation) error {
	if messageID > 0 && s.deleter != nil {
		if err := s.deleter.DeleteMessage(ctx, chatID, messageID); err != nil {
			s.logger.Warn("failed to delete offending message",
				zap.Error(err),
				zap.Int64("chat_id", chatID),
				zap.Int("message_id", messageID),
			)
		}
	}

	count, err := s.ledger.Increment(ctx, chatID, userID)
	if err != nil {
		return fmt.Errorf("increment violation ledger: %w", err)
	}

	if count < int64(policy.ViolationThreshold) {
		s.sendNotice(ctx, chatID, warningText(reason, count, policy.ViolationThreshold))
		return nil
	}

	if s.restrictor != nil {
		if err := s.restrictor.RestrictMember(ctx, chatID, userID, policy.MuteDuration()); err != nil {
			s.logger.Warn("failed to restrict member",
				zap.Error(err),
				zap.Int64("chat_id", chatID),
				zap.Int64("user_id", userID),
			)
		}
	}

	if err := s.ledger.Reset(ctx, chatID, userID); err != nil {
		return fmt.Errorf("reset violation ledger: %w", err)
	}

	s.sendNotice(ctx, chatID, fmt.Sprintf("User muted for %s after %d violations.", policy.MuteDuration(), policy.ViolationThreshold))
	return nil
}

// sendNotice sends an ephemeral in-chat notice and schedules it to delete
// itself. Best effort on both steps.
func (s *Service) sendNotice(ctx context.Context, chatID int64, text string) {
	if s.notifier == nil {
		return
	}

	noticeID, err := s.notifier.SendText(ctx, chatID, text)
	if err != nil {
		s.logger.Warn("failed to send moderation notice", zap.Error(err), zap.Int64("chat_id", chatID))
		return
	}

	if s.notices == nil || s.noticeTTL <= 0 || noticeID <= 0 {
		return
	}
	if err := s.notices.Schedule(ctx, chatID, noticeID, s.noticeTTL, 0); err != nil {
		s.logger.Warn("failed to schedule notice self-deletion",
			zap.Error(err),
			zap.Int64("chat_id", chatID),
			zap.Int("message_id", noticeID),
		)
	}
}

func warningText(reason rules.Violation, count int64, threshold int) string {
	switch reason {
	case rules.ViolationLink:
		return fmt.Sprintf("Links are not allowed here. Warning %d/%d.", count, threshold)
	case rules.ViolationForward:
		return fmt.Sprintf("Forwarded messages are not allowed here. Warning %d/%d.", count, threshold)
	default:
		return fmt.Sprintf("Warning %d/%d.", count, threshold)
	}
}
