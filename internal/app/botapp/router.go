package botapp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/groupguard/internal/domain/model"
	tginfra "github.com/ivankudzin/groupguard/internal/infra/telegram"
	redrepo "github.com/ivankudzin/groupguard/internal/repo/redis"
	modsvc "github.com/ivankudzin/groupguard/internal/services/moderation"
	policysvc "github.com/ivankudzin/groupguard/internal/services/policy"
	schedsvc "github.com/ivankudzin/groupguard/internal/services/scheduler"
)

// Gateway is the slice of the telegram bot the router calls directly.
type Gateway interface {
	IsAdmin(ctx context.Context, chatID, userID int64) (bool, error)
	SendText(ctx context.Context, chatID int64, text string) (int, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

// Router maps Telegram updates onto moderation operations. Handler errors
// are logged, never returned: one bad update must not stop the listener.
type Router struct {
	bot        Gateway
	policies   *policysvc.Service
	moderation *modsvc.Service
	scheduler  *schedsvc.Service
	groups     *redrepo.GroupRepo
	noticeTTL  time.Duration
	logger     *zap.Logger
}

func NewRouter(
	bot Gateway,
	policies *policysvc.Service,
	moderation *modsvc.Service,
	scheduler *schedsvc.Service,
	groups *redrepo.GroupRepo,
	noticeTTL time.Duration,
	logger *zap.Logger,
) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Router{
		bot:        bot,
		policies:   policies,
		moderation: moderation,
		scheduler:  scheduler,
		groups:     groups,
		noticeTTL:  noticeTTL,
		logger:     logger,
	}
}

func (r *Router) Handlers() tginfra.Handlers {
	return tginfra.Handlers{
		OnMessage:      r.handleMessage,
		OnCommand:      r.handleCommand,
		OnMyChatMember: r.handleMyChatMember,
	}
}

func (r *Router) handleMessage(ctx context.Context, update tginfra.MessageUpdate) error {
	msg := model.Message{
		ChatID:           update.ChatID,
		MessageID:        update.MessageID,
		SenderID:         update.SenderID,
		SenderName:       update.SenderName,
		Text:             update.Text,
		ReplyToMessageID: update.ReplyToMessageID,
		ReplyToUserID:    update.ReplyToUserID,
		Forward: model.ForwardMeta{
			FromUserID: update.ForwardFromUserID,
			FromChatID: update.ForwardFromChatID,
			SenderName: update.ForwardSenderName,
			Date:       update.ForwardDate,
			Automatic:  update.IsAutomaticForward,
		},
	}

	if err := r.moderation.HandleMessage(ctx, msg); err != nil {
		r.logger.Warn("moderation pass failed",
			zap.Error(err),
			zap.Int64("chat_id", update.ChatID),
			zap.Int("message_id", update.MessageID),
		)
	}
	return nil
}

func (r *Router) handleMyChatMember(ctx context.Context, update tginfra.MemberUpdate) error {
	switch update.Status {
	case "member", "administrator":
		group := model.Group{
			ChatID:       update.ChatID,
			Title:        update.Title,
			RegisteredAt: time.Now().UTC(),
		}
		if err := r.groups.Register(ctx, group); err != nil {
			r.logger.Warn("failed to register group", zap.Error(err), zap.Int64("chat_id", update.ChatID))
		} else {
			r.logger.Info("group registered", zap.Int64("chat_id", update.ChatID), zap.String("title", update.Title))
		}
	case "left", "kicked":
		if err := r.groups.Delete(ctx, update.ChatID); err != nil {
			r.logger.Warn("failed to delete group record", zap.Error(err), zap.Int64("chat_id", update.ChatID))
		}
		if err := r.policies.Forget(ctx, update.ChatID); err != nil {
			r.logger.Warn("failed to forget chat policy", zap.Error(err), zap.Int64("chat_id", update.ChatID))
		}
		r.logger.Info("group unregistered", zap.Int64("chat_id", update.ChatID))
	}
	return nil
}

// handleCommand dispatches recognized admin commands. Everything else, a
// command from a non-admin or an unknown command, goes through the regular
// moderation pass: a leading "/word" must not exempt a message from the
// filters.
func (r *Router) handleCommand(ctx context.Context, update tginfra.CommandUpdate) error {
	isAdmin, err := r.bot.IsAdmin(ctx, update.ChatID, update.SenderID)
	if err != nil {
		r.logger.Warn("admin check failed", zap.Error(err), zap.Int64("chat_id", update.ChatID), zap.Int64("user_id", update.SenderID))
		return r.handleMessage(ctx, update.Message)
	}
	if !isAdmin {
		return r.handleMessage(ctx, update.Message)
	}

	switch strings.ToLower(strings.TrimSpace(update.Command)) {
	case "settings":
		r.cmdSettings(ctx, update)
	case "links":
		r.cmdLinks(ctx, update)
	case "forwards":
		r.cmdForwards(ctx, update)
	case "whitelist":
		r.cmdWhitelist(ctx, update)
	case "threshold":
		r.cmdThreshold(ctx, update)
	case "mutetime":
		r.cmdMuteTime(ctx, update)
	case "warn":
		r.cmdWarn(ctx, update)
	case "forgive":
		r.cmdForgive(ctx, update)
	case "mute":
		r.cmdMute(ctx, update)
	case "unmute":
		r.cmdUnmute(ctx, update)
	case "del":
		r.cmdDel(ctx, update)
	default:
		return r.handleMessage(ctx, update.Message)
	}
	return nil
}

func (r *Router) cmdSettings(ctx context.Context, update tginfra.CommandUpdate) {
	policy, err := r.policies.Get(ctx, update.ChatID)
	if err != nil {
		r.logger.Warn("failed to load policy", zap.Error(err), zap.Int64("chat_id", update.ChatID))
		return
	}
	r.reply(ctx, update.ChatID, formatPolicy(policy))
}

func (r *Router) cmdLinks(ctx context.Context, update tginfra.CommandUpdate) {
	enabled, ok := parseOnOff(update.Args)
	if !ok {
		r.reply(ctx, update.ChatID, "Usage: /links on|off")
		return
	}
	if err := r.policies.SetLinkFilter(ctx, update.ChatID, enabled); err != nil {
		r.logger.Warn("failed to set link filter", zap.Error(err), zap.Int64("chat_id", update.ChatID))
		return
	}
	r.reply(ctx, update.ChatID, "Link filter "+onOff(enabled)+".")
}

func (r *Router) cmdForwards(ctx context.Context, update tginfra.CommandUpdate) {
	enabled, ok := parseOnOff(update.Args)
	if !ok {
		r.reply(ctx, update.ChatID, "Usage: /forwards on|off")
		return
	}
	if err := r.policies.SetForwardFilter(ctx, update.ChatID, enabled); err != nil {
		r.logger.Warn("failed to set forward filter", zap.Error(err), zap.Int64("chat_id", update.ChatID))
		return
	}
	r.reply(ctx, update.ChatID, "Forward filter "+onOff(enabled)+".")
}

func (r *Router) cmdWhitelist(ctx context.Context, update tginfra.CommandUpdate) {
	fields := strings.Fields(update.Args)
	if len(fields) == 1 && strings.EqualFold(fields[0], "list") {
		policy, err := r.policies.Get(ctx, update.ChatID)
		if err != nil {
			r.logger.Warn("failed to load policy", zap.Error(err), zap.Int64("chat_id", update.ChatID))
			return
		}
		if len(policy.WhitelistedDomains) == 0 {
			r.reply(ctx, update.ChatID, "Whitelist is empty.")
			return
		}
		r.reply(ctx, update.ChatID, "Whitelisted domains:\n- "+strings.Join(policy.WhitelistedDomains, "\n- "))
		return
	}

	if len(fields) != 2 {
		r.reply(ctx, update.ChatID, "Usage: /whitelist add|del|list <domain>")
		return
	}

	var err error
	switch strings.ToLower(fields[0]) {
	case "add":
		err = r.policies.AddWhitelistDomain(ctx, update.ChatID, fields[1])
	case "del":
		err = r.policies.RemoveWhitelistDomain(ctx, update.ChatID, fields[1])
	default:
		r.reply(ctx, update.ChatID, "Usage: /whitelist add|del|list <domain>")
		return
	}
	if err != nil {
		if errors.Is(err, policysvc.ErrValidation) {
			r.reply(ctx, update.ChatID, "That does not look like a domain.")
			return
		}
		r.logger.Warn("failed to update whitelist", zap.Error(err), zap.Int64("chat_id", update.ChatID))
		return
	}
	r.reply(ctx, update.ChatID, "Whitelist updated.")
}

func (r *Router) cmdThreshold(ctx context.Context, update tginfra.CommandUpdate) {
	n, err := strconv.Atoi(strings.TrimSpace(update.Args))
	if err != nil || n < 1 {
		r.reply(ctx, update.ChatID, "Usage: /threshold <n>, n >= 1")
		return
	}
	if err := r.policies.SetThreshold(ctx, update.ChatID, n); err != nil {
		r.logger.Warn("failed to set threshold", zap.Error(err), zap.Int64("chat_id", update.ChatID))
		return
	}
	r.reply(ctx, update.ChatID, fmt.Sprintf("Violation threshold set to %d.", n))
}

func (r *Router) cmdMuteTime(ctx context.Context, update tginfra.CommandUpdate) {
	d, ok := parseDelay(update.Args)
	if !ok || d < time.Second {
		r.reply(ctx, update.ChatID, "Usage: /mutetime <duration>, e.g. 30m or 1h")
		return
	}
	if err := r.policies.SetMuteDuration(ctx, update.ChatID, d); err != nil {
		r.logger.Warn("failed to set mute duration", zap.Error(err), zap.Int64("chat_id", update.ChatID))
		return
	}
	r.reply(ctx, update.ChatID, fmt.Sprintf("Mute duration set to %s.", d))
}

func (r *Router) cmdWarn(ctx context.Context, update tginfra.CommandUpdate) {
	if update.ReplyToUserID <= 0 {
		r.reply(ctx, update.ChatID, "Reply to a message to warn its author.")
		return
	}
	if err := r.moderation.Warn(ctx, update.ChatID, update.ReplyToUserID, update.ReplyToMessageID); err != nil {
		r.logger.Warn("manual warn failed", zap.Error(err), zap.Int64("chat_id", update.ChatID))
	}
	r.deleteCommand(ctx, update)
}

func (r *Router) cmdForgive(ctx context.Context, update tginfra.CommandUpdate) {
	if update.ReplyToUserID <= 0 {
		r.reply(ctx, update.ChatID, "Reply to a message to forgive its author.")
		return
	}
	count, err := r.moderation.Forgive(ctx, update.ChatID, update.ReplyToUserID)
	if err != nil {
		r.logger.Warn("forgive failed", zap.Error(err), zap.Int64("chat_id", update.ChatID))
		return
	}
	r.reply(ctx, update.ChatID, fmt.Sprintf("One violation forgiven, %d remaining.", count))
}

func (r *Router) cmdMute(ctx context.Context, update tginfra.CommandUpdate) {
	if update.ReplyToUserID <= 0 {
		r.reply(ctx, update.ChatID, "Reply to a message to mute its author.")
		return
	}
	var duration time.Duration
	if strings.TrimSpace(update.Args) != "" {
		d, ok := parseDelay(update.Args)
		if !ok {
			r.reply(ctx, update.ChatID, "Usage: /mute [duration]")
			return
		}
		duration = d
	}
	if err := r.moderation.Mute(ctx, update.ChatID, update.ReplyToUserID, duration); err != nil {
		r.logger.Warn("manual mute failed", zap.Error(err), zap.Int64("chat_id", update.ChatID))
	}
	r.deleteCommand(ctx, update)
}

func (r *Router) cmdUnmute(ctx context.Context, update tginfra.CommandUpdate) {
	if update.ReplyToUserID <= 0 {
		r.reply(ctx, update.ChatID, "Reply to a message to unmute its author.")
		return
	}
	if err := r.moderation.Unmute(ctx, update.ChatID, update.ReplyToUserID); err != nil {
		r.logger.Warn("manual unmute failed", zap.Error(err), zap.Int64("chat_id", update.ChatID))
	}
	r.deleteCommand(ctx, update)
}

// cmdDel schedules the replied-to message for deferred deletion. The admin's
// own /del command rides along as the companion message, so both disappear
// in the same sweep.
func (r *Router) cmdDel(ctx context.Context, update tginfra.CommandUpdate) {
	if update.ReplyToMessageID <= 0 {
		r.reply(ctx, update.ChatID, "Reply to the message you want deleted.")
		return
	}
	delay, ok := parseDelay(update.Args)
	if !ok {
		r.reply(ctx, update.ChatID, "Usage: /del <delay>, e.g. 10s or 5m")
		return
	}

	if err := r.scheduler.Schedule(ctx, update.ChatID, update.ReplyToMessageID, delay, update.MessageID); err != nil {
		r.logger.Warn("failed to schedule deletion", zap.Error(err), zap.Int64("chat_id", update.ChatID))
	}
}

// reply sends an ephemeral notice that deletes itself after the notice TTL.
func (r *Router) reply(ctx context.Context, chatID int64, text string) {
	noticeID, err := r.bot.SendText(ctx, chatID, text)
	if err != nil {
		r.logger.Warn("failed to send reply", zap.Error(err), zap.Int64("chat_id", chatID))
		return
	}
	if r.noticeTTL <= 0 {
		return
	}
	if err := r.scheduler.Schedule(ctx, chatID, noticeID, r.noticeTTL, 0); err != nil {
		r.logger.Warn("failed to schedule reply self-deletion", zap.Error(err), zap.Int64("chat_id", chatID))
	}
}

func (r *Router) deleteCommand(ctx context.Context, update tginfra.CommandUpdate) {
	if update.MessageID <= 0 {
		return
	}
	if err := r.bot.DeleteMessage(ctx, update.ChatID, update.MessageID); err != nil {
		r.logger.Warn("failed to delete command message", zap.Error(err), zap.Int64("chat_id", update.ChatID))
	}
}

func formatPolicy(policy model.ChatPolicy) string {
	lines := []string{
		"Moderation settings:",
		"- link filter: " + onOff(policy.LinkFilterEnabled),
		"- forward filter: " + onOff(policy.ForwardFilterEnabled),
		fmt.Sprintf("- violation threshold: %d", policy.ViolationThreshold),
		fmt.Sprintf("- mute duration: %s", policy.MuteDuration()),
	}
	if len(policy.WhitelistedDomains) > 0 {
		lines = append(lines, "- whitelist: "+strings.Join(policy.WhitelistedDomains, ", "))
	}
	return strings.Join(lines, "\n")
}

func onOff(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

func parseOnOff(args string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(args)) {
	case "on", "enable", "enabled":
		return true, true
	case "off", "disable", "disabled":
		return false, true
	default:
		return false, false
	}
}

// parseDelay accepts Go duration syntax ("10s", "5m") or a bare number of
// seconds ("10").
func parseDelay(args string) (time.Duration, bool) {
	raw := strings.TrimSpace(args)
	if raw == "" {
		return 0, false
	}

	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}

	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}
