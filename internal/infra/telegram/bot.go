package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type Bot struct {
	api *tgbotapi.BotAPI
}

// MessageUpdate is one inbound chat message with the metadata moderation
// cares about. SenderID is 0 for channel and system posts.
type MessageUpdate struct {
	ChatID           int64
	MessageID        int
	SenderID         int64
	SenderName       string
	Text             string
	ReplyToMessageID int
	ReplyToUserID    int64

	ForwardFromUserID  int64
	ForwardFromChatID  int64
	ForwardSenderName  string
	ForwardDate        int64
	IsAutomaticForward bool
}

// CommandUpdate carries a command-shaped message. Message holds the full
// message view so non-admin commands can still go through the moderation
// pass instead of being dropped.
type CommandUpdate struct {
	ChatID           int64
	MessageID        int
	SenderID         int64
	Username         string
	Command          string
	Args             string
	ReplyToMessageID int
	ReplyToUserID    int64
	Message          MessageUpdate
}

// MemberUpdate reports a change of the bot's own membership in a chat.
type MemberUpdate struct {
	ChatID int64
	Title  string
	Status string
}

type Handlers struct {
	OnMessage      func(context.Context, MessageUpdate) error
	OnCommand      func(context.Context, CommandUpdate) error
	OnMyChatMember func(context.Context, MemberUpdate) error
}

func NewBot(token string) (*Bot, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}

	api, err := tgbotapi.NewBotAPI(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("create telegram bot api: %w", err)
	}

	return &Bot{api: api}, nil
}

func (b *Bot) Listen(ctx context.Context, handlers Handlers) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}

	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = 30
	updateCfg.AllowedUpdates = []string{"message", "my_chat_member"}
	updates := b.api.GetUpdatesChan(updateCfg)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-updates:
			if err := b.HandleUpdate(ctx, update, handlers); err != nil {
				return err
			}
		}
	}
}

// HandleUpdate dispatches a single update to handlers. Shared between the
// long-poll listener and the webhook transport.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update, handlers Handlers) error {
	if update.MyChatMember != nil && handlers.OnMyChatMember != nil {
		return handlers.OnMyChatMember(ctx, MemberUpdate{
			ChatID: update.MyChatMember.Chat.ID,
			Title:  update.MyChatMember.Chat.Title,
			Status: update.MyChatMember.NewChatMember.Status,
		})
	}

	msg := update.Message
	if msg == nil {
		return nil
	}

	if msg.IsCommand() && msg.From != nil && handlers.OnCommand != nil {
		cmd := CommandUpdate{
			ChatID:    msg.Chat.ID,
			MessageID: msg.MessageID,
			SenderID:  msg.From.ID,
			Username:  msg.From.UserName,
			Command:   msg.Command(),
			Args:      msg.CommandArguments(),
			Message:   toMessageUpdate(msg),
		}
		if msg.ReplyToMessage != nil {
			cmd.ReplyToMessageID = msg.ReplyToMessage.MessageID
			if msg.ReplyToMessage.From != nil {
				cmd.ReplyToUserID = msg.ReplyToMessage.From.ID
			}
		}
		return handlers.OnCommand(ctx, cmd)
	}

	if handlers.OnMessage == nil {
		return nil
	}
	return handlers.OnMessage(ctx, toMessageUpdate(msg))
}

// toMessageUpdate maps the library message onto our view. Story forwards are
// not represented: tgbotapi v5.5.1 predates the story API, so that forward
// signal stays unset here even though the evaluator understands it.
func toMessageUpdate(msg *tgbotapi.Message) MessageUpdate {
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	update := MessageUpdate{
		ChatID:             msg.Chat.ID,
		MessageID:          msg.MessageID,
		Text:               text,
		ForwardSenderName:  msg.ForwardSenderName,
		ForwardDate:        int64(msg.ForwardDate),
		IsAutomaticForward: msg.IsAutomaticForward,
	}
	if msg.From != nil {
		update.SenderID = msg.From.ID
		update.SenderName = msg.From.UserName
	}
	if msg.ForwardFrom != nil {
		update.ForwardFromUserID = msg.ForwardFrom.ID
	}
	if msg.ForwardFromChat != nil {
		update.ForwardFromChatID = msg.ForwardFromChat.ID
	}
	if msg.ReplyToMessage != nil {
		update.ReplyToMessageID = msg.ReplyToMessage.MessageID
		if msg.ReplyToMessage.From != nil {
			update.ReplyToUserID = msg.ReplyToMessage.From.ID
		}
	}
	return update
}

// SendText sends a message and returns its id so it can be scheduled for
// deferred deletion.
func (b *Bot) SendText(ctx context.Context, chatID int64, text string) (int, error) {
	if b == nil || b.api == nil {
		return 0, fmt.Errorf("telegram bot is not initialized")
	}
	if chatID == 0 {
		return 0, fmt.Errorf("chat id is required")
	}

	sent, err := b.api.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return 0, fmt.Errorf("send telegram message: %w", err)
	}

	return sent.MessageID, nil
}

// DeleteMessage removes a message. Deleting an already-deleted or missing
// message is treated as success, keeping sweeps and duplicate deliveries
// idempotent.
func (b *Bot) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	if chatID == 0 || messageID <= 0 {
		return fmt.Errorf("invalid delete message payload")
	}

	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "not found") {
			return nil
		}
		return fmt.Errorf("delete telegram message: %w", err)
	}

	return nil
}

func (b *Bot) RestrictMember(ctx context.Context, chatID, userID int64, duration time.Duration) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	if chatID == 0 || userID <= 0 || duration <= 0 {
		return fmt.Errorf("invalid restrict member payload")
	}

	cfg := tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{
			ChatID: chatID,
			UserID: userID,
		},
		UntilDate:   time.Now().Add(duration).Unix(),
		Permissions: &tgbotapi.ChatPermissions{},
	}
	if _, err := b.api.Request(cfg); err != nil {
		return fmt.Errorf("restrict chat member: %w", err)
	}

	return nil
}

func (b *Bot) UnrestrictMember(ctx context.Context, chatID, userID int64) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	if chatID == 0 || userID <= 0 {
		return fmt.Errorf("invalid unrestrict member payload")
	}

	cfg := tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{
			ChatID: chatID,
			UserID: userID,
		},
		Permissions: &tgbotapi.ChatPermissions{
			CanSendMessages:       true,
			CanSendMediaMessages:  true,
			CanSendPolls:          true,
			CanSendOtherMessages:  true,
			CanAddWebPagePreviews: true,
			CanInviteUsers:        true,
		},
	}
	if _, err := b.api.Request(cfg); err != nil {
		return fmt.Errorf("unrestrict chat member: %w", err)
	}

	return nil
}

// IsAdmin reports whether a user may run admin commands in a chat.
func (b *Bot) IsAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	if b == nil || b.api == nil {
		return false, fmt.Errorf("telegram bot is not initialized")
	}
	if chatID == 0 || userID <= 0 {
		return false, fmt.Errorf("invalid chat member payload")
	}

	member, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: chatID,
			UserID: userID,
		},
	})
	if err != nil {
		return false, fmt.Errorf("get chat member: %w", err)
	}

	return member.Status == "creator" || member.Status == "administrator", nil
}
