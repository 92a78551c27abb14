package model

// Message is the moderation-relevant view of one inbound group message.
// SenderID is 0 for channel and system posts, which are never moderated.
type Message struct {
	ChatID           int64
	MessageID        int
	SenderID         int64
	SenderName       string
	Text             string
	ReplyToMessageID int
	ReplyToUserID    int64
	Forward          ForwardMeta
}

// ForwardMeta carries the forwarding metadata of a message. Any single
// populated field marks the message as forwarded.
type ForwardMeta struct {
	FromUserID int64
	FromChatID int64
	SenderName string
	Date       int64
	Automatic  bool
	Story      bool
}

func (f ForwardMeta) Present() bool {
	return f.FromUserID != 0 ||
		f.FromChatID != 0 ||
		f.SenderName != "" ||
		f.Date != 0 ||
		f.Automatic ||
		f.Story
}
