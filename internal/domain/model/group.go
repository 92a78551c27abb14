package model

import "time"

// Group records a chat the bot moderates. Written when the bot is added to
// a group and removed, together with the chat's policy, when it is kicked.
type Group struct {
	ChatID       int64     `json:"chat_id"`
	Title        string    `json:"title"`
	RegisteredAt time.Time `json:"registered_at"`
}
