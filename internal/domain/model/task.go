package model

import "time"

// DeletionTask is a persisted request to delete a message no earlier than
// NotAfter. CompanionMessageID optionally names a second message removed in
// the same pass, e.g. the admin command that requested the deletion.
type DeletionTask struct {
	ChatID             int64     `json:"chat_id"`
	MessageID          int       `json:"message_id"`
	CompanionMessageID int       `json:"companion_message_id,omitempty"`
	NotAfter           time.Time `json:"not_after"`
}
