// Package domain contains core concepts of the conversation relay.
// This file defines Message events and their media descriptor.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SystemSender is the sender of synthesized messages.
const SystemSender UserID = "system"

type Category string

const (
	Image Category = "image"
	Video Category = "video"
	Audio Category = "audio"
	File  Category = "file"
)

type MediaDescriptor struct {
	Key         string
	Category    Category
	ContentType string
}

// DeliveryFlags are set by clients and consumers, the server never enforces them.
type DeliveryFlags struct {
	Pending  bool
	Sent     bool
	Received bool
}

// DeliveryPatch is a partial update: nil fields are left untouched.
type DeliveryPatch struct {
	Pending  *bool
	Sent     *bool
	Received *bool
}

func (f DeliveryFlags) Apply(p DeliveryPatch) DeliveryFlags {
	if p.Pending != nil {
		f.Pending = *p.Pending
	}
	if p.Sent != nil {
		f.Sent = *p.Sent
	}
	if p.Received != nil {
		f.Received = *p.Received
	}
	return f
}

// Message is immutable once persisted, except for its delivery flags.
type Message struct {
	ID              uuid.UUID
	ConversationSID string
	SenderID        UserID
	Text            string
	Media           *MediaDescriptor
	CreatedAt       time.Time
	Flags           DeliveryFlags
	System          bool
}

// JoinAnnouncement synthesizes the system message broadcast when someone subscribes.
func JoinAnnouncement(conversationSID, subscriber string, at time.Time) Message {
	return Message{
		ID:              uuid.New(),
		ConversationSID: conversationSID,
		SenderID:        SystemSender,
		Text:            fmt.Sprintf("%s joined the chat", subscriber),
		CreatedAt:       at,
		System:          true,
	}
}

type SendMessageCommand struct {
	ConversationSID string
	SenderID        UserID
	Text            string
	Media           *MediaDescriptor
	Flags           DeliveryFlags
}
