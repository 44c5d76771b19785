package interfaces

import (
	"context"
	"supportbridge/internal/entities"
)

// CRM is the contact store. Lookup misses are reported in LookupResult, not as errors.
type CRM interface {
	LookupContactByEmail(ctx context.Context, email string) (entities.LookupResult, error)
	CreateContact(ctx context.Context, properties map[string]string) (string, error)
	GetContact(ctx context.Context, contactID string, properties ...string) (entities.Contact, error)
	UpdateContact(ctx context.Context, contactID string, properties map[string]string) error
}

// ChatProvider is the administrative side of the chat service.
type ChatProvider interface {
	UpsertUsers(ctx context.Context, users ...entities.ChatUser) error
	GetOrCreateChannel(ctx context.Context, channelType, channelID string, members []string, createdByID string) (entities.Channel, error)
	CreateToken(userID string) (string, error)
	APIKey() string
}

// EventLedger remembers which webhook messages already reached the transcript.
type EventLedger interface {
	Seen(ctx context.Context, messageID string) (bool, error)
	MarkProcessed(ctx context.Context, messageID, channelID string) error
}

// EventPublisher emits domain events to other services.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data any) error
}

// AgentNotifier tells support agents a new conversation is waiting.
type AgentNotifier interface {
	NotifyRegistration(ctx context.Context, visitor entities.Visitor, reg entities.Registration) error
}
