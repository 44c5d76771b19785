package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"supportbridge/internal/entities"
	"supportbridge/internal/interfaces"
	"supportbridge/internal/logutil"
)

const EventTranscriptAppended = "support.transcript.appended.v1"

// TranscriptAppended is the payload published after a transcript write.
type TranscriptAppended struct {
	ContactID string `json:"contactId"`
	MessageID string `json:"messageId,omitempty"`
	SenderID  string `json:"senderId"`
	CreatedAt string `json:"createdAt"`
}

// TranscriptSynchronizer appends chat messages to the CRM contact's
// transcript property. It reads, appends and writes back without any lock,
// so two concurrent events on one channel can lose one of the lines.
type TranscriptSynchronizer struct {
	crm      interfaces.CRM
	property string
	log      *slog.Logger

	// Optional: skips messages already appended and announces new lines.
	Ledger    interfaces.EventLedger
	Publisher interfaces.EventPublisher
}

func NewTranscriptSynchronizer(crm interfaces.CRM, property string, logger *slog.Logger) *TranscriptSynchronizer {
	return &TranscriptSynchronizer{crm: crm, property: property, log: logger}
}

// FormatTranscriptEntry renders one message exactly as it is stored.
func FormatTranscriptEntry(msg entities.EventMessage) string {
	return fmt.Sprintf("\n FROM: %s\n SENT AT: %s\n MESSAGE: %s", msg.User.ID, msg.CreatedAt, msg.Text)
}

// AppendTranscript never rewrites existing content.
func AppendTranscript(transcript string, msg entities.EventMessage) string {
	return transcript + FormatTranscriptEntry(msg)
}

// OnMessageEvent handles one webhook event. It never fails: anything that
// goes wrong is logged and the event is dropped.
func (s *TranscriptSynchronizer) OnMessageEvent(ctx context.Context, ev entities.MessageEvent) {
	if ev.Type != entities.EventMessageNew {
		s.log.Debug("webhook event ignored", slog.String("type", ev.Type))
		return
	}
	if err := s.sync(ctx, ev); err != nil {
		s.log.Error("transcript sync failed",
			slog.String("request_id", logutil.RequestID(ctx)),
			slog.String("channel_id", ev.ChannelID),
			slog.String("message_id", ev.Message.ID),
			slog.Any("error", err),
		)
	}
}

func (s *TranscriptSynchronizer) sync(ctx context.Context, ev entities.MessageEvent) error {
	contactID := ev.ChannelID
	if contactID == "" {
		return errors.New("event has no channel id")
	}
	msgID := ev.Message.ID

	if s.Ledger != nil && msgID != "" {
		seen, err := s.Ledger.Seen(ctx, msgID)
		if err != nil {
			s.log.Warn("ledger lookup failed, appending anyway", slog.String("message_id", msgID), slog.Any("error", err))
		} else if seen {
			s.log.Info("duplicate message event skipped", slog.String("message_id", msgID))
			return nil
		}
	}

	contact, err := s.crm.GetContact(ctx, contactID, s.property)
	if err != nil {
		return fmt.Errorf("fetch transcript: %w", err)
	}
	updated := AppendTranscript(contact.Properties[s.property], ev.Message)

	if err := s.crm.UpdateContact(ctx, contactID, map[string]string{s.property: updated}); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}

	if s.Ledger != nil && msgID != "" {
		if err := s.Ledger.MarkProcessed(ctx, msgID, contactID); err != nil {
			s.log.Warn("ledger mark failed", slog.String("message_id", msgID), slog.Any("error", err))
		}
	}
	if s.Publisher != nil {
		evt := TranscriptAppended{
			ContactID: contactID,
			MessageID: msgID,
			SenderID:  ev.Message.User.ID,
			CreatedAt: ev.Message.CreatedAt,
		}
		if err := s.Publisher.Publish(ctx, EventTranscriptAppended, evt); err != nil {
			s.log.Warn("publish transcript event failed", slog.String("contact_id", contactID), slog.Any("error", err))
		}
	}
	return nil
}
