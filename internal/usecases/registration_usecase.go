package usecases

import (
	"context"
	"log/slog"

	"supportbridge/internal/entities"
	"supportbridge/internal/interfaces"
	"supportbridge/internal/logutil"
)

const EventRegistrationCompleted = "support.registration.completed.v1"

// RegistrationCompleted is the payload published after a successful registration.
type RegistrationCompleted struct {
	ContactID  string `json:"contactId"`
	CustomerID string `json:"customerId"`
	ChannelID  string `json:"channelId"`
	Email      string `json:"email"`
}

// RegistrationUsecase turns a visitor into a ready-to-open chat session.
type RegistrationUsecase struct {
	contacts    *ContactDirectory
	identities  *IdentityProvisioner
	channels    *ChannelProvisioner
	credentials *CredentialIssuer
	apiKey      string
	log         *slog.Logger

	// Optional, best-effort side notifications.
	Publisher interfaces.EventPublisher
	Notifier  interfaces.AgentNotifier
}

func NewRegistrationUsecase(contacts *ContactDirectory, identities *IdentityProvisioner, channels *ChannelProvisioner, credentials *CredentialIssuer, apiKey string, logger *slog.Logger) *RegistrationUsecase {
	return &RegistrationUsecase{
		contacts:    contacts,
		identities:  identities,
		channels:    channels,
		credentials: credentials,
		apiKey:      apiKey,
		log:         logger,
	}
}

// Register runs contact → identities → channel → token. The first failing
// step aborts with its error; earlier steps are not rolled back since each
// is idempotent and a retry reuses what they created.
func (u *RegistrationUsecase) Register(ctx context.Context, visitor entities.Visitor) (entities.Registration, error) {
	v, err := NormalizeVisitor(visitor)
	if err != nil {
		return entities.Registration{}, err
	}
	customerID := DeriveCustomerID(v.FirstName, v.LastName)
	if customerID == u.identities.Admin().ID {
		return entities.Registration{}, &entities.ValidationError{Field: "name", Reason: "reserved"}
	}

	contactID, err := u.contacts.GetOrCreate(ctx, v.Email, v.FirstName, v.LastName)
	if err != nil {
		return entities.Registration{}, err
	}

	ids, err := u.identities.Provision(ctx, customerID, v.FirstName)
	if err != nil {
		return entities.Registration{}, err
	}

	channel, err := u.channels.ProvisionChannel(ctx, contactID, ids.Customer.ID, ids.Admin.ID)
	if err != nil {
		return entities.Registration{}, err
	}

	token, err := u.credentials.IssueToken(ctx, ids.Customer.ID)
	if err != nil {
		return entities.Registration{}, err
	}

	reg := entities.Registration{
		CustomerID:    ids.Customer.ID,
		CustomerToken: token,
		ChannelID:     channel.ID,
		APIKey:        u.apiKey,
	}
	u.log.Info("visitor registered",
		slog.String("request_id", logutil.RequestID(ctx)),
		slog.String("contact_id", contactID),
		slog.String("customer_id", reg.CustomerID),
	)

	u.announce(ctx, v, contactID, reg)
	return reg, nil
}

func (u *RegistrationUsecase) announce(ctx context.Context, v entities.Visitor, contactID string, reg entities.Registration) {
	if u.Publisher != nil {
		evt := RegistrationCompleted{
			ContactID:  contactID,
			CustomerID: reg.CustomerID,
			ChannelID:  reg.ChannelID,
			Email:      v.Email,
		}
		if err := u.Publisher.Publish(ctx, EventRegistrationCompleted, evt); err != nil {
			u.log.Warn("publish registration event failed", slog.String("channel_id", reg.ChannelID), slog.Any("error", err))
		}
	}
	if u.Notifier != nil {
		if err := u.Notifier.NotifyRegistration(ctx, v, reg); err != nil {
			u.log.Warn("agent notification failed", slog.String("channel_id", reg.ChannelID), slog.Any("error", err))
		}
	}
}
