package usecases

import (
	"context"
	"fmt"

	"supportbridge/internal/entities"
	"supportbridge/internal/interfaces"
)

type ChannelProvisioner struct {
	chat interfaces.ChatProvider
}

func NewChannelProvisioner(chat interfaces.ChatProvider) *ChannelProvisioner {
	return &ChannelProvisioner{chat: chat}
}

// ProvisionChannel gets or creates the messaging channel whose id is the CRM
// contact id. Members are always exactly the customer and the admin.
func (p *ChannelProvisioner) ProvisionChannel(ctx context.Context, contactID, customerID, adminID string) (entities.Channel, error) {
	members := []string{customerID, adminID}
	ch, err := p.chat.GetOrCreateChannel(ctx, entities.ChannelTypeMessaging, contactID, members, adminID)
	if err != nil {
		return entities.Channel{}, fmt.Errorf("provision channel: %w", err)
	}
	if ch.ID == "" {
		ch.ID = contactID
	}
	if ch.ID != contactID {
		return entities.Channel{}, fmt.Errorf("provision channel: provider returned channel %q for contact %q", ch.ID, contactID)
	}
	return ch, nil
}
