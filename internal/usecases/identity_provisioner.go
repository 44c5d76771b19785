package usecases

import (
	"context"
	"fmt"

	"supportbridge/internal/entities"
	"supportbridge/internal/interfaces"
)

// IdentityProvisioner upserts the customer and the support agent on the chat provider.
type IdentityProvisioner struct {
	chat  interfaces.ChatProvider
	admin entities.ChatUser
}

func NewIdentityProvisioner(chat interfaces.ChatProvider, adminID, adminName string) *IdentityProvisioner {
	return &IdentityProvisioner{
		chat:  chat,
		admin: entities.ChatUser{ID: adminID, Name: adminName, Role: entities.RoleAdmin},
	}
}

func (p *IdentityProvisioner) Admin() entities.ChatUser { return p.admin }

// Provision upserts both users in one batch. Repeating it with the same
// customerID updates in place.
func (p *IdentityProvisioner) Provision(ctx context.Context, customerID, firstName string) (entities.Identities, error) {
	if customerID == "" || customerID == p.admin.ID {
		return entities.Identities{}, &entities.ValidationError{Field: "customer id", Reason: "reserved"}
	}
	ids := entities.Identities{
		Customer: entities.ChatUser{ID: customerID, Name: firstName, Role: entities.RoleCustomer},
		Admin:    p.admin,
	}
	if err := p.chat.UpsertUsers(ctx, ids.Customer, ids.Admin); err != nil {
		return entities.Identities{}, fmt.Errorf("upsert chat users: %w", err)
	}
	return ids, nil
}
