package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"supportbridge/internal/entities"
	"supportbridge/internal/interfaces"
)

// ContactDirectory maps an email address to exactly one CRM contact.
type ContactDirectory struct {
	crm interfaces.CRM
	log *slog.Logger
}

func NewContactDirectory(crm interfaces.CRM, logger *slog.Logger) *ContactDirectory {
	return &ContactDirectory{crm: crm, log: logger}
}

// GetOrCreate returns the contact id for email, creating the contact on a
// lookup miss. No local locking: two racing creates are settled by the CRM's
// email uniqueness, and the loser re-reads the winner's id.
func (d *ContactDirectory) GetOrCreate(ctx context.Context, email, firstName, lastName string) (string, error) {
	res, err := d.crm.LookupContactByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("lookup contact: %w", err)
	}
	if res.Found {
		return res.ContactID, nil
	}

	id, err := d.crm.CreateContact(ctx, map[string]string{
		entities.PropFirstName: firstName,
		entities.PropLastName:  lastName,
		entities.PropEmail:     email,
	})
	if err == nil {
		d.log.Info("crm contact created", slog.String("contact_id", id))
		return id, nil
	}
	if !isConflict(err) {
		return "", fmt.Errorf("create contact: %w", err)
	}

	res, lookupErr := d.crm.LookupContactByEmail(ctx, email)
	if lookupErr != nil || !res.Found {
		return "", fmt.Errorf("create contact: %w", err)
	}
	return res.ContactID, nil
}

func isConflict(err error) bool {
	var ue *entities.UpstreamError
	return errors.As(err, &ue) && ue.Status == http.StatusConflict
}
