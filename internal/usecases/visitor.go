package usecases

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"supportbridge/internal/entities"
)

const (
	nameConnector = "_" // replaces whitespace inside a name
	partConnector = "-" // joins first and last name
	maxFieldLen   = 256
)

var validate = validator.New()

// NormalizeVisitor trims every field, lower-cases the email and rejects
// missing or malformed values. Display names keep their case.
func NormalizeVisitor(v entities.Visitor) (entities.Visitor, error) {
	out := entities.Visitor{
		FirstName: strings.Join(strings.Fields(v.FirstName), " "),
		LastName:  strings.Join(strings.Fields(v.LastName), " "),
		Email:     strings.ToLower(strings.TrimSpace(v.Email)),
	}

	fields := []struct{ name, value string }{
		{"firstName", out.FirstName},
		{"lastName", out.LastName},
		{"email", out.Email},
	}
	for _, f := range fields {
		if f.value == "" {
			return entities.Visitor{}, &entities.ValidationError{Field: f.name, Reason: "required"}
		}
		if len(f.value) > maxFieldLen {
			return entities.Visitor{}, &entities.ValidationError{Field: f.name, Reason: "too long"}
		}
	}
	if err := validate.Var(out.Email, "email"); err != nil {
		return entities.Visitor{}, &entities.ValidationError{Field: "email", Reason: "not a valid address"}
	}
	return out, nil
}

// DeriveCustomerID maps a visitor's name to a stable chat user id:
// "Jane Q" + "Doe" -> "jane_q-doe".
func DeriveCustomerID(firstName, lastName string) string {
	return normalizeNamePart(firstName) + partConnector + normalizeNamePart(lastName)
}

func normalizeNamePart(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), nameConnector))
}
