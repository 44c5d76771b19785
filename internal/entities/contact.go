package entities

// CRM property names written on contact creation.
const (
	PropFirstName = "firstname"
	PropLastName  = "lastname"
	PropEmail     = "email"
)

// Contact is a CRM contact record. The CRM owns it; we only read and patch.
type Contact struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

// LookupResult is the outcome of a lookup that may legitimately miss.
type LookupResult struct {
	Found     bool
	ContactID string
}
