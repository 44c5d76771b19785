package entities

const (
	RoleCustomer = "user"
	RoleAdmin    = "admin"
)

// ChatUser is an identity on the chat provider.
type ChatUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"` // "user" or "admin"
}

// Identities is the pair of users that make up one support conversation.
type Identities struct {
	Customer ChatUser
	Admin    ChatUser
}
