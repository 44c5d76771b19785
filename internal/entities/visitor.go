package entities

// Visitor is the identity a client submits on registration. Not persisted.
type Visitor struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// Registration is the bundle a client needs to open its chat session.
type Registration struct {
	CustomerID    string `json:"customerId"`
	CustomerToken string `json:"customerToken"`
	ChannelID     string `json:"channelId"`
	APIKey        string `json:"apiKey"`
}
