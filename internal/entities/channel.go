package entities

const ChannelTypeMessaging = "messaging"

// Channel is a two-member conversation. Its ID equals the CRM contact ID,
// which is how webhook events find their way back to the contact.
type Channel struct {
	ID      string   `json:"id"`
	Type    string   `json:"type"`
	Members []string `json:"members"`
}
