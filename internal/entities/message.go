package entities

// EventMessageNew is the only webhook event type that touches the transcript.
const EventMessageNew = "message.new"

// MessageEvent is the subset of a chat provider webhook payload we care about.
type MessageEvent struct {
	Type      string       `json:"type"`
	ChannelID string       `json:"channel_id"`
	Message   EventMessage `json:"message"`
}

type EventMessage struct {
	ID        string      `json:"id"`
	User      EventSender `json:"user"`
	CreatedAt string      `json:"created_at"` // kept verbatim, never re-formatted
	Text      string      `json:"text"`
}

type EventSender struct {
	ID string `json:"id"`
}
