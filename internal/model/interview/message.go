package interview

import "time"

// Sender roles within a conversation.
const (
	SenderCandidate   = "candidate"
	SenderInterviewer = "interviewer"
)

// Delivery flag states. A message is immutable once appended except for
// the delivery flag, which moves from pending to exactly one terminal
// state.
const (
	DeliveryPending   = "pending"
	DeliveryDelivered = "delivered"
	DeliveryRead      = "read"
	DeliveryError     = "error"
)

// Message persists a single turn of a conversation.
type Message struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	ConversationID string    `gorm:"not null;index" json:"conversationId"`
	Sender         string    `gorm:"not null" json:"sender"`
	Content        string    `gorm:"not null" json:"content"`
	AttachmentRef  string    `json:"attachmentRef,omitempty"`
	Delivery       string    `gorm:"not null;default:'pending'" json:"delivery"`
	SentAt         time.Time `gorm:"not null" json:"sentAt"`
	CreatedAt      time.Time `gorm:"not null" json:"createdAt"`
}

// DeliveryTerminal reports whether the flag has reached a terminal state.
func DeliveryTerminal(flag string) bool {
	switch flag {
	case DeliveryDelivered, DeliveryRead, DeliveryError:
		return true
	}
	return false
}
