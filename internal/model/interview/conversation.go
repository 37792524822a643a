package interview

import "time"

// Conversation is one of the fixed parallel interviewer threads within a
// session. Exactly one conversation exists per (session, slot) pair; the
// message log is append-only and never truncated.
type Conversation struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"not null;index:idx_conversation_slot,unique,priority:1" json:"sessionId"`
	Slot      int       `gorm:"not null;index:idx_conversation_slot,unique,priority:2" json:"slot"`
	PersonaID string    `gorm:"not null" json:"personaId"`
	Messages  []Message `gorm:"-" json:"messages"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`
}
