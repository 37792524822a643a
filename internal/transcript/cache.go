package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/talentsim/backend/internal/model/interview"
	"github.com/talentsim/backend/internal/store"
	"github.com/talentsim/backend/pkg/logger"
)

// Cache reconstructs a session's conversations when the primary store
// returns partial or empty data. Lookup order: primary store, whole-
// session snapshot, per-conversation snapshots, empty. Cache failures are
// never fatal; a miss degrades to the next tier and, at worst, an empty
// conversation. Content is never synthesized.
type Cache struct {
	store store.Store
	kv    KV
	slots int
	log   *logger.Logger
}

// NewCache builds the tiered cache. slots is the fixed conversation count
// per session.
func NewCache(st store.Store, kv KV, slots int, log *logger.Logger) *Cache {
	if slots <= 0 {
		slots = interview.DefaultConversationSlots
	}
	return &Cache{
		store: st,
		kv:    kv,
		slots: slots,
		log:   log.With("service", "TranscriptCache"),
	}
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("transcript:session:%s", sessionID)
}

func conversationKey(sessionID string, slot int) string {
	return fmt.Sprintf("transcript:conversation:%s:%d", sessionID, slot)
}

// Load returns the session's conversations, one per slot, patching holes
// in the primary read from the cache tiers.
func (c *Cache) Load(ctx context.Context, sessionID string) ([]interview.Conversation, error) {
	primary, err := c.store.ListConversations(ctx, sessionID)
	primaryOK := err == nil
	if err != nil {
		c.log.Warn("primary transcript read failed, falling back to cache tiers",
			"session_id", sessionID, "error", err)
	}

	bySlot := make(map[int]interview.Conversation, c.slots)
	for _, conv := range primary {
		if existing, dup := bySlot[conv.Slot]; dup {
			// Duplicate (session, slot) rows are repaired, never
			// multiplied: the earliest row stays authoritative.
			c.log.Warn("duplicate conversation slot repaired",
				"session_id", sessionID, "slot", conv.Slot,
				"kept", existing.ID, "dropped", conv.ID)
			continue
		}
		bySlot[conv.Slot] = conv
	}

	missing := make([]int, 0, c.slots)
	for slot := 0; slot < c.slots; slot++ {
		if conv, ok := bySlot[slot]; !ok || len(conv.Messages) == 0 {
			missing = append(missing, slot)
		}
	}

	if primaryOK && len(missing) == 0 {
		c.refreshTiers(ctx, sessionID, ordered(bySlot, c.slots))
		return ordered(bySlot, c.slots), nil
	}

	snapshot := c.loadSessionSnapshot(ctx, sessionID)
	for _, slot := range missing {
		if conv, ok := snapshot[slot]; ok && len(conv.Messages) > 0 {
			bySlot[slot] = conv
			continue
		}
		if conv, ok := c.loadConversationSnapshot(ctx, sessionID, slot); ok {
			bySlot[slot] = conv
		}
	}

	merged := ordered(bySlot, c.slots)
	if primaryOK {
		// Only a successful primary read refreshes the per-conversation
		// tier; a degraded read must not clobber recoverable entries.
		for _, conv := range primary {
			c.writeConversationSnapshot(ctx, sessionID, conv)
		}
	}
	return merged, nil
}

// Snapshot freezes the session's transcript for scoring.
func (c *Cache) Snapshot(ctx context.Context, session interview.Session) (interview.TranscriptSnapshot, error) {
	conversations, err := c.Load(ctx, session.ID)
	if err != nil {
		return interview.TranscriptSnapshot{}, err
	}
	return interview.TranscriptSnapshot{
		SessionID:     session.ID,
		CandidateID:   session.CandidateID,
		TakenAt:       time.Now().UTC(),
		Conversations: conversations,
	}, nil
}

// RecordAppend synchronously folds a freshly appended message into the
// affected conversation entry and the whole-session snapshot, so a crash
// before the next primary read is still recoverable.
func (c *Cache) RecordAppend(ctx context.Context, sessionID string, slot int, msg interview.Message) {
	conv, ok := c.loadConversationSnapshot(ctx, sessionID, slot)
	if !ok {
		conv = interview.Conversation{
			ID:        msg.ConversationID,
			SessionID: sessionID,
			Slot:      slot,
		}
	}
	conv.Messages = append(conv.Messages, msg)
	c.writeConversationSnapshot(ctx, sessionID, conv)

	snapshot := c.loadSessionSnapshot(ctx, sessionID)
	snapshot[slot] = conv
	c.writeSessionSnapshot(ctx, sessionID, ordered(snapshot, c.slots))
}

func (c *Cache) refreshTiers(ctx context.Context, sessionID string, conversations []interview.Conversation) {
	c.writeSessionSnapshot(ctx, sessionID, conversations)
	for _, conv := range conversations {
		c.writeConversationSnapshot(ctx, sessionID, conv)
	}
}

func (c *Cache) loadSessionSnapshot(ctx context.Context, sessionID string) map[int]interview.Conversation {
	bySlot := make(map[int]interview.Conversation)
	raw, err := c.kv.Get(ctx, sessionKey(sessionID))
	if err != nil {
		if err != ErrCacheMiss {
			c.log.Warn("session snapshot tier unavailable", "session_id", sessionID, "error", err)
		}
		return bySlot
	}
	var conversations []interview.Conversation
	if err := json.Unmarshal(raw, &conversations); err != nil {
		c.log.Warn("corrupt session snapshot dropped", "session_id", sessionID, "error", err)
		return bySlot
	}
	for _, conv := range conversations {
		bySlot[conv.Slot] = conv
	}
	return bySlot
}

func (c *Cache) writeSessionSnapshot(ctx context.Context, sessionID string, conversations []interview.Conversation) {
	raw, err := json.Marshal(conversations)
	if err != nil {
		c.log.Warn("session snapshot encode failed", "session_id", sessionID, "error", err)
		return
	}
	if err := c.kv.Set(ctx, sessionKey(sessionID), raw); err != nil {
		c.log.Warn("session snapshot write failed", "session_id", sessionID, "error", err)
	}
}

func (c *Cache) loadConversationSnapshot(ctx context.Context, sessionID string, slot int) (interview.Conversation, bool) {
	raw, err := c.kv.Get(ctx, conversationKey(sessionID, slot))
	if err != nil {
		if err != ErrCacheMiss {
			c.log.Warn("conversation snapshot tier unavailable",
				"session_id", sessionID, "slot", slot, "error", err)
		}
		return interview.Conversation{}, false
	}
	var conv interview.Conversation
	if err := json.Unmarshal(raw, &conv); err != nil {
		c.log.Warn("corrupt conversation snapshot dropped",
			"session_id", sessionID, "slot", slot, "error", err)
		return interview.Conversation{}, false
	}
	return conv, true
}

func (c *Cache) writeConversationSnapshot(ctx context.Context, sessionID string, conv interview.Conversation) {
	raw, err := json.Marshal(conv)
	if err != nil {
		c.log.Warn("conversation snapshot encode failed",
			"session_id", sessionID, "slot", conv.Slot, "error", err)
		return
	}
	if err := c.kv.Set(ctx, conversationKey(sessionID, conv.Slot), raw); err != nil {
		c.log.Warn("conversation snapshot write failed",
			"session_id", sessionID, "slot", conv.Slot, "error", err)
	}
}

// ordered lays the slot map out as a slice covering every expected slot.
// Slots with no recoverable data surface as empty conversations.
func ordered(bySlot map[int]interview.Conversation, slots int) []interview.Conversation {
	out := make([]interview.Conversation, 0, slots)
	for slot := 0; slot < slots; slot++ {
		conv, ok := bySlot[slot]
		if !ok {
			conv = interview.Conversation{Slot: slot}
		}
		out = append(out, conv)
	}
	return out
}
