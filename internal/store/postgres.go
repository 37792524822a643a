package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/talentsim/backend/internal/model/interview"
	"github.com/talentsim/backend/pkg/logger"
)

// Postgres implements Store on top of gorm. It is the production source of
// truth; all conditional writes use native WHERE guards or ON CONFLICT so
// two stateless processes racing on the same session stay consistent.
type Postgres struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewPostgres connects, migrates and returns the relational store.
func NewPostgres(dsn string, log *logger.Logger) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, wrap("store.open", ErrTransient, err)
	}

	if err := db.AutoMigrate(
		&interview.Session{},
		&interview.Conversation{},
		&interview.Message{},
		&interview.AnalysisResult{},
	); err != nil {
		return nil, wrap("store.migrate", ErrTransient, err)
	}

	return &Postgres{db: db, log: log.With("service", "PostgresStore")}, nil
}

func (s *Postgres) GetSession(ctx context.Context, id string) (interview.Session, error) {
	var session interview.Session
	err := s.db.WithContext(ctx).First(&session, "id = ?", id).Error
	if err != nil {
		return interview.Session{}, translate("store.get_session", err)
	}
	return session, nil
}

func (s *Postgres) FindCurrentSession(ctx context.Context, candidateID string) (interview.Session, error) {
	var session interview.Session
	err := s.db.WithContext(ctx).
		Where("candidate_id = ? AND completed = false", candidateID).
		Order("started_at DESC").
		First(&session).Error
	if err != nil {
		return interview.Session{}, translate("store.find_current_session", err)
	}
	return session, nil
}

func (s *Postgres) CreateSession(ctx context.Context, session interview.Session, conversations []interview.Conversation) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&session).Error; err != nil {
			return err
		}
		for i := range conversations {
			if err := tx.Create(&conversations[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return translate("store.create_session", err)
	}
	return nil
}

func (s *Postgres) UpdateSessionDuration(ctx context.Context, id string, durationSeconds int, expectUpdatedAt time.Time) (interview.Session, error) {
	res := s.db.WithContext(ctx).
		Model(&interview.Session{}).
		Where("id = ? AND updated_at = ? AND completed = false", id, expectUpdatedAt).
		Updates(map[string]interface{}{
			"duration_seconds": durationSeconds,
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return interview.Session{}, translate("store.update_duration", res.Error)
	}
	if res.RowsAffected == 0 {
		// Row moved under us or never existed; let the caller re-read.
		if _, err := s.GetSession(ctx, id); err != nil {
			return interview.Session{}, err
		}
		return interview.Session{}, wrap("store.update_duration", ErrConflict, nil)
	}
	return s.GetSession(ctx, id)
}

func (s *Postgres) MarkSessionCompleted(ctx context.Context, id string, at time.Time) (interview.Session, error) {
	res := s.db.WithContext(ctx).
		Model(&interview.Session{}).
		Where("id = ? AND completed = false", id).
		Updates(map[string]interface{}{
			"completed":    true,
			"completed_at": at,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return interview.Session{}, translate("store.mark_completed", res.Error)
	}

	session, err := s.GetSession(ctx, id)
	if err != nil {
		return interview.Session{}, err
	}
	if res.RowsAffected == 0 && !session.Completed {
		return interview.Session{}, wrap("store.mark_completed", ErrConflict, nil)
	}
	return session, nil
}

func (s *Postgres) ListConversations(ctx context.Context, sessionID string) ([]interview.Conversation, error) {
	var conversations []interview.Conversation
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("slot ASC, created_at ASC").
		Find(&conversations).Error
	if err != nil {
		return nil, translate("store.list_conversations", err)
	}
	if len(conversations) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(conversations))
	for _, conv := range conversations {
		ids = append(ids, conv.ID)
	}

	var messages []interview.Message
	err = s.db.WithContext(ctx).
		Where("conversation_id IN ?", ids).
		Order("created_at ASC").
		Find(&messages).Error
	if err != nil {
		return nil, translate("store.list_conversations", err)
	}

	byConversation := make(map[string][]interview.Message, len(conversations))
	for _, msg := range messages {
		byConversation[msg.ConversationID] = append(byConversation[msg.ConversationID], msg)
	}
	for i := range conversations {
		conversations[i].Messages = byConversation[conversations[i].ID]
	}
	return conversations, nil
}

func (s *Postgres) AppendMessage(ctx context.Context, sessionID string, slot int, msg interview.Message) (interview.Message, error) {
	var conversation interview.Conversation
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND slot = ?", sessionID, slot).
		Order("created_at ASC").
		First(&conversation).Error
	if err != nil {
		return interview.Message{}, translate("store.append_message", err)
	}

	msg.ConversationID = conversation.ID
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return interview.Message{}, translate("store.append_message", err)
	}
	return msg, nil
}

func (s *Postgres) SetMessageDelivery(ctx context.Context, messageID, flag string) error {
	if !interview.DeliveryTerminal(flag) {
		return wrap("store.set_delivery", ErrConflict, errors.New("flag must be terminal"))
	}
	res := s.db.WithContext(ctx).
		Model(&interview.Message{}).
		Where("id = ? AND delivery = ?", messageID, interview.DeliveryPending).
		Update("delivery", flag)
	if res.Error != nil {
		return translate("store.set_delivery", res.Error)
	}
	if res.RowsAffected == 0 {
		// Already terminal: transitions are one-way, so this is a no-op.
		var msg interview.Message
		if err := s.db.WithContext(ctx).First(&msg, "id = ?", messageID).Error; err != nil {
			return translate("store.set_delivery", err)
		}
	}
	return nil
}

func (s *Postgres) ListAnalysisResults(ctx context.Context, sessionID, candidateID string) ([]interview.AnalysisResult, error) {
	var results []interview.AnalysisResult
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND candidate_id = ?", sessionID, candidateID).
		Order("updated_at DESC").
		Find(&results).Error
	if err != nil {
		return nil, translate("store.list_results", err)
	}
	return results, nil
}

func (s *Postgres) InsertAnalysisResult(ctx context.Context, result interview.AnalysisResult) error {
	if err := s.db.WithContext(ctx).Create(&result).Error; err != nil {
		return translate("store.insert_result", err)
	}
	return nil
}

func (s *Postgres) UpdateAnalysisResult(ctx context.Context, result interview.AnalysisResult) error {
	res := s.db.WithContext(ctx).
		Model(&interview.AnalysisResult{}).
		Where("id = ?", result.ID).
		Updates(map[string]interface{}{
			"scores":     result.Scores,
			"summary":    result.Summary,
			"updated_at": result.UpdatedAt,
		})
	if res.Error != nil {
		return translate("store.update_result", res.Error)
	}
	if res.RowsAffected == 0 {
		return wrap("store.update_result", ErrNotFound, nil)
	}
	return nil
}

// WithResultLock runs fn inside a transaction holding FOR UPDATE locks on
// the (session, candidate) result rows, giving the caller an atomic
// read-with-intent-to-update window.
func (s *Postgres) WithResultLock(ctx context.Context, sessionID, candidateID string, fn func(tx Store) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []interview.AnalysisResult
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("session_id = ? AND candidate_id = ?", sessionID, candidateID).
			Find(&rows).Error; err != nil {
			return err
		}
		return fn(&Postgres{db: tx, log: s.log})
	})
	if err != nil {
		return translateKeepKind("store.with_result_lock", err)
	}
	return nil
}

// translate maps gorm errors onto the store's error kinds.
func translate(op string, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return wrap(op, ErrNotFound, nil)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return wrap(op, ErrConflict, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return wrap(op, ErrTransient, err)
	default:
		return wrap(op, ErrTransient, err)
	}
}

// translateKeepKind preserves kinds already attached by nested store calls
// and only classifies raw driver errors.
func translateKeepKind(op string, err error) error {
	if IsNotFound(err) || IsConflict(err) || IsTransient(err) {
		return err
	}
	return translate(op, err)
}
