package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Johnnas12/chatbot-ui-galaxy/internal/model"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(session *model.ChatSession) error {
	if err := r.db.Create(session).Error; err != nil {
		return fmt.Errorf("create chat session failed: %w", err)
	}
	return nil
}

// ListByUserID returns the user's sessions newest-first.
func (r *SessionRepository) ListByUserID(userID uint) ([]model.ChatSession, error) {
	var sessions []model.ChatSession
	if err := r.db.Where("user_id = ?", userID).Order("timestamp DESC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list chat sessions failed: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepository) GetByIDAndUserID(sessionID, userID uint) (*model.ChatSession, error) {
	var session model.ChatSession
	if err := r.db.Where("id = ? AND user_id = ?", sessionID, userID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat session failed: %w", err)
	}
	return &session, nil
}

// UpdateMessages replaces the serialized message array. Last write wins;
// concurrent senders against the same session are not serialized here.
func (r *SessionRepository) UpdateMessages(sessionID, userID uint, messages string) error {
	err := r.db.Model(&model.ChatSession{}).
		Where("id = ? AND user_id = ?", sessionID, userID).
		Update("messages", messages).Error
	if err != nil {
		return fmt.Errorf("update session messages failed: %w", err)
	}
	return nil
}

// UpdateConversation writes the title and message array together, used when
// the first message of a session also derives its title.
func (r *SessionRepository) UpdateConversation(sessionID, userID uint, title, messages string) error {
	err := r.db.Model(&model.ChatSession{}).
		Where("id = ? AND user_id = ?", sessionID, userID).
		Updates(map[string]interface{}{"title": title, "messages": messages}).Error
	if err != nil {
		return fmt.Errorf("update session conversation failed: %w", err)
	}
	return nil
}

func (r *SessionRepository) UpdateTitle(sessionID, userID uint, title string) error {
	err := r.db.Model(&model.ChatSession{}).
		Where("id = ? AND user_id = ?", sessionID, userID).
		Update("title", title).Error
	if err != nil {
		return fmt.Errorf("update session title failed: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeleteByIDAndUserID(sessionID, userID uint) error {
	if err := r.db.Where("id = ? AND user_id = ?", sessionID, userID).Delete(&model.ChatSession{}).Error; err != nil {
		return fmt.Errorf("delete chat session failed: %w", err)
	}
	return nil
}
