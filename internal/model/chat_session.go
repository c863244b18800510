package model

import (
	"encoding/json"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation. Messages are append-only within a
// session and immutable once written.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Role      string    `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatSession keeps the whole conversation in a single row; Messages holds
// the JSON-serialized message array so the row mirrors the chat_sessions
// table shape {id, title, timestamp, messages, user_id}.
type ChatSession struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Title     string    `gorm:"size:128;not null" json:"title"`
	Messages  string    `gorm:"type:text;not null" json:"-"`
	Timestamp time.Time `gorm:"index" json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}

// MessageList returns the parsed message slice; empty on parse error.
func (s *ChatSession) MessageList() []Message {
	if s.Messages == "" {
		return nil
	}
	var msgs []Message
	_ = json.Unmarshal([]byte(s.Messages), &msgs)
	return msgs
}

// SetMessages stores the messages as JSON.
func (s *ChatSession) SetMessages(msgs []Message) {
	if len(msgs) == 0 {
		s.Messages = "[]"
		return
	}
	b, _ := json.Marshal(msgs)
	s.Messages = string(b)
}

// SessionView is the wire form of a session with the message array decoded.
// Timestamps round-trip through RFC 3339 so string dates coming back from
// the store land as time.Time on every load path.
type SessionView struct {
	ID        uint      `json:"id"`
	UserID    uint      `json:"user_id"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
	Messages  []Message `json:"messages"`
}

func (s *ChatSession) View() SessionView {
	msgs := s.MessageList()
	if msgs == nil {
		msgs = []Message{}
	}
	return SessionView{
		ID:        s.ID,
		UserID:    s.UserID,
		Title:     s.Title,
		Timestamp: s.Timestamp,
		Messages:  msgs,
	}
}
