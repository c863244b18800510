package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Johnnas12/chatbot-ui-galaxy/internal/model"
	"github.com/Johnnas12/chatbot-ui-galaxy/internal/store"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrSessionNotFound = errors.New("session not found")
	ErrMessageEmpty    = errors.New("message content is empty")
)

const (
	defaultSessionTitle = "New Chat"
	titleMaxRunes       = 50

	// connectionFailureReply is persisted as the assistant's turn when the
	// model endpoint cannot be reached, so the conversation record reflects
	// the failure.
	connectionFailureReply = "I'm sorry, but I'm having trouble connecting to the local model. " +
		"Please check that your model is running and the API configuration is correct."

	// sendFailureNotice travels back to the client as a non-blocking
	// notification next to the persisted messages.
	sendFailureNotice = "Failed to get response from your local model. " +
		"Please check your API configuration and ensure your model is running."
)

// SessionRepo is the persistent chat_sessions table, always scoped by user.
type SessionRepo interface {
	Create(session *model.ChatSession) error
	ListByUserID(userID uint) ([]model.ChatSession, error)
	GetByIDAndUserID(sessionID, userID uint) (*model.ChatSession, error)
	UpdateMessages(sessionID, userID uint, messages string) error
	UpdateConversation(sessionID, userID uint, title, messages string) error
	UpdateTitle(sessionID, userID uint, title string) error
	DeleteByIDAndUserID(sessionID, userID uint) error
}

// EventPublisher feeds the session change queue.
type EventPublisher interface {
	Publish(ctx context.Context, ev model.SessionEvent) error
}

// SessionListCache is the Redis session-list cache with its dirty marker.
type SessionListCache interface {
	GetSessions(ctx context.Context, userID uint) ([]model.ChatSession, bool, error)
	SetSessions(ctx context.Context, userID uint, sessions []model.ChatSession) error
	DeleteSessions(ctx context.Context, userID uint) error
	MarkDirty(ctx context.Context, userID uint) error
	IsDirty(ctx context.Context, userID uint) (bool, error)
}

// ModelClient answers a chat query against the local model endpoint.
type ModelClient interface {
	Query(ctx context.Context, endpointKey, query string) (string, error)
}

type ChatService struct {
	sessionRepo SessionRepo
	publisher   EventPublisher
	cache       SessionListCache
	modelClient ModelClient
	registry    *store.Registry
	logger      *zap.Logger
}

func NewChatService(
	sessionRepo SessionRepo,
	publisher EventPublisher,
	cache SessionListCache,
	modelClient ModelClient,
	registry *store.Registry,
	logger *zap.Logger,
) *ChatService {
	if registry == nil {
		registry = store.NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		sessionRepo: sessionRepo,
		publisher:   publisher,
		cache:       cache,
		modelClient: modelClient,
		registry:    registry,
		logger:      logger,
	}
}

// Store exposes the per-user in-memory mirror, mainly for transports that
// need the active-session pointer.
func (s *ChatService) Store(userID uint) *store.SessionStore {
	return s.registry.ForUser(userID)
}

// CreateSession inserts an empty session titled "New Chat" and makes it the
// active one. Local state is untouched when the insert fails.
func (s *ChatService) CreateSession(ctx context.Context, userID uint) (*model.SessionView, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}

	session := &model.ChatSession{
		UserID:    userID,
		Title:     defaultSessionTitle,
		Messages:  "[]",
		Timestamp: time.Now(),
	}
	if err := s.sessionRepo.Create(session); err != nil {
		return nil, err
	}

	s.invalidateCache(ctx, userID)
	view := session.View()
	s.broadcast(ctx, model.SessionEvent{Type: model.EventInsert, UserID: userID, Session: view})
	s.registry.ForUser(userID).Select(session.ID)
	return &view, nil
}

// ListSessions serves from the Redis cache when it is clean, otherwise from
// MySQL, and reloads the in-memory mirror either way.
func (s *ChatService) ListSessions(ctx context.Context, userID uint) ([]model.SessionView, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}

	sessions, err := s.loadSessions(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]model.SessionView, 0, len(sessions))
	for i := range sessions {
		views = append(views, sessions[i].View())
	}
	s.registry.ForUser(userID).Load(views)
	return views, nil
}

// SelectSession is a pure pointer change; the id is not validated, so a
// stale id just yields an empty message view.
func (s *ChatService) SelectSession(userID, sessionID uint) {
	s.registry.ForUser(userID).Select(sessionID)
}

type SendMessageInput struct {
	UserID      uint
	SessionID   uint // 0 = use the active session, creating one if needed
	Content     string
	EndpointKey string
}

type SendMessageResult struct {
	SessionID uint            `json:"session_id"`
	Messages  []model.Message `json:"messages"`
	Notice    string          `json:"notice,omitempty"`
}

// SendMessage appends and persists the user's message (deriving the title
// on a session's first message), queries the model endpoint, then appends
// and persists the reply. A model failure never escapes: the fixed
// apologetic assistant message is persisted instead and a notice is set.
// The two persists are not atomic; a crash in between leaves a visible
// unanswered user message.
func (s *ChatService) SendMessage(ctx context.Context, input SendMessageInput) (*SendMessageResult, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, ErrMessageEmpty
	}

	session, err := s.resolveSession(ctx, input.UserID, input.SessionID)
	if err != nil {
		return nil, err
	}

	userMessage := model.Message{
		ID:        uuid.NewString(),
		Content:   content,
		Role:      model.RoleUser,
		Timestamp: time.Now(),
	}

	msgs := session.MessageList()
	firstMessage := len(msgs) == 0
	msgs = append(msgs, userMessage)
	session.SetMessages(msgs)

	if firstMessage {
		session.Title = DeriveTitle(content)
		err = s.sessionRepo.UpdateConversation(session.ID, input.UserID, session.Title, session.Messages)
	} else {
		err = s.sessionRepo.UpdateMessages(session.ID, input.UserID, session.Messages)
	}
	if err != nil {
		return nil, err
	}
	s.invalidateCache(ctx, input.UserID)
	s.broadcast(ctx, model.SessionEvent{Type: model.EventUpdate, UserID: input.UserID, Session: session.View()})

	notice := ""
	reply, queryErr := s.modelClient.Query(ctx, input.EndpointKey, content)
	if queryErr != nil {
		s.logger.Error("local model query failed",
			zap.Error(queryErr),
			zap.Uint("user_id", input.UserID),
			zap.Uint("session_id", session.ID),
			zap.String("endpoint_key", input.EndpointKey))
		reply = connectionFailureReply
		notice = sendFailureNotice
	}

	assistantMessage := model.Message{
		ID:        uuid.NewString(),
		Content:   reply,
		Role:      model.RoleAssistant,
		Timestamp: time.Now(),
	}
	msgs = append(msgs, assistantMessage)
	session.SetMessages(msgs)

	if err := s.sessionRepo.UpdateMessages(session.ID, input.UserID, session.Messages); err != nil {
		return nil, err
	}
	s.invalidateCache(ctx, input.UserID)
	s.broadcast(ctx, model.SessionEvent{Type: model.EventUpdate, UserID: input.UserID, Session: session.View()})

	return &SendMessageResult{
		SessionID: session.ID,
		Messages:  []model.Message{userMessage, assistantMessage},
		Notice:    notice,
	}, nil
}

// UpdateSessionTitle normalizes and truncates the title before persisting.
func (s *ChatService) UpdateSessionTitle(ctx context.Context, userID, sessionID uint, title string) (*model.SessionView, error) {
	if userID == 0 || sessionID == 0 {
		return nil, ErrInvalidInput
	}

	session, err := s.sessionRepo.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	session.Title = DeriveTitle(title)
	if err := s.sessionRepo.UpdateTitle(sessionID, userID, session.Title); err != nil {
		return nil, err
	}

	s.invalidateCache(ctx, userID)
	view := session.View()
	s.broadcast(ctx, model.SessionEvent{Type: model.EventUpdate, UserID: userID, Session: view})
	return &view, nil
}

// DeleteSession removes the session. If it was active, the mirror falls
// back to the most recent remaining session, or none.
func (s *ChatService) DeleteSession(ctx context.Context, userID, sessionID uint) error {
	if userID == 0 || sessionID == 0 {
		return ErrInvalidInput
	}

	session, err := s.sessionRepo.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}

	if err := s.sessionRepo.DeleteByIDAndUserID(sessionID, userID); err != nil {
		return err
	}

	s.invalidateCache(ctx, userID)
	s.broadcast(ctx, model.SessionEvent{Type: model.EventDelete, UserID: userID, Session: session.View()})
	return nil
}

// resolveSession picks the target for a send: the explicit id, else the
// active session, else a lazily created one.
func (s *ChatService) resolveSession(ctx context.Context, userID, sessionID uint) (*model.ChatSession, error) {
	if sessionID == 0 {
		sessionID = s.registry.ForUser(userID).ActiveID()
	}
	if sessionID == 0 {
		session := &model.ChatSession{
			UserID:    userID,
			Title:     defaultSessionTitle,
			Messages:  "[]",
			Timestamp: time.Now(),
		}
		if err := s.sessionRepo.Create(session); err != nil {
			return nil, err
		}
		s.invalidateCache(ctx, userID)
		s.broadcast(ctx, model.SessionEvent{Type: model.EventInsert, UserID: userID, Session: session.View()})
		s.registry.ForUser(userID).Select(session.ID)
		return session, nil
	}

	session, err := s.sessionRepo.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *ChatService) loadSessions(ctx context.Context, userID uint) ([]model.ChatSession, error) {
	if s.cache != nil {
		if dirty, err := s.cache.IsDirty(ctx, userID); err == nil && !dirty {
			if cached, hit, cacheErr := s.cache.GetSessions(ctx, userID); cacheErr == nil && hit {
				return cached, nil
			}
		}
	}

	sessions, err := s.sessionRepo.ListByUserID(userID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if dirty, err := s.cache.IsDirty(ctx, userID); err == nil && !dirty {
			_ = s.cache.SetSessions(ctx, userID, sessions)
		}
	}
	return sessions, nil
}

// broadcast applies the event to the local mirror and pushes it onto the
// change queue. Queue failures are best-effort: logged, never propagated.
func (s *ChatService) broadcast(ctx context.Context, ev model.SessionEvent) {
	s.registry.ForUser(ev.UserID).Apply(ev)
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish session event failed",
			zap.Error(err),
			zap.String("event_type", ev.Type),
			zap.Uint("user_id", ev.UserID),
			zap.Uint("session_id", ev.Session.ID))
	}
}

func (s *ChatService) invalidateCache(ctx context.Context, userID uint) {
	if s.cache == nil {
		return
	}
	_ = s.cache.MarkDirty(ctx, userID)
	_ = s.cache.DeleteSessions(ctx, userID)
}

// DeriveTitle collapses whitespace and caps the result at 50 runes,
// appending an ellipsis marker when truncated.
func DeriveTitle(raw string) string {
	collapsed := strings.Join(strings.Fields(raw), " ")
	runes := []rune(collapsed)
	if len(runes) > titleMaxRunes {
		return string(runes[:titleMaxRunes]) + "..."
	}
	return collapsed
}
