package app

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Johnnas12/chatbot-ui-galaxy/internal/model"
)

type fakeSessionRepo struct {
	nextID   uint
	sessions map[uint]model.ChatSession
	failWith error
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[uint]model.ChatSession)}
}

func (r *fakeSessionRepo) Create(session *model.ChatSession) error {
	if r.failWith != nil {
		return r.failWith
	}
	r.nextID++
	session.ID = r.nextID
	r.sessions[session.ID] = *session
	return nil
}

func (r *fakeSessionRepo) ListByUserID(userID uint) ([]model.ChatSession, error) {
	if r.failWith != nil {
		return nil, r.failWith
	}
	var out []model.ChatSession
	for _, s := range r.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (r *fakeSessionRepo) GetByIDAndUserID(sessionID, userID uint) (*model.ChatSession, error) {
	if r.failWith != nil {
		return nil, r.failWith
	}
	s, ok := r.sessions[sessionID]
	if !ok || s.UserID != userID {
		return nil, nil
	}
	copied := s
	return &copied, nil
}

func (r *fakeSessionRepo) UpdateMessages(sessionID, userID uint, messages string) error {
	s, ok := r.sessions[sessionID]
	if !ok || s.UserID != userID {
		return errors.New("no rows updated")
	}
	s.Messages = messages
	r.sessions[sessionID] = s
	return nil
}

func (r *fakeSessionRepo) UpdateConversation(sessionID, userID uint, title, messages string) error {
	s, ok := r.sessions[sessionID]
	if !ok || s.UserID != userID {
		return errors.New("no rows updated")
	}
	s.Title = title
	s.Messages = messages
	r.sessions[sessionID] = s
	return nil
}

func (r *fakeSessionRepo) UpdateTitle(sessionID, userID uint, title string) error {
	s, ok := r.sessions[sessionID]
	if !ok || s.UserID != userID {
		return errors.New("no rows updated")
	}
	s.Title = title
	r.sessions[sessionID] = s
	return nil
}

func (r *fakeSessionRepo) DeleteByIDAndUserID(sessionID, userID uint) error {
	s, ok := r.sessions[sessionID]
	if !ok || s.UserID != userID {
		return errors.New("no rows deleted")
	}
	delete(r.sessions, sessionID)
	return nil
}

type fakePublisher struct {
	events []model.SessionEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, ev model.SessionEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

type fakeModelClient struct {
	reply       string
	err         error
	lastKey     string
	lastQuery   string
	timesCalled int
}

func (m *fakeModelClient) Query(_ context.Context, endpointKey, query string) (string, error) {
	m.timesCalled++
	m.lastKey = endpointKey
	m.lastQuery = query
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

type fakeSessionCache struct {
	entries map[uint][]model.ChatSession
	dirty   map[uint]bool
	hits    int
}

func newFakeSessionCache() *fakeSessionCache {
	return &fakeSessionCache{entries: make(map[uint][]model.ChatSession), dirty: make(map[uint]bool)}
}

func (c *fakeSessionCache) GetSessions(_ context.Context, userID uint) ([]model.ChatSession, bool, error) {
	sessions, ok := c.entries[userID]
	if ok {
		c.hits++
	}
	return sessions, ok, nil
}

func (c *fakeSessionCache) SetSessions(_ context.Context, userID uint, sessions []model.ChatSession) error {
	c.entries[userID] = sessions
	return nil
}

func (c *fakeSessionCache) DeleteSessions(_ context.Context, userID uint) error {
	delete(c.entries, userID)
	return nil
}

func (c *fakeSessionCache) MarkDirty(_ context.Context, userID uint) error {
	c.dirty[userID] = true
	return nil
}

func (c *fakeSessionCache) IsDirty(_ context.Context, userID uint) (bool, error) {
	return c.dirty[userID], nil
}

func newTestChatService(repo SessionRepo, pub EventPublisher, cache SessionListCache, mc ModelClient) *ChatService {
	return NewChatService(repo, pub, cache, mc, nil, nil)
}

func TestCreateSessionBecomesActive(t *testing.T) {
	repo := newFakeSessionRepo()
	pub := &fakePublisher{}
	svc := newTestChatService(repo, pub, nil, &fakeModelClient{})

	view, err := svc.CreateSession(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, "New Chat", view.Title)
	assert.Empty(t, view.Messages)
	assert.Equal(t, view.ID, svc.Store(1).ActiveID())

	require.Len(t, pub.events, 1)
	assert.Equal(t, model.EventInsert, pub.events[0].Type)
	assert.Equal(t, view.ID, pub.events[0].Session.ID)
}

func TestSendMessageLazilyCreatesAndTitlesSession(t *testing.T) {
	repo := newFakeSessionRepo()
	pub := &fakePublisher{}
	mc := &fakeModelClient{reply: "use bwa-mem for alignment"}
	svc := newTestChatService(repo, pub, nil, mc)

	result, err := svc.SendMessage(context.Background(), SendMessageInput{
		UserID:      1,
		Content:     "  How do I align reads?  ",
		EndpointKey: "tool-suggest",
	})
	require.NoError(t, err)

	require.Len(t, result.Messages, 2)
	assert.Equal(t, model.RoleUser, result.Messages[0].Role)
	assert.Equal(t, "How do I align reads?", result.Messages[0].Content)
	assert.Equal(t, model.RoleAssistant, result.Messages[1].Role)
	assert.Equal(t, "use bwa-mem for alignment", result.Messages[1].Content)
	assert.Empty(t, result.Notice)

	assert.Equal(t, "tool-suggest", mc.lastKey)
	assert.Equal(t, "How do I align reads?", mc.lastQuery)

	persisted, err := repo.GetByIDAndUserID(result.SessionID, 1)
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, "How do I align reads?", persisted.Title)
	assert.Len(t, persisted.MessageList(), 2)

	// Lazy insert plus an update per persisted turn.
	require.Len(t, pub.events, 3)
	assert.Equal(t, model.EventInsert, pub.events[0].Type)
	assert.Equal(t, model.EventUpdate, pub.events[1].Type)
	assert.Equal(t, model.EventUpdate, pub.events[2].Type)

	assert.Equal(t, result.SessionID, svc.Store(1).ActiveID())
}

func TestSendMessageAppendsToExistingSession(t *testing.T) {
	repo := newFakeSessionRepo()
	svc := newTestChatService(repo, &fakePublisher{}, nil, &fakeModelClient{reply: "second answer"})

	first, err := svc.SendMessage(context.Background(), SendMessageInput{UserID: 1, Content: "first question"})
	require.NoError(t, err)

	second, err := svc.SendMessage(context.Background(), SendMessageInput{
		UserID:    1,
		SessionID: first.SessionID,
		Content:   "second question",
	})
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)

	persisted, err := repo.GetByIDAndUserID(first.SessionID, 1)
	require.NoError(t, err)
	msgs := persisted.MessageList()
	require.Len(t, msgs, 4)
	assert.Equal(t, "first question", msgs[0].Content)
	assert.Equal(t, "second question", msgs[2].Content)
	// The second turn must not retitle.
	assert.Equal(t, "first question", persisted.Title)
}

func TestSendMessageModelFailurePersistsApology(t *testing.T) {
	repo := newFakeSessionRepo()
	svc := newTestChatService(repo, &fakePublisher{}, nil, &fakeModelClient{err: errors.New("connection refused")})

	result, err := svc.SendMessage(context.Background(), SendMessageInput{UserID: 1, Content: "hello"})
	require.NoError(t, err)

	assert.Equal(t, sendFailureNotice, result.Notice)
	assert.Equal(t, connectionFailureReply, result.Messages[1].Content)

	persisted, err := repo.GetByIDAndUserID(result.SessionID, 1)
	require.NoError(t, err)
	msgs := persisted.MessageList()
	require.Len(t, msgs, 2)
	assert.Equal(t, connectionFailureReply, msgs[1].Content)
}

func TestSendMessageRejectsBlankContent(t *testing.T) {
	svc := newTestChatService(newFakeSessionRepo(), &fakePublisher{}, nil, &fakeModelClient{})

	_, err := svc.SendMessage(context.Background(), SendMessageInput{UserID: 1, Content: "   \n\t  "})
	assert.ErrorIs(t, err, ErrMessageEmpty)
}

func TestSendMessageUnknownSession(t *testing.T) {
	svc := newTestChatService(newFakeSessionRepo(), &fakePublisher{}, nil, &fakeModelClient{})

	_, err := svc.SendMessage(context.Background(), SendMessageInput{UserID: 1, SessionID: 99, Content: "hi"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSendMessagePublishFailureDoesNotBlock(t *testing.T) {
	repo := newFakeSessionRepo()
	svc := newTestChatService(repo, &fakePublisher{err: errors.New("broker down")}, nil, &fakeModelClient{reply: "ok"})

	result, err := svc.SendMessage(context.Background(), SendMessageInput{UserID: 1, Content: "hi"})
	require.NoError(t, err)
	assert.Len(t, result.Messages, 2)
}

func TestListSessionsServesCacheWhenClean(t *testing.T) {
	repo := newFakeSessionRepo()
	cache := newFakeSessionCache()
	svc := newTestChatService(repo, &fakePublisher{}, cache, &fakeModelClient{})

	require.NoError(t, repo.Create(&model.ChatSession{UserID: 1, Title: "a", Messages: "[]", Timestamp: time.Now()}))

	// First call fills the cache from the repository.
	views, err := svc.ListSessions(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, 0, cache.hits)

	// Second call is served from the cache.
	_, err = svc.ListSessions(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
}

func TestWriteInvalidatesSessionCache(t *testing.T) {
	repo := newFakeSessionRepo()
	cache := newFakeSessionCache()
	svc := newTestChatService(repo, &fakePublisher{}, cache, &fakeModelClient{})

	_, err := svc.ListSessions(context.Background(), 1)
	require.NoError(t, err)

	_, err = svc.CreateSession(context.Background(), 1)
	require.NoError(t, err)

	assert.True(t, cache.dirty[1])
	_, ok := cache.entries[1]
	assert.False(t, ok)
}

func TestDeleteActiveSessionFallsBackToMostRecent(t *testing.T) {
	repo := newFakeSessionRepo()
	svc := newTestChatService(repo, &fakePublisher{}, nil, &fakeModelClient{reply: "ok"})
	ctx := context.Background()

	older, err := svc.CreateSession(ctx, 1)
	require.NoError(t, err)
	newer, err := svc.CreateSession(ctx, 1)
	require.NoError(t, err)

	svc.SelectSession(1, older.ID)
	require.NoError(t, svc.DeleteSession(ctx, 1, older.ID))

	assert.Equal(t, newer.ID, svc.Store(1).ActiveID())
	got, err := repo.GetByIDAndUserID(older.ID, 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeleteUnknownSession(t *testing.T) {
	svc := newTestChatService(newFakeSessionRepo(), &fakePublisher{}, nil, &fakeModelClient{})
	err := svc.DeleteSession(context.Background(), 1, 42)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestUpdateSessionTitle(t *testing.T) {
	repo := newFakeSessionRepo()
	svc := newTestChatService(repo, &fakePublisher{}, nil, &fakeModelClient{})
	ctx := context.Background()

	view, err := svc.CreateSession(ctx, 1)
	require.NoError(t, err)

	updated, err := svc.UpdateSessionTitle(ctx, 1, view.ID, "  RNA-seq   pipeline  ")
	require.NoError(t, err)
	assert.Equal(t, "RNA-seq pipeline", updated.Title)

	_, err = svc.UpdateSessionTitle(ctx, 1, 999, "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDeriveTitle(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"short passes through", "Hello there", "Hello there"},
		{"whitespace collapsed", "  a \n\t b   c ", "a b c"},
		{"exactly fifty runes kept", strings.Repeat("x", 50), strings.Repeat("x", 50)},
		{"long input truncated", strings.Repeat("x", 60), strings.Repeat("x", 50) + "..."},
		{"multibyte counted as runes", strings.Repeat("基", 51), strings.Repeat("基", 50) + "..."},
		{"empty stays empty", "   ", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveTitle(tc.in))
		})
	}
}
