package store

import (
	"sort"
	"sync"

	"github.com/Johnnas12/chatbot-ui-galaxy/internal/model"
)

// SessionStore is the in-memory mirror of one user's session list plus the
// active-session pointer. All change events funnel through Apply, which is
// the single place that reconciles remote state with local state.
type SessionStore struct {
	mu       sync.RWMutex
	sessions []model.SessionView // newest first
	activeID uint                // 0 = no active session
}

func New() *SessionStore {
	return &SessionStore{}
}

// Load replaces the list wholesale, keeping the active pointer only when
// the session it names survived the reload.
func (s *SessionStore) Load(sessions []model.SessionView) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = append([]model.SessionView(nil), sessions...)
	sortNewestFirst(s.sessions)

	if s.activeID != 0 && s.indexOf(s.activeID) < 0 {
		s.activeID = 0
	}
}

// Select moves the active pointer. A nonexistent id is allowed; the view
// for it is simply empty.
func (s *SessionStore) Select(id uint) {
	s.mu.Lock()
	s.activeID = id
	s.mu.Unlock()
}

func (s *SessionStore) ActiveID() uint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

func (s *SessionStore) Sessions() []model.SessionView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.SessionView(nil), s.sessions...)
}

func (s *SessionStore) Get(id uint) (model.SessionView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.sessions[i], true
	}
	return model.SessionView{}, false
}

// Apply folds one change event into the list. Events are idempotent: a
// re-delivered insert replaces, a delete of a missing session is a no-op.
// Deleting the active session falls back to the most recent remaining one.
func (s *SessionStore) Apply(ev model.SessionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Type {
	case model.EventInsert, model.EventUpdate:
		if i := s.indexOf(ev.Session.ID); i >= 0 {
			s.sessions[i] = ev.Session
		} else {
			s.sessions = append(s.sessions, ev.Session)
		}
		sortNewestFirst(s.sessions)
	case model.EventDelete:
		i := s.indexOf(ev.Session.ID)
		if i < 0 {
			return
		}
		s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
		if s.activeID == ev.Session.ID {
			if len(s.sessions) > 0 {
				s.activeID = s.sessions[0].ID
			} else {
				s.activeID = 0
			}
		}
	}
}

// indexOf requires the caller to hold the lock.
func (s *SessionStore) indexOf(id uint) int {
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			return i
		}
	}
	return -1
}

func sortNewestFirst(sessions []model.SessionView) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].Timestamp.After(sessions[j].Timestamp)
	})
}

// Registry hands out one SessionStore per user.
type Registry struct {
	mu     sync.Mutex
	stores map[uint]*SessionStore
}

func NewRegistry() *Registry {
	return &Registry{stores: make(map[uint]*SessionStore)}
}

func (r *Registry) ForUser(userID uint) *SessionStore {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.stores[userID]
	if !ok {
		st = New()
		r.stores[userID] = st
	}
	return st
}
