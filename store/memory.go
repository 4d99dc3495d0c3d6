package store

import (
	"context"
	"errors"
	"sync"
)

// MemoryStore is an in-process record store used by the role binaries in dev
// mode and by tests. It implements all collaborator interfaces.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[string]ConversationRecord // key: userID + "/" + day
	events        []HealthEvent
	users         map[string]User
	current       string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]ConversationRecord),
		users:         make(map[string]User),
	}
}

// AddUser registers a user; the first registered user becomes current.
func (m *MemoryStore) AddUser(u User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	if m.current == "" {
		m.current = u.ID
	}
}

// SetCurrentUser switches the identity returned by CurrentUser.
func (m *MemoryStore) SetCurrentUser(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = id
}

func (m *MemoryStore) UpsertDay(_ context.Context, rec ConversationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[rec.UserID+"/"+rec.Day] = rec
	return nil
}

// ConversationFor returns the stored record for {user, day}, if any.
func (m *MemoryStore) ConversationFor(userID, day string) (ConversationRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.conversations[userID+"/"+day]
	return rec, ok
}

func (m *MemoryStore) Insert(_ context.Context, ev HealthEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of the audit log.
func (m *MemoryStore) Events() []HealthEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]HealthEvent, len(m.events))
	copy(out, m.events)
	return out
}

func (m *MemoryStore) CurrentUser(_ context.Context) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[m.current]
	if !ok {
		return User{}, errors.New("store: no current user")
	}
	return u, nil
}

func (m *MemoryStore) LinkedUserID(_ context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return "", errors.New("store: unknown user")
	}
	return u.LinkedUserID, nil
}

func (m *MemoryStore) SetLinkedUserID(_ context.Context, userID, linkedID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return errors.New("store: unknown user")
	}
	u.LinkedUserID = linkedID
	m.users[userID] = u
	return nil
}
