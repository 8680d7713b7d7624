package user

import (
	"context"
	"sync"

	"transitpass/internal/auth/models"
	id "transitpass/pkg/domain"
	"transitpass/pkg/platform/sentinel"
)

// InMemoryUserStore is the development and test user store.
type InMemoryUserStore struct {
	mu      sync.RWMutex
	nextID  id.UserID
	users   map[id.UserID]*models.User
	byEmail map[string]id.UserID
}

func New() *InMemoryUserStore {
	return &InMemoryUserStore{
		users:   make(map[id.UserID]*models.User),
		byEmail: make(map[string]id.UserID),
	}
}

// Save inserts a new user and assigns its id. A taken email returns sentinel.ErrAlreadyUsed.
func (s *InMemoryUserStore) Save(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := models.NormalizeEmail(user.Email)
	if _, taken := s.byEmail[email]; taken {
		return sentinel.ErrAlreadyUsed
	}
	s.nextID++
	user.ID = s.nextID
	user.Email = email
	stored := *user
	s.users[user.ID] = &stored
	s.byEmail[email] = user.ID
	return nil
}

func (s *InMemoryUserStore) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *u
	return &out, nil
}

func (s *InMemoryUserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.byEmail[models.NormalizeEmail(email)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *s.users[userID]
	return &out, nil
}
