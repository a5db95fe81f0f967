package memory

import (
	"context"
	"strings"
	"sync"

	"marketchat/internal/domain/listings"
	"marketchat/internal/domain/user"
)

// UserDirectory stores user read models in memory, standing in for the
// identity service in dev and tests.
type UserDirectory struct {
	mu   sync.RWMutex
	byID map[user.ID]*user.User
}

func NewUserDirectory() *UserDirectory {
	return &UserDirectory{byID: make(map[user.ID]*user.User)}
}

func (d *UserDirectory) Add(u user.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byID[u.ID] = &u
}

func (d *UserDirectory) ByID(ctx context.Context, id user.ID) (*user.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if u, ok := d.byID[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, user.ErrNotFound
}

// ListingDirectory stores listing read models in memory, standing in for the
// catalog service.
type ListingDirectory struct {
	mu   sync.RWMutex
	byID map[listings.ListingID]*listings.Listing
}

func NewListingDirectory() *ListingDirectory {
	return &ListingDirectory{byID: make(map[listings.ListingID]*listings.Listing)}
}

func (d *ListingDirectory) Add(l listings.Listing) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byID[l.ID] = &l
}

func (d *ListingDirectory) ByID(ctx context.Context, id listings.ListingID) (*listings.Listing, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if l, ok := d.byID[id]; ok {
		clone := *l
		return &clone, nil
	}
	return nil, listings.ErrNotFound
}

// SessionStore maps bearer tokens to users. Token issuance belongs to the
// identity service; this keeps dev and tests self-contained.
type SessionStore struct {
	mu     sync.RWMutex
	tokens map[string]user.ID
	users  *UserDirectory
}

func NewSessionStore(users *UserDirectory) *SessionStore {
	return &SessionStore{tokens: make(map[string]user.ID), users: users}
}

func (s *SessionStore) Grant(token string, id user.ID) {
	token = strings.TrimSpace(token)
	if token == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = id
}

func (s *SessionStore) ResolveToken(ctx context.Context, token string) (*user.User, error) {
	s.mu.RLock()
	id, ok := s.tokens[strings.TrimSpace(token)]
	s.mu.RUnlock()
	if !ok {
		return nil, user.ErrNotFound
	}
	return s.users.ByID(ctx, id)
}
