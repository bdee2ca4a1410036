package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cuemby/agrilo/pkg/client"
	"github.com/cuemby/agrilo/pkg/storage"
)

var _ client.Credentials = (*Tokens)(nil)

// Tokens holds the access token in memory and mirrors it to the store.
// Clearing the token also removes the cached profile.
type Tokens struct {
	store storage.Store

	mu    sync.RWMutex
	token string
}

// NewTokens loads the persisted access token, if any
func NewTokens(store storage.Store) (*Tokens, error) {
	token, err := store.GetToken()
	if err != nil {
		return nil, fmt.Errorf("failed to load access token: %w", err)
	}
	return &Tokens{store: store, token: token}, nil
}

// Token returns the current access token, or "" when logged out
func (t *Tokens) Token() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.token
}

// SetToken persists a newly issued access token
func (t *Tokens) SetToken(token string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.store.SetToken(token); err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}
	t.token = token
	return nil
}

// Clear removes the access token and the cached profile
func (t *Tokens) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.token = ""
	return errors.Join(t.store.DeleteToken(), t.store.DeleteProfile())
}
