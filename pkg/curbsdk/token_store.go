package curbsdk

import "sync"

// TokenStore holds the current token of a client session.
type TokenStore interface {
	// Current returns the held token, or nil.
	Current() *Token
	// Set replaces the held token.
	Set(*Token)
}

// MemoryTokenStore keeps zero or one token in memory.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token *Token
}

// NewMemoryTokenStore returns a store seeded with token, which may be nil.
func NewMemoryTokenStore(token *Token) *MemoryTokenStore {
	return &MemoryTokenStore{token: token}
}

func (s *MemoryTokenStore) Current() *Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *MemoryTokenStore) Set(token *Token) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}
