package web

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/tjfontaine/intake-engine/internal/funnel"
)

// CookiePrefix names the per-tenant cookie that keeps a tab-scoped session id.
const CookiePrefix = "intake_session_"

// CookieName returns the session cookie for a tenant.
func CookieName(appID string) string {
	return CookiePrefix + appID
}

// Session is one visitor's funnel. The machine is single-owner state; callers hold Lock for
// the whole of an action.
type Session struct {
	sync.Mutex
	// ID is the per-load handle carried in the sid form field. The correlation id sent in
	// payloads is Machine.SessionID.
	ID       string
	TenantID string
	Machine  *funnel.Machine
}

// SessionStore keeps live sessions in memory. Sessions idle past the TTL are evicted, as are
// the least recently used ones once the store is full.
type SessionStore struct {
	lru *expirable.LRU[string, *Session]
}

// NewSessionStore creates a store for up to size sessions.
func NewSessionStore(size int, ttl time.Duration) *SessionStore {
	if size <= 0 {
		size = 10000
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &SessionStore{lru: expirable.NewLRU[string, *Session](size, nil, ttl)}
}

// Get returns the session with id, refreshing its expiry.
func (s *SessionStore) Get(id string) (*Session, bool) {
	sess, ok := s.lru.Get(id)
	if ok {
		s.lru.Add(id, sess)
	}
	return sess, ok
}

// Put stores sess, replacing any session with the same id.
func (s *SessionStore) Put(sess *Session) {
	s.lru.Add(sess.ID, sess)
}

// Remove drops a session.
func (s *SessionStore) Remove(id string) {
	s.lru.Remove(id)
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	return s.lru.Len()
}
