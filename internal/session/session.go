// Package session owns the per-session task lifecycle: a Session carries the
// durable session state, and the Supervisor runs at most one logical turn at
// a time, replacing the previous turn whenever a new one is spawned.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/codefionn/schleuse/internal/authz"
)

// Session is the session-wide state shared across turns. Approvals live in
// the attached store and survive until Reset is called; nothing clears them
// implicitly.
type Session struct {
	ID         string
	WorkingDir string

	approvals *authz.SessionStore

	mu              sync.RWMutex
	reviewActive    bool
	lastTaskID      string
	lastTaskMessage string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewSession creates a session rooted at workingDir. The approval store may
// be nil when approvals are handled elsewhere (or not at all, in tests).
func NewSession(id, workingDir string, approvals *authz.SessionStore) *Session {
	if id == "" {
		id = GenerateID()
	}
	now := time.Now()
	return &Session{
		ID:         id,
		WorkingDir: workingDir,
		approvals:  approvals,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// GenerateID creates a random session ID (12 hex chars).
func GenerateID() string {
	var buf [6]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return fmt.Sprintf("sess-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf[:])
}

// Approvals returns the session's approval store, which may be nil.
func (s *Session) Approvals() *authz.SessionStore {
	return s.approvals
}

// SetReviewActive marks whether a review turn is currently running.
func (s *Session) SetReviewActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviewActive = active
	s.UpdatedAt = time.Now()
}

// IsReviewActive reports whether a review turn is currently running.
func (s *Session) IsReviewActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reviewActive
}

// SetLastTaskResult stores the final message of the most recently completed
// task.
func (s *Session) SetLastTaskResult(taskID, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTaskID = taskID
	s.lastTaskMessage = message
	s.UpdatedAt = time.Now()
}

// LastTaskResult returns the id and final message of the most recently
// completed task.
func (s *Session) LastTaskResult() (taskID, message string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTaskID, s.lastTaskMessage
}

// Reset clears all session state, including every cached approval. This is
// the only path that empties the approval store.
func (s *Session) Reset() {
	s.mu.Lock()
	s.reviewActive = false
	s.lastTaskID = ""
	s.lastTaskMessage = ""
	s.UpdatedAt = time.Now()
	s.mu.Unlock()

	if s.approvals != nil {
		s.approvals.Reset()
	}
}
