package database

import (
	"errors"
	"time"

	"github.com/leca/enhance-studio/internal/model"
)

// ErrSessionNotFound is returned when no record exists for a session id.
var ErrSessionNotFound = errors.New("session not found")

// Database defines the persistence interface for session records.
type Database interface {
	CreateSession(s *model.SessionState) error
	GetSession(sessionID string) (*model.SessionState, error)
	SaveSession(s *model.SessionState) error
	DeleteSession(sessionID string) error
	CountSessions() (int, error)

	// ListIdleSessions returns ids of sessions not updated since before.
	ListIdleSessions(before time.Time) ([]string, error)
	// ListSessionsInState returns ids of sessions whose request is in state.
	ListSessionsInState(state model.RequestState) ([]string, error)

	Close() error
}
