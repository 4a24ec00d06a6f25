package model

import "time"

// SessionState is the full View-State Controller record for one browser
// session. Each transition produces a new value; nothing mutates a record
// that has already been published.
type SessionState struct {
	ID           string                `json:"id"`
	File         *SelectedFile         `json:"file,omitempty"`
	Preview      *PreviewHandle        `json:"preview,omitempty"`
	Params       EnhancementParameters `json:"params"`
	Result       *EnhancementResult    `json:"result,omitempty"`
	Error        string                `json:"error,omitempty"`
	Request      RequestState          `json:"request"`
	Enhancements int                   `json:"enhancements"`
	PendingID    string                `json:"pendingId,omitempty"`
	CreatedAt    time.Time             `json:"createdAt"`
	UpdatedAt    time.Time             `json:"updatedAt"`
}

// NewSessionState returns the initial, empty record for id.
func NewSessionState(id string, now time.Time) SessionState {
	return SessionState{
		ID:        id,
		Params:    DefaultParameters(),
		Request:   StateIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
