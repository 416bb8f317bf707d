package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// TurnRecord is one archived conversation turn. The in-memory conversation
// store stays authoritative for the running session; the archive only keeps
// a durable transcript for the history and status commands.
type TurnRecord struct {
	ID          string
	SessionID   string
	Author      string
	Text        string
	CreatedAt   time.Time
	Failed      bool
	Kind        string
	Confidence  float64
	Intent      string
	RawJSON     string // classified result object stored as JSON text
	Suggestions string // JSON array stored as text
}

// BroadcastRecord is one archived broadcast that reached a terminal state.
type BroadcastRecord struct {
	ID                  string
	Subject             string
	Body                string
	AudienceRole        string
	EstimatedRecipients int
	Urgency             string
	Status              string
	CreatedAt           time.Time
	ReportJSON          string // delivery report stored as JSON text, empty when failed
}
