package common

import (
	"github.com/google/uuid"
)

// NewRunID generates a unique pipeline run ID with the "run_" prefix
// Format: run_<uuid>
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// NewEventID generates a unique event ID with the "evt_" prefix
func NewEventID() string {
	return "evt_" + uuid.New().String()
}

// NewSignalID generates a unique signal ID with the "sig_" prefix
func NewSignalID() string {
	return "sig_" + uuid.New().String()
}

// NewThemeID generates a unique theme ID with the "thm_" prefix
func NewThemeID() string {
	return "thm_" + uuid.New().String()
}

// NewWatchID generates a unique watchlist item ID with the "wch_" prefix
func NewWatchID() string {
	return "wch_" + uuid.New().String()
}
