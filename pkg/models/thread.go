// Package models defines the shared data model for the orchestration core:
// threads, messages, runs, actions, assistants, tool declarations, and the
// canonical stream event exchanged between the normalizer, the orchestrator,
// and the fan-out mirror.
package models

import "time"

// Thread is an ordered conversation. Messages belong to exactly one thread;
// an assistant may participate in many threads.
type Thread struct {
	ID           string         `json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Participants []string       `json:"participants,omitempty"`

	// Deleted marks a soft-deleted thread. Soft-deleted threads never
	// appear in listings but their rows are retained.
	Deleted   bool       `json:"deleted,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}
