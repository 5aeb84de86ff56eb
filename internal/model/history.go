package model

import "time"

// StatusHistoryEntry is one immutable audit record of a status transition.
// Entries are inserted inside the same transaction as the transition they
// document and are never updated or deleted.
type StatusHistoryEntry struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`

	// PreviousStatus is nil for the very first transition of a legacy row
	// whose status column was NULL.
	PreviousStatus *ProcessingStatus `json:"previous_status"`
	NewStatus      ProcessingStatus  `json:"new_status"`

	// TriggerSource labels the operation that caused the transition.
	TriggerSource string `json:"trigger_source"`

	// AdditionalData captures request parameters, collaborator metadata, and
	// timestamps relevant to the transition.
	AdditionalData map[string]any `json:"additional_data,omitempty"`

	TransitionTime time.Time `json:"transition_time"`
}
