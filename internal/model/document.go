// Package model defines the persistent domain types of the confirmation
// processing pipeline: documents, their status history, party reference
// data, and matching units.
package model

import "time"

// Document is one registered trade-confirmation file and its lifecycle
// state. Rows are mutated only through the transition engine and are never
// physically deleted.
type Document struct {
	ID             string `json:"id"`
	FileName       string `json:"file_name"`
	StorageLocator string `json:"storage_locator"`

	// ExtractedText is set once per successful extraction; nil before.
	ExtractedText *string `json:"extracted_text,omitempty"`

	// ParsedContent is the structured model output, set once per successful
	// parse. Downstream derivations treat it as read-only.
	ParsedContent map[string]any `json:"parsed_content,omitempty"`

	// ProcessingStatus is empty for legacy rows whose status column is NULL;
	// EffectiveStatus folds those into Not_Processed.
	ProcessingStatus ProcessingStatus `json:"processing_status"`

	TotalMatchingUnits int `json:"total_matching_units"`
	MatchedUnitsCount  int `json:"matched_units_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EffectiveStatus maps the legacy NULL status representation onto the
// explicit initial state.
func (d *Document) EffectiveStatus() ProcessingStatus {
	if d.ProcessingStatus == "" {
		return StatusNotProcessed
	}
	return d.ProcessingStatus
}
