// Package pipeline coordinates the transition engine with the external
// collaborators: text extraction, model parsing, and matching-unit
// derivation. Each operation is one status transition; preconditions are
// re-validated under the row lock on every call, so callers may safely
// retry any failed operation.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fxsettle/confirm-cli/internal/engine"
	"github.com/fxsettle/confirm-cli/internal/ocr"
	"github.com/fxsettle/confirm-cli/internal/units"
)

// Trigger source labels recorded on history entries.
const (
	triggerExtraction = "begin_extraction"
	triggerParsing    = "begin_parsing"
	triggerDerive     = "derive_matching_units"
)

// Location identifies where a document's raw content lives.
type Location string

const (
	LocationLocal Location = "local"
	LocationCloud Location = "cloud"
)

// ErrCloudStorageUnsupported marks the documented gap: cloud-backed file
// retrieval is not implemented.
var ErrCloudStorageUnsupported = errors.New("pipeline: cloud storage retrieval not implemented")

// CollaboratorError wraps a failure of an external collaborator (text
// extractor or model parser). The pipeline records it by moving the
// document to ERROR; it never retries the collaborator itself.
type CollaboratorError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("pipeline: %s failed: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// Pipeline exposes the core processing operations.
type Pipeline struct {
	engine    *engine.Engine
	extractor ocr.Extractor
	parsers   *ParserRegistry
	deriver   *units.Deriver
}

// New assembles a Pipeline from its collaborators.
func New(eng *engine.Engine, extractor ocr.Extractor, parsers *ParserRegistry, deriver *units.Deriver) *Pipeline {
	return &Pipeline{
		engine:    eng,
		extractor: extractor,
		parsers:   parsers,
		deriver:   deriver,
	}
}

// recordFailure maps a collaborator failure onto the absorbing ERROR state.
// The original transition already rolled back, so the document is still in
// its source state when the ERROR transition runs. Validation errors
// (NotFound, InvalidTransition, derivation errors) pass through untouched:
// they left no writes and the document stays retryable.
func (p *Pipeline) recordFailure(ctx context.Context, documentID, trigger string, err error) error {
	var collab *CollaboratorError
	if !errors.As(err, &collab) {
		return err
	}

	if failErr := p.engine.Fail(ctx, documentID, trigger, collab, map[string]any{
		"collaborator": collab.Collaborator,
	}); failErr != nil {
		zap.L().Error("failed to record ERROR transition",
			zap.String("document_id", documentID),
			zap.Error(failErr),
		)
	}
	return err
}
