package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/fxsettle/confirm-cli/internal/engine"
	"github.com/fxsettle/confirm-cli/internal/model"
	"github.com/fxsettle/confirm-cli/internal/ocr"
)

// ExtractionResult reports a successful text extraction.
type ExtractionResult struct {
	DocumentID string                 `json:"document_id"`
	Status     model.ProcessingStatus `json:"status"`
	PageCount  int                    `json:"page_count"`
	ByteSize   int64                  `json:"byte_size"`
	Characters int                    `json:"characters"`
}

// BeginExtraction extracts text from a document in the initial state and
// advances it to TEXT_EXTRACTED. The extractor runs while the document row
// lock is held, so a concurrent second call blocks and then fails its
// status precondition once the first commits.
func (p *Pipeline) BeginExtraction(ctx context.Context, documentID string, location Location) (*ExtractionResult, error) {
	switch location {
	case LocationLocal, "":
	case LocationCloud:
		return nil, ErrCloudStorageUnsupported
	default:
		return nil, eris.Errorf("pipeline: unknown location %q", string(location))
	}

	var extracted *ocr.Result
	doc, err := p.engine.Advance(ctx, engine.Request{
		DocumentID:    documentID,
		FromStates:    []model.ProcessingStatus{model.StatusNotProcessed},
		ToState:       model.StatusTextExtracted,
		TriggerSource: triggerExtraction,
		Metadata: map[string]any{
			"request_params": map[string]any{
				"document_id": documentID,
				"location":    string(location),
			},
		},
		Mutate: func(ctx context.Context, doc *model.Document) (*engine.Mutation, map[string]any, error) {
			out, err := p.extractor.Extract(ctx, doc.StorageLocator)
			if err != nil {
				return nil, nil, &CollaboratorError{Collaborator: "text_extractor", Err: err}
			}
			extracted = out
			return &engine.Mutation{ExtractedText: &out.Text}, map[string]any{
				"extraction_metadata": map[string]any{
					"page_count": out.PageCount,
					"byte_size":  out.ByteSize,
				},
			}, nil
		},
	})
	if err != nil {
		return nil, p.recordFailure(ctx, documentID, triggerExtraction, err)
	}

	return &ExtractionResult{
		DocumentID: doc.ID,
		Status:     doc.ProcessingStatus,
		PageCount:  extracted.PageCount,
		ByteSize:   extracted.ByteSize,
		Characters: len(extracted.Text),
	}, nil
}
