// Package engine implements the document status transition protocol: an
// atomic read-validate-mutate-commit cycle guarded by a row-level exclusive
// lock, with an append-only audit history entry per transition.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fxsettle/confirm-cli/internal/db"
	"github.com/fxsettle/confirm-cli/internal/model"
)

// Engine serializes status transitions through the database row lock. Two
// callers racing to advance the same document from the same state block on
// SELECT ... FOR UPDATE; the loser re-evaluates the status predicate after
// the winner commits and observes InvalidTransitionError.
type Engine struct {
	pool db.Pool
}

// New creates an Engine on the given pool.
func New(pool db.Pool) *Engine {
	return &Engine{pool: pool}
}

// Mutation holds the field writes a transition applies to the locked
// document. Nil fields are left untouched.
type Mutation struct {
	ExtractedText      *string
	ParsedContent      map[string]any
	TotalMatchingUnits *int
	MatchedUnitsCount  *int
}

// Request describes one transition attempt.
type Request struct {
	DocumentID string

	// FromStates is the set of statuses from which this transition is legal.
	// A set containing Not_Processed also matches legacy rows whose status
	// column is NULL. Nil means the transition is legal from any state
	// (used for the absorbing ERROR transition).
	FromStates []model.ProcessingStatus

	ToState       model.ProcessingStatus
	TriggerSource string

	// Metadata is recorded verbatim on the history entry's additional_data.
	Metadata map[string]any

	// Mutate computes the field writes from the locked document. It runs
	// while the row lock is held, so a slow collaborator call made here
	// extends the lock hold time for the whole call. The returned map is
	// merged into the history metadata.
	Mutate func(ctx context.Context, doc *model.Document) (*Mutation, map[string]any, error)

	// Stage performs additional writes (e.g. matching unit inserts) inside
	// the transition's transaction, after the document row update. The
	// returned map is merged into the history metadata.
	Stage func(ctx context.Context, tx pgx.Tx, doc *model.Document) (map[string]any, error)
}

const lockDocumentColumns = `id, file_name, storage_locator, extracted_text, parsed_content, processing_status, total_matching_units, matched_units_count, created_at, updated_at`

// Advance performs one status transition atomically. On any error the
// transaction is rolled back in full: no document fields change and no
// history entry is written. At most one concurrent caller succeeds per
// document and source state.
func (e *Engine) Advance(ctx context.Context, req Request) (*model.Document, error) {
	if req.DocumentID == "" {
		return nil, eris.New("engine: document id is required")
	}
	if !req.ToState.Valid() {
		return nil, eris.Errorf("engine: unknown target status %q", string(req.ToState))
	}
	if req.TriggerSource == "" {
		return nil, eris.New("engine: trigger source is required")
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "engine: begin transition")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	doc, err := e.lockDocument(ctx, tx, req)
	if err != nil {
		return nil, err
	}

	previous := doc.ProcessingStatus
	metadata := mergeMetadata(nil, req.Metadata)

	if req.Mutate != nil {
		mut, extra, err := req.Mutate(ctx, doc)
		if err != nil {
			return nil, err
		}
		applyMutation(doc, mut)
		metadata = mergeMetadata(metadata, extra)
	}

	doc.ProcessingStatus = req.ToState
	doc.UpdatedAt = time.Now().UTC()

	var parsedJSON any
	if doc.ParsedContent != nil {
		buf, err := json.Marshal(doc.ParsedContent)
		if err != nil {
			return nil, eris.Wrap(err, "engine: marshal parsed content")
		}
		parsedJSON = buf
	}

	if _, err := tx.Exec(ctx,
		`UPDATE documents SET extracted_text = $1, parsed_content = $2, processing_status = $3, total_matching_units = $4, matched_units_count = $5, updated_at = $6 WHERE id = $7`,
		doc.ExtractedText, parsedJSON, string(doc.ProcessingStatus),
		doc.TotalMatchingUnits, doc.MatchedUnitsCount, doc.UpdatedAt, doc.ID,
	); err != nil {
		return nil, eris.Wrapf(err, "engine: update document %s", doc.ID)
	}

	if req.Stage != nil {
		extra, err := req.Stage(ctx, tx, doc)
		if err != nil {
			return nil, err
		}
		metadata = mergeMetadata(metadata, extra)
	}

	if err := e.insertHistory(ctx, tx, doc.ID, previous, req, metadata); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrapf(err, "engine: commit transition for %s", doc.ID)
	}

	zap.L().Info("status transition committed",
		zap.String("document_id", doc.ID),
		zap.String("previous_status", previous.String()),
		zap.String("new_status", req.ToState.String()),
		zap.String("trigger_source", req.TriggerSource),
	)
	return doc, nil
}

// Fail moves a document into the absorbing ERROR state from whatever state
// it is currently in, recording the cause on the history entry. Used by the
// orchestrators after a collaborator failure rolled back the original
// transition.
func (e *Engine) Fail(ctx context.Context, documentID, triggerSource string, cause error, metadata map[string]any) error {
	md := mergeMetadata(nil, metadata)
	if md == nil {
		md = map[string]any{}
	}
	if cause != nil {
		md["error"] = cause.Error()
	}
	md["failed_at"] = time.Now().UTC().Format(time.RFC3339)

	_, err := e.Advance(ctx, Request{
		DocumentID:    documentID,
		FromStates:    nil, // ERROR is reachable from any state
		ToState:       model.StatusError,
		TriggerSource: triggerSource,
		Metadata:      md,
	})
	return err
}

// lockDocument selects the document row FOR UPDATE with the status predicate
// baked into the WHERE clause. A miss is disambiguated with an unlocked
// diagnostic read: not found at all vs found in the wrong status.
func (e *Engine) lockDocument(ctx context.Context, tx pgx.Tx, req Request) (*model.Document, error) {
	query := `SELECT ` + lockDocumentColumns + ` FROM documents WHERE id = $1`
	args := []any{req.DocumentID}

	if len(req.FromStates) > 0 {
		states := make([]string, 0, len(req.FromStates))
		acceptNull := false
		for _, s := range req.FromStates {
			states = append(states, string(s))
			if s == model.StatusNotProcessed {
				acceptNull = true
			}
		}
		if acceptNull {
			// Legacy rows predate the explicit initial status value.
			query += ` AND (processing_status = ANY($2) OR processing_status IS NULL)`
		} else {
			query += ` AND processing_status = ANY($2)`
		}
		args = append(args, states)
	}
	query += ` FOR UPDATE`

	doc, err := scanDocument(tx.QueryRow(ctx, query, args...))
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(err, "engine: lock document %s", req.DocumentID)
	}

	// Diagnostic read outside the lock, used only to distinguish the error.
	var current *string
	diagErr := e.pool.QueryRow(ctx,
		`SELECT processing_status FROM documents WHERE id = $1`, req.DocumentID,
	).Scan(&current)
	if errors.Is(diagErr, pgx.ErrNoRows) {
		return nil, &NotFoundError{DocumentID: req.DocumentID}
	}
	if diagErr != nil {
		return nil, eris.Wrapf(diagErr, "engine: diagnose document %s", req.DocumentID)
	}

	currentStatus := model.StatusNotProcessed
	if current != nil {
		currentStatus = model.ProcessingStatus(*current)
	}
	return nil, &InvalidTransitionError{
		DocumentID:    req.DocumentID,
		CurrentStatus: currentStatus,
		Expected:      req.FromStates,
		Target:        req.ToState,
	}
}

func (e *Engine) insertHistory(ctx context.Context, tx pgx.Tx, documentID string, previous model.ProcessingStatus, req Request, metadata map[string]any) error {
	var prev *string
	if previous != "" {
		s := string(previous)
		prev = &s
	}

	var metaJSON any
	if metadata != nil {
		buf, err := json.Marshal(metadata)
		if err != nil {
			return eris.Wrap(err, "engine: marshal history metadata")
		}
		metaJSON = buf
	}

	_, err := tx.Exec(ctx,
		`INSERT INTO status_history (id, document_id, previous_status, new_status, trigger_source, additional_data, transition_time) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New().String(), documentID, prev, string(req.ToState),
		req.TriggerSource, metaJSON, time.Now().UTC(),
	)
	return eris.Wrapf(err, "engine: insert history for %s", documentID)
}

func applyMutation(doc *model.Document, mut *Mutation) {
	if mut == nil {
		return
	}
	if mut.ExtractedText != nil {
		doc.ExtractedText = mut.ExtractedText
	}
	if mut.ParsedContent != nil {
		doc.ParsedContent = mut.ParsedContent
	}
	if mut.TotalMatchingUnits != nil {
		doc.TotalMatchingUnits = *mut.TotalMatchingUnits
	}
	if mut.MatchedUnitsCount != nil {
		doc.MatchedUnitsCount = *mut.MatchedUnitsCount
	}
}

func mergeMetadata(dst, src map[string]any) map[string]any {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// scanDocument reads one document row in lockDocumentColumns order.
func scanDocument(row pgx.Row) (*model.Document, error) {
	var (
		d          model.Document
		extracted  *string
		parsedJSON []byte
		status     *string
	)
	if err := row.Scan(&d.ID, &d.FileName, &d.StorageLocator, &extracted, &parsedJSON,
		&status, &d.TotalMatchingUnits, &d.MatchedUnitsCount, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.ExtractedText = extracted
	if status != nil {
		d.ProcessingStatus = model.ProcessingStatus(*status)
	}
	if len(parsedJSON) > 0 {
		if err := json.Unmarshal(parsedJSON, &d.ParsedContent); err != nil {
			return nil, eris.Wrap(err, "engine: unmarshal parsed content")
		}
	}
	return &d, nil
}
