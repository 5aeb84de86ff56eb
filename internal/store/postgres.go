package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	dbpkg "github.com/fxsettle/confirm-cli/internal/db"
	"github.com/fxsettle/confirm-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    dbpkg.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_document":  `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`,
	"get_history":   `SELECT id, document_id, previous_status, new_status, trigger_source, additional_data, transition_time FROM status_history WHERE document_id = $1 ORDER BY transition_time, id`,
	"get_units":     `SELECT ` + unitColumns + ` FROM matching_units WHERE document_id = $1 ORDER BY settlement_date, matching_unit_id`,
	"status_counts": `SELECT COALESCE(processing_status, 'Not_Processed'), COUNT(*) FROM documents GROUP BY 1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. The caller keeps ownership of
// the pool's lifecycle; Close on the returned store is a no-op.
func NewPostgresFromPool(pool dbpkg.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that need direct
// query access (the transition engine, the party resolver, monitoring).
func (s *PostgresStore) Pool() dbpkg.Pool {
	return s.pool
}

const documentColumns = `id, file_name, storage_locator, extracted_text, parsed_content, processing_status, total_matching_units, matched_units_count, created_at, updated_at`

const unitColumns = `matching_unit_id, document_id, is_matched, trade_type, trade_date, settlement_date, trading_party_code, counterparty_code, trade_ref, trade_uti, settlement_rate, transaction_details, created_at, updated_at`

const postgresMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id                   TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	file_name            TEXT NOT NULL,
	storage_locator      TEXT NOT NULL,
	extracted_text       TEXT,
	parsed_content       JSONB,
	processing_status    TEXT,
	total_matching_units INTEGER NOT NULL DEFAULT 0,
	matched_units_count  INTEGER NOT NULL DEFAULT 0,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(processing_status);

CREATE TABLE IF NOT EXISTS status_history (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	document_id     TEXT NOT NULL REFERENCES documents(id),
	previous_status TEXT,
	new_status      TEXT NOT NULL,
	trigger_source  TEXT NOT NULL,
	additional_data JSONB,
	transition_time TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_status_history_document ON status_history(document_id, transition_time);

CREATE TABLE IF NOT EXISTS party_codes (
	party_code_id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	party_code    TEXT NOT NULL UNIQUE,
	msger_name    TEXT,
	msger_address TEXT,
	party_name    TEXT NOT NULL,
	party_role    TEXT NOT NULL,
	is_active     BOOLEAN NOT NULL DEFAULT true,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_party_codes_msger_name ON party_codes(msger_name);
CREATE INDEX IF NOT EXISTS idx_party_codes_party_name ON party_codes(party_name);

CREATE TABLE IF NOT EXISTS matching_units (
	matching_unit_id    TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	document_id         TEXT NOT NULL REFERENCES documents(id),
	is_matched          BOOLEAN NOT NULL DEFAULT false,
	trade_type          TEXT,
	trade_date          DATE NOT NULL,
	settlement_date     DATE NOT NULL,
	trading_party_code  TEXT NOT NULL,
	counterparty_code   TEXT NOT NULL,
	trade_ref           TEXT,
	trade_uti           TEXT,
	settlement_rate     NUMERIC,
	transaction_details JSONB NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_matching_units_document ON matching_units(document_id);
CREATE INDEX IF NOT EXISTS idx_matching_units_settlement ON matching_units(settlement_date);
CREATE INDEX IF NOT EXISTS idx_matching_units_matched ON matching_units(is_matched);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// CreateDocument registers a confirmation file in the initial status. Rows
// inserted by older ingest tooling may carry NULL instead; readers treat
// both the same.
func (s *PostgresStore) CreateDocument(ctx context.Context, fileName, storageLocator string) (*model.Document, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, file_name, storage_locator, processing_status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, fileName, storageLocator, string(model.StatusNotProcessed), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert document")
	}

	return &model.Document{
		ID:               id,
		FileName:         fileName,
		StorageLocator:   storageLocator,
		ProcessingStatus: model.StatusNotProcessed,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	doc, err := scanDocument(s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get document %s", id)
	}
	return doc, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, filter DocumentFilter) ([]model.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		if filter.Status == model.StatusNotProcessed {
			// Legacy rows carry NULL for the initial state.
			query += fmt.Sprintf(` AND (processing_status = $%d OR processing_status IS NULL)`, argIdx)
		} else {
			query += fmt.Sprintf(` AND processing_status = $%d`, argIdx)
		}
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list documents")
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan document")
		}
		docs = append(docs, *doc)
	}
	return docs, eris.Wrap(rows.Err(), "postgres: list documents iterate")
}

// HistoryForDocument returns the full transition sequence for a document in
// creation order.
func (s *PostgresStore) HistoryForDocument(ctx context.Context, documentID string) ([]model.StatusHistoryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, previous_status, new_status, trigger_source, additional_data, transition_time
		 FROM status_history WHERE document_id = $1 ORDER BY transition_time, id`,
		documentID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: history for %s", documentID)
	}
	defer rows.Close()

	var entries []model.StatusHistoryEntry
	for rows.Next() {
		var (
			e        model.StatusHistoryEntry
			previous *string
			dataJSON []byte
		)
		if err := rows.Scan(&e.ID, &e.DocumentID, &previous, &e.NewStatus,
			&e.TriggerSource, &dataJSON, &e.TransitionTime); err != nil {
			return nil, eris.Wrap(err, "postgres: scan history entry")
		}
		if previous != nil {
			p := model.ProcessingStatus(*previous)
			e.PreviousStatus = &p
		}
		if len(dataJSON) > 0 {
			if err := json.Unmarshal(dataJSON, &e.AdditionalData); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal history data")
			}
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: history iterate")
}

func (s *PostgresStore) UnitsForDocument(ctx context.Context, documentID string) ([]model.MatchingUnit, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+unitColumns+` FROM matching_units WHERE document_id = $1 ORDER BY settlement_date, matching_unit_id`,
		documentID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: units for %s", documentID)
	}
	defer rows.Close()

	var units []model.MatchingUnit
	for rows.Next() {
		var (
			u           model.MatchingUnit
			tradeUTI    *string
			rate        *float64
			detailsJSON []byte
		)
		if err := rows.Scan(&u.MatchingUnitID, &u.DocumentID, &u.IsMatched, &u.TradeType,
			&u.TradeDate, &u.SettlementDate, &u.TradingPartyCode, &u.CounterpartyCode,
			&u.TradeRef, &tradeUTI, &rate, &detailsJSON, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan matching unit")
		}
		if tradeUTI != nil {
			u.TradeUTI = *tradeUTI
		}
		u.SettlementRate = rate
		if err := json.Unmarshal(detailsJSON, &u.TransactionDetails); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal transaction details")
		}
		units = append(units, u)
	}
	return units, eris.Wrap(rows.Err(), "postgres: units iterate")
}

// LoadPartyCodes bulk-inserts party reference data via COPY. Rows carrying
// an already-known party_code are rejected by the unique constraint, so
// loads are expected to run against a clean slate or with fresh codes.
func (s *PostgresStore) LoadPartyCodes(ctx context.Context, codes []model.PartyCode) (int64, error) {
	rows := make([][]any, 0, len(codes))
	now := time.Now().UTC()
	for _, c := range codes {
		id := c.PartyCodeID
		if id == "" {
			id = uuid.New().String()
		}
		rows = append(rows, []any{
			id, c.PartyCode, nullable(c.MsgerName), nullable(c.MsgerAddress),
			c.PartyName, c.PartyRole, c.IsActive, now, now,
		})
	}
	n, err := dbpkg.CopyFrom(ctx, s.pool, "party_codes",
		[]string{"party_code_id", "party_code", "msger_name", "msger_address", "party_name", "party_role", "is_active", "created_at", "updated_at"},
		rows,
	)
	return n, eris.Wrap(err, "postgres: load party codes")
}

// CountsByStatus tallies documents per status; NULL rows count as
// Not_Processed.
func (s *PostgresStore) CountsByStatus(ctx context.Context) (map[model.ProcessingStatus]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT COALESCE(processing_status, 'Not_Processed'), COUNT(*) FROM documents GROUP BY 1`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: status counts")
	}
	defer rows.Close()

	counts := map[model.ProcessingStatus]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status count")
		}
		counts[model.ProcessingStatus(status)] += n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: status counts iterate")
}

// StuckDocuments returns non-terminal documents untouched for longer than
// olderThan, oldest first.
func (s *PostgresStore) StuckDocuments(ctx context.Context, olderThan time.Duration) ([]model.Document, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := s.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE (processing_status IS NULL OR processing_status NOT IN ($1, $2, $3))
		   AND updated_at < $4
		 ORDER BY updated_at`,
		string(model.StatusPartiallyMatched), string(model.StatusFullyMatched), string(model.StatusError), cutoff,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stuck documents")
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan stuck document")
		}
		docs = append(docs, *doc)
	}
	return docs, eris.Wrap(rows.Err(), "postgres: stuck documents iterate")
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// scanDocument reads one document row in documentColumns order.
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
			return nil, eris.Wrap(err, "postgres: unmarshal parsed content")
		}
	}
	return &d, nil
}
