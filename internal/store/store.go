// Package store provides Postgres persistence for documents, their status
// history, party reference data, and matching units.
package store

import (
	"context"
	"time"

	"github.com/fxsettle/confirm-cli/internal/db"
	"github.com/fxsettle/confirm-cli/internal/model"
)

// DocumentFilter specifies criteria for listing documents.
type DocumentFilter struct {
	Status model.ProcessingStatus `json:"status,omitempty"`
	Limit  int                    `json:"limit,omitempty"`
	Offset int                    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the confirmation pipeline.
// All status mutations go through the transition engine, not the store;
// the store covers registration and the read side.
type Store interface {
	// Documents
	CreateDocument(ctx context.Context, fileName, storageLocator string) (*model.Document, error)
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]model.Document, error)

	// Audit trail (append happens inside the engine's transaction)
	HistoryForDocument(ctx context.Context, documentID string) ([]model.StatusHistoryEntry, error)

	// Matching units
	UnitsForDocument(ctx context.Context, documentID string) ([]model.MatchingUnit, error)

	// Party reference data
	LoadPartyCodes(ctx context.Context, codes []model.PartyCode) (int64, error)

	// Monitoring
	CountsByStatus(ctx context.Context) (map[model.ProcessingStatus]int, error)
	StuckDocuments(ctx context.Context, olderThan time.Duration) ([]model.Document, error)

	// Lifecycle
	Pool() db.Pool
	Migrate(ctx context.Context) error
	Close() error
}
