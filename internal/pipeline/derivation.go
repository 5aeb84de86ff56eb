package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/fxsettle/confirm-cli/internal/engine"
	"github.com/fxsettle/confirm-cli/internal/model"
)

// DeriveMatchingUnits derives and persists the matching units for a
// document in TEXT_PARSED state, advancing it to UNITS_CREATED. The unit
// inserts, the counter updates, and the history entry share one
// transaction: either all units land or none do. Derivation failures
// (unresolvable party, empty transactions, malformed dates) roll back
// without an ERROR transition, so the document stays in TEXT_PARSED and the
// call can be retried after the data is fixed.
func (p *Pipeline) DeriveMatchingUnits(ctx context.Context, documentID string) ([]string, error) {
	var staged []model.MatchingUnit

	_, err := p.engine.Advance(ctx, engine.Request{
		DocumentID:    documentID,
		FromStates:    []model.ProcessingStatus{model.StatusTextParsed},
		ToState:       model.StatusUnitsCreated,
		TriggerSource: triggerDerive,
		Metadata: map[string]any{
			"request_params": map[string]any{"document_id": documentID},
		},
		Mutate: func(ctx context.Context, doc *model.Document) (*engine.Mutation, map[string]any, error) {
			derived, err := p.deriver.Derive(ctx, doc)
			if err != nil {
				return nil, nil, err
			}
			staged = derived

			total := len(derived)
			zero := 0
			return &engine.Mutation{TotalMatchingUnits: &total, MatchedUnitsCount: &zero}, map[string]any{
				"matching_unit_count": total,
				"matching_unit_ids":   unitIDs(derived),
			}, nil
		},
		Stage: func(ctx context.Context, tx pgx.Tx, doc *model.Document) (map[string]any, error) {
			return nil, insertUnits(ctx, tx, staged)
		},
	})
	if err != nil {
		return nil, err
	}

	return unitIDs(staged), nil
}

func insertUnits(ctx context.Context, tx pgx.Tx, units []model.MatchingUnit) error {
	now := time.Now().UTC()
	for _, u := range units {
		detailsJSON, err := json.Marshal(u.TransactionDetails)
		if err != nil {
			return eris.Wrap(err, "pipeline: marshal transaction details")
		}

		var tradeUTI *string
		if u.TradeUTI != "" {
			tradeUTI = &u.TradeUTI
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO matching_units (matching_unit_id, document_id, is_matched, trade_type, trade_date, settlement_date, trading_party_code, counterparty_code, trade_ref, trade_uti, settlement_rate, transaction_details, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			u.MatchingUnitID, u.DocumentID, u.IsMatched, u.TradeType,
			u.TradeDate, u.SettlementDate, u.TradingPartyCode, u.CounterpartyCode,
			u.TradeRef, tradeUTI, u.SettlementRate, detailsJSON, now, now,
		); err != nil {
			return eris.Wrapf(err, "pipeline: insert matching unit %s", u.MatchingUnitID)
		}
	}
	return nil
}

func unitIDs(units []model.MatchingUnit) []string {
	ids := make([]string, 0, len(units))
	for _, u := range units {
		ids = append(ids, u.MatchingUnitID)
	}
	return ids
}
