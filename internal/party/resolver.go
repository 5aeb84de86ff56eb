// Package party resolves free-text identity fields from confirmation
// documents to internal party codes via the party_codes reference table.
package party

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/fxsettle/confirm-cli/internal/db"
)

// ErrNoMatch indicates no active party code row matched the criteria.
var ErrNoMatch = errors.New("party: no matching party code")

// Criteria holds the identity fields considered for a lookup. Any non-empty
// subset participates; fields are matched by logical OR.
type Criteria struct {
	MessengerName    string `json:"msger_name,omitempty"`
	MessengerAddress string `json:"msger_address,omitempty"`
	PartyName        string `json:"party_name,omitempty"`
}

// Empty reports whether no criteria field is set.
func (c Criteria) Empty() bool {
	return c.MessengerName == "" && c.MessengerAddress == "" && c.PartyName == ""
}

func (c Criteria) String() string {
	return fmt.Sprintf("msger_name=%q msger_address=%q party_name=%q",
		c.MessengerName, c.MessengerAddress, c.PartyName)
}

// Resolver looks up party codes.
type Resolver struct {
	pool db.Pool
}

// NewResolver creates a Resolver on the given pool.
func NewResolver(pool db.Pool) *Resolver {
	return &Resolver{pool: pool}
}

// Resolve returns the party code for the first active row matching any of
// the provided criteria. When several rows match, the row with the smallest
// party_code_id wins; the OR lookup is inherently ambiguous, so the
// tie-break is fixed to keep resolution deterministic. Zero provided
// criteria resolve to ErrNoMatch without querying.
func (r *Resolver) Resolve(ctx context.Context, c Criteria) (string, error) {
	if c.Empty() {
		return "", ErrNoMatch
	}

	query := `SELECT party_code FROM party_codes WHERE is_active AND (`
	args := []any{}
	argIdx := 1

	appendCond := func(column, value string) {
		if value == "" {
			return
		}
		if len(args) > 0 {
			query += ` OR `
		}
		query += fmt.Sprintf(`%s = $%d`, column, argIdx)
		args = append(args, value)
		argIdx++
	}
	appendCond("msger_name", c.MessengerName)
	appendCond("msger_address", c.MessengerAddress)
	appendCond("party_name", c.PartyName)

	query += `) ORDER BY party_code_id LIMIT 1`

	var code string
	err := r.pool.QueryRow(ctx, query, args...).Scan(&code)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNoMatch
	}
	if err != nil {
		return "", eris.Wrap(err, "party: resolve")
	}
	return code, nil
}
