package units

import (
	"errors"
	"fmt"

	"github.com/fxsettle/confirm-cli/internal/party"
)

// ErrEmptyTransactionSet indicates the normalized payload carried no
// transactions sequence.
var ErrEmptyTransactionSet = errors.New("units: no transactions found in parsed content")

// Sides named by PartyResolutionError.
const (
	SideTradingParty = "trading_party"
	SideCounterparty = "counterparty"
)

// PartyResolutionError indicates one side of the trade could not be resolved
// to a party code. It names the failing side and echoes the search criteria
// for diagnosability.
type PartyResolutionError struct {
	Side     string
	Criteria party.Criteria
	Err      error
}

func (e *PartyResolutionError) Error() string {
	return fmt.Sprintf("units: %s not found in party codes (search criteria: %s)", e.Side, e.Criteria)
}

func (e *PartyResolutionError) Unwrap() error {
	return e.Err
}

// MalformedDateError indicates a date field did not parse as YYYY-MM-DD.
// Malformed dates abort the whole derivation; partial unit sets are never
// committed.
type MalformedDateError struct {
	Field string
	Value string
	Err   error
}

func (e *MalformedDateError) Error() string {
	return fmt.Sprintf("units: malformed %s %q (want YYYY-MM-DD)", e.Field, e.Value)
}

func (e *MalformedDateError) Unwrap() error {
	return e.Err
}
