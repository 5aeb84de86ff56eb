package model

import "time"

// Leg is one side of a trade's cash flow. Amount is carried verbatim from
// the model output (providers emit numbers or numeric strings).
type Leg struct {
	Amount   any    `json:"amount"`
	Currency string `json:"currency"`
}

// TransactionDetails pairs the two legs of a matching unit.
type TransactionDetails struct {
	PayLeg     Leg `json:"pay_leg"`
	ReceiveLeg Leg `json:"receive_leg"`
}

// MatchingUnit is one settlement-date slice of a trade: the pay leg and
// receive leg sharing a settlement date, plus the trade-level header fields.
// Units are created in bulk, one transaction per document; IsMatched is
// flipped only by the downstream reconciliation process.
type MatchingUnit struct {
	MatchingUnitID string `json:"matching_unit_id"`
	DocumentID     string `json:"document_id"`
	IsMatched      bool   `json:"is_matched"`

	TradeType        string    `json:"trade_type"`
	TradeDate        time.Time `json:"trade_date"`
	SettlementDate   time.Time `json:"settlement_date"`
	TradingPartyCode string    `json:"trading_party_code"`
	CounterpartyCode string    `json:"counterparty_code"`
	TradeRef         string    `json:"trade_ref"`
	TradeUTI         string    `json:"trade_uti,omitempty"`
	SettlementRate   *float64  `json:"settlement_rate,omitempty"`

	TransactionDetails TransactionDetails `json:"transaction_details"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
