package units

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/fxsettle/confirm-cli/internal/model"
	"github.com/fxsettle/confirm-cli/internal/party"
)

// dateLayout is the wire format for trade and settlement dates.
const dateLayout = "2006-01-02"

// Transaction field keys as emitted by the model parser.
const (
	keySettlementDate = "SettlementDate"
	keyBuyOrSell      = "BuyrOrSell"
	keyTradeDate      = "TradeDate"
	keyAmount         = "Amount"
	keyCurrency       = "Currency"

	sideSell = "Sell"
	sideBuy  = "Buy"
)

// Deriver turns a parsed confirmation payload into matching units.
type Deriver struct {
	resolver *party.Resolver
}

// NewDeriver creates a Deriver using the given party resolver.
func NewDeriver(resolver *party.Resolver) *Deriver {
	return &Deriver{resolver: resolver}
}

// Derive computes the matching units for a document in TEXT_PARSED state.
// The document is not mutated and nothing is persisted here; the caller
// stages the returned units inside the UNITS_CREATED transition's
// transaction. Any error means no units: partial sets are never produced.
func (d *Deriver) Derive(ctx context.Context, doc *model.Document) ([]model.MatchingUnit, error) {
	if doc.ParsedContent == nil {
		return nil, eris.Errorf("units: document %s has no parsed content", doc.ID)
	}

	content := Normalize(doc.ParsedContent)
	transactions := transactionList(content)
	if len(transactions) == 0 {
		return nil, ErrEmptyTransactionSet
	}

	tradingCode, counterCode, err := d.resolveParties(ctx, content)
	if err != nil {
		return nil, err
	}

	header, err := readHeader(content)
	if err != nil {
		return nil, err
	}

	var units []model.MatchingUnit
	for _, group := range groupBySettlementDate(transactions) {
		payLeg := firstWithSide(group.transactions, sideSell)
		receiveLeg := firstWithSide(group.transactions, sideBuy)
		if payLeg == nil || receiveLeg == nil {
			// A settlement date without a full pay/receive pair yields no
			// unit. Policy, not an error.
			continue
		}

		tradeDate, err := parseDate(keyTradeDate, stringField(payLeg, keyTradeDate))
		if err != nil {
			return nil, err
		}
		settlementDate, err := parseDate(keySettlementDate, group.date)
		if err != nil {
			return nil, err
		}

		units = append(units, model.MatchingUnit{
			MatchingUnitID:   uuid.New().String(),
			DocumentID:       doc.ID,
			IsMatched:        false,
			TradeType:        header.tradeType,
			TradeDate:        tradeDate,
			SettlementDate:   settlementDate,
			TradingPartyCode: tradingCode,
			CounterpartyCode: counterCode,
			TradeRef:         header.tradeRef,
			TradeUTI:         header.tradeUTI,
			SettlementRate:   header.settlementRate,
			TransactionDetails: model.TransactionDetails{
				PayLeg: model.Leg{
					Amount:   payLeg[keyAmount],
					Currency: stringField(payLeg, keyCurrency),
				},
				ReceiveLeg: model.Leg{
					Amount:   receiveLeg[keyAmount],
					Currency: stringField(receiveLeg, keyCurrency),
				},
			},
		})
	}
	return units, nil
}

// resolveParties maps sender identity + trading party name to the trading
// party code, and receiver identity + counterparty name to the counterparty
// code. Either failure aborts the derivation.
func (d *Deriver) resolveParties(ctx context.Context, content map[string]any) (trading, counter string, err error) {
	sender := mapField(content, "MsgSender")
	tradingCriteria := party.Criteria{
		MessengerName:    stringField(sender, "Name"),
		MessengerAddress: stringField(sender, "Address"),
		PartyName:        stringField(content, "TradingParty"),
	}
	trading, err = d.resolver.Resolve(ctx, tradingCriteria)
	if err != nil {
		return "", "", &PartyResolutionError{Side: SideTradingParty, Criteria: tradingCriteria, Err: err}
	}

	receiver := mapField(content, "MsgReceiver")
	counterCriteria := party.Criteria{
		MessengerName:    stringField(receiver, "Name"),
		MessengerAddress: stringField(receiver, "Address"),
		PartyName:        stringField(content, "CounterParty"),
	}
	counter, err = d.resolver.Resolve(ctx, counterCriteria)
	if err != nil {
		return "", "", &PartyResolutionError{Side: SideCounterparty, Criteria: counterCriteria, Err: err}
	}

	return trading, counter, nil
}

// header holds the document-level fields copied onto every unit.
type header struct {
	tradeType      string
	tradeRef       string
	tradeUTI       string
	settlementRate *float64
}

func readHeader(content map[string]any) (header, error) {
	h := header{
		tradeType: stringField(content, "TradeType"),
		tradeRef:  stringField(content, "TradeRef"),
		tradeUTI:  stringField(content, "TradeUTI"),
	}
	rate, err := parseRate(content["SettlementRate"])
	if err != nil {
		return header{}, err
	}
	h.settlementRate = rate
	return h, nil
}

// settlementGroup is the transactions sharing one raw settlement-date
// string, in document order.
type settlementGroup struct {
	date         string
	transactions []map[string]any
}

// groupBySettlementDate buckets transactions by their raw SettlementDate
// string, preserving first-seen order of distinct dates. Transactions
// without a settlement date are dropped.
func groupBySettlementDate(transactions []map[string]any) []settlementGroup {
	index := map[string]int{}
	var groups []settlementGroup
	for _, t := range transactions {
		date := stringField(t, keySettlementDate)
		if date == "" {
			continue
		}
		i, ok := index[date]
		if !ok {
			i = len(groups)
			index[date] = i
			groups = append(groups, settlementGroup{date: date})
		}
		groups[i].transactions = append(groups[i].transactions, t)
	}
	return groups
}

func firstWithSide(transactions []map[string]any, side string) map[string]any {
	for _, t := range transactions {
		if stringField(t, keyBuyOrSell) == side {
			return t
		}
	}
	return nil
}

func parseDate(field, value string) (time.Time, error) {
	d, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, &MalformedDateError{Field: field, Value: value, Err: err}
	}
	return d, nil
}

// parseRate accepts the numeric representations providers emit for
// SettlementRate: JSON numbers, numeric strings, or absent.
func parseRate(v any) (*float64, error) {
	switch rate := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return &rate, nil
	case json.Number:
		f, err := rate.Float64()
		if err != nil {
			return nil, eris.Wrapf(err, "units: malformed settlement rate %q", rate.String())
		}
		return &f, nil
	case string:
		if rate == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(rate, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "units: malformed settlement rate %q", rate)
		}
		return &f, nil
	default:
		return nil, eris.Errorf("units: malformed settlement rate %v", v)
	}
}

func transactionList(content map[string]any) []map[string]any {
	raw, ok := content["transactions"].([]any)
	if !ok {
		return nil
	}
	var out []map[string]any
	for _, item := range raw {
		if t, ok := item.(map[string]any); ok {
			out = append(out, t)
		}
	}
	return out
}

func mapField(m map[string]any, key string) map[string]any {
	inner, _ := m[key].(map[string]any)
	return inner
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}
