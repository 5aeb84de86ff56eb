package units

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxsettle/confirm-cli/internal/model"
	"github.com/fxsettle/confirm-cli/internal/party"
)

func transaction(side, settlementDate, tradeDate string, amount float64, currency string) map[string]any {
	return map[string]any{
		keyBuyOrSell:      side,
		keySettlementDate: settlementDate,
		keyTradeDate:      tradeDate,
		keyAmount:         amount,
		keyCurrency:       currency,
	}
}

func confirmationContent(transactions ...map[string]any) map[string]any {
	items := make([]any, len(transactions))
	for i, tr := range transactions {
		items[i] = tr
	}
	return map[string]any{
		"MsgSender":      map[string]any{"Name": "ACME BANK", "Address": "ACMEGB2L"},
		"MsgReceiver":    map[string]any{"Name": "GLOBEX", "Address": "GLOBUS33"},
		"TradingParty":   "Acme Bank PLC",
		"CounterParty":   "Globex Corp",
		"TradeType":      "FX Forward",
		"TradeRef":       "REF-001",
		"TradeUTI":       "UTI-001",
		"SettlementRate": 1.0875,
		"transactions":   items,
	}
}

func expectResolutions(mock pgxmock.PgxPoolIface, tradingCode, counterCode string) {
	mock.ExpectQuery(`SELECT party_code FROM party_codes`).
		WithArgs("ACME BANK", "ACMEGB2L", "Acme Bank PLC").
		WillReturnRows(pgxmock.NewRows([]string{"party_code"}).AddRow(tradingCode))
	mock.ExpectQuery(`SELECT party_code FROM party_codes`).
		WithArgs("GLOBEX", "GLOBUS33", "Globex Corp").
		WillReturnRows(pgxmock.NewRows([]string{"party_code"}).AddRow(counterCode))
}

func TestDerive_PairsLegsPerSettlementDate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	expectResolutions(mock, "ACME", "GLBX")

	doc := &model.Document{
		ID: "doc-1",
		ParsedContent: confirmationContent(
			transaction("Sell", "2026-09-15", "2026-09-01", 1000000, "USD"),
			transaction("Buy", "2026-09-15", "2026-09-01", 920000, "EUR"),
			transaction("Sell", "2026-10-15", "2026-09-01", 500000, "USD"),
			transaction("Buy", "2026-10-15", "2026-09-01", 460000, "EUR"),
		),
	}

	d := NewDeriver(party.NewResolver(mock))
	units, err := d.Derive(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, units, 2)

	first := units[0]
	assert.Equal(t, "doc-1", first.DocumentID)
	assert.False(t, first.IsMatched)
	assert.Equal(t, "FX Forward", first.TradeType)
	assert.Equal(t, "ACME", first.TradingPartyCode)
	assert.Equal(t, "GLBX", first.CounterpartyCode)
	assert.Equal(t, "REF-001", first.TradeRef)
	assert.Equal(t, "UTI-001", first.TradeUTI)
	require.NotNil(t, first.SettlementRate)
	assert.InDelta(t, 1.0875, *first.SettlementRate, 1e-9)
	assert.Equal(t, "2026-09-15", first.SettlementDate.Format("2006-01-02"))
	assert.Equal(t, "USD", first.TransactionDetails.PayLeg.Currency)
	assert.Equal(t, "EUR", first.TransactionDetails.ReceiveLeg.Currency)

	// Groups come out in first-seen document order.
	assert.Equal(t, "2026-10-15", units[1].SettlementDate.Format("2006-01-02"))
	assert.NotEqual(t, units[0].MatchingUnitID, units[1].MatchingUnitID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDerive_SkipsIncompleteGroup(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	expectResolutions(mock, "ACME", "GLBX")

	doc := &model.Document{
		ID: "doc-1",
		ParsedContent: confirmationContent(
			transaction("Buy", "2026-09-15", "2026-09-01", 920000, "EUR"), // no Sell leg
			transaction("Sell", "2026-10-15", "2026-09-01", 500000, "USD"),
			transaction("Buy", "2026-10-15", "2026-09-01", 460000, "EUR"),
		),
	}

	d := NewDeriver(party.NewResolver(mock))
	units, err := d.Derive(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "2026-10-15", units[0].SettlementDate.Format("2006-01-02"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDerive_UsesFirstLegPerSide(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	expectResolutions(mock, "ACME", "GLBX")

	doc := &model.Document{
		ID: "doc-1",
		ParsedContent: confirmationContent(
			transaction("Sell", "2026-09-15", "2026-09-01", 1000000, "USD"),
			transaction("Sell", "2026-09-15", "2026-09-01", 750, "CHF"),
			transaction("Buy", "2026-09-15", "2026-09-01", 920000, "EUR"),
		),
	}

	d := NewDeriver(party.NewResolver(mock))
	units, err := d.Derive(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "USD", units[0].TransactionDetails.PayLeg.Currency)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDerive_EnvelopedPayload(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	expectResolutions(mock, "ACME", "GLBX")

	doc := &model.Document{
		ID: "doc-1",
		ParsedContent: map[string]any{
			"parsed_result": map[string]any{
				"parsed_content": confirmationContent(
					transaction("Sell", "2026-09-15", "2026-09-01", 1000000, "USD"),
					transaction("Buy", "2026-09-15", "2026-09-01", 920000, "EUR"),
				),
			},
			"model_info": map[string]any{"provider": "anthropic"},
		},
	}

	d := NewDeriver(party.NewResolver(mock))
	units, err := d.Derive(context.Background(), doc)
	require.NoError(t, err)
	assert.Len(t, units, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDerive_EmptyTransactions(t *testing.T) {
	d := NewDeriver(party.NewResolver(nil))

	_, err := d.Derive(context.Background(), &model.Document{
		ID:            "doc-1",
		ParsedContent: confirmationContent(),
	})
	assert.ErrorIs(t, err, ErrEmptyTransactionSet)

	_, err = d.Derive(context.Background(), &model.Document{
		ID:            "doc-1",
		ParsedContent: map[string]any{"TradeType": "FX"},
	})
	assert.ErrorIs(t, err, ErrEmptyTransactionSet)
}

func TestDerive_NoParsedContent(t *testing.T) {
	d := NewDeriver(party.NewResolver(nil))
	_, err := d.Derive(context.Background(), &model.Document{ID: "doc-1"})
	assert.Error(t, err)
}

func TestDerive_TradingPartyResolutionFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT party_code FROM party_codes`).
		WithArgs("ACME BANK", "ACMEGB2L", "Acme Bank PLC").
		WillReturnError(pgx.ErrNoRows)

	doc := &model.Document{
		ID: "doc-1",
		ParsedContent: confirmationContent(
			transaction("Sell", "2026-09-15", "2026-09-01", 1000000, "USD"),
			transaction("Buy", "2026-09-15", "2026-09-01", 920000, "EUR"),
		),
	}

	d := NewDeriver(party.NewResolver(mock))
	_, err = d.Derive(context.Background(), doc)
	require.Error(t, err)

	var pre *PartyResolutionError
	require.ErrorAs(t, err, &pre)
	assert.Equal(t, SideTradingParty, pre.Side)
	assert.ErrorIs(t, err, party.ErrNoMatch)
	assert.Contains(t, err.Error(), "trading_party not found in party codes")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDerive_CounterpartyResolutionFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT party_code FROM party_codes`).
		WithArgs("ACME BANK", "ACMEGB2L", "Acme Bank PLC").
		WillReturnRows(pgxmock.NewRows([]string{"party_code"}).AddRow("ACME"))
	mock.ExpectQuery(`SELECT party_code FROM party_codes`).
		WithArgs("GLOBEX", "GLOBUS33", "Globex Corp").
		WillReturnError(pgx.ErrNoRows)

	doc := &model.Document{
		ID: "doc-1",
		ParsedContent: confirmationContent(
			transaction("Sell", "2026-09-15", "2026-09-01", 1000000, "USD"),
			transaction("Buy", "2026-09-15", "2026-09-01", 920000, "EUR"),
		),
	}

	d := NewDeriver(party.NewResolver(mock))
	_, err = d.Derive(context.Background(), doc)

	var pre *PartyResolutionError
	require.ErrorAs(t, err, &pre)
	assert.Equal(t, SideCounterparty, pre.Side)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDerive_MalformedDateAborts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	expectResolutions(mock, "ACME", "GLBX")

	doc := &model.Document{
		ID: "doc-1",
		ParsedContent: confirmationContent(
			transaction("Sell", "2026-09-15", "2026-09-01", 1000000, "USD"),
			transaction("Buy", "2026-09-15", "2026-09-01", 920000, "EUR"),
			transaction("Sell", "15/10/2026", "2026-09-01", 500000, "USD"),
			transaction("Buy", "15/10/2026", "2026-09-01", 460000, "EUR"),
		),
	}

	d := NewDeriver(party.NewResolver(mock))
	units, err := d.Derive(context.Background(), doc)
	require.Error(t, err)
	assert.Nil(t, units, "a malformed date must not yield a partial unit set")

	var mde *MalformedDateError
	require.ErrorAs(t, err, &mde)
	assert.Equal(t, keySettlementDate, mde.Field)
	assert.Equal(t, "15/10/2026", mde.Value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDerive_DatelessTransactionsDropped(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	expectResolutions(mock, "ACME", "GLBX")

	noDate := transaction("Sell", "", "2026-09-01", 123, "USD")
	doc := &model.Document{
		ID: "doc-1",
		ParsedContent: confirmationContent(
			noDate,
			transaction("Sell", "2026-09-15", "2026-09-01", 1000000, "USD"),
			transaction("Buy", "2026-09-15", "2026-09-01", 920000, "EUR"),
		),
	}

	d := NewDeriver(party.NewResolver(mock))
	units, err := d.Derive(context.Background(), doc)
	require.NoError(t, err)
	assert.Len(t, units, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParseRate(t *testing.T) {
	rate, err := parseRate(nil)
	require.NoError(t, err)
	assert.Nil(t, rate)

	rate, err = parseRate(1.25)
	require.NoError(t, err)
	assert.Equal(t, 1.25, *rate)

	rate, err = parseRate("1.25")
	require.NoError(t, err)
	assert.Equal(t, 1.25, *rate)

	rate, err = parseRate("")
	require.NoError(t, err)
	assert.Nil(t, rate)

	_, err = parseRate("abc")
	assert.Error(t, err)

	_, err = parseRate([]any{})
	assert.Error(t, err)
}
