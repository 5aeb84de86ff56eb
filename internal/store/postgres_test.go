package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxsettle/confirm-cli/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &PostgresStore{pool: mock}, mock
}

func documentRows(ids ...string) *pgxmock.Rows {
	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "file_name", "storage_locator", "extracted_text", "parsed_content",
		"processing_status", "total_matching_units", "matched_units_count",
		"created_at", "updated_at",
	})
	for _, id := range ids {
		status := "Not_Processed"
		rows.AddRow(id, id+".pdf", "/data/"+id+".pdf", nil, []byte(nil), &status, 0, 0, now, now)
	}
	return rows
}

func TestCreateDocument(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO documents`).
		WithArgs(pgxmock.AnyArg(), "conf.pdf", "/data/conf.pdf", "Not_Processed", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	doc, err := st.CreateDocument(context.Background(), "conf.pdf", "/data/conf.pdf")
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, model.StatusNotProcessed, doc.ProcessingStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDocument_NotFoundReturnsNil(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM documents WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(documentRows())

	doc, err := st.GetDocument(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, doc)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDocuments_InitialStatusMatchesNull(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM documents WHERE true AND \(processing_status = \$1 OR processing_status IS NULL\) ORDER BY created_at DESC LIMIT \$2`).
		WithArgs("Not_Processed", 100).
		WillReturnRows(documentRows("a", "b"))

	docs, err := st.ListDocuments(context.Background(), DocumentFilter{Status: model.StatusNotProcessed})
	require.NoError(t, err)
	assert.Len(t, docs, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDocuments_OtherStatusExactMatch(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM documents WHERE true AND processing_status = \$1 ORDER BY created_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("TEXT_PARSED", 10, 20).
		WillReturnRows(documentRows("a"))

	docs, err := st.ListDocuments(context.Background(), DocumentFilter{
		Status: model.StatusTextParsed,
		Limit:  10,
		Offset: 20,
	})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryForDocument(t *testing.T) {
	st, mock := newMockStore(t)

	now := time.Now().UTC()
	prev := "Not_Processed"
	data, err := json.Marshal(map[string]any{"page_count": 2})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT .+ FROM status_history WHERE document_id = \$1 ORDER BY transition_time, id`).
		WithArgs("doc-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "document_id", "previous_status", "new_status", "trigger_source", "additional_data", "transition_time",
		}).
			AddRow("h1", "doc-1", nil, "TEXT_EXTRACTED", "begin_extraction", data, now).
			AddRow("h2", "doc-1", &prev, "ERROR", "begin_extraction", []byte(nil), now.Add(time.Second)))

	entries, err := st.HistoryForDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Nil(t, entries[0].PreviousStatus)
	assert.Equal(t, model.StatusTextExtracted, entries[0].NewStatus)
	assert.Equal(t, float64(2), entries[0].AdditionalData["page_count"])

	require.NotNil(t, entries[1].PreviousStatus)
	assert.Equal(t, model.StatusNotProcessed, *entries[1].PreviousStatus)
	assert.Nil(t, entries[1].AdditionalData)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitsForDocument(t *testing.T) {
	st, mock := newMockStore(t)

	now := time.Now().UTC()
	details, err := json.Marshal(model.TransactionDetails{
		PayLeg:     model.Leg{Amount: 1000000.0, Currency: "USD"},
		ReceiveLeg: model.Leg{Amount: 920000.0, Currency: "EUR"},
	})
	require.NoError(t, err)
	uti := "UTI-001"
	rate := 1.0875

	mock.ExpectQuery(`SELECT .+ FROM matching_units WHERE document_id = \$1`).
		WithArgs("doc-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"matching_unit_id", "document_id", "is_matched", "trade_type", "trade_date",
			"settlement_date", "trading_party_code", "counterparty_code", "trade_ref",
			"trade_uti", "settlement_rate", "transaction_details", "created_at", "updated_at",
		}).
			AddRow("mu-1", "doc-1", false, "FX Forward", now, now, "ACME", "GLBX", "REF-001", &uti, &rate, details, now, now).
			AddRow("mu-2", "doc-1", false, "FX Forward", now, now, "ACME", "GLBX", "REF-001", nil, nil, details, now, now))

	units, err := st.UnitsForDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Len(t, units, 2)

	assert.Equal(t, "UTI-001", units[0].TradeUTI)
	require.NotNil(t, units[0].SettlementRate)
	assert.InDelta(t, 1.0875, *units[0].SettlementRate, 1e-9)
	assert.Equal(t, "USD", units[0].TransactionDetails.PayLeg.Currency)

	assert.Empty(t, units[1].TradeUTI)
	assert.Nil(t, units[1].SettlementRate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadPartyCodes(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"party_codes"}, []string{
		"party_code_id", "party_code", "msger_name", "msger_address",
		"party_name", "party_role", "is_active", "created_at", "updated_at",
	}).WillReturnResult(2)

	n, err := st.LoadPartyCodes(context.Background(), []model.PartyCode{
		{PartyCode: "ACME", PartyName: "Acme Bank PLC", PartyRole: model.PartyRoleBank, IsActive: true},
		{PartyCode: "GLBX", PartyName: "Globex Corp", PartyRole: model.PartyRoleCorporate, IsActive: true},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountsByStatus(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT COALESCE\(processing_status, 'Not_Processed'\), COUNT\(\*\) FROM documents GROUP BY 1`).
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow("Not_Processed", 3).
			AddRow("TEXT_PARSED", 1).
			AddRow("ERROR", 2))

	counts, err := st.CountsByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, counts[model.StatusNotProcessed])
	assert.Equal(t, 1, counts[model.StatusTextParsed])
	assert.Equal(t, 2, counts[model.StatusError])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStuckDocuments(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM documents\s+WHERE \(processing_status IS NULL OR processing_status NOT IN \(\$1, \$2, \$3\)\)`).
		WithArgs("PARTIALLY_MATCHED", "FULLY_MATCHED", "ERROR", pgxmock.AnyArg()).
		WillReturnRows(documentRows("old-1"))

	docs, err := st.StuckDocuments(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
