package main

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxsettle/confirm-cli/internal/model"
)

func TestParsePartyCodes(t *testing.T) {
	rows := [][]string{
		{"party_code", "party_name", "party_role", "msger_name", "msger_address", "active"},
		{"ACME", "Acme Bank PLC", "bank", "ACME BANK", "ACMEGB2L", "true"},
		{"GLBX", "Globex Corp", "Corporate", "", "", ""},
		{"ACME", "Acme Bank duplicate", "bank", "", "", "false"},
		{},
		{" ", "blank code row"},
	}

	codes, err := parsePartyCodes(rows)
	require.NoError(t, err)
	require.Len(t, codes, 2, "duplicate code rows are dropped")

	assert.Equal(t, "ACME", codes[0].PartyCode)
	assert.Equal(t, model.PartyRoleBank, codes[0].PartyRole)
	assert.Equal(t, "ACMEGB2L", codes[0].MsgerAddress)
	assert.True(t, codes[0].IsActive)

	assert.Equal(t, model.PartyRoleCorporate, codes[1].PartyRole, "role is lowercased")
	assert.Empty(t, codes[1].MsgerName)
	assert.True(t, codes[1].IsActive, "active defaults to true")
}

func TestParsePartyCodes_Errors(t *testing.T) {
	_, err := parsePartyCodes([][]string{
		{"party_code", "party_name", "party_role"},
		{"ACME", "Acme Bank PLC"},
	})
	assert.Error(t, err, "too few columns")

	_, err = parsePartyCodes([][]string{
		{"party_code", "party_name", "party_role"},
		{"ACME", "Acme Bank PLC", "hedge_fund"},
	})
	assert.Error(t, err, "unknown role")

	_, err = parsePartyCodes([][]string{
		{"party_code", "party_name", "party_role", "msger_name", "msger_address", "active"},
		{"ACME", "Acme Bank PLC", "bank", "", "", "maybe"},
	})
	assert.Error(t, err, "bad active flag")
}

func TestReadPartyCodeRows_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parties.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := csv.NewWriter(f)
	require.NoError(t, w.WriteAll([][]string{
		{"party_code", "party_name", "party_role"},
		{"ACME", "Acme Bank PLC", "bank"},
	}))
	require.NoError(t, f.Close())

	rows, err := readPartyCodeRows(path)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestReadPartyCodeRows_UnsupportedExtension(t *testing.T) {
	_, err := readPartyCodeRows("parties.json")
	assert.Error(t, err)
}
