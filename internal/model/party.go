package model

import "time"

// Party roles for party code reference data.
const (
	PartyRoleBank      = "bank"
	PartyRoleCorporate = "corporate"
)

// PartyCode maps message-header identity fields and legal party names to an
// internal party code. Reference data; read-only from the pipeline's
// perspective and maintained out-of-band.
type PartyCode struct {
	PartyCodeID  string    `json:"party_code_id"`
	PartyCode    string    `json:"party_code"`
	MsgerName    string    `json:"msger_name,omitempty"`
	MsgerAddress string    `json:"msger_address,omitempty"`
	PartyName    string    `json:"party_name"`
	PartyRole    string    `json:"party_role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
