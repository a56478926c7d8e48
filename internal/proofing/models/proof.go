package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ProofRecord is an append-only audit snapshot of the protocol payloads that
// led to a verification. Records are never read back into flow logic; they
// exist for support inspection and the demo proofs endpoint.
type ProofRecord struct {
	ID        uuid.UUID       `json:"id"`
	Eppn      string          `json:"eppn"`
	Method    Method          `json:"method"`
	CreatedAt time.Time       `json:"created_ts"`
	Payload   json.RawMessage `json:"payload"`
}

// OidcProofPayload snapshots the three provider payloads of a completed OIDC
// proofing.
type OidcProofPayload struct {
	AuthnResponse map[string]string `json:"authn_resp"`
	TokenResponse json.RawMessage   `json:"token_resp"`
	Userinfo      json.RawMessage   `json:"userinfo"`
}

// LetterProofPayload snapshots the data behind a completed letter proofing.
type LetterProofPayload struct {
	Nin             NinCandidate `json:"nin"`
	OfficialAddress Address      `json:"official_address"`
	TransactionID   string       `json:"transaction_id"`
}

// NewProofRecord wraps a marshalable payload into a record. Marshal failures
// are programming errors surfaced to the caller.
func NewProofRecord(eppn string, method Method, payload any, now time.Time) (*ProofRecord, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &ProofRecord{
		ID:        uuid.New(),
		Eppn:      eppn,
		Method:    method,
		CreatedAt: now,
		Payload:   raw,
	}, nil
}
