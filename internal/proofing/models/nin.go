package models

import "time"

// Method identifies the proofing protocol that verified a NIN.
type Method string

const (
	MethodLetter Method = "letter"
	MethodOidc   Method = "oidc_provider"
)

// Creator tags stamped on candidates at state creation.
const (
	CreatedByLetter = "idproof-letter"
	CreatedByOidc   = "idproof-oidc"
)

// NinCandidate is a self-asserted national identity number under verification.
// The verification code is generated once at state creation and never
// regenerated; retries of the letter flow reuse it.
type NinCandidate struct {
	Number           string    `json:"number"`
	CreatedBy        string    `json:"created_by"`
	CreatedAt        time.Time `json:"created_ts"`
	VerificationCode string    `json:"verification_code,omitempty"`
}

// VerifiedNin is a NIN attached to the durable user record. Immutable once
// verified except for the Primary flag.
type VerifiedNin struct {
	Number     string    `json:"number"`
	Verified   bool      `json:"verified"`
	VerifiedBy Method    `json:"verified_by"`
	VerifiedAt time.Time `json:"verified_ts"`
	Primary    bool      `json:"primary"`
}
