package models

import (
	"time"

	dErrors "idproof/pkg/domain-errors"
	"idproof/pkg/secrets"
)

// State is an in-flight proofing attempt. At most one active state exists per
// owner at any time, regardless of variant. States are mutated in place as the
// flow progresses and deleted on success, expiry, or fatal rejection.
type State interface {
	// Owner returns the eppn of the user attempting proofing.
	Owner() string
	// ProofingMethod identifies the protocol variant.
	ProofingMethod() Method
}

// ProofingLetter tracks the postal leg of a letter proofing attempt.
type ProofingLetter struct {
	IsSent        bool       `json:"is_sent"`
	SentAt        *time.Time `json:"sent_ts,omitempty"`
	Address       Address    `json:"address,omitempty"`
	TransactionID string     `json:"transaction_id,omitempty"`
}

// LetterState is the postal flow variant of a proofing state.
type LetterState struct {
	Eppn   string         `json:"eppn"`
	Nin    NinCandidate   `json:"nin"`
	Letter ProofingLetter `json:"proofing_letter"`
}

func (s *LetterState) Owner() string          { return s.Eppn }
func (s *LetterState) ProofingMethod() Method { return MethodLetter }

// NewLetterState builds a fresh letter proofing state with a newly generated
// verification code.
func NewLetterState(eppn, number string, now time.Time) (*LetterState, error) {
	if err := validateAttempt(eppn, number); err != nil {
		return nil, err
	}
	return &LetterState{
		Eppn: eppn,
		Nin: NinCandidate{
			Number:           number,
			CreatedBy:        CreatedByLetter,
			CreatedAt:        now,
			VerificationCode: secrets.ShortCode(),
		},
	}, nil
}

// MarkSent records a successful dispatch. Transaction id and timestamp come
// from the letter service acknowledgement.
func (s *LetterState) MarkSent(transactionID string, sentAt time.Time) {
	s.Letter.IsSent = true
	s.Letter.SentAt = &sentAt
	s.Letter.TransactionID = transactionID
}

// OidcState is the third-party provider variant of a proofing state. The
// three opaque values are independently generated: State correlates the
// provider callback, Nonce binds the ID token, Token is the QR-carried bearer
// credential authorizing the browser-originated callback.
type OidcState struct {
	Eppn  string       `json:"eppn"`
	Nin   NinCandidate `json:"nin"`
	State string       `json:"state"`
	Nonce string       `json:"nonce"`
	Token string       `json:"token"`
}

func (s *OidcState) Owner() string          { return s.Eppn }
func (s *OidcState) ProofingMethod() Method { return MethodOidc }

// NewOidcState builds a fresh OIDC proofing state with three independently
// generated high-entropy values.
func NewOidcState(eppn, number string, now time.Time) (*OidcState, error) {
	if err := validateAttempt(eppn, number); err != nil {
		return nil, err
	}
	state, err := secrets.Generate()
	if err != nil {
		return nil, err
	}
	nonce, err := secrets.Generate()
	if err != nil {
		return nil, err
	}
	token, err := secrets.Generate()
	if err != nil {
		return nil, err
	}
	return &OidcState{
		Eppn: eppn,
		Nin: NinCandidate{
			Number:    number,
			CreatedBy: CreatedByOidc,
			CreatedAt: now,
		},
		State: state,
		Nonce: nonce,
		Token: token,
	}, nil
}

func validateAttempt(eppn, number string) error {
	if eppn == "" {
		return dErrors.New(dErrors.CodeValidation, "eppn is required")
	}
	if number == "" {
		return dErrors.New(dErrors.CodeValidation, "nin is required")
	}
	for _, r := range number {
		if r < '0' || r > '9' {
			return dErrors.New(dErrors.CodeValidation, "nin must be numeric")
		}
	}
	return nil
}
