package models

import (
	"time"

	proofing "idproof/internal/proofing/models"
)

// User is the proofing-scoped view of the durable user aggregate. It is
// loaded from the central directory, mutated by the committer, and saved to
// the proofing user store before synchronization back to the system of record.
type User struct {
	Eppn        string                `json:"eppn"`
	GivenName   string                `json:"given_name,omitempty"`
	Surname     string                `json:"surname,omitempty"`
	MailAddress string                `json:"mail_address,omitempty"`
	Nins        []proofing.VerifiedNin `json:"nins"`
	ModifiedAt  time.Time             `json:"modified_ts"`
}

// HasVerifiedNin reports whether any verified NIN is attached. Both proofing
// engines refuse to start for a user that already holds one.
func (u *User) HasVerifiedNin() bool {
	for _, nin := range u.Nins {
		if nin.Verified {
			return true
		}
	}
	return false
}

// PrimaryNin returns the primary NIN, or nil when none is designated.
func (u *User) PrimaryNin() *proofing.VerifiedNin {
	for i := range u.Nins {
		if u.Nins[i].Primary {
			return &u.Nins[i]
		}
	}
	return nil
}

// AddNin appends a verified NIN to the set. Precedence policy lives in the
// committer; this is plain aggregation.
func (u *User) AddNin(nin proofing.VerifiedNin) {
	u.Nins = append(u.Nins, nin)
}
