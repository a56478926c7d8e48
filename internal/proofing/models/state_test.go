package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "idproof/pkg/domain-errors"
	"idproof/pkg/secrets"
)

func TestNewLetterState(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	st, err := NewLetterState("hubba-bubba", "190001021234", now)
	require.NoError(t, err)
	assert.Equal(t, "hubba-bubba", st.Owner())
	assert.Equal(t, MethodLetter, st.ProofingMethod())
	assert.Equal(t, CreatedByLetter, st.Nin.CreatedBy)
	assert.Len(t, st.Nin.VerificationCode, secrets.ShortCodeLength)
	assert.False(t, st.Letter.IsSent)
	assert.Nil(t, st.Letter.SentAt)
}

func TestMarkSent(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st, err := NewLetterState("hubba-bubba", "190001021234", now)
	require.NoError(t, err)

	sentAt := now.Add(time.Minute)
	st.MarkSent("tx-1", sentAt)
	assert.True(t, st.Letter.IsSent)
	require.NotNil(t, st.Letter.SentAt)
	assert.Equal(t, sentAt, *st.Letter.SentAt)
	assert.Equal(t, "tx-1", st.Letter.TransactionID)
}

func TestNewOidcState(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	st, err := NewOidcState("hubba-bubba", "190001021234", now)
	require.NoError(t, err)
	assert.Equal(t, MethodOidc, st.ProofingMethod())
	assert.Equal(t, CreatedByOidc, st.Nin.CreatedBy)
	assert.Empty(t, st.Nin.VerificationCode, "the provider flow has no typed-back code")

	// The three values authorize different legs and must never coincide.
	assert.NotEmpty(t, st.State)
	assert.NotEqual(t, st.State, st.Nonce)
	assert.NotEqual(t, st.State, st.Token)
	assert.NotEqual(t, st.Nonce, st.Token)
}

func TestAttemptValidation(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name   string
		eppn   string
		number string
	}{
		{"empty eppn", "", "190001021234"},
		{"empty nin", "hubba-bubba", ""},
		{"non-numeric nin", "hubba-bubba", "19000102-1234"},
		{"alphabetic nin", "hubba-bubba", "not a number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLetterState(tt.eppn, tt.number, now)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

			_, err = NewOidcState(tt.eppn, tt.number, now)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestAddressCompleteness(t *testing.T) {
	complete := Address{Street: "Testgatan 1", PostalCode: "12345", City: "Teststaden"}
	assert.True(t, complete.Complete())
	assert.False(t, complete.IsZero())

	assert.False(t, Address{Street: "Testgatan 1"}.Complete())
	assert.True(t, Address{}.IsZero())

	// Care-of and country are optional for completeness.
	withExtras := complete
	withExtras.CareOf = "Someone"
	withExtras.Country = "SE"
	assert.True(t, withExtras.Complete())
}
