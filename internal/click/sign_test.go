package click

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func prepareFields() SignFields {
	return SignFields{
		ClickTransID:    "1234567890",
		ServiceID:       "12345",
		MerchantTransID: "cart-1",
		Amount:          "600.00",
		Action:          "0",
		SignTime:        "2026-10-19 12:00:00",
	}
}

func TestPrepareSignature_GoldenVector(t *testing.T) {
	assert.Equal(t, "a95c5e3cc8c45057677d12aa0738eaa5", PrepareSignature(prepareFields(), "secretKEY"))
}

func TestCompleteSignature_GoldenVector(t *testing.T) {
	f := SignFields{
		ClickTransID:      "1234567890",
		ServiceID:         "12345",
		MerchantTransID:   "cart-1",
		MerchantPrepareID: "77",
		Amount:            "6000.00",
		Action:            "1",
		SignTime:          "2026-10-19 12:00:05",
	}
	assert.Equal(t, "d333541f4cd11d84e0a21503a852182e", CompleteSignature(f, "secretKEY"))
	assert.True(t, VerifyComplete(f, "secretKEY", "d333541f4cd11d84e0a21503a852182e"))

	// Without the prepare id the digest is a different one.
	assert.False(t, VerifyPrepare(f, "secretKEY", "d333541f4cd11d84e0a21503a852182e"))
}

func TestVerifyPrepare(t *testing.T) {
	f := prepareFields()
	good := "a95c5e3cc8c45057677d12aa0738eaa5"

	tests := []struct {
		name     string
		mutate   func(*SignFields)
		secret   string
		provided string
		want     bool
	}{
		{name: "match", secret: "secretKEY", provided: good, want: true},
		{name: "upper_case", secret: "secretKEY", provided: strings.ToUpper(good), want: true},
		{name: "wrong_secret", secret: "other", provided: good, want: false},
		{name: "empty", secret: "secretKEY", provided: "", want: false},
		{name: "amount_reformatted", mutate: func(f *SignFields) { f.Amount = "600" }, secret: "secretKEY", provided: good, want: false},
		{name: "tampered_cart", mutate: func(f *SignFields) { f.MerchantTransID = "cart-2" }, secret: "secretKEY", provided: good, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := f
			if tt.mutate != nil {
				tt.mutate(&fields)
			}
			assert.Equal(t, tt.want, VerifyPrepare(fields, tt.secret, tt.provided))
		})
	}
}
