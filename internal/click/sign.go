package click

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// SignFields are the request fields covered by sign_string, exactly as
// received. Amount must not be re-formatted before verification.
type SignFields struct {
	ClickTransID      string
	ServiceID         string
	MerchantTransID   string
	MerchantPrepareID string
	Amount            string
	Action            string
	SignTime          string
}

// PrepareSignature is md5(click_trans_id service_id secret merchant_trans_id
// amount action sign_time) in lower-case hex.
func PrepareSignature(f SignFields, secret string) string {
	return digest(f.ClickTransID, f.ServiceID, secret, f.MerchantTransID, f.Amount, f.Action, f.SignTime)
}

// CompleteSignature adds merchant_prepare_id before amount.
func CompleteSignature(f SignFields, secret string) string {
	return digest(f.ClickTransID, f.ServiceID, secret, f.MerchantTransID, f.MerchantPrepareID, f.Amount, f.Action, f.SignTime)
}

func VerifyPrepare(f SignFields, secret, provided string) bool {
	return equal(PrepareSignature(f, secret), provided)
}

func VerifyComplete(f SignFields, secret, provided string) bool {
	return equal(CompleteSignature(f, secret), provided)
}

func digest(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:])
}

func equal(expected, provided string) bool {
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(provided)))) == 1
}
