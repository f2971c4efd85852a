package payme

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

var errBadAmount = errors.New("amount must be an integer number of tiyin")

// Method names accepted on the endpoint.
const (
	MethodCheckPerformTransaction = "CheckPerformTransaction"
	MethodCreateTransaction       = "CreateTransaction"
	MethodPerformTransaction      = "PerformTransaction"
	MethodCheckTransaction        = "CheckTransaction"
	MethodCancelTransaction       = "CancelTransaction"
	MethodGetStatement            = "GetStatement"
)

type request struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Account is Payme's account object. Only the configured key is read.
type Account map[string]json.RawMessage

// Ref returns the account value under key as a string, accepting JSON
// strings and numbers.
func (a Account) Ref(key string) (string, bool) {
	raw, ok := a[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

// Amount is an integer number of tiyin.
type Amount int64

func (a *Amount) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errBadAmount
	}
	v, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		return errBadAmount
	}
	*a = Amount(v)
	return nil
}

type CheckPerformParams struct {
	Amount  Amount  `json:"amount"`
	Account Account `json:"account"`
}

type CreateParams struct {
	ID      string  `json:"id"`
	Time    int64   `json:"time"`
	Amount  Amount  `json:"amount"`
	Account Account `json:"account"`
}

type IDParams struct {
	ID string `json:"id"`
}

type CancelParams struct {
	ID     string `json:"id"`
	Reason int    `json:"reason"`
}

type StatementParams struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// decodeParams decodes strictly; unknown fields and type errors are an
// invalid request except for a malformed amount.
func decodeParams(raw json.RawMessage, v interface{}) *Error {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return newError(CodeInvalidRequest, "params")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, errBadAmount) {
			return newError(CodeInvalidAmount, "amount")
		}
		return newError(CodeInvalidRequest, err.Error())
	}
	return nil
}

type CheckPerformResult struct {
	Allow  bool        `json:"allow"`
	Detail interface{} `json:"detail,omitempty"`
}

type CreateResult struct {
	CreateTime  int64  `json:"create_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
}

type PerformResult struct {
	PerformTime int64  `json:"perform_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
}

type CancelResult struct {
	CancelTime  int64  `json:"cancel_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
}

type CheckResult struct {
	CreateTime  int64  `json:"create_time"`
	PerformTime int64  `json:"perform_time"`
	CancelTime  int64  `json:"cancel_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
	Reason      *int   `json:"reason"`
}

type StatementEntry struct {
	ID          string            `json:"id"`
	Time        int64             `json:"time"`
	Amount      int64             `json:"amount"`
	Account     map[string]string `json:"account"`
	CreateTime  int64             `json:"create_time"`
	PerformTime int64             `json:"perform_time"`
	CancelTime  int64             `json:"cancel_time"`
	Transaction string            `json:"transaction"`
	State       int               `json:"state"`
	Reason      *int              `json:"reason"`
	Receivers   []interface{}     `json:"receivers"`
}

type StatementResult struct {
	Transactions []StatementEntry `json:"transactions"`
}
