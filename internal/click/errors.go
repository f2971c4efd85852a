package click

// Error codes of the Click merchant API.
const (
	CodeSuccess             = 0
	CodeSignFailed          = -1
	CodeInvalidAmount       = -2
	CodeActionNotFound      = -3
	CodeAlreadyPaid         = -4
	CodeOrderNotFound       = -5
	CodeTransactionNotFound = -6
	CodeUpdateFailed        = -7
	CodeBadRequest          = -8
	CodeCancelled           = -9
)

var notes = map[int]string{
	CodeSuccess:             "Success",
	CodeSignFailed:          "SIGN CHECK FAILED!",
	CodeInvalidAmount:       "Incorrect parameter amount",
	CodeActionNotFound:      "Action not found",
	CodeAlreadyPaid:         "Already paid",
	CodeOrderNotFound:       "Order does not exist",
	CodeTransactionNotFound: "Transaction does not exist",
	CodeUpdateFailed:        "Failed to update order",
	CodeBadRequest:          "Error in request from click",
	CodeCancelled:           "Transaction cancelled",
}

func note(code int) string {
	return notes[code]
}
