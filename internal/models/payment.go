package models

// CheckoutRequest starts a payment session for a cart.
type CheckoutRequest struct {
	CartID   string `json:"cart_id"`
	Provider string `json:"provider"`
}

type CheckoutResponse struct {
	CorrelationID string `json:"correlation_id"`
	PaymentURL    string `json:"payment_url"`
	Amount        string `json:"amount"`
}

// OrderLookupResponse answers the storefront's "is my order ready" poll.
type OrderLookupResponse struct {
	Status  string `json:"status"`
	OrderID string `json:"order_id,omitempty"`
}
