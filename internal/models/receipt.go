package models

// ReceiptItem is one fiscal line in Payme's detail format.
type ReceiptItem struct {
	Title       string `json:"title"`
	UnitPrice   int64  `json:"price"`
	Quantity    int64  `json:"count"`
	FiscalCode  string `json:"code,omitempty"`
	PackageCode string `json:"package_code,omitempty"`
	TaxRate     int    `json:"vat_percent"`
}

type ReceiptShipping struct {
	Title string `json:"title"`
	Price int64  `json:"price"`
}

// FiscalReceipt is derived from a cart on demand and never stored.
type FiscalReceipt struct {
	ReceiptType int              `json:"receipt_type"`
	Shipping    *ReceiptShipping `json:"shipping,omitempty"`
	Items       []ReceiptItem    `json:"items"`
}

// Total sums the lines and shipping.
func (r FiscalReceipt) Total() int64 {
	var sum int64
	for _, it := range r.Items {
		sum += it.UnitPrice * it.Quantity
	}
	if r.Shipping != nil {
		sum += r.Shipping.Price
	}
	return sum
}
