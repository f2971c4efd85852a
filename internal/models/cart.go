package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Cart struct {
	bun.BaseModel `bun:"table:carts"`

	ID               string     `bun:"id,pk" json:"id"`
	ShippingTitle    string     `bun:"shipping_title" json:"shipping_title"`
	ShippingAmount   int64      `bun:"shipping_amount,notnull" json:"shipping_amount"`
	DiscountAmount   int64      `bun:"discount_amount,notnull" json:"discount_amount"`
	ConvertedOrderID string     `bun:"converted_order_id,nullzero" json:"converted_order_id,omitempty"`
	CreatedAt        time.Time  `bun:"created_at,notnull" json:"created_at"`
	Items            []CartItem `bun:"rel:has-many,join:id=cart_id" json:"items"`
}

type CartItem struct {
	bun.BaseModel `bun:"table:cart_items"`

	ID          int64  `bun:"id,pk,autoincrement" json:"id"`
	CartID      string `bun:"cart_id,notnull" json:"cart_id"`
	ProductID   string `bun:"product_id,notnull" json:"product_id"`
	Title       string `bun:"title,notnull" json:"title"`
	UnitPrice   int64  `bun:"unit_price,notnull" json:"unit_price"`
	Quantity    int64  `bun:"quantity,notnull" json:"quantity"`
	TaxRate     int    `bun:"tax_rate,notnull" json:"tax_rate"`
	FiscalCode  string `bun:"fiscal_code,nullzero" json:"fiscal_code,omitempty"`
	PackageCode string `bun:"package_code,nullzero" json:"package_code,omitempty"`
}

// Subtotal is the sum of line totals before shipping and discount.
func (c *Cart) Subtotal() int64 {
	var sum int64
	for _, it := range c.Items {
		sum += it.UnitPrice * it.Quantity
	}
	return sum
}

// Total is what the customer owes, in minor units.
func (c *Cart) Total() int64 {
	return c.Subtotal() + c.ShippingAmount - c.DiscountAmount
}

func (c *Cart) Converted() bool { return c.ConvertedOrderID != "" }
