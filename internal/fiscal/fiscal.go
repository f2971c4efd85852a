// Package fiscal builds the itemized receipt a payment provider forwards to
// the tax authority and checks that it adds up to the charged amount.
package fiscal

import (
	"context"
	"errors"
	"fmt"

	"ms-payments/internal/apperr"
	"ms-payments/internal/logger"
	"ms-payments/internal/models"
)

const (
	maxTitleRunes   = 128
	receiptTypeSale = 0
	defaultShipping = "Delivery"
)

const (
	PolicyBlock = "block"
	PolicyWarn  = "warn"
)

// CodeResolver finds the fiscal code of a product the cart line lacks.
type CodeResolver interface {
	FiscalCode(ctx context.Context, productID string) (code, packageCode string, err error)
}

// CodeCache remembers codes resolved for a cart line.
type CodeCache interface {
	SetItemFiscalCode(ctx context.Context, itemID int64, code, packageCode string) error
}

type Reconciler struct {
	Tolerance int64
	Policy    string
	resolver  CodeResolver
	cache     CodeCache
	log       *logger.Logger
}

// NewReconciler accepts nil resolver and cache.
func NewReconciler(tolerance int64, policy string, resolver CodeResolver, cache CodeCache, log *logger.Logger) *Reconciler {
	if policy == "" {
		policy = PolicyBlock
	}
	return &Reconciler{Tolerance: tolerance, Policy: policy, resolver: resolver, cache: cache, log: log}
}

// Build derives the receipt for cart. When the receipt misses amount by more
// than the tolerance the receipt is still returned together with an
// *apperr.ReconciliationMismatch.
func (r *Reconciler) Build(ctx context.Context, cart *models.Cart, amount int64) (models.FiscalReceipt, error) {
	receipt := models.FiscalReceipt{ReceiptType: receiptTypeSale}

	shares := distribute(cart.DiscountAmount, cart.Items)
	for i, it := range cart.Items {
		code, pkg := it.FiscalCode, it.PackageCode
		if code == "" {
			code, pkg = r.resolve(ctx, it)
		}

		line := models.ReceiptItem{
			Title:       truncate(it.Title, maxTitleRunes),
			FiscalCode:  code,
			PackageCode: pkg,
			TaxRate:     it.TaxRate,
		}
		for _, part := range splitLine(it.UnitPrice*it.Quantity-shares[i], it.Quantity) {
			line.UnitPrice, line.Quantity = part[0], part[1]
			receipt.Items = append(receipt.Items, line)
		}
	}

	if cart.ShippingAmount > 0 {
		title := cart.ShippingTitle
		if title == "" {
			title = defaultShipping
		}
		receipt.Shipping = &models.ReceiptShipping{Title: truncate(title, maxTitleRunes), Price: cart.ShippingAmount}
	}

	total := receipt.Total()
	if diff := total - amount; diff > r.Tolerance || -diff > r.Tolerance {
		return receipt, &apperr.ReconciliationMismatch{Expected: amount, FiscalTotal: total, Tolerance: r.Tolerance}
	}
	return receipt, nil
}

// Blocks reports whether err should stop the receipt from being issued under
// the configured policy. Mismatches under the warn policy are logged.
func (r *Reconciler) Blocks(cartID string, err error) bool {
	var mismatch *apperr.ReconciliationMismatch
	if !errors.As(err, &mismatch) {
		return err != nil
	}
	msg := fmt.Sprintf("Receipt for cart %s totals %d, expected %d (delta %d)", cartID, mismatch.FiscalTotal, mismatch.Expected, mismatch.Delta())
	if r.Policy == PolicyWarn {
		r.log.Warn("FISCAL", msg)
		return false
	}
	r.log.Error("FISCAL", msg)
	return true
}

func (r *Reconciler) resolve(ctx context.Context, it models.CartItem) (string, string) {
	if r.resolver == nil {
		r.log.Warn("FISCAL", fmt.Sprintf("No fiscal code for product %s and no catalog configured", it.ProductID))
		return "", ""
	}

	code, pkg, err := r.resolver.FiscalCode(ctx, it.ProductID)
	if err != nil {
		r.log.Warn("FISCAL", fmt.Sprintf("Fiscal code lookup failed for product %s: %v", it.ProductID, err))
		return "", ""
	}

	if r.cache != nil && it.ID != 0 {
		if err := r.cache.SetItemFiscalCode(ctx, it.ID, code, pkg); err != nil {
			r.log.Warn("FISCAL", fmt.Sprintf("Could not store fiscal code of cart item %d: %v", it.ID, err))
		}
	}
	return code, pkg
}

// distribute splits discount across items in proportion to their line
// totals. The last line with a non-zero total absorbs the remainder.
func distribute(discount int64, items []models.CartItem) []int64 {
	shares := make([]int64, len(items))
	if discount <= 0 || len(items) == 0 {
		return shares
	}

	var subtotal int64
	last := -1
	for i, it := range items {
		line := it.UnitPrice * it.Quantity
		subtotal += line
		if line > 0 {
			last = i
		}
	}
	if subtotal == 0 {
		return shares
	}
	if discount > subtotal {
		discount = subtotal
	}

	var assigned int64
	for i, it := range items {
		if i == last {
			shares[i] = discount - assigned
			break
		}
		shares[i] = discount * (it.UnitPrice * it.Quantity) / subtotal
		assigned += shares[i]
	}
	return shares
}

// splitLine prices quantity units so they sum to lineTotal exactly. An uneven
// division becomes two {price, count} parts, the second one minor unit dearer.
func splitLine(lineTotal, quantity int64) [][2]int64 {
	if quantity <= 0 {
		return [][2]int64{{lineTotal, quantity}}
	}
	unit, rem := lineTotal/quantity, lineTotal%quantity
	if rem == 0 {
		return [][2]int64{{unit, quantity}}
	}
	return [][2]int64{{unit, quantity - rem}, {unit + 1, rem}}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
