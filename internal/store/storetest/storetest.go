// Package storetest opens in-memory SQLite databases with the service schema
// for tests in other packages.
package storetest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-payments/internal/models"
	"ms-payments/internal/store"
)

// NewDB returns a store over a fresh in-memory database. A single connection
// keeps every query on the same database; concurrent transactions queue on it.
func NewDB(t testing.TB) *store.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	require.NoError(t, store.CreateSchema(context.Background(), bunDB))
	return store.New(bunDB)
}

// SeedCart inserts a cart whose items are (unit price, quantity) pairs.
func SeedCart(t testing.TB, db *store.DB, id string, shipping int64, lines ...[2]int64) *models.Cart {
	t.Helper()

	c := &models.Cart{ID: id, ShippingTitle: "Delivery", ShippingAmount: shipping, CreatedAt: time.Now().UTC()}
	for i, l := range lines {
		c.Items = append(c.Items, models.CartItem{
			ProductID:  "p-" + string(rune('a'+i)),
			Title:      "Item " + string(rune('A'+i)),
			UnitPrice:  l[0],
			Quantity:   l[1],
			TaxRate:    12,
			FiscalCode: "0000000000" + string(rune('0'+i%10)),
		})
	}
	require.NoError(t, db.InsertCart(context.Background(), c))
	return c
}
