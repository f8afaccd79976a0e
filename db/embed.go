// Package db provides embedded database schema and migration files.
package db

import _ "embed"

// CheckoutSchema contains the DDL statements for the checkout service tables
// (product catalog, orders, order items).
//
//go:embed migrations/001_checkout.sql
var CheckoutSchema string

// LedgerSchema contains the DDL statements for the ledger service tables
// (balances, payment transaction journal).
//
//go:embed migrations/002_ledger.sql
var LedgerSchema string
