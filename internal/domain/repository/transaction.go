// File: internal/domain/repository/transaction.go
package repository

import "context"

// Transactor runs fn inside a single store transaction. Repository calls made
// with the ctx passed to fn join that transaction. A nested call reuses the
// outer transaction. If fn returns an error the transaction is rolled back.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
