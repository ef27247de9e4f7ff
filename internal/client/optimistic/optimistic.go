// Package optimistic applies local state changes ahead of the server and
// reverts them when the server refuses.
package optimistic

import (
	"context"
	"fmt"
)

// Tx is a pending local change and the operation that undoes it.
type Tx struct {
	Apply   func()
	Inverse func()
}

// Run applies tx, then commits. When commit fails the inverse is applied and
// the commit error is returned wrapped.
func Run(ctx context.Context, tx Tx, commit func(context.Context) error) error {
	if tx.Apply != nil {
		tx.Apply()
	}
	if err := commit(ctx); err != nil {
		if tx.Inverse != nil {
			tx.Inverse()
		}
		return fmt.Errorf("rolled back: %w", err)
	}
	return nil
}
