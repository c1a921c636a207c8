// Package audit provides attribution hooks for documents.
package audit

import (
	"context"

	appctx "motoledger/internal/core/context"
)

// Stampable is implemented by entity.Document.
type Stampable interface {
	Stamp(operator string)
}

// Stamp sets created/updated attribution from the operator in ctx.
// Register it as a before-create and before-update hook.
func Stamp[T Stampable](ctx context.Context, doc T) error {
	doc.Stamp(appctx.Operator(ctx))
	return nil
}
