package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction.
// Mutating repo methods require Tx to be set; reads fall back to the
// repo's base handle when it is nil.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}
