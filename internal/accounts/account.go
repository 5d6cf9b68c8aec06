// Package accounts resolves the property-management accounts the service
// acts for.
package accounts

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned for an unknown account id.
var ErrNotFound = errors.New("account not found")

// Account is one managed property-management account.
type Account struct {
	ID       int64
	ClientID string
	// SecretName names the client secret in the secret source.
	SecretName string
	// GuidelinePct overrides the configured guideline when non-nil.
	GuidelinePct   *decimal.Decimal
	AssigneeUserID int64
}

// Store looks accounts up by id.
type Store interface {
	Account(ctx context.Context, id int64) (Account, error)
}
