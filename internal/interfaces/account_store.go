package interfaces

import (
	"context"
	"errors"
	"time"

	"resetd/internal/models"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
)

// AccountStore holds account records keyed by normalized email.
// Get returns ErrAccountNotFound for unknown identifiers. Put replaces the
// whole record, including its reset entry (nil clears it).
type AccountStore interface {
	Get(ctx context.Context, email string) (*models.Account, error)
	Put(ctx context.Context, account *models.Account) error
}

// AccountRepository is an AccountStore that can also register accounts.
type AccountRepository interface {
	AccountStore
	Create(ctx context.Context, account *models.Account) error
}

// ExpiredResetPurger is implemented by stores that can drop stale reset
// entries in bulk. It returns the number of entries cleared.
type ExpiredResetPurger interface {
	PurgeExpiredResets(ctx context.Context, now time.Time) (int, error)
}
