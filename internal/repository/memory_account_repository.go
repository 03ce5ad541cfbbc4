package repository

import (
	"context"
	"sync"
	"time"

	"resetd/internal/interfaces"
	"resetd/internal/models"
)

// MemoryAccountRepository keeps accounts in a map. Records are copied on the
// way in and out so callers never share state with the store.
type MemoryAccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]models.Account
}

func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{accounts: make(map[string]models.Account)}
}

func (r *MemoryAccountRepository) Create(ctx context.Context, account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accounts[account.Email]; exists {
		return interfaces.ErrAccountExists
	}
	r.accounts[account.Email] = cloneAccount(account)
	return nil
}

func (r *MemoryAccountRepository) Get(ctx context.Context, email string) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[email]
	if !ok {
		return nil, interfaces.ErrAccountNotFound
	}
	out := cloneAccount(&a)
	return &out, nil
}

func (r *MemoryAccountRepository) Put(ctx context.Context, account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.accounts[account.Email] = cloneAccount(account)
	return nil
}

func (r *MemoryAccountRepository) PurgeExpiredResets(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for email, a := range r.accounts {
		if a.Reset != nil && a.Reset.Expired(now) {
			a.Reset = nil
			r.accounts[email] = a
			n++
		}
	}
	return n, nil
}

func cloneAccount(a *models.Account) models.Account {
	out := *a
	if a.Reset != nil {
		entry := *a.Reset
		out.Reset = &entry
	}
	return out
}
