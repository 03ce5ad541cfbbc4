// Package reset owns the password-reset token lifecycle: issuing a
// single-use, time-bounded token per account, redeeming it, and clearing
// stale entries.
package reset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"resetd/internal/interfaces"
	"resetd/internal/models"
)

// DefaultTTL is how long an issued token stays redeemable.
const DefaultTTL = 15 * time.Minute

var (
	// ErrInvalidOrExpired covers unknown accounts, missing entries, wrong
	// tokens and expired tokens alike.
	ErrInvalidOrExpired   = errors.New("invalid or expired token")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// Notifier delivers an issued token out of band.
type Notifier interface {
	Notify(ctx context.Context, notice models.ResetNotice) error
}

type Config struct {
	TTL      time.Duration
	LinkBase string
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithRandom(r io.Reader) Option {
	return func(m *Manager) { m.random = r }
}

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

type Manager struct {
	store    interfaces.AccountStore
	hasher   PasswordHasher
	notifier Notifier
	cfg      Config
	locks    *keyedMutex
	now      func() time.Time
	random   io.Reader
	log      zerolog.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewManager(store interfaces.AccountStore, hasher PasswordHasher, notifier Notifier, cfg Config, opts ...Option) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.LinkBase == "" {
		cfg.LinkBase = "http://localhost:8080/reset"
	}
	m := &Manager{
		store:    store,
		hasher:   hasher,
		notifier: notifier,
		cfg:      cfg,
		locks:    newKeyedMutex(),
		now:      time.Now,
		random:   defaultRandom,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IssueReset creates or replaces the reset entry for identifier and hands the
// token to the notifier. Unknown identifiers are a silent no-op. Only store or
// randomness failures are returned; delivery failures are logged.
func (m *Manager) IssueReset(ctx context.Context, identifier string) error {
	email := models.NormalizeEmail(identifier)
	if email == "" {
		return nil
	}

	notice, err := m.issue(ctx, email)
	if err != nil || notice == nil {
		return err
	}

	if m.notifier != nil {
		if err := m.notifier.Notify(ctx, *notice); err != nil {
			m.log.Error().Err(err).Str("email", email).Msg("reset notice delivery failed")
		}
	}
	return nil
}

func (m *Manager) issue(ctx context.Context, email string) (*models.ResetNotice, error) {
	unlock := m.locks.Lock(email)
	defer unlock()

	account, err := m.store.Get(ctx, email)
	if err != nil {
		if errors.Is(err, interfaces.ErrAccountNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("issue reset: %w", err)
	}

	token, err := newToken(m.random)
	if err != nil {
		return nil, err
	}
	link, err := resetLink(m.cfg.LinkBase, account.Email, token)
	if err != nil {
		return nil, err
	}

	expiresAt := m.now().UTC().Add(m.cfg.TTL)
	account.Reset = &models.ResetEntry{
		TokenHash: HashToken(token),
		ExpiresAt: expiresAt,
	}
	if err := m.store.Put(ctx, account); err != nil {
		return nil, fmt.Errorf("issue reset: %w", err)
	}

	m.log.Debug().Str("email", email).Time("expires_at", expiresAt).Msg("reset issued")
	return &models.ResetNotice{
		Email:     account.Email,
		Token:     token,
		Link:      link,
		ExpiresAt: expiresAt,
	}, nil
}

// RedeemReset sets a new password if token matches the pending entry and the
// entry has not expired. The entry is removed on success and left untouched
// on failure. Every rejection is ErrInvalidOrExpired.
func (m *Manager) RedeemReset(ctx context.Context, identifier, token, newPassword string) error {
	email := models.NormalizeEmail(identifier)
	if email == "" {
		return ErrInvalidOrExpired
	}

	unlock := m.locks.Lock(email)
	defer unlock()

	account, err := m.store.Get(ctx, email)
	if err != nil {
		if errors.Is(err, interfaces.ErrAccountNotFound) {
			return ErrInvalidOrExpired
		}
		return fmt.Errorf("redeem reset: %w", err)
	}
	if account.Reset == nil {
		return ErrInvalidOrExpired
	}

	matches := matchesDigest(token, account.Reset.TokenHash)
	expired := account.Reset.Expired(m.now())
	if !matches || expired {
		return ErrInvalidOrExpired
	}

	hash, err := m.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("redeem reset: %w", err)
	}
	account.PasswordHash = hash
	account.Reset = nil
	if err := m.store.Put(ctx, account); err != nil {
		return fmt.Errorf("redeem reset: %w", err)
	}

	m.log.Info().Str("email", email).Msg("password reset")
	return nil
}

// Authenticate checks password against the stored credential. Unknown
// accounts still pay for one hash comparison.
func (m *Manager) Authenticate(ctx context.Context, identifier, password string) (*models.Account, error) {
	email := models.NormalizeEmail(identifier)

	account, err := m.store.Get(ctx, email)
	if err != nil {
		if errors.Is(err, interfaces.ErrAccountNotFound) {
			_ = m.hasher.Compare(m.dummy(), password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if err := m.hasher.Compare(account.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

// ChangePassword replaces the credential of an authenticated account after
// checking current. Any pending reset entry is dropped with it.
func (m *Manager) ChangePassword(ctx context.Context, identifier, current, newPassword string) error {
	email := models.NormalizeEmail(identifier)

	unlock := m.locks.Lock(email)
	defer unlock()

	account, err := m.store.Get(ctx, email)
	if err != nil {
		if errors.Is(err, interfaces.ErrAccountNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("change password: %w", err)
	}
	if err := m.hasher.Compare(account.PasswordHash, current); err != nil {
		return ErrInvalidCredentials
	}

	hash, err := m.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	account.PasswordHash = hash
	account.Reset = nil
	if err := m.store.Put(ctx, account); err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	return nil
}

type accountCreator interface {
	Create(ctx context.Context, account *models.Account) error
}

// Register creates a new account with a hashed password.
func (m *Manager) Register(ctx context.Context, identifier, password string) (*models.Account, error) {
	email := models.NormalizeEmail(identifier)

	hash, err := m.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	account := &models.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    m.now().UTC(),
	}

	unlock := m.locks.Lock(email)
	defer unlock()

	if c, ok := m.store.(accountCreator); ok {
		if err := c.Create(ctx, account); err != nil {
			return nil, err
		}
		return account, nil
	}

	if _, err := m.store.Get(ctx, email); err == nil {
		return nil, interfaces.ErrAccountExists
	} else if !errors.Is(err, interfaces.ErrAccountNotFound) {
		return nil, fmt.Errorf("register: %w", err)
	}
	if err := m.store.Put(ctx, account); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return account, nil
}

func (m *Manager) dummy() string {
	m.dummyOnce.Do(func() {
		h, err := m.hasher.Hash("resetd-dummy-credential")
		if err == nil {
			m.dummyHash = h
		}
	})
	return m.dummyHash
}
