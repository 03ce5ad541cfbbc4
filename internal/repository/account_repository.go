package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"resetd/internal/interfaces"
	"resetd/internal/models"
)

// PostgresAccountRepository stores accounts in the accounts table. The
// pending reset entry lives in two nullable columns on the same row.
type PostgresAccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db}
}

func (r *PostgresAccountRepository) Create(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO accounts (id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, query, account.ID, account.Email, account.PasswordHash, account.CreatedAt).Scan(&account.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return interfaces.ErrAccountExists
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (r *PostgresAccountRepository) Get(ctx context.Context, email string) (*models.Account, error) {
	query := `
		SELECT id, email, password_hash, reset_token_hash, reset_expires_at, created_at
		FROM accounts
		WHERE email = $1
	`

	var a models.Account
	var tokenHash sql.NullString
	var expiresAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, email).Scan(&a.ID, &a.Email, &a.PasswordHash, &tokenHash, &expiresAt, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	if tokenHash.Valid && expiresAt.Valid {
		a.Reset = &models.ResetEntry{TokenHash: tokenHash.String, ExpiresAt: expiresAt.Time.UTC()}
	}
	return &a, nil
}

func (r *PostgresAccountRepository) Put(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO accounts (id, email, password_hash, reset_token_hash, reset_expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO UPDATE
		SET password_hash = EXCLUDED.password_hash,
			reset_token_hash = EXCLUDED.reset_token_hash,
			reset_expires_at = EXCLUDED.reset_expires_at
	`

	var tokenHash sql.NullString
	var expiresAt sql.NullTime
	if account.Reset != nil {
		tokenHash = sql.NullString{String: account.Reset.TokenHash, Valid: true}
		expiresAt = sql.NullTime{Time: account.Reset.ExpiresAt, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query, account.ID, account.Email, account.PasswordHash, tokenHash, expiresAt, account.CreatedAt)
	if err != nil {
		return fmt.Errorf("put account: %w", err)
	}
	return nil
}

func (r *PostgresAccountRepository) PurgeExpiredResets(ctx context.Context, now time.Time) (int, error) {
	query := `
		UPDATE accounts
		SET reset_token_hash = NULL, reset_expires_at = NULL
		WHERE reset_expires_at IS NOT NULL AND reset_expires_at < $1
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("purge expired resets: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
