package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"resetd/internal/interfaces"
	"resetd/internal/models"
)

const defaultRedisPrefix = "resetd:account:"

// errUndecodable marks a stored value that is not an account record.
var errUndecodable = errors.New("undecodable account record")

// accountRecord is the JSON document stored under each account key.
type accountRecord struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"password_hash"`
	CreatedAt      time.Time  `json:"created_at"`
	ResetTokenHash string     `json:"reset_token_hash,omitempty"`
	ResetExpiresAt *time.Time `json:"reset_expires_at,omitempty"`
}

func toRecord(a *models.Account) accountRecord {
	rec := accountRecord{
		ID:           a.ID,
		Email:        a.Email,
		PasswordHash: a.PasswordHash,
		CreatedAt:    a.CreatedAt,
	}
	if a.Reset != nil {
		exp := a.Reset.ExpiresAt
		rec.ResetTokenHash = a.Reset.TokenHash
		rec.ResetExpiresAt = &exp
	}
	return rec
}

func (rec accountRecord) account() *models.Account {
	a := &models.Account{
		ID:           rec.ID,
		Email:        rec.Email,
		PasswordHash: rec.PasswordHash,
		CreatedAt:    rec.CreatedAt,
	}
	if rec.ResetTokenHash != "" && rec.ResetExpiresAt != nil {
		a.Reset = &models.ResetEntry{TokenHash: rec.ResetTokenHash, ExpiresAt: rec.ResetExpiresAt.UTC()}
	}
	return a
}

// RedisAccountRepository stores one JSON document per account.
type RedisAccountRepository struct {
	rdb    goredis.UniversalClient
	prefix string
	log    zerolog.Logger
}

func NewRedisAccountRepository(rdb goredis.UniversalClient, prefix string, log zerolog.Logger) *RedisAccountRepository {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisAccountRepository{rdb: rdb, prefix: prefix, log: log}
}

func (r *RedisAccountRepository) key(email string) string {
	return r.prefix + email
}

func (r *RedisAccountRepository) Create(ctx context.Context, account *models.Account) error {
	body, err := json.Marshal(toRecord(account))
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	ok, err := r.rdb.SetNX(ctx, r.key(account.Email), body, 0).Result()
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	if !ok {
		return interfaces.ErrAccountExists
	}
	return nil
}

func (r *RedisAccountRepository) Get(ctx context.Context, email string) (*models.Account, error) {
	data, err := r.rdb.Get(ctx, r.key(email)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, interfaces.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	var rec accountRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	return rec.account(), nil
}

func (r *RedisAccountRepository) Put(ctx context.Context, account *models.Account) error {
	body, err := json.Marshal(toRecord(account))
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	if err := r.rdb.Set(ctx, r.key(account.Email), body, 0).Err(); err != nil {
		return fmt.Errorf("put account: %w", err)
	}
	return nil
}

// PurgeExpiredResets scans all account keys and clears expired reset entries.
// Each rewrite is guarded by WATCH so a concurrent Put wins over the purge.
// Keys holding something other than an account record are logged and skipped.
func (r *RedisAccountRepository) PurgeExpiredResets(ctx context.Context, now time.Time) (int, error) {
	var cursor uint64
	purged := 0
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, r.prefix+"*", 100).Result()
		if err != nil {
			return purged, fmt.Errorf("scan accounts: %w", err)
		}
		for _, key := range keys {
			cleared, err := r.purgeKey(ctx, key, now)
			if errors.Is(err, errUndecodable) {
				r.log.Warn().Err(err).Str("key", key).Msg("skipping account record during reset purge")
				continue
			}
			if err != nil {
				return purged, err
			}
			if cleared {
				purged++
			}
		}
		cursor = next
		if cursor == 0 {
			return purged, nil
		}
	}
}

func (r *RedisAccountRepository) purgeKey(ctx context.Context, key string, now time.Time) (bool, error) {
	cleared := false
	err := r.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			return err
		}
		var rec accountRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("%w: %v", errUndecodable, err)
		}
		if rec.ResetExpiresAt == nil || !now.After(*rec.ResetExpiresAt) {
			return nil
		}
		rec.ResetTokenHash = ""
		rec.ResetExpiresAt = nil
		body, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, body, 0)
			return nil
		})
		if err == nil {
			cleared = true
		}
		return err
	}, key)

	switch {
	case err == nil:
		return cleared, nil
	case errors.Is(err, goredis.Nil), errors.Is(err, goredis.TxFailedErr):
		// key vanished or changed underneath us; leave it for the next run
		return false, nil
	default:
		return false, fmt.Errorf("purge %s: %w", key, err)
	}
}
