package reset

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"resetd/internal/interfaces"
	"resetd/internal/models"
	"resetd/internal/repository"
	"resetd/internal/security"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []models.ResetNotice
	err     error
}

func (n *recordingNotifier) Notify(ctx context.Context, notice models.ResetNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return n.err
}

func (n *recordingNotifier) last(t *testing.T) models.ResetNotice {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.notices, "expected a delivered notice")
	return n.notices[len(n.notices)-1]
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notices)
}

type failingStore struct {
	getErr error
	putErr error
	acct   *models.Account
}

func (s *failingStore) Get(ctx context.Context, email string) (*models.Account, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.acct == nil {
		return nil, interfaces.ErrAccountNotFound
	}
	a := *s.acct
	return &a, nil
}

func (s *failingStore) Put(ctx context.Context, account *models.Account) error {
	if s.putErr != nil {
		return s.putErr
	}
	a := *account
	s.acct = &a
	return nil
}

const (
	demoEmail    = "user@example.com"
	demoPassword = "SuperSecret123!"
)

type fixture struct {
	store    *repository.MemoryAccountRepository
	notifier *recordingNotifier
	clock    *fakeClock
	manager  *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:    repository.NewMemoryAccountRepository(),
		notifier: &recordingNotifier{},
		clock:    &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
	}
	f.manager = NewManager(
		f.store,
		security.NewBcryptHasher(bcrypt.MinCost),
		f.notifier,
		Config{LinkBase: "http://localhost:3000/reset"},
		WithClock(f.clock.Now),
	)
	_, err := f.manager.Register(context.Background(), demoEmail, demoPassword)
	require.NoError(t, err)
	return f
}

func TestIssueResetUnknownAccountIsSilent(t *testing.T) {
	f := newFixture(t)

	err := f.manager.IssueReset(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Equal(t, 0, f.notifier.count())

	_, err = f.store.Get(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, interfaces.ErrAccountNotFound)
}

func TestIssueResetStoresDigestAndDeliversLink(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.manager.IssueReset(context.Background(), demoEmail))
	notice := f.notifier.last(t)

	assert.Len(t, notice.Token, 64)
	assert.Equal(t, demoEmail, notice.Email)
	assert.Equal(t, f.clock.Now().Add(DefaultTTL), notice.ExpiresAt)
	assert.True(t, strings.HasPrefix(notice.Link, "http://localhost:3000/reset?"))
	assert.Contains(t, notice.Link, "token="+notice.Token)
	assert.Contains(t, notice.Link, "email=user%40example.com")

	acct, err := f.store.Get(context.Background(), demoEmail)
	require.NoError(t, err)
	require.NotNil(t, acct.Reset)
	assert.NotEqual(t, notice.Token, acct.Reset.TokenHash)
	assert.Equal(t, HashToken(notice.Token), acct.Reset.TokenHash)
}

func TestIssueResetNormalizesIdentifier(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.manager.IssueReset(context.Background(), "  USER@Example.com "))
	notice := f.notifier.last(t)

	require.NoError(t, f.manager.RedeemReset(context.Background(), "User@example.com", notice.Token, "NewPass1!"))
}

func TestRedeemResetScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.manager.IssueReset(ctx, demoEmail))
	token := f.notifier.last(t).Token

	f.clock.Advance(time.Minute)
	require.NoError(t, f.manager.RedeemReset(ctx, demoEmail, token, "NewPass1!"))

	_, err := f.manager.Authenticate(ctx, demoEmail, "NewPass1!")
	assert.NoError(t, err)
	_, err = f.manager.Authenticate(ctx, demoEmail, demoPassword)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	acct, err := f.store.Get(ctx, demoEmail)
	require.NoError(t, err)
	assert.Nil(t, acct.Reset)
}

func TestRedeemResetIsSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.manager.IssueReset(ctx, demoEmail))
	token := f.notifier.last(t).Token

	require.NoError(t, f.manager.RedeemReset(ctx, demoEmail, token, "NewPass1!"))
	err := f.manager.RedeemReset(ctx, demoEmail, token, "OtherPass1!")
	assert.ErrorIs(t, err, ErrInvalidOrExpired)

	_, err = f.manager.Authenticate(ctx, demoEmail, "NewPass1!")
	assert.NoError(t, err)
}

func TestRedeemResetExpiry(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		wantErr error
	}{
		{name: "at expiry", elapsed: DefaultTTL, wantErr: nil},
		{name: "one second late", elapsed: DefaultTTL + time.Second, wantErr: ErrInvalidOrExpired},
		{name: "long after", elapsed: 2 * time.Hour, wantErr: ErrInvalidOrExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			require.NoError(t, f.manager.IssueReset(ctx, demoEmail))
			token := f.notifier.last(t).Token

			f.clock.Advance(tt.elapsed)
			err := f.manager.RedeemReset(ctx, demoEmail, token, "NewPass1!")
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)

			_, err = f.manager.Authenticate(ctx, demoEmail, demoPassword)
			assert.NoError(t, err, "old password must still work after a rejected redeem")
		})
	}
}

func TestRedeemResetRejectsMismatchedTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.manager.IssueReset(ctx, demoEmail))
	token := f.notifier.last(t).Token

	flipped := []byte(token)
	if flipped[10] == 'a' {
		flipped[10] = 'b'
	} else {
		flipped[10] = 'a'
	}

	candidates := map[string]string{
		"empty":         "",
		"shorter":       token[:len(token)-1],
		"longer":        token + "0",
		"same length":   string(flipped),
		"upper case":    strings.ToUpper(token),
		"stored digest": HashToken(token),
	}
	for name, candidate := range candidates {
		t.Run(name, func(t *testing.T) {
			err := f.manager.RedeemReset(ctx, demoEmail, candidate, "NewPass1!")
			assert.ErrorIs(t, err, ErrInvalidOrExpired)
		})
	}

	// failed attempts leave the entry in place
	require.NoError(t, f.manager.RedeemReset(ctx, demoEmail, token, "NewPass1!"))
}

func TestReissueInvalidatesPreviousToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.manager.IssueReset(ctx, demoEmail))
	first := f.notifier.last(t).Token
	require.NoError(t, f.manager.IssueReset(ctx, demoEmail))
	second := f.notifier.last(t).Token
	require.NotEqual(t, first, second)

	assert.ErrorIs(t, f.manager.RedeemReset(ctx, demoEmail, first, "NewPass1!"), ErrInvalidOrExpired)
	assert.NoError(t, f.manager.RedeemReset(ctx, demoEmail, second, "NewPass1!"))
}

func TestReissueExtendsExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.manager.IssueReset(ctx, demoEmail))
	f.clock.Advance(10 * time.Minute)
	require.NoError(t, f.manager.IssueReset(ctx, demoEmail))
	token := f.notifier.last(t).Token

	f.clock.Advance(10 * time.Minute)
	assert.NoError(t, f.manager.RedeemReset(ctx, demoEmail, token, "NewPass1!"))
}

func TestRedeemResetWithoutPendingEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.manager.RedeemReset(ctx, demoEmail, "anything", "NewPass1!"), ErrInvalidOrExpired)
	assert.ErrorIs(t, f.manager.RedeemReset(ctx, "nobody@example.com", "anything", "NewPass1!"), ErrInvalidOrExpired)
	assert.ErrorIs(t, f.manager.RedeemReset(ctx, "", "anything", "NewPass1!"), ErrInvalidOrExpired)
}

func TestIssueResetDeliveryFailureIsNotSurfaced(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("smtp down")

	require.NoError(t, f.manager.IssueReset(context.Background(), demoEmail))
	assert.Equal(t, 1, f.notifier.count())
}

func TestIssueResetStoreFailures(t *testing.T) {
	boom := errors.New("connection refused")
	hasher := security.NewBcryptHasher(bcrypt.MinCost)

	m := NewManager(&failingStore{getErr: boom}, hasher, nil, Config{})
	assert.ErrorIs(t, m.IssueReset(context.Background(), demoEmail), boom)

	store := &failingStore{acct: &models.Account{Email: demoEmail}, putErr: boom}
	notifier := &recordingNotifier{}
	m = NewManager(store, hasher, notifier, Config{})
	assert.ErrorIs(t, m.IssueReset(context.Background(), demoEmail), boom)
	assert.Equal(t, 0, notifier.count(), "nothing is delivered when the entry was not stored")
}

func TestIssueResetRandomFailure(t *testing.T) {
	store := &failingStore{acct: &models.Account{Email: demoEmail}}
	m := NewManager(store, security.NewBcryptHasher(bcrypt.MinCost), nil, Config{}, WithRandom(bytes.NewReader(nil)))

	err := m.IssueReset(context.Background(), demoEmail)
	require.Error(t, err)
	assert.Nil(t, store.acct.Reset)
}

func TestRedeemResetConcurrentOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.manager.IssueReset(ctx, demoEmail))
	token := f.notifier.last(t).Token

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- f.manager.RedeemReset(ctx, demoEmail, token, "NewPass1!")
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrInvalidOrExpired)
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 0, f.manager.locks.size())
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Register(ctx, "USER@example.com", "whatever1")
	assert.ErrorIs(t, err, interfaces.ErrAccountExists)

	acct, err := f.manager.Register(ctx, "new@example.com", "Password1")
	require.NoError(t, err)
	assert.NotEmpty(t, acct.ID)
	assert.NotEqual(t, "Password1", acct.PasswordHash)
}

func TestRegisterWithoutCreator(t *testing.T) {
	store := &failingStore{}
	m := NewManager(store, security.NewBcryptHasher(bcrypt.MinCost), nil, Config{})

	_, err := m.Register(context.Background(), demoEmail, demoPassword)
	require.NoError(t, err)
	_, err = m.Register(context.Background(), demoEmail, demoPassword)
	assert.ErrorIs(t, err, interfaces.ErrAccountExists)
}

func TestAuthenticateUnknownAccount(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Authenticate(context.Background(), "nobody@example.com", demoPassword)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestChangePasswordDropsPendingReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.manager.IssueReset(ctx, demoEmail))
	token := f.notifier.last(t).Token

	err := f.manager.ChangePassword(ctx, demoEmail, "wrong-password", "Changed123!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, f.manager.ChangePassword(ctx, demoEmail, demoPassword, "Changed123!"))
	_, err = f.manager.Authenticate(ctx, demoEmail, "Changed123!")
	assert.NoError(t, err)

	err = f.manager.RedeemReset(ctx, demoEmail, token, "NewPass1!")
	assert.ErrorIs(t, err, ErrInvalidOrExpired)
}

func TestRedeemResetTooLongPasswordKeepsEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.manager.IssueReset(ctx, demoEmail))
	token := f.notifier.last(t).Token

	err := f.manager.RedeemReset(ctx, demoEmail, token, strings.Repeat("a", security.MaxPasswordBytes+1))
	assert.ErrorIs(t, err, security.ErrPasswordTooLong)

	require.NoError(t, f.manager.RedeemReset(ctx, demoEmail, token, "NewPass1!"))
}
