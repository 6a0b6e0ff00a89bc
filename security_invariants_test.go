package passly

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/passly/account"
	"github.com/MrEthical07/passly/otp"
)

// storedValues returns every value and member held in redis.
func (te *testEngine) storedValues(t *testing.T) []string {
	t.Helper()
	ctx := context.Background()

	keys, err := te.redis.Keys(ctx, "*").Result()
	if err != nil {
		t.Fatalf("keys: %v", err)
	}

	var out []string
	for _, key := range keys {
		out = append(out, key)
		switch te.redis.Type(ctx, key).Val() {
		case "string":
			out = append(out, te.redis.Get(ctx, key).Val())
		case "hash":
			for _, v := range te.redis.HGetAll(ctx, key).Val() {
				out = append(out, v)
			}
		case "zset":
			out = append(out, te.redis.ZRange(ctx, key, 0, -1).Val()...)
		case "set":
			out = append(out, te.redis.SMembers(ctx, key).Val()...)
		}
	}
	return out
}

func TestSecurityInvariantSecretsNeverStored(t *testing.T) {
	te := newTestEngine(t, nil)
	te.registerVerified(t, "alice@x.com")

	pair, err := te.Login(context.Background(), "alice@x.com", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	for _, v := range te.storedValues(t) {
		if strings.Contains(v, pair.RefreshToken) {
			t.Fatal("refresh token stored in plaintext")
		}
		if strings.Contains(v, testPassword) {
			t.Fatal("password stored in plaintext")
		}
	}
}

func TestSecurityInvariantCodesExpire(t *testing.T) {
	te := newTestEngine(t, nil)

	acct, err := te.Register(context.Background(), "alice@x.com", testPassword)
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	code := te.box.lastCode(t, otp.PurposeEmailVerification)

	te.clock.Advance(5 * time.Minute)
	if err := te.VerifyEmail(context.Background(), acct.ID, code); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected expired code to fail, got %v", err)
	}
}

func TestSecurityInvariantCodesAreScopedByPurpose(t *testing.T) {
	te := newTestEngine(t, nil)

	if _, err := te.Register(context.Background(), "alice@x.com", testPassword); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	code := te.box.lastCode(t, otp.PurposeEmailVerification)

	err := te.ResetPassword(context.Background(), "alice@x.com", code, "new-password-42")
	if !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected verification code to be refused for reset, got %v", err)
	}
}

func TestSecurityInvariantOnlyNewestCodeVerifies(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	te.registerVerified(t, "alice@x.com")

	if err := te.RequestPasswordReset(ctx, "alice@x.com"); err != nil {
		t.Fatalf("first reset request failed: %v", err)
	}
	first := te.box.lastCode(t, otp.PurposePasswordReset)

	te.clock.Advance(time.Second)
	if err := te.RequestPasswordReset(ctx, "alice@x.com"); err != nil {
		t.Fatalf("second reset request failed: %v", err)
	}
	second := te.box.lastCode(t, otp.PurposePasswordReset)
	if first == second {
		t.Skip("both requests drew the same code")
	}

	if err := te.ResetPassword(ctx, "alice@x.com", first, "new-password-42"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected superseded code to fail, got %v", err)
	}
	if err := te.ResetPassword(ctx, "alice@x.com", second, "new-password-42"); err != nil {
		t.Fatalf("expected newest code to work, got %v", err)
	}
}

// staleReads serves GetByEmail from a snapshot, the way a request that
// loaded the account before a concurrent write sees it.
type staleReads struct {
	account.Repository
	mu       sync.Mutex
	snapshot *account.Account
}

func (s *staleReads) GetByEmail(ctx context.Context, email string) (*account.Account, error) {
	s.mu.Lock()
	snap := s.snapshot
	s.mu.Unlock()
	if snap != nil && snap.Email == email {
		cp := *snap
		return &cp, nil
	}
	return s.Repository.GetByEmail(ctx, email)
}

func (s *staleReads) freeze(t *testing.T, email string) {
	t.Helper()
	acct, err := s.Repository.GetByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("GetByEmail error: %v", err)
	}
	s.mu.Lock()
	s.snapshot = acct
	s.mu.Unlock()
}

func (s *staleReads) thaw() {
	s.mu.Lock()
	s.snapshot = nil
	s.mu.Unlock()
}

func TestSecurityInvariantFailedLoginKeepsNewerPassword(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	te.registerVerified(t, "alice@x.com")

	stale := &staleReads{Repository: te.accounts}
	te.accounts = stale

	if err := te.RequestPasswordReset(ctx, "alice@x.com"); err != nil {
		t.Fatalf("RequestPasswordReset error: %v", err)
	}
	code := te.box.lastCode(t, otp.PurposePasswordReset)

	// A failed login loaded the account, then the reset committed.
	stale.freeze(t, "alice@x.com")
	const newPassword = "new-password-42"
	if err := te.ResetPassword(ctx, "alice@x.com", code, newPassword); err != nil {
		t.Fatalf("ResetPassword error: %v", err)
	}
	if _, err := te.Login(ctx, "alice@x.com", "not-the-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	stale.thaw()

	if _, err := te.Login(ctx, "alice@x.com", testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must stay replaced, got %v", err)
	}
	if _, err := te.Login(ctx, "alice@x.com", newPassword); err != nil {
		t.Fatalf("new password must work: %v", err)
	}

	stored, err := te.accounts.GetByEmail(ctx, "alice@x.com")
	if err != nil {
		t.Fatalf("GetByEmail error: %v", err)
	}
	if !stored.EmailVerified {
		t.Fatal("verified flag lost")
	}
	if stored.AccessFailedCount != 0 {
		t.Fatalf("AccessFailedCount = %d, want 0 after login", stored.AccessFailedCount)
	}
}

func TestSecurityInvariantHashUpgradeYieldsToReset(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	te.registerVerified(t, "alice@x.com")

	if err := te.RequestPasswordReset(ctx, "alice@x.com"); err != nil {
		t.Fatalf("RequestPasswordReset error: %v", err)
	}
	code := te.box.lastCode(t, otp.PurposePasswordReset)

	// A login verified the old password, then the reset committed before
	// the login rehashed it.
	loaded, err := te.accounts.GetByEmail(ctx, "alice@x.com")
	if err != nil {
		t.Fatalf("GetByEmail error: %v", err)
	}
	const newPassword = "new-password-42"
	if err := te.ResetPassword(ctx, "alice@x.com", code, newPassword); err != nil {
		t.Fatalf("ResetPassword error: %v", err)
	}

	if err := te.upgradePassword(ctx, loaded, testPassword, te.now()); err != nil {
		t.Fatalf("upgradePassword error: %v", err)
	}
	if _, err := te.Login(ctx, "alice@x.com", testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("upgrade must not restore the old password, got %v", err)
	}
	if _, err := te.Login(ctx, "alice@x.com", newPassword); err != nil {
		t.Fatalf("new password must work: %v", err)
	}
}

func TestSecurityInvariantResetWrongCodeCostsAHash(t *testing.T) {
	te := newTestEngine(t, func(cfg *Config) { cfg.Metrics.EnableLatencyHistograms = true })
	ctx := context.Background()
	te.registerVerified(t, "alice@x.com")

	if err := te.RequestPasswordReset(ctx, "alice@x.com"); err != nil {
		t.Fatalf("RequestPasswordReset error: %v", err)
	}
	code := te.box.lastCode(t, otp.PurposePasswordReset)

	hashes := func() uint64 {
		var total uint64
		for _, n := range te.MetricsSnapshot().Histograms[MetricPasswordHashLatency] {
			total += n
		}
		return total
	}

	before := hashes()
	if err := te.ResetPassword(ctx, "alice@x.com", wrongCode(code), "new-password-42"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
	known := hashes() - before

	before = hashes()
	if err := te.ResetPassword(ctx, "nobody@x.com", code, "new-password-42"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
	unknown := hashes() - before

	if known != 1 || unknown != 1 {
		t.Fatalf("hash runs: wrong code %d, unknown email %d; want 1 each", known, unknown)
	}
}
