package passly

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	te := newTestEngine(t, nil)
	te.registerVerified(t, "alice@x.com")

	pair, err := te.Login(context.Background(), "alice@x.com", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := te.Refresh(context.Background(), pair.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	fail := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		if errors.Is(err, ErrInvalidRefreshToken) {
			fail++
			continue
		}
		t.Fatalf("unexpected refresh error: %v", err)
	}

	if success != 1 {
		t.Fatalf("expected exactly one refresh success, got %d", success)
	}
	if fail != n-1 {
		t.Fatalf("expected %d refresh failures, got %d", n-1, fail)
	}
}

func TestConcurrentLoginsLeaveOneActiveToken(t *testing.T) {
	te := newTestEngine(t, nil)
	acct := te.registerVerified(t, "alice@x.com")

	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)

	tokens := make(chan string, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			pair, err := te.Login(context.Background(), "alice@x.com", testPassword)
			if err != nil {
				t.Errorf("login failed: %v", err)
				return
			}
			tokens <- pair.RefreshToken
		}()
	}
	wg.Wait()
	close(tokens)

	active, err := te.refresh.ActiveFor(context.Background(), acct.ID)
	if err != nil {
		t.Fatalf("ActiveFor failed: %v", err)
	}
	if active == nil {
		t.Fatal("expected one active token")
	}

	valid := 0
	for tok := range tokens {
		if _, err := te.refresh.Validate(context.Background(), tok); err == nil {
			valid++
		}
	}
	if valid != 1 {
		t.Fatalf("expected exactly one valid refresh token, got %d", valid)
	}
}
