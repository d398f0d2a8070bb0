package identity

import (
	"context"
	"errors"
	"notes-collab/core"
	"testing"
	"time"
)

type mockVerifier struct {
	calls    int
	identity core.Identity
	err      error
}

func (m *mockVerifier) Verify(ctx context.Context, credential string) (core.Identity, error) {
	m.calls++
	if m.err != nil {
		return core.Identity{}, m.err
	}
	return m.identity, nil
}

func TestCachingVerifier(t *testing.T) {
	next := &mockVerifier{identity: core.Identity{UserID: "u1", DisplayName: "Alice"}}
	verifier := NewCachingVerifier(next, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := verifier.Verify(ctx, "token")
		if err != nil || got != next.identity {
			t.Fatalf("Verify() = %+v, %v", got, err)
		}
	}
	if next.calls != 1 {
		t.Errorf("expected 1 upstream call, got %d", next.calls)
	}

	verifier.Verify(ctx, "other-token")
	if next.calls != 2 {
		t.Errorf("different credential should miss the cache, calls = %d", next.calls)
	}
}

func TestCachingVerifier_DoesNotCacheFailures(t *testing.T) {
	next := &mockVerifier{err: ErrInvalidCredential}
	verifier := NewCachingVerifier(next, time.Minute)
	ctx := context.Background()

	verifier.Verify(ctx, "token")
	verifier.Verify(ctx, "token")
	if next.calls != 2 {
		t.Errorf("failures must not be cached, calls = %d", next.calls)
	}
}

func TestCachingVerifier_ExpiredTokenIsRejected(t *testing.T) {
	const secret = "test-secret"
	token, err := IssueToken(secret, core.Identity{UserID: "u1", DisplayName: "U"}, time.Second)
	if err != nil {
		t.Fatalf("IssueToken() failed: %v", err)
	}

	verifier := NewCachingVerifier(NewJWTVerifier(secret), time.Minute)
	ctx := context.Background()

	if _, err := verifier.Verify(ctx, token); err != nil {
		t.Fatalf("Verify() before expiry failed: %v", err)
	}

	time.Sleep(2100 * time.Millisecond)

	if _, err := verifier.Verify(ctx, token); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("Verify() after expiry error = %v, want ErrInvalidCredential", err)
	}
}

func TestCachingVerifier_ChainKeepsExpiry(t *testing.T) {
	const secret = "test-secret"
	token, err := IssueToken(secret, core.Identity{UserID: "u1"}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() failed: %v", err)
	}

	reject := &mockVerifier{err: ErrInvalidCredential}
	_, expiresAt, err := Chain{reject, NewJWTVerifier(secret)}.VerifyWithExpiry(context.Background(), token)
	if err != nil {
		t.Fatalf("VerifyWithExpiry() failed: %v", err)
	}
	if remaining := time.Until(expiresAt); remaining <= 0 || remaining > time.Hour {
		t.Errorf("expiry = %v, want within the next hour", expiresAt)
	}
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	reject := &mockVerifier{err: ErrInvalidCredential}
	accept := &mockVerifier{identity: core.Identity{UserID: "u2"}}
	broken := &mockVerifier{err: errors.New("connection refused")}

	got, err := Chain{reject, accept}.Verify(ctx, "token")
	if err != nil || got.UserID != "u2" {
		t.Errorf("Chain{reject, accept} = %+v, %v", got, err)
	}

	if _, err := (Chain{reject, reject}).Verify(ctx, "token"); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("all rejecting error = %v, want ErrInvalidCredential", err)
	}

	accept.calls = 0
	if _, err := (Chain{broken, accept}).Verify(ctx, "token"); err == nil || errors.Is(err, ErrInvalidCredential) {
		t.Errorf("broken verifier error = %v, want upstream failure", err)
	}
	if accept.calls != 0 {
		t.Error("chain continued past a failing verifier")
	}

	if _, err := (Chain{}).Verify(ctx, "token"); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("empty chain error = %v", err)
	}
}
