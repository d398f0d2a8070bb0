package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"notes-collab/core"
	"time"

	"github.com/patrickmn/go-cache"
)

// ExpiringVerifier is implemented by verifiers that know when a credential
// stops being valid. A zero time means no known expiry.
type ExpiringVerifier interface {
	VerifyWithExpiry(ctx context.Context, credential string) (core.Identity, time.Time, error)
}

func verifyWithExpiry(ctx context.Context, v core.IdentityVerifier, credential string) (core.Identity, time.Time, error) {
	if ev, ok := v.(ExpiringVerifier); ok {
		return ev.VerifyWithExpiry(ctx, credential)
	}
	identity, err := v.Verify(ctx, credential)
	return identity, time.Time{}, err
}

// CachingVerifier remembers successful verifications for a short TTL so
// reconnect storms do not hammer the upstream verifier. An entry never
// outlives the credential it was verified from. Rejections are never cached.
type CachingVerifier struct {
	next  core.IdentityVerifier
	ttl   time.Duration
	cache *cache.Cache
}

func NewCachingVerifier(next core.IdentityVerifier, ttl time.Duration) *CachingVerifier {
	return &CachingVerifier{
		next:  next,
		ttl:   ttl,
		cache: cache.New(ttl, 2*ttl),
	}
}

func cacheKey(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

func (v *CachingVerifier) Verify(ctx context.Context, credential string) (core.Identity, error) {
	key := cacheKey(credential)
	if x, found := v.cache.Get(key); found {
		return x.(core.Identity), nil
	}

	identity, expiresAt, err := verifyWithExpiry(ctx, v.next, credential)
	if err != nil {
		return core.Identity{}, err
	}

	ttl := v.ttl
	if !expiresAt.IsZero() {
		if remaining := time.Until(expiresAt); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl > 0 {
		v.cache.Set(key, identity, ttl)
	}
	return identity, nil
}

// Chain tries each verifier in order. A verifier that rejects the credential
// hands over to the next one; any other failure stops the chain.
type Chain []core.IdentityVerifier

func (c Chain) Verify(ctx context.Context, credential string) (core.Identity, error) {
	identity, _, err := c.VerifyWithExpiry(ctx, credential)
	return identity, err
}

func (c Chain) VerifyWithExpiry(ctx context.Context, credential string) (core.Identity, time.Time, error) {
	for _, v := range c {
		identity, expiresAt, err := verifyWithExpiry(ctx, v, credential)
		if err == nil {
			return identity, expiresAt, nil
		}
		if !errors.Is(err, ErrInvalidCredential) {
			return core.Identity{}, time.Time{}, err
		}
	}
	return core.Identity{}, time.Time{}, ErrInvalidCredential
}
