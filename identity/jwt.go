package identity

import (
	"context"
	"errors"
	"fmt"
	"notes-collab/core"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCredential means the credential was checked and rejected, as
// opposed to the check itself failing.
var ErrInvalidCredential = errors.New("invalid credential")

// Claims are the JWT claims accepted on collaboration channels. The user id
// is taken from "id" when present, otherwise from "sub".
type Claims struct {
	jwt.RegisteredClaims
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Login string `json:"login,omitempty"`
}

func (c *Claims) identity() core.Identity {
	userID := c.ID
	if userID == "" {
		userID = c.Subject
	}
	name := c.Name
	if name == "" {
		name = c.Login
	}
	if name == "" {
		name = userID
	}
	return core.Identity{UserID: userID, DisplayName: name}
}

type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(ctx context.Context, credential string) (core.Identity, error) {
	identity, _, err := v.VerifyWithExpiry(ctx, credential)
	return identity, err
}

// VerifyWithExpiry also returns the token's exp claim, or the zero time when
// the token has none.
func (v *JWTVerifier) VerifyWithExpiry(ctx context.Context, credential string) (core.Identity, time.Time, error) {
	if credential == "" || len(v.secret) == 0 {
		return core.Identity{}, time.Time{}, ErrInvalidCredential
	}

	token, err := jwt.ParseWithClaims(credential, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return core.Identity{}, time.Time{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return core.Identity{}, time.Time{}, ErrInvalidCredential
	}

	identity := claims.identity()
	if identity.UserID == "" {
		return core.Identity{}, time.Time{}, fmt.Errorf("%w: token carries no user id", ErrInvalidCredential)
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return identity, expiresAt, nil
}

// IssueToken signs an HS256 token for identity, valid for ttl.
func IssueToken(secret string, identity core.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Name: identity.DisplayName,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
