package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"notes-collab/core"

	"golang.org/x/oauth2"
)

// OAuthVerifier accepts opaque OAuth2 access tokens by presenting them to the
// provider's userinfo endpoint (OIDC userinfo or GitHub's /user).
type OAuthVerifier struct {
	userInfoURL string
}

func NewOAuthVerifier(userInfoURL string) *OAuthVerifier {
	return &OAuthVerifier{userInfoURL: userInfoURL}
}

type userInfo struct {
	Sub               string      `json:"sub"`
	ID                json.Number `json:"id"`
	Name              string      `json:"name"`
	PreferredUsername string      `json:"preferred_username"`
	Login             string      `json:"login"`
	Email             string      `json:"email"`
}

func (v *OAuthVerifier) Verify(ctx context.Context, credential string) (core.Identity, error) {
	if credential == "" {
		return core.Identity{}, ErrInvalidCredential
	}

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: credential}))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.userInfoURL, nil)
	if err != nil {
		return core.Identity{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return core.Identity{}, fmt.Errorf("failed to query userinfo: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return core.Identity{}, ErrInvalidCredential
	case resp.StatusCode != http.StatusOK:
		return core.Identity{}, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return core.Identity{}, fmt.Errorf("failed to decode userinfo: %w", err)
	}

	identity := core.Identity{UserID: info.Sub}
	if identity.UserID == "" && info.ID != "" {
		identity.UserID = "github:" + info.ID.String()
	}
	if identity.UserID == "" {
		return core.Identity{}, fmt.Errorf("%w: userinfo carries no subject", ErrInvalidCredential)
	}

	for _, name := range []string{info.Name, info.PreferredUsername, info.Login, info.Email, identity.UserID} {
		if name != "" {
			identity.DisplayName = name
			break
		}
	}
	return identity, nil
}
