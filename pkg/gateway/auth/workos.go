package auth

import (
	"context"
	"fmt"

	"github.com/workos/workos-go/v6/pkg/usermanagement"
)

// WorkOS implements Provider on WorkOS AuthKit hosted sign-in.
type WorkOS struct {
	clientID    string
	redirectURI string
}

func NewWorkOS(apiKey, clientID, redirectURI string) *WorkOS {
	usermanagement.SetAPIKey(apiKey)
	return &WorkOS{clientID: clientID, redirectURI: redirectURI}
}

func (w *WorkOS) AuthorizationURL(state string) (string, error) {
	u, err := usermanagement.GetAuthorizationURL(usermanagement.GetAuthorizationURLOpts{
		ClientID:    w.clientID,
		RedirectURI: w.redirectURI,
		Provider:    "authkit",
		State:       state,
	})
	if err != nil {
		return "", fmt.Errorf("workos authorization url: %w", err)
	}
	return u.String(), nil
}

func (w *WorkOS) Exchange(ctx context.Context, code string) (Identity, error) {
	resp, err := usermanagement.AuthenticateWithCode(ctx, usermanagement.AuthenticateWithCodeOpts{
		ClientID: w.clientID,
		Code:     code,
	})
	if err != nil {
		return Identity{}, fmt.Errorf("workos code exchange: %w", err)
	}
	return Identity{UserID: resp.User.ID, Email: resp.User.Email}, nil
}
