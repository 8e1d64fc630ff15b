package identity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// IdentityPort resolves a bearer token to the caller id.
type IdentityPort interface {
	ValidateToken(ctx context.Context, token string) (string, error)
}

// IdentityAdapter implements IdentityPort over the identity module's ServiceContainer.
type IdentityAdapter struct {
	container mono.ServiceContainer
}

// NewIdentityAdapter creates a new IdentityAdapter.
func NewIdentityAdapter(container mono.ServiceContainer) *IdentityAdapter {
	return &IdentityAdapter{
		container: container,
	}
}

// ValidateToken returns the caller id for a valid token. Rejected tokens wrap
// ErrExpiredToken or ErrInvalidToken.
func (a *IdentityAdapter) ValidateToken(ctx context.Context, token string) (string, error) {
	req := ValidateTokenRequest{Token: token}
	var resp ValidateTokenResponse

	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceValidateToken,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return "", fmt.Errorf("validate-token request failed: %w", err)
	}

	if !resp.Valid {
		if resp.Error == "token expired" {
			return "", fmt.Errorf("token validation failed: %w", ErrExpiredToken)
		}
		return "", fmt.Errorf("token validation failed: %w", ErrInvalidToken)
	}

	return resp.UserID, nil
}
