package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/task-tracker-api/config"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// IdentityModule verifies caller tokens for the other modules.
type IdentityModule struct {
	verifier *Verifier
	logger   types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*IdentityModule)(nil)
var _ mono.ServiceProviderModule = (*IdentityModule)(nil)
var _ mono.HealthCheckableModule = (*IdentityModule)(nil)

// NewModule creates an IdentityModule from the auth configuration.
func NewModule(cfg config.AuthConfig, logger types.Logger) *IdentityModule {
	return &IdentityModule{
		verifier: NewVerifier(VerifierConfig{
			SecretKey: cfg.Secret,
			Issuer:    cfg.Issuer,
			Audience:  cfg.Audience,
		}),
		logger: logger.WithModule("identity"),
	}
}

// Name returns the module name.
func (m *IdentityModule) Name() string {
	return "identity"
}

// Start starts the module.
func (m *IdentityModule) Start(_ context.Context) error {
	if m.verifier.config.SecretKey == "" {
		return errors.New("identity module requires a signing secret")
	}
	m.logger.Info("Identity module started",
		"issuer", m.verifier.config.Issuer,
		"audience", m.verifier.config.Audience)
	return nil
}

// Stop stops the module.
func (m *IdentityModule) Stop(_ context.Context) error {
	m.logger.Info("Identity module stopped")
	return nil
}

// Health reports whether the verifier is configured.
func (m *IdentityModule) Health(_ context.Context) mono.HealthStatus {
	if m.verifier.config.SecretKey == "" {
		return mono.HealthStatus{
			Healthy: false,
			Message: "signing secret not configured",
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
	}
}

// RegisterServices registers the validate-token service.
func (m *IdentityModule) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container,
		ServiceValidateToken,
		json.Unmarshal,
		json.Marshal,
		m.handleValidateToken,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceValidateToken, err)
	}

	m.logger.Info("Registered identity services", "services", []string{ServiceValidateToken})
	return nil
}

func (m *IdentityModule) handleValidateToken(_ context.Context, req ValidateTokenRequest, _ *mono.Msg) (ValidateTokenResponse, error) {
	claims, err := m.verifier.Verify(req.Token)
	if err != nil {
		errMsg := "invalid token"
		if errors.Is(err, ErrExpiredToken) {
			errMsg = "token expired"
		}
		m.logger.Debug("Token rejected", "reason", errMsg)
		return ValidateTokenResponse{
			Valid: false,
			Error: errMsg,
		}, nil
	}

	return ValidateTokenResponse{
		Valid:  true,
		UserID: claims.Subject,
	}, nil
}
