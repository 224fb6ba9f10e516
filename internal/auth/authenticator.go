package auth

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/pathxpert/server/internal/models"
	apperrors "github.com/pathxpert/server/pkg/errors"
	"github.com/pathxpert/server/pkg/logger"
	"github.com/pathxpert/server/pkg/metrics"
)

// AuthMode names the verification strategy that accepted a token.
type AuthMode string

const (
	ModeExternal AuthMode = "external"
	ModeLocal    AuthMode = "local"
)

// Verification is the outcome of a successful token check. Exactly one mode
// applies; the identity fields present depend on it.
type Verification struct {
	Mode AuthMode

	// Subject is the external identity id when Mode is external.
	Subject string
	Email   string
	Name    string
	Picture string

	// Claims carries the decoded local claims when Mode is local.
	Claims *Claims
}

// TokenVerifier validates a raw bearer token under one strategy.
type TokenVerifier interface {
	Name() string
	Verify(ctx context.Context, rawToken string) (*Verification, error)
}

// LocalVerifier accepts tokens signed by this service's own JWT secret.
type LocalVerifier struct {
	jwt *JWTService
}

// NewLocalVerifier wraps the JWT service as a TokenVerifier.
func NewLocalVerifier(jwtService *JWTService) *LocalVerifier {
	return &LocalVerifier{jwt: jwtService}
}

func (v *LocalVerifier) Name() string { return string(ModeLocal) }

func (v *LocalVerifier) Verify(_ context.Context, rawToken string) (*Verification, error) {
	claims, err := v.jwt.ValidateAccessToken(rawToken)
	if err != nil {
		return nil, err
	}
	return &Verification{Mode: ModeLocal, Claims: claims}, nil
}

// AccountResolver loads and provisions the durable identities behind verified
// tokens. Implemented by the user service; kept as an interface here to avoid
// a dependency from auth onto storage.
type AccountResolver interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.User, error)
	ProvisionExternal(ctx context.Context, subject, email, name, picture string) (*models.User, error)
}

// Authenticator runs an ordered list of token verifiers and resolves the
// matching account. External verification wins when both could apply; the
// local signer only sees tokens the external verifier rejected.
type Authenticator struct {
	verifiers []TokenVerifier
	accounts  AccountResolver
	log       *zap.Logger
}

// NewAuthenticator builds an authenticator over the given strategies, tried in order.
func NewAuthenticator(accounts AccountResolver, verifiers ...TokenVerifier) *Authenticator {
	return &Authenticator{
		verifiers: verifiers,
		accounts:  accounts,
		log:       logger.WithModule("auth"),
	}
}

// Authenticate validates the raw token and returns the account it belongs to.
// External identities unseen before are provisioned on the spot. Failures map
// to the unauthorized taxonomy: missing token, invalid token, or the distinct
// expired-token message when the local signer recognised the token but its
// window has passed.
func (a *Authenticator) Authenticate(ctx context.Context, rawToken string) (*models.User, *Verification, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, nil, apperrors.ErrUnauthorized
	}

	var expired bool
	for _, verifier := range a.verifiers {
		verification, err := verifier.Verify(ctx, rawToken)
		if err != nil {
			if errors.Is(err, ErrTokenExpired) {
				expired = true
			}
			a.log.Debug("token rejected",
				zap.String("verifier", verifier.Name()),
				zap.Error(err))
			continue
		}

		user, err := a.resolve(ctx, verification)
		if err != nil {
			metrics.AuthAttempts.WithLabelValues(string(verification.Mode), "failure").Inc()
			return nil, nil, err
		}
		if !user.IsActive {
			metrics.AuthAttempts.WithLabelValues(string(verification.Mode), "failure").Inc()
			return nil, nil, apperrors.ErrForbidden.WithMessage("Account is deactivated")
		}

		metrics.AuthAttempts.WithLabelValues(string(verification.Mode), "success").Inc()
		return user, verification, nil
	}

	metrics.AuthAttempts.WithLabelValues("none", "failure").Inc()
	if expired {
		return nil, nil, apperrors.ErrTokenExpired
	}
	return nil, nil, apperrors.ErrInvalidToken
}

func (a *Authenticator) resolve(ctx context.Context, verification *Verification) (*models.User, error) {
	switch verification.Mode {
	case ModeExternal:
		user, err := a.accounts.FindByExternalID(ctx, verification.Subject)
		if err != nil {
			return nil, apperrors.Wrap(err, "Failed to resolve account")
		}
		if user != nil {
			return user, nil
		}

		user, err = a.accounts.ProvisionExternal(ctx,
			verification.Subject, verification.Email, verification.Name, verification.Picture)
		if err != nil {
			return nil, apperrors.Wrap(err, "Failed to provision account")
		}
		a.log.Info("provisioned external account", zap.String("user_id", user.ID))
		return user, nil
	case ModeLocal:
		user, err := a.accounts.FindByID(ctx, verification.Claims.UserID)
		if err != nil {
			return nil, apperrors.Wrap(err, "Failed to resolve account")
		}
		if user == nil {
			return nil, apperrors.ErrInvalidToken
		}
		return user, nil
	default:
		return nil, apperrors.ErrInvalidToken
	}
}
