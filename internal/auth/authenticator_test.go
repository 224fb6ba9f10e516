package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pathxpert/server/internal/models"
	apperrors "github.com/pathxpert/server/pkg/errors"
)

type fakeResolver struct {
	byID       map[string]*models.User
	byExternal map[string]*models.User
	provision  func(subject, email, name, picture string) (*models.User, error)
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		byID:       map[string]*models.User{},
		byExternal: map[string]*models.User{},
	}
}

func (r *fakeResolver) FindByID(_ context.Context, id string) (*models.User, error) {
	return r.byID[id], nil
}

func (r *fakeResolver) FindByExternalID(_ context.Context, externalID string) (*models.User, error) {
	return r.byExternal[externalID], nil
}

func (r *fakeResolver) ProvisionExternal(_ context.Context, subject, email, name, picture string) (*models.User, error) {
	if r.provision != nil {
		return r.provision(subject, email, name, picture)
	}
	user := &models.User{
		ID:          "prov-" + subject,
		ExternalID:  &subject,
		Email:       email,
		DisplayName: name,
		Avatar:      picture,
		AuthType:    models.AuthTypeExternal,
		Role:        models.RoleUser,
		IsActive:    true,
	}
	r.byExternal[subject] = user
	r.byID[user.ID] = user
	return user, nil
}

type fakeVerifier struct {
	name   string
	result *Verification
	err    error
}

func (v *fakeVerifier) Name() string { return v.name }

func (v *fakeVerifier) Verify(context.Context, string) (*Verification, error) {
	return v.result, v.err
}

func localSetup(t *testing.T) (*JWTService, *fakeResolver, *Authenticator) {
	t.Helper()

	svc, err := NewJWTService(JWTConfig{Secret: "secret", AccessTokenTTL: time.Hour})
	require.NoError(t, err)

	resolver := newFakeResolver()
	authn := NewAuthenticator(resolver, NewLocalVerifier(svc))
	return svc, resolver, authn
}

func TestAuthenticateMissingToken(t *testing.T) {
	_, _, authn := localSetup(t)

	_, _, err := authn.Authenticate(context.Background(), "  ")
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestAuthenticateGarbageToken(t *testing.T) {
	_, _, authn := localSetup(t)

	_, _, err := authn.Authenticate(context.Background(), "not-a-token")
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestAuthenticateLocalToken(t *testing.T) {
	svc, resolver, authn := localSetup(t)

	user := &models.User{ID: "user-1", Email: "alice@example.com", Role: models.RoleUser, IsActive: true}
	resolver.byID[user.ID] = user

	token, err := svc.GenerateAccessToken(user)
	require.NoError(t, err)

	resolved, verification, err := authn.Authenticate(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, user.ID, resolved.ID)
	require.Equal(t, ModeLocal, verification.Mode)
	require.Equal(t, "alice@example.com", verification.Claims.Email)
}

func TestAuthenticateExpiredLocalToken(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewJWTService(JWTConfig{
		Secret:         "secret",
		AccessTokenTTL: time.Minute,
		Clock:          func() time.Time { return current },
	})
	require.NoError(t, err)

	resolver := newFakeResolver()
	authn := NewAuthenticator(resolver, NewLocalVerifier(svc))

	token, err := svc.GenerateAccessToken(&models.User{ID: "user-1"})
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)

	_, _, err = authn.Authenticate(context.Background(), token)
	require.ErrorIs(t, err, apperrors.ErrTokenExpired)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "Token expired, please login again", appErr.Message)
}

func TestAuthenticateDeletedAccount(t *testing.T) {
	svc, _, authn := localSetup(t)

	token, err := svc.GenerateAccessToken(&models.User{ID: "ghost"})
	require.NoError(t, err)

	_, _, err = authn.Authenticate(context.Background(), token)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestAuthenticateDeactivatedAccount(t *testing.T) {
	svc, resolver, authn := localSetup(t)

	user := &models.User{ID: "user-1", IsActive: false}
	resolver.byID[user.ID] = user

	token, err := svc.GenerateAccessToken(user)
	require.NoError(t, err)

	_, _, err = authn.Authenticate(context.Background(), token)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, apperrors.ErrForbidden.Code, appErr.Code)
}

func TestAuthenticateExternalWins(t *testing.T) {
	resolver := newFakeResolver()
	external := &fakeVerifier{
		name:   string(ModeExternal),
		result: &Verification{Mode: ModeExternal, Subject: "ext-1", Email: "bob@example.com", Name: "Bob"},
	}
	local := &fakeVerifier{name: string(ModeLocal), err: errors.New("never reached")}
	authn := NewAuthenticator(resolver, external, local)

	user, verification, err := authn.Authenticate(context.Background(), "opaque-id-token")
	require.NoError(t, err)
	require.Equal(t, ModeExternal, verification.Mode)
	require.Equal(t, "bob@example.com", user.Email)
	require.NotNil(t, user.ExternalID)
	require.Equal(t, "ext-1", *user.ExternalID)
}

func TestAuthenticateExternalProvisionsOnce(t *testing.T) {
	resolver := newFakeResolver()
	provisions := 0
	resolver.provision = func(subject, email, _, _ string) (*models.User, error) {
		provisions++
		user := &models.User{ID: "prov-" + subject, ExternalID: &subject, Email: email, IsActive: true}
		resolver.byExternal[subject] = user
		return user, nil
	}

	external := &fakeVerifier{
		name:   string(ModeExternal),
		result: &Verification{Mode: ModeExternal, Subject: "ext-2", Email: "carol@example.com"},
	}
	authn := NewAuthenticator(resolver, external)

	_, _, err := authn.Authenticate(context.Background(), "token")
	require.NoError(t, err)
	_, _, err = authn.Authenticate(context.Background(), "token")
	require.NoError(t, err)
	require.Equal(t, 1, provisions)
}

func TestAuthenticateFallsBackToLocal(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "secret", AccessTokenTTL: time.Hour})
	require.NoError(t, err)

	resolver := newFakeResolver()
	user := &models.User{ID: "user-1", IsActive: true}
	resolver.byID[user.ID] = user

	external := &fakeVerifier{name: string(ModeExternal), err: errors.New("external: verify id token: bad audience")}
	authn := NewAuthenticator(resolver, external, NewLocalVerifier(svc))

	token, err := svc.GenerateAccessToken(user)
	require.NoError(t, err)

	resolved, verification, err := authn.Authenticate(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, ModeLocal, verification.Mode)
	require.Equal(t, user.ID, resolved.ID)
}
