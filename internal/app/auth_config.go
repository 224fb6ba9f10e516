package app

import (
	"github.com/pathxpert/server/internal/auth"
	"github.com/pathxpert/server/internal/otp"
	"github.com/pathxpert/server/internal/services"
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: ttl,
	}
}

// OTPServiceConfig converts AuthConfig into OTP lifecycle parameters.
func (c AuthConfig) OTPServiceConfig() otp.Config {
	cfg := otp.Config{
		CodeLength:     c.OTP.Length,
		TTL:            c.OTP.TTL,
		ResendInterval: c.OTP.ResendInterval,
		MaxAttempts:    c.OTP.MaxAttempts,
	}
	return cfg
}

// ResetServiceConfig converts AuthConfig into the credential reset parameters.
func (c AuthConfig) ResetServiceConfig() services.ResetConfig {
	return services.ResetConfig{
		TokenTTL:          c.Reset.TokenTTL,
		TokenLength:       c.Reset.TokenLength,
		MinPasswordLength: c.Reset.MinPasswordLength,
		BcryptCost:        c.Reset.BcryptCost,
		BaseURL:           c.Reset.BaseURL,
	}
}

// ExternalVerifierConfig converts AuthConfig into external verifier parameters.
func (c AuthConfig) ExternalVerifierConfig() auth.ExternalConfig {
	return auth.ExternalConfig{
		Issuer:   c.External.Issuer,
		ClientID: c.External.ClientID,
		Timeout:  c.External.Timeout,
	}
}
