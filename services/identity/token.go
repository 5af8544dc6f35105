package identity

import (
	"errors"
	"os"
	"time"

	"careplane/pkg/config"
	"careplane/pkg/errutil"
	"careplane/pkg/security"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"go.uber.org/zap"
)

// appClaims are the custom claims carried next to the registered JWT set.
type appClaims struct {
	TenantID     string   `json:"tenant_id"`
	Role         string   `json:"role"`
	PlatformRole string   `json:"platform_role,omitempty"`
	AllowedApps  []string `json:"allowed_apps,omitempty"`
}

// TokenVerifier turns raw bearer credentials into verified claims.
type TokenVerifier struct {
	issuer string
	secret []byte
	now    func() time.Time
}

func NewTokenVerifier(cfg *config.Config) *TokenVerifier {
	secret := cfg.Auth.Secret
	if secret == "" {
		// Signing with an empty key would make every token forgeable.
		generated, err := security.GenerateBase64Secret(32)
		if err != nil {
			zap.L().Error("failed to generate a signing secret", zap.Error(err))
			os.Exit(1)
		}
		secret = generated
		zap.L().Warn("AUTH_SECRET is unset; using an ephemeral signing secret, tokens will not survive a restart")
	}

	return &TokenVerifier{
		issuer: cfg.Auth.Issuer,
		secret: []byte(secret),
		now:    time.Now,
	}
}

// Issue signs a token for the user with the allowed-application fast path
// embedded as a claim.
func (v *TokenVerifier) Issue(user *User, allowedApps []string, ttl time.Duration) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: v.secret},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", err
	}

	now := v.now().UTC()
	registered := jwt.Claims{
		Issuer:   v.issuer,
		Subject:  user.ID,
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(ttl)),
	}

	custom := appClaims{
		TenantID:    user.TenantID,
		Role:        string(user.Role),
		AllowedApps: allowedApps,
	}
	if user.PlatformRole != nil {
		custom.PlatformRole = *user.PlatformRole
	}

	return jwt.Signed(signer).Claims(registered).Claims(custom).Serialize()
}

// Verify checks signature and temporal validity and returns the unverified-
// against-storage principal. Callers needing the live user status go through
// Service.Extract.
func (v *TokenVerifier) Verify(raw string) (*Principal, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, errutil.Unauthorized(errutil.ReasonTokenInvalid, "token is malformed", errutil.WithErr(err))
	}

	var registered jwt.Claims
	var custom appClaims
	if err := tok.Claims(v.secret, &registered, &custom); err != nil {
		return nil, errutil.Unauthorized(errutil.ReasonTokenInvalid, "token signature verification failed", errutil.WithErr(err))
	}

	if err := registered.Validate(jwt.Expected{Issuer: v.issuer, Time: v.now()}); err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return nil, errutil.Unauthorized(errutil.ReasonTokenExpired, "token has expired", errutil.WithErr(err))
		}
		return nil, errutil.Unauthorized(errutil.ReasonTokenInvalid, "token claims are invalid", errutil.WithErr(err))
	}

	if registered.Subject == "" || custom.TenantID == "" {
		return nil, errutil.Unauthorized(errutil.ReasonTokenInvalid, "token is missing identity claims")
	}

	p := &Principal{
		UserID:       registered.Subject,
		TenantID:     custom.TenantID,
		Role:         TenantRole(custom.Role),
		PlatformRole: custom.PlatformRole,
		AllowedApps:  custom.AllowedApps,
	}
	if registered.IssuedAt != nil {
		p.IssuedAt = registered.IssuedAt.Time()
	}
	if registered.Expiry != nil {
		p.ExpiresAt = registered.Expiry.Time()
	}

	return p, nil
}
