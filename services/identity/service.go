package identity

import (
	"context"

	"careplane/pkg/config"
	"careplane/pkg/errutil"
	"careplane/pkg/repository"
	"careplane/pkg/security"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AllowedAppLister computes the application slugs a user can currently
// access. It is implemented by the grant store and injected here to keep the
// fast-path claim honest at issuance time.
type AllowedAppLister interface {
	ActiveApplicationSlugs(ctx context.Context, userID, tenantID string) ([]string, error)
}

type Service struct {
	db       *gorm.DB
	cfg      *config.Config
	verifier *TokenVerifier
	apps     AllowedAppLister
	repo     repository.Repository[User]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Config   *config.Config
	Verifier *TokenVerifier
	Apps     AllowedAppLister
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		cfg:      p.Config,
		verifier: p.Verifier,
		apps:     p.Apps,
		repo:     repository.ProvideStore[User](p.DB),
	}
}

// Extract verifies the raw credential and combines its claims with the live
// user record, so a deactivation after token issuance is still caught.
func (s *Service) Extract(ctx context.Context, rawToken string) (*Principal, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	principal, err := s.verifier.Verify(rawToken)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.FindOne(ctx, &User{ID: principal.UserID})
	if err != nil {
		zap.L().Error("failed to load user for token", zap.String("user_id", principal.UserID), zap.Error(err))
		return nil, errutil.Internal("failed to verify account status", err)
	}
	if user == nil || user.Status != UserStatusActive {
		return nil, errutil.Unauthorized(errutil.ReasonAccountInactive, "account is no longer active")
	}

	return principal, nil
}

// Login verifies credentials and issues a token carrying the precomputed
// allowed-application set.
func (s *Service) Login(ctx context.Context, email, password string) (string, *User, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	user, err := s.repo.FindOne(ctx, &User{Email: email})
	if err != nil {
		zap.L().Error("failed to query user by email", zap.Error(err))
		return "", nil, errutil.Internal("failed to verify credentials", err)
	}
	if user == nil || !security.VerifyArgon2(password, user.PasswordHash) {
		return "", nil, errutil.Unauthorized(errutil.ReasonTokenInvalid, "invalid email or password")
	}
	if user.Status != UserStatusActive {
		return "", nil, errutil.Unauthorized(errutil.ReasonAccountInactive, "account is no longer active")
	}

	allowed, err := s.apps.ActiveApplicationSlugs(ctx, user.ID, user.TenantID)
	if err != nil {
		zap.L().Error("failed to compute allowed applications", zap.String("user_id", user.ID), zap.Error(err))
		return "", nil, errutil.Internal("failed to issue token", err)
	}

	token, err := s.verifier.Issue(user, allowed, s.cfg.Auth.TokenTTL)
	if err != nil {
		zap.L().Error("failed to sign token", zap.Error(err))
		return "", nil, errutil.Internal("failed to issue token", err)
	}

	return token, user, nil
}

// FindUser returns the user row or nil when it does not exist.
func (s *Service) FindUser(ctx context.Context, userID string) (*User, error) {
	return s.repo.FindOne(ctx, &User{ID: userID})
}
