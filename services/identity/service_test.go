package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"careplane/pkg/config"
	"careplane/pkg/errutil"
	"careplane/pkg/security"
	"careplane/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type appListerMock struct {
	slugs []string
	err   error
}

func (m *appListerMock) ActiveApplicationSlugs(context.Context, string, string) ([]string, error) {
	return m.slugs, m.err
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Auth.Issuer = "careplane-test"
	cfg.Auth.Secret = "0123456789abcdef0123456789abcdef"
	cfg.Auth.TokenTTL = time.Hour
	return cfg
}

func strPtr(s string) *string { return &s }

func activeUser(t *testing.T, password string) *User {
	t.Helper()
	hash, err := security.HashArgon2(password)
	require.NoError(t, err)
	return &User{
		ID:           "user-1",
		TenantID:     "tenant-1",
		Email:        "dr.silva@clinic.example",
		Name:         "Dr. Silva",
		PasswordHash: hash,
		Role:         RoleManager,
		UserTypeID:   "ut-physician",
		Status:       UserStatusActive,
	}
}

func newTestService(t *testing.T, lister AllowedAppLister) *Service {
	t.Helper()
	cfg := testConfig()
	db := testutil.NewTestDB(t, &User{})
	return NewService(ServiceParams{
		DB:       db,
		Config:   cfg,
		Verifier: NewTokenVerifier(cfg),
		Apps:     lister,
	})
}

func TestTokenRoundTrip(t *testing.T) {
	v := NewTokenVerifier(testConfig())
	user := activeUser(t, "s3cret")
	user.PlatformRole = strPtr(PlatformRoleInternalAdmin)

	raw, err := v.Issue(user, []string{"tq", "pm"}, time.Hour)
	require.NoError(t, err)

	p, err := v.Verify(raw)
	require.NoError(t, err)
	require.Equal(t, "user-1", p.UserID)
	require.Equal(t, "tenant-1", p.TenantID)
	require.Equal(t, RoleManager, p.Role)
	require.Equal(t, []string{"tq", "pm"}, p.AllowedApps)
	require.True(t, p.IsInternalAdmin())
	require.True(t, p.AllowsApp("tq"))
	require.False(t, p.AllowsApp("billing"))
}

// With no configured secret the verifier falls back to a generated one, so
// tokens still round-trip within the process instead of being signed with an
// empty key.
func TestVerifierEphemeralSecretWhenUnset(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Secret = ""
	v := NewTokenVerifier(cfg)

	raw, err := v.Issue(activeUser(t, "s3cret"), nil, time.Hour)
	require.NoError(t, err)

	p, err := v.Verify(raw)
	require.NoError(t, err)
	require.Equal(t, "user-1", p.UserID)
}

func TestTokenExpired(t *testing.T) {
	v := NewTokenVerifier(testConfig())
	v.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	raw, err := v.Issue(activeUser(t, "s3cret"), nil, time.Hour)
	require.NoError(t, err)

	v.now = time.Now
	_, err = v.Verify(raw)
	require.Error(t, err)
	require.True(t, errutil.IsReason(err, errutil.ReasonTokenExpired))
}

func TestTokenWrongSecret(t *testing.T) {
	v := NewTokenVerifier(testConfig())
	raw, err := v.Issue(activeUser(t, "s3cret"), nil, time.Hour)
	require.NoError(t, err)

	other := testConfig()
	other.Auth.Secret = "ffffffffffffffffffffffffffffffff"
	_, err = NewTokenVerifier(other).Verify(raw)
	require.Error(t, err)
	require.True(t, errutil.IsReason(err, errutil.ReasonTokenInvalid))
}

func TestTokenWrongIssuer(t *testing.T) {
	v := NewTokenVerifier(testConfig())
	raw, err := v.Issue(activeUser(t, "s3cret"), nil, time.Hour)
	require.NoError(t, err)

	other := testConfig()
	other.Auth.Issuer = "someone-else"
	_, err = NewTokenVerifier(other).Verify(raw)
	require.Error(t, err)
	require.True(t, errutil.IsReason(err, errutil.ReasonTokenInvalid))
}

func TestTokenGarbageInput(t *testing.T) {
	v := NewTokenVerifier(testConfig())

	_, err := v.Verify("not-a-token")
	require.Error(t, err)
	require.True(t, errutil.IsReason(err, errutil.ReasonTokenInvalid))
}

func TestLoginIssuesTokenWithAllowedApps(t *testing.T) {
	svc := newTestService(t, &appListerMock{slugs: []string{"tq"}})
	user := activeUser(t, "s3cret")
	require.NoError(t, svc.db.Create(user).Error)

	token, got, err := svc.Login(context.Background(), user.Email, "s3cret")
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)

	p, err := svc.verifier.Verify(token)
	require.NoError(t, err)
	require.Equal(t, []string{"tq"}, p.AllowedApps)
}

func TestLoginWrongPassword(t *testing.T) {
	svc := newTestService(t, &appListerMock{})
	user := activeUser(t, "s3cret")
	require.NoError(t, svc.db.Create(user).Error)

	_, _, err := svc.Login(context.Background(), user.Email, "wrong")
	require.Error(t, err)
	require.True(t, errutil.IsReason(err, errutil.ReasonTokenInvalid))
}

func TestLoginUnknownEmail(t *testing.T) {
	svc := newTestService(t, &appListerMock{})

	_, _, err := svc.Login(context.Background(), "nobody@clinic.example", "s3cret")
	require.Error(t, err)
	require.True(t, errutil.IsReason(err, errutil.ReasonTokenInvalid))
}

func TestLoginDisabledAccount(t *testing.T) {
	svc := newTestService(t, &appListerMock{})
	user := activeUser(t, "s3cret")
	user.Status = UserStatusDisabled
	require.NoError(t, svc.db.Create(user).Error)

	_, _, err := svc.Login(context.Background(), user.Email, "s3cret")
	require.Error(t, err)
	require.True(t, errutil.IsReason(err, errutil.ReasonAccountInactive))
}

func TestExtractCatchesDeactivationAfterIssuance(t *testing.T) {
	svc := newTestService(t, &appListerMock{})
	user := activeUser(t, "s3cret")
	require.NoError(t, svc.db.Create(user).Error)

	token, _, err := svc.Login(context.Background(), user.Email, "s3cret")
	require.NoError(t, err)

	// Token still valid, but the account was disabled after issuance.
	require.NoError(t, svc.db.Model(&User{}).
		Where("id = ?", user.ID).
		Update("status", UserStatusDisabled).Error)

	_, err = svc.Extract(context.Background(), token)
	require.Error(t, err)
	require.True(t, errutil.IsReason(err, errutil.ReasonAccountInactive))
}

func TestExtractReturnsPrincipalForActiveUser(t *testing.T) {
	svc := newTestService(t, &appListerMock{slugs: []string{"tq"}})
	user := activeUser(t, "s3cret")
	require.NoError(t, svc.db.Create(user).Error)

	token, _, err := svc.Login(context.Background(), user.Email, "s3cret")
	require.NoError(t, err)

	p, err := svc.Extract(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, user.ID, p.UserID)
	require.Equal(t, RoleManager, p.Role)
}
