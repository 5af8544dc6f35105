package authz

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"careplane/pkg/db/pagination"
	"careplane/pkg/errutil"
	"careplane/pkg/middleware"
	"careplane/services/application"
	"careplane/services/audit"
	"careplane/services/grant"
	"careplane/services/identity"
	"careplane/services/license"
	"careplane/services/pricing"
	"careplane/services/tenant"
	"careplane/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// recordingSink captures audit calls so tests can assert exactly one entry
// per decision. failing simulates a broken audit store.
type recordingSink struct {
	granted []string
	denied  []errutil.Reason
	failing bool
}

func (s *recordingSink) LogGranted(_ context.Context, actorID, _, _ string, _ middleware.RequestMeta) {
	if s.failing {
		return
	}
	s.granted = append(s.granted, actorID)
}

func (s *recordingSink) LogDenied(_ context.Context, _, _ string, _ *string, reason errutil.Reason, _ middleware.RequestMeta) {
	if s.failing {
		return
	}
	s.denied = append(s.denied, reason)
}

func (s *recordingSink) entries() int {
	return len(s.granted) + len(s.denied)
}

type engineFixture struct {
	engine   *Engine
	sink     *recordingSink
	apps     *application.Service
	licenses *license.Service
	grants   *grant.Service
	app      *application.Application
	tenant   *tenant.Tenant
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	db := testutil.NewTestDB(t,
		&application.Application{}, &license.License{},
		&pricing.Entry{}, &grant.Grant{})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	apps := application.NewService(application.ServiceParams{DB: db, Node: node})
	licenses := license.NewService(license.ServiceParams{DB: db, Node: node})
	prices := pricing.NewService(pricing.ServiceParams{DB: db, Node: node})
	grants := grant.NewService(grant.ServiceParams{
		DB: db, Node: node, Licenses: licenses, Pricing: prices, Apps: apps,
	})

	ctx := context.Background()
	app, err := apps.Register(ctx, "Transcription & Quoting", "tq", nil)
	require.NoError(t, err)

	_, err = prices.SchedulePrice(ctx, pricing.ScheduleParams{
		AppID: app.ID, UserTypeID: "ut-physician",
		Price: decimal.RequireFromString("35.00"), Currency: "BRL",
		BillingCycle: pricing.CycleMonthly, ValidFrom: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	sink := &recordingSink{}
	engine := NewEngine(EngineParams{
		Apps: apps, Licenses: licenses, Grants: grants,
		Sink: sink, Roles: NewDefaultRoleTable(),
	})

	return &engineFixture{
		engine:   engine,
		sink:     sink,
		apps:     apps,
		licenses: licenses,
		grants:   grants,
		app:      app,
		tenant:   &tenant.Tenant{ID: "tenant-1", Name: "Clinic One", Status: tenant.Active},
	}
}

func (f *engineFixture) activateLicense(t *testing.T, userLimit *int) {
	t.Helper()
	_, err := f.licenses.Activate(context.Background(), license.ActivateParams{
		TenantID: f.tenant.ID, AppID: f.app.ID, UserLimit: userLimit,
	})
	require.NoError(t, err)
}

func (f *engineFixture) grantUser(t *testing.T, userID, roleInApp string) {
	t.Helper()
	_, err := f.grants.GrantAccess(context.Background(), grant.GrantParams{
		UserID: userID, TenantID: f.tenant.ID, AppSlug: "tq",
		RoleInApp: roleInApp, GrantedBy: "admin-1",
		UserTypeID: "ut-physician", TenantRole: identity.RoleOperations,
	})
	require.NoError(t, err)
}

func principal(userID string, role identity.TenantRole) *identity.Principal {
	return &identity.Principal{UserID: userID, TenantID: "tenant-1", Role: role}
}

func (f *engineFixture) request(p *identity.Principal, requiredRole string) Request {
	return Request{
		Principal:    p,
		Tenant:       f.tenant,
		AppSlug:      "tq",
		RequiredRole: requiredRole,
	}
}

func intPtr(n int) *int { return &n }

func TestAuthorizeUnauthenticated(t *testing.T) {
	f := newEngineFixture(t)

	req := f.request(nil, "")
	_, err := f.engine.Authorize(context.Background(), req)
	require.Error(t, err)
	require.True(t, errutil.IsReason(err, errutil.ReasonUnauthenticated))
	require.Equal(t, []errutil.Reason{errutil.ReasonUnauthenticated}, f.sink.denied)
}

func TestAuthorizeMissingTenantContext(t *testing.T) {
	f := newEngineFixture(t)

	req := f.request(principal("user-1", identity.RoleOperations), "")
	req.Tenant = nil
	_, err := f.engine.Authorize(context.Background(), req)
	require.Error(t, err)
	require.True(t, errutil.IsReason(err, errutil.ReasonTenantContextMissing))
}

func TestAuthorizeUnknownApplication(t *testing.T) {
	f := newEngineFixture(t)

	req := f.request(principal("user-1", identity.RoleOperations), "")
	req.AppSlug = "ghost"
	_, err := f.engine.Authorize(context.Background(), req)
	require.Error(t, err)
	require.True(t, errutil.IsReason(err, errutil.ReasonApplicationNotFound))
}

func TestAuthorizeNoLicense(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.Authorize(context.Background(),
		f.request(principal("user-1", identity.RoleOperations), ""))
	require.Error(t, err)
	require.True(t, errutil.IsReason(err, errutil.ReasonNoTenantLicense))
}

func TestAuthorizeNoUserAccess(t *testing.T) {
	f := newEngineFixture(t)
	f.activateLicense(t, nil)

	_, err := f.engine.Authorize(context.Background(),
		f.request(principal("user-1", identity.RoleOperations), ""))
	require.Error(t, err)
	require.True(t, errutil.IsReason(err, errutil.ReasonNoUserAccess))
}

func TestAuthorizeGrantedViaDatabase(t *testing.T) {
	f := newEngineFixture(t)
	f.activateLicense(t, nil)
	f.grantUser(t, "user-1", "")

	decision, err := f.engine.Authorize(context.Background(),
		f.request(principal("user-1", identity.RoleOperations), ""))
	require.NoError(t, err)
	require.Equal(t, SourceDatabase, decision.Source)
	require.Equal(t, f.app.ID, decision.AppID)
	require.Equal(t, "operations", decision.EffectiveRole)
	require.Equal(t, []string{"user-1"}, f.sink.granted)
	require.Equal(t, 1, f.sink.entries())
}

func TestAuthorizeGrantedViaTokenFastPath(t *testing.T) {
	f := newEngineFixture(t)
	f.activateLicense(t, nil)

	p := principal("user-1", identity.RoleOperations)
	p.AllowedApps = []string{"tq"}

	decision, err := f.engine.Authorize(context.Background(), f.request(p, ""))
	require.NoError(t, err)
	require.Equal(t, SourceToken, decision.Source)
	require.Equal(t, "operations", decision.EffectiveRole)
}

func TestAuthorizeSeatLimitDeniesOnlyUnseatedUsers(t *testing.T) {
	f := newEngineFixture(t)
	f.activateLicense(t, intPtr(1))
	f.grantUser(t, "user-1", "")

	// The seated user keeps access at full capacity.
	decision, err := f.engine.Authorize(context.Background(),
		f.request(principal("user-1", identity.RoleOperations), ""))
	require.NoError(t, err)
	require.Equal(t, SourceDatabase, decision.Source)

	// A user without a grant is refused on seats, before the access layer.
	_, err = f.engine.Authorize(context.Background(),
		f.request(principal("user-2", identity.RoleOperations), ""))
	require.Error(t, err)
	require.True(t, errutil.IsReason(err, errutil.ReasonSeatLimitExceeded))
}

func TestAuthorizeRoleEquivalence(t *testing.T) {
	f := newEngineFixture(t)
	f.activateLicense(t, nil)
	f.grantUser(t, "user-1", "operations")

	// operations satisfies a manager requirement via the equivalence table.
	decision, err := f.engine.Authorize(context.Background(),
		f.request(principal("user-1", identity.RoleOperations), "manager"))
	require.NoError(t, err)
	require.Equal(t, "operations", decision.EffectiveRole)

	// admin is exact; operations does not satisfy it.
	_, err = f.engine.Authorize(context.Background(),
		f.request(principal("user-1", identity.RoleOperations), "admin"))
	require.Error(t, err)
	require.True(t, errutil.IsReason(err, errutil.ReasonInsufficientRole))
}

func TestAuthorizeGrantRoleOverridesTenantRole(t *testing.T) {
	f := newEngineFixture(t)
	f.activateLicense(t, nil)
	f.grantUser(t, "user-1", "admin")

	// The tenant role is operations, but the grant carries admin in-app.
	decision, err := f.engine.Authorize(context.Background(),
		f.request(principal("user-1", identity.RoleOperations), "admin"))
	require.NoError(t, err)
	require.Equal(t, "admin", decision.EffectiveRole)
	require.Equal(t, SourceDatabase, decision.Source)
}

func TestAuthorizeTokenFastPathUsesTenantRole(t *testing.T) {
	f := newEngineFixture(t)
	f.activateLicense(t, nil)

	p := principal("user-1", identity.RoleManager)
	p.AllowedApps = []string{"tq"}

	// No grant row loaded on the fast path, so the tenant role decides.
	_, err := f.engine.Authorize(context.Background(), f.request(p, "admin"))
	require.Error(t, err)
	require.True(t, errutil.IsReason(err, errutil.ReasonInsufficientRole))
}

func TestAuthorizeInternalAdminBypassIsAudited(t *testing.T) {
	f := newEngineFixture(t)
	// No license, no grant: platform scope passes every tenant layer.

	p := principal("root-1", "")
	p.PlatformRole = identity.PlatformRoleInternalAdmin

	decision, err := f.engine.Authorize(context.Background(), f.request(p, "admin"))
	require.NoError(t, err)
	require.Equal(t, SourceToken, decision.Source)
	require.Equal(t, identity.PlatformRoleInternalAdmin, decision.EffectiveRole)
	require.Equal(t, []string{"root-1"}, f.sink.granted)
}

func TestAuthorizeEmitsExactlyOneAuditEntry(t *testing.T) {
	f := newEngineFixture(t)
	f.activateLicense(t, nil)
	f.grantUser(t, "user-1", "")
	ctx := context.Background()

	_, err := f.engine.Authorize(ctx, f.request(principal("user-1", identity.RoleOperations), ""))
	require.NoError(t, err)
	_, err = f.engine.Authorize(ctx, f.request(principal("user-2", identity.RoleOperations), ""))
	require.Error(t, err)
	_, err = f.engine.Authorize(ctx, f.request(nil, ""))
	require.Error(t, err)

	require.Equal(t, 3, f.sink.entries())
	require.Len(t, f.sink.granted, 1)
	require.Equal(t, []errutil.Reason{errutil.ReasonNoUserAccess, errutil.ReasonUnauthenticated}, f.sink.denied)
}

func TestAuthorizeOutcomeUnchangedWhenAuditFails(t *testing.T) {
	f := newEngineFixture(t)
	f.activateLicense(t, nil)
	f.grantUser(t, "user-1", "")
	f.sink.failing = true
	ctx := context.Background()

	decision, err := f.engine.Authorize(ctx, f.request(principal("user-1", identity.RoleOperations), ""))
	require.NoError(t, err)
	require.NotNil(t, decision)

	_, err = f.engine.Authorize(ctx, f.request(principal("user-2", identity.RoleOperations), ""))
	require.Error(t, err)
	require.True(t, errutil.IsReason(err, errutil.ReasonNoUserAccess))
}

func TestAuthorizeDenialsWriteToDecisionLog(t *testing.T) {
	db := testutil.NewTestDB(t,
		&application.Application{}, &license.License{},
		&pricing.Entry{}, &grant.Grant{}, &audit.DecisionLog{})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	apps := application.NewService(application.ServiceParams{DB: db, Node: node})
	licenses := license.NewService(license.ServiceParams{DB: db, Node: node})
	prices := pricing.NewService(pricing.ServiceParams{DB: db, Node: node})
	grants := grant.NewService(grant.ServiceParams{
		DB: db, Node: node, Licenses: licenses, Pricing: prices, Apps: apps,
	})
	audits := audit.NewService(audit.ServiceParams{DB: db, Node: node})

	engine := NewEngine(EngineParams{
		Apps: apps, Licenses: licenses, Grants: grants,
		Sink: audits, Roles: NewDefaultRoleTable(),
	})

	ctx := context.Background()
	_, err = apps.Register(ctx, "Transcription & Quoting", "tq", nil)
	require.NoError(t, err)

	_, err = engine.Authorize(ctx, Request{
		Principal: principal("user-1", identity.RoleOperations),
		Tenant:    &tenant.Tenant{ID: "tenant-1", Status: tenant.Active},
		AppSlug:   "tq",
		Meta:      middleware.RequestMeta{IP: "10.0.0.9", UserAgent: "test-agent"},
	})
	require.Error(t, err)

	entries, err := audits.Recent(ctx, "tenant-1", pagination.Pagination{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, audit.DecisionDenied, entries[0].Decision)
	require.NotNil(t, entries[0].ReasonCode)
	require.Equal(t, string(errutil.ReasonNoTenantLicense), *entries[0].ReasonCode)
	require.Equal(t, "user-1", entries[0].ActorID)
}
