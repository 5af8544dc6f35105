package authz

import (
	"context"
	"fmt"

	"careplane/pkg/errutil"
	"careplane/pkg/middleware"
	"careplane/services/application"
	"careplane/services/audit"
	"careplane/services/grant"
	"careplane/services/identity"
	"careplane/services/license"
	"careplane/services/tenant"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// GrantChecker is the authoritative access lookup, consulted when the
// token's fast path does not confirm a user.
type GrantChecker interface {
	HasAccess(ctx context.Context, userID, tenantID, appSlug string) (*grant.Grant, error)
}

// Engine evaluates authorization requests through an ordered pipeline of
// layers, short-circuiting on the first failure. It is the only component
// that translates store-level absence into the stable reason-code taxonomy,
// and it emits exactly one audit entry per invocation.
type Engine struct {
	apps     *application.Service
	licenses *license.Service
	grants   GrantChecker
	sink     audit.Sink
	roles    *RoleTable
}

type EngineParams struct {
	fx.In
	Apps     *application.Service
	Licenses *license.Service
	Grants   GrantChecker
	Sink     audit.Sink
	Roles    *RoleTable
}

func NewEngine(p EngineParams) *Engine {
	return &Engine{
		apps:     p.Apps,
		licenses: p.Licenses,
		grants:   p.Grants,
		sink:     p.Sink,
		roles:    p.Roles,
	}
}

// Request is everything the pipeline needs to decide one invocation.
type Request struct {
	Principal    *identity.Principal
	Tenant       *tenant.Tenant
	AppSlug      string
	RequiredRole string
	Meta         middleware.RequestMeta
}

// state is the mutable value the pipeline steps transform. Each step either
// fills it in and falls through, halts with a classified denial, or marks
// the decision done.
type state struct {
	req    Request
	app    *application.Application
	lic    *license.License
	seats  *license.SeatAvailability
	grant  *grant.Grant
	source AccessSource
	done   bool
}

type step struct {
	name string
	run  func(ctx context.Context, st *state) error
}

// Authorize runs the full layer pipeline. Business-rule denials come back as
// classified BaseErrors and are audited; infrastructure faults come back as
// internal errors with best-effort audit.
func (e *Engine) Authorize(ctx context.Context, req Request) (*DecisionContext, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	st := &state{req: req}

	pipeline := []step{
		{"authentication", e.stepAuthentication},
		{"tenant_context", e.stepTenantContext},
		{"application", e.stepApplication},
		{"platform_role", e.stepPlatformRole},
		{"license", e.stepLicense},
		{"seats", e.stepSeats},
		{"user_access", e.stepUserAccess},
		{"role", e.stepRole},
	}

	for _, s := range pipeline {
		if st.done {
			break
		}
		if err := s.run(ctx, st); err != nil {
			e.auditDenied(ctx, st, err)
			if _, classified := errutil.AsBaseError(err); classified {
				return nil, err
			}
			zap.L().Error("authorization pipeline fault",
				zap.String("step", s.name),
				zap.String("app_slug", req.AppSlug),
				zap.Error(err))
			return nil, errutil.Internal("authorization check failed", err)
		}
	}

	decision := &DecisionContext{
		AppID:         st.app.ID,
		AppName:       st.app.Name,
		EffectiveRole: st.effectiveRole(),
		Seats:         st.seats,
		Source:        st.source,
	}
	if st.lic != nil {
		decision.LicenseID = st.lic.ID
	}

	e.auditGranted(ctx, st)

	return decision, nil
}

func (e *Engine) stepAuthentication(_ context.Context, st *state) error {
	if st.req.Principal == nil {
		return errutil.Unauthorized(errutil.ReasonUnauthenticated, "authentication required")
	}
	return nil
}

func (e *Engine) stepTenantContext(_ context.Context, st *state) error {
	if st.req.Tenant == nil {
		return errutil.BadRequest(errutil.ReasonTenantContextMissing, "tenant context is required")
	}
	return nil
}

func (e *Engine) stepApplication(ctx context.Context, st *state) error {
	app, err := e.apps.ResolveSlug(ctx, st.req.AppSlug)
	if err != nil {
		return err
	}
	if app == nil {
		return errutil.NotFound(errutil.ReasonApplicationNotFound,
			fmt.Sprintf("application %q is not registered", st.req.AppSlug))
	}
	st.app = app
	return nil
}

// stepPlatformRole lets platform superusers through the remaining layers.
// The decision is still audited like any other.
func (e *Engine) stepPlatformRole(_ context.Context, st *state) error {
	if st.req.Principal.IsInternalAdmin() {
		st.source = SourceToken
		st.done = true
	}
	return nil
}

func (e *Engine) stepLicense(ctx context.Context, st *state) error {
	lic, err := e.licenses.CheckLicense(ctx, st.req.Tenant.ID, st.app.ID)
	if err != nil {
		return err
	}
	if lic == nil {
		return errutil.Forbidden(errutil.ReasonNoTenantLicense,
			fmt.Sprintf("tenant holds no active license for %q", st.req.AppSlug))
	}
	st.lic = lic
	return nil
}

// stepSeats only gates users without existing access: someone already seated
// keeps exercising their grant even when the license is at capacity.
func (e *Engine) stepSeats(ctx context.Context, st *state) error {
	seats, err := e.licenses.CheckSeatAvailability(ctx, st.req.Tenant.ID, st.app.ID)
	if err != nil {
		return err
	}
	st.seats = seats

	if seats == nil || seats.SeatsAvailable > 0 {
		return nil
	}

	if st.req.Principal.AllowsApp(st.app.Slug) {
		return nil
	}

	g, err := e.grants.HasAccess(ctx, st.req.Principal.UserID, st.req.Tenant.ID, st.req.AppSlug)
	if err != nil {
		return err
	}
	if g != nil {
		st.grant = g
		return nil
	}

	return errutil.Forbidden(errutil.ReasonSeatLimitExceeded,
		fmt.Sprintf("seat limit of %d reached for %q", seats.UserLimit, st.req.AppSlug))
}

func (e *Engine) stepUserAccess(ctx context.Context, st *state) error {
	if st.grant != nil {
		st.source = SourceDatabase
		return nil
	}

	if st.req.Principal.AllowsApp(st.app.Slug) {
		st.source = SourceToken
		return nil
	}

	g, err := e.grants.HasAccess(ctx, st.req.Principal.UserID, st.req.Tenant.ID, st.req.AppSlug)
	if err != nil {
		return err
	}
	if g == nil {
		return errutil.Forbidden(errutil.ReasonNoUserAccess,
			fmt.Sprintf("no access to application %q", st.req.AppSlug))
	}

	st.grant = g
	st.source = SourceDatabase
	return nil
}

func (e *Engine) stepRole(_ context.Context, st *state) error {
	required := st.req.RequiredRole
	if required == "" {
		return nil
	}

	effective := st.effectiveRole()
	if !e.roles.Sufficient(effective, required) {
		return errutil.Forbidden(errutil.ReasonInsufficientRole,
			fmt.Sprintf("role %q does not satisfy required role %q", effective, required))
	}
	return nil
}

// effectiveRole is the grant's in-application role when the grant was
// loaded, falling back to the principal's tenant role on the token fast
// path.
func (st *state) effectiveRole() string {
	if st.grant != nil && st.grant.RoleInApp != "" {
		return st.grant.RoleInApp
	}
	if st.req.Principal.PlatformRole != "" {
		return st.req.Principal.PlatformRole
	}
	return string(st.req.Principal.Role)
}

func (e *Engine) auditGranted(ctx context.Context, st *state) {
	e.sink.LogGranted(ctx, st.req.Principal.UserID, st.req.Tenant.ID, st.app.ID, st.req.Meta)
}

func (e *Engine) auditDenied(ctx context.Context, st *state, cause error) {
	var actorID, tenantID string
	if st.req.Principal != nil {
		actorID = st.req.Principal.UserID
	}
	if st.req.Tenant != nil {
		tenantID = st.req.Tenant.ID
	}

	var appID *string
	if st.app != nil {
		appID = &st.app.ID
	}

	e.sink.LogDenied(ctx, actorID, tenantID, appID, errutil.ReasonOf(cause), st.req.Meta)
}
