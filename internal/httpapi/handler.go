package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"

	"careplane/pkg/db/pagination"
	"careplane/pkg/errutil"
	"careplane/pkg/middleware"
	"careplane/services/application"
	"careplane/services/audit"
	"careplane/services/authz"
	"careplane/services/grant"
	"careplane/services/identity"
	"careplane/services/license"
	"careplane/services/pricing"
	"careplane/services/tenant"
)

type Handler struct {
	engine   *authz.Engine
	identity *identity.Service
	tenants  *tenant.Service
	apps     *application.Service
	licenses *license.Service
	pricing  *pricing.Service
	grants   *grant.Service
	audits   *audit.Service
}

type HandlerParams struct {
	fx.In
	Engine   *authz.Engine
	Identity *identity.Service
	Tenants  *tenant.Service
	Apps     *application.Service
	Licenses *license.Service
	Pricing  *pricing.Service
	Grants   *grant.Service
	Audits   *audit.Service
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		engine:   p.Engine,
		identity: p.Identity,
		tenants:  p.Tenants,
		apps:     p.Apps,
		licenses: p.Licenses,
		pricing:  p.Pricing,
		grants:   p.Grants,
		audits:   p.Audits,
	}
}

// RequireTenantAdmin restricts a route group to tenant admins and platform
// superusers. Application-scoped access checks belong to the decision engine;
// this guard covers the management surface itself.
func (h *Handler) RequireTenantAdmin(c *gin.Context) {
	p, ok := identity.PrincipalFromContext(c.Request.Context())
	if !ok {
		c.Error(errutil.Unauthorized(errutil.ReasonUnauthenticated, "authentication required"))
		c.Abort()
		return
	}
	if p.IsInternalAdmin() || p.Role == identity.RoleAdmin {
		c.Next()
		return
	}
	c.Error(errutil.Forbidden(errutil.ReasonInsufficientRole, "tenant admin role required"))
	c.Abort()
}

// RequirePlatformAdmin restricts a route group to platform superusers.
func (h *Handler) RequirePlatformAdmin(c *gin.Context) {
	p, ok := identity.PrincipalFromContext(c.Request.Context())
	if !ok {
		c.Error(errutil.Unauthorized(errutil.ReasonUnauthenticated, "authentication required"))
		c.Abort()
		return
	}
	if !p.IsInternalAdmin() {
		c.Error(errutil.Forbidden(errutil.ReasonInsufficientRole, "platform admin scope required"))
		c.Abort()
		return
	}
	c.Next()
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed(errutil.ReasonValidationFailed, "invalid login payload", errutil.WithErr(err)))
		return
	}

	token, user, err := h.identity.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user": gin.H{
			"id":        user.ID,
			"email":     user.Email,
			"name":      user.Name,
			"tenant_id": user.TenantID,
			"role":      user.Role,
		},
	})
}

type checkAccessRequest struct {
	AppSlug      string `json:"app_slug" binding:"required"`
	RequiredRole string `json:"required_role"`
}

// CheckAccess runs the full decision pipeline for the calling principal and
// returns the decision context on a pass. Denials surface as classified
// errors; both outcomes land in the audit trail.
func (h *Handler) CheckAccess(c *gin.Context) {
	var body checkAccessRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.Error(errutil.ValidationFailed(errutil.ReasonValidationFailed, "invalid access check payload", errutil.WithErr(err)))
		return
	}

	ctx := c.Request.Context()
	req := authz.Request{
		AppSlug:      body.AppSlug,
		RequiredRole: body.RequiredRole,
		Meta:         middleware.RequestMetaFromContext(ctx),
	}
	if p, ok := identity.PrincipalFromContext(ctx); ok {
		req.Principal = p
	}
	if t, ok := tenant.FromContext(ctx); ok {
		req.Tenant = t
	}

	decision, err := h.engine.Authorize(ctx, req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"granted": true, "decision": decision})
}

// Entitlement returns the decision computed by the route guard; reaching the
// handler at all means the caller passed every layer.
func (h *Handler) Entitlement(c *gin.Context) {
	decision, ok := authz.DecisionFromGin(c)
	if !ok {
		c.Error(errutil.Internal("entitlement decision missing from request", nil))
		return
	}
	c.JSON(http.StatusOK, gin.H{"granted": true, "decision": decision})
}

type grantRequest struct {
	UserID    string     `json:"user_id" binding:"required"`
	AppSlug   string     `json:"app_slug" binding:"required"`
	RoleInApp string     `json:"role_in_app"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (h *Handler) GrantAccess(c *gin.Context) {
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed(errutil.ReasonValidationFailed, "invalid grant payload", errutil.WithErr(err)))
		return
	}

	ctx := c.Request.Context()
	principal, _ := identity.PrincipalFromContext(ctx)
	t, ok := tenant.FromContext(ctx)
	if !ok {
		c.Error(errutil.BadRequest(errutil.ReasonTenantContextMissing, "tenant context is required"))
		return
	}

	grantee, err := h.identity.FindUser(ctx, req.UserID)
	if err != nil {
		c.Error(err)
		return
	}
	if grantee == nil || grantee.TenantID != t.ID {
		c.Error(errutil.NotFound(errutil.ReasonNoUserAccess, "user not found in tenant"))
		return
	}

	result, err := h.grants.GrantAccess(ctx, grant.GrantParams{
		UserID:     grantee.ID,
		TenantID:   t.ID,
		AppSlug:    req.AppSlug,
		RoleInApp:  req.RoleInApp,
		GrantedBy:  principal.UserID,
		ExpiresAt:  req.ExpiresAt,
		UserTypeID: grantee.UserTypeID,
		TenantRole: grantee.Role,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"grant":      result.Grant,
		"seats_used": result.SeatsUsed,
		"pricing":    result.Grant.PricingSnapshot(),
	})
}

type revokeRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	AppSlug string `json:"app_slug" binding:"required"`
}

func (h *Handler) RevokeAccess(c *gin.Context) {
	var req revokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed(errutil.ReasonValidationFailed, "invalid revoke payload", errutil.WithErr(err)))
		return
	}

	ctx := c.Request.Context()
	principal, _ := identity.PrincipalFromContext(ctx)
	t, ok := tenant.FromContext(ctx)
	if !ok {
		c.Error(errutil.BadRequest(errutil.ReasonTenantContextMissing, "tenant context is required"))
		return
	}

	g, err := h.grants.Revoke(ctx, req.UserID, t.ID, req.AppSlug, principal.UserID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"grant": g})
}

type schedulePriceRequest struct {
	AppSlug      string     `json:"app_slug" binding:"required"`
	UserTypeID   string     `json:"user_type_id" binding:"required"`
	Price        string     `json:"price" binding:"required"`
	Currency     string     `json:"currency" binding:"required"`
	BillingCycle string     `json:"billing_cycle" binding:"required"`
	ValidFrom    time.Time  `json:"valid_from" binding:"required"`
	ValidTo      *time.Time `json:"valid_to"`
}

func (h *Handler) SchedulePrice(c *gin.Context) {
	var req schedulePriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed(errutil.ReasonValidationFailed, "invalid pricing payload", errutil.WithErr(err)))
		return
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		c.Error(errutil.ValidationFailed(errutil.ReasonInvalidPrice, "price must be a decimal string", errutil.WithErr(err)))
		return
	}

	ctx := c.Request.Context()
	app, err := h.apps.ResolveSlug(ctx, req.AppSlug)
	if err != nil {
		c.Error(err)
		return
	}
	if app == nil {
		c.Error(errutil.NotFound(errutil.ReasonApplicationNotFound, "application is not registered"))
		return
	}

	principal, _ := identity.PrincipalFromContext(ctx)
	entry, err := h.pricing.SchedulePrice(ctx, pricing.ScheduleParams{
		AppID:        app.ID,
		UserTypeID:   req.UserTypeID,
		Price:        price,
		Currency:     req.Currency,
		BillingCycle: pricing.BillingCycle(req.BillingCycle),
		ValidFrom:    req.ValidFrom,
		ValidTo:      req.ValidTo,
		CreatedBy:    principal.UserID,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"entry": entry})
}

func (h *Handler) ListLicenses(c *gin.Context) {
	ctx := c.Request.Context()
	t, ok := tenant.FromContext(ctx)
	if !ok {
		c.Error(errutil.BadRequest(errutil.ReasonTenantContextMissing, "tenant context is required"))
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		c.Error(errutil.ValidationFailed(errutil.ReasonValidationFailed, "invalid pagination query", errutil.WithErr(err)))
		return
	}

	licenses, err := h.licenses.ListByTenant(ctx, t.ID, page)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"licenses": licenses})
}

type activateLicenseRequest struct {
	TenantID  string     `json:"tenant_id" binding:"required"`
	AppSlug   string     `json:"app_slug" binding:"required"`
	UserLimit *int       `json:"user_limit"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (h *Handler) ActivateLicense(c *gin.Context) {
	var req activateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed(errutil.ReasonValidationFailed, "invalid license payload", errutil.WithErr(err)))
		return
	}

	ctx := c.Request.Context()
	app, err := h.apps.ResolveSlug(ctx, req.AppSlug)
	if err != nil {
		c.Error(err)
		return
	}
	if app == nil {
		c.Error(errutil.NotFound(errutil.ReasonApplicationNotFound, "application is not registered"))
		return
	}

	lic, err := h.licenses.Activate(ctx, license.ActivateParams{
		TenantID:  req.TenantID,
		AppID:     app.ID,
		ExpiresAt: req.ExpiresAt,
		UserLimit: req.UserLimit,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"license": lic})
}

type registerApplicationRequest struct {
	Name     string   `json:"name" binding:"required"`
	Slug     string   `json:"slug"`
	Features []string `json:"features"`
}

func (h *Handler) RegisterApplication(c *gin.Context) {
	var req registerApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed(errutil.ReasonValidationFailed, "invalid application payload", errutil.WithErr(err)))
		return
	}

	app, err := h.apps.Register(c.Request.Context(), req.Name, req.Slug, req.Features)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"application": app})
}

type createTenantRequest struct {
	Name string `json:"name" binding:"required"`
	Slug string `json:"slug"`
}

func (h *Handler) CreateTenant(c *gin.Context) {
	var req createTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed(errutil.ReasonValidationFailed, "invalid tenant payload", errutil.WithErr(err)))
		return
	}

	t, err := h.tenants.Create(c.Request.Context(), req.Name, req.Slug)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"tenant": t})
}

func (h *Handler) RecentDecisions(c *gin.Context) {
	ctx := c.Request.Context()
	t, ok := tenant.FromContext(ctx)
	if !ok {
		c.Error(errutil.BadRequest(errutil.ReasonTenantContextMissing, "tenant context is required"))
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		c.Error(errutil.ValidationFailed(errutil.ReasonValidationFailed, "invalid pagination query", errutil.WithErr(err)))
		return
	}

	entries, err := h.audits.Recent(ctx, t.ID, page)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
