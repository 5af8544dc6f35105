package authz

import (
	"careplane/services/license"

	"github.com/gin-gonic/gin"
)

// AccessSource tags which tier confirmed the user's access, so staleness of
// the token-embedded fast path stays attributable.
type AccessSource string

const (
	// SourceToken means the token's precomputed allowed-app set confirmed
	// access: fast, possibly stale.
	SourceToken AccessSource = "token"
	// SourceDatabase means the grant store confirmed access: ground truth.
	SourceDatabase AccessSource = "database"
)

// DecisionContext is attached to the request after a full pipeline pass and
// consumed by downstream handlers.
type DecisionContext struct {
	AppID         string                    `json:"app_id"`
	AppName       string                    `json:"app_name"`
	EffectiveRole string                    `json:"effective_role"`
	LicenseID     string                    `json:"license_id"`
	Seats         *license.SeatAvailability `json:"seats,omitempty"`
	Source        AccessSource              `json:"source"`
}

const decisionContextKey = "authz.decision"

func setDecision(c *gin.Context, d *DecisionContext) {
	c.Set(decisionContextKey, d)
}

// DecisionFromGin returns the decision context attached by the guard.
func DecisionFromGin(c *gin.Context) (*DecisionContext, bool) {
	v, ok := c.Get(decisionContextKey)
	if !ok {
		return nil, false
	}
	d, ok := v.(*DecisionContext)
	return d, ok
}
