package errutil

// Reason is a stable, machine-readable code describing why an operation was
// refused. Route handlers and clients consume reasons, never raw store errors.
type Reason string

const (
	ReasonUnauthenticated      Reason = "UNAUTHENTICATED"
	ReasonTenantContextMissing Reason = "TENANT_CONTEXT_MISSING"
	ReasonApplicationNotFound  Reason = "APPLICATION_NOT_FOUND"
	ReasonNoTenantLicense      Reason = "NO_TENANT_LICENSE"
	ReasonSeatLimitExceeded    Reason = "SEAT_LIMIT_EXCEEDED"
	ReasonNoUserAccess         Reason = "NO_USER_ACCESS"
	ReasonInsufficientRole     Reason = "INSUFFICIENT_ROLE"
	ReasonPricingNotConfigured Reason = "PRICING_NOT_CONFIGURED"
	ReasonGrantNotFound        Reason = "GRANT_NOT_FOUND"
	ReasonDuplicateGrant       Reason = "DUPLICATE_GRANT"
	ReasonInvalidPrice         Reason = "INVALID_PRICE"
	ReasonTokenExpired         Reason = "TOKEN_EXPIRED"
	ReasonTokenInvalid         Reason = "TOKEN_INVALID"
	ReasonAccountInactive      Reason = "ACCOUNT_INACTIVE"
	ReasonValidationFailed     Reason = "VALIDATION_FAILED"
	ReasonRateLimited          Reason = "RATE_LIMITED"
	ReasonInternal             Reason = "INTERNAL"
)

// ReasonOf extracts the stable reason code from an error, returning
// ReasonInternal for anything that is not a classified BaseError.
func ReasonOf(err error) Reason {
	if err == nil {
		return ""
	}
	if be, ok := AsBaseError(err); ok && be.Reason != "" {
		return be.Reason
	}
	return ReasonInternal
}
