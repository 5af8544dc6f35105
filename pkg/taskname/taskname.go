package taskname

// Task type names shared between enqueuing processes and workers.
const (
	// License tasks
	LicenseExpirySweep = "license:expiry_sweep"
)
