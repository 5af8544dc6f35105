package license

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"careplane/pkg/db/pagination"
	"careplane/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &License{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParams{DB: db, Node: node})
}

func intPtr(n int) *int { return &n }

func TestCheckLicenseAbsent(t *testing.T) {
	svc := newTestService(t)

	lic, err := svc.CheckLicense(context.Background(), "tenant-1", "app-1")
	require.NoError(t, err)
	require.Nil(t, lic)
}

func TestCheckLicenseExpiredIsNotUsable(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	_, err := svc.Activate(ctx, ActivateParams{TenantID: "tenant-1", AppID: "app-1", ExpiresAt: &past})
	require.NoError(t, err)

	lic, err := svc.CheckLicense(ctx, "tenant-1", "app-1")
	require.NoError(t, err)
	require.Nil(t, lic)
}

func TestCheckLicenseNilExpiryNeverExpires(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Activate(ctx, ActivateParams{TenantID: "tenant-1", AppID: "app-1"})
	require.NoError(t, err)

	lic, err := svc.CheckLicense(ctx, "tenant-1", "app-1")
	require.NoError(t, err)
	require.NotNil(t, lic)
	require.Equal(t, StatusActive, lic.Status)
}

func TestCheckSeatAvailabilityUncapped(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Activate(ctx, ActivateParams{TenantID: "tenant-1", AppID: "app-1"})
	require.NoError(t, err)

	avail, err := svc.CheckSeatAvailability(ctx, "tenant-1", "app-1")
	require.NoError(t, err)
	require.Nil(t, avail)
}

func TestIncrementSeatsStopsAtLimit(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	lic, err := svc.Activate(ctx, ActivateParams{TenantID: "tenant-1", AppID: "app-1", UserLimit: intPtr(2)})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		ok, err := svc.IncrementSeats(ctx, nil, lic.ID)
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := svc.IncrementSeats(ctx, nil, lic.ID)
	require.NoError(t, err)
	require.False(t, ok)

	current, err := svc.FindByID(ctx, lic.ID)
	require.NoError(t, err)
	require.Equal(t, 2, current.SeatsUsed)
}

func TestIncrementSeatsUnlimited(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	lic, err := svc.Activate(ctx, ActivateParams{TenantID: "tenant-1", AppID: "app-1"})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		ok, err := svc.IncrementSeats(ctx, nil, lic.ID)
		require.NoError(t, err)
		require.True(t, ok)
	}

	current, err := svc.FindByID(ctx, lic.ID)
	require.NoError(t, err)
	require.Equal(t, 5, current.SeatsUsed)
}

func TestDecrementSeatsClampsAtZero(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	lic, err := svc.Activate(ctx, ActivateParams{TenantID: "tenant-1", AppID: "app-1", UserLimit: intPtr(3)})
	require.NoError(t, err)

	require.NoError(t, svc.DecrementSeats(ctx, nil, lic.ID))

	current, err := svc.FindByID(ctx, lic.ID)
	require.NoError(t, err)
	require.Equal(t, 0, current.SeatsUsed)
}

func TestSeatCounterConservation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	lic, err := svc.Activate(ctx, ActivateParams{TenantID: "tenant-1", AppID: "app-1", UserLimit: intPtr(10)})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		ok, err := svc.IncrementSeats(ctx, nil, lic.ID)
		require.NoError(t, err)
		require.True(t, ok)
	}
	for i := 0; i < 4; i++ {
		require.NoError(t, svc.DecrementSeats(ctx, nil, lic.ID))
	}

	current, err := svc.FindByID(ctx, lic.ID)
	require.NoError(t, err)
	require.Equal(t, 0, current.SeatsUsed)
}

func TestActivateReactivatesExistingRow(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	first, err := svc.Activate(ctx, ActivateParams{TenantID: "tenant-1", AppID: "app-1", ExpiresAt: &past})
	require.NoError(t, err)

	_, err = svc.ExpireOverdue(ctx, "tenant-1")
	require.NoError(t, err)

	second, err := svc.Activate(ctx, ActivateParams{TenantID: "tenant-1", AppID: "app-1", UserLimit: intPtr(5)})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, StatusActive, second.Status)
	require.NotNil(t, second.UserLimit)
	require.Equal(t, 5, *second.UserLimit)
}

func TestExpireOverdue(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	_, err := svc.Activate(ctx, ActivateParams{TenantID: "tenant-1", AppID: "app-1", ExpiresAt: &past})
	require.NoError(t, err)
	_, err = svc.Activate(ctx, ActivateParams{TenantID: "tenant-1", AppID: "app-2", ExpiresAt: &future})
	require.NoError(t, err)
	_, err = svc.Activate(ctx, ActivateParams{TenantID: "tenant-1", AppID: "app-3"})
	require.NoError(t, err)

	n, err := svc.ExpireOverdue(ctx, "tenant-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	licenses, err := svc.ListByTenant(ctx, "tenant-1", pagination.Pagination{})
	require.NoError(t, err)

	byApp := map[string]LicenseStatus{}
	for _, lic := range licenses {
		byApp[lic.AppID] = lic.Status
	}
	require.Equal(t, StatusExpired, byApp["app-1"])
	require.Equal(t, StatusActive, byApp["app-2"])
	require.Equal(t, StatusActive, byApp["app-3"])
}

func TestListByTenantPaginates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, app := range []string{"app-1", "app-2", "app-3"} {
		_, err := svc.Activate(ctx, ActivateParams{TenantID: "tenant-1", AppID: app})
		require.NoError(t, err)
	}

	page, err := svc.ListByTenant(ctx, "tenant-1", pagination.Pagination{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)

	rest, err := svc.ListByTenant(ctx, "tenant-1", pagination.Pagination{Offset: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, rest, 1)

	seen := map[string]bool{}
	for _, lic := range append(page, rest...) {
		seen[lic.AppID] = true
	}
	require.Len(t, seen, 3)
}

func TestTenantIDsWithActiveLicenses(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	future := time.Now().Add(time.Hour)
	_, err := svc.Activate(ctx, ActivateParams{TenantID: "tenant-1", AppID: "app-1", ExpiresAt: &future})
	require.NoError(t, err)
	_, err = svc.Activate(ctx, ActivateParams{TenantID: "tenant-2", AppID: "app-1"})
	require.NoError(t, err)

	ids, err := svc.TenantIDsWithActiveLicenses(ctx)
	require.NoError(t, err)
	// tenant-2 has no expiry and needs no sweeping.
	require.Equal(t, []string{"tenant-1"}, ids)
}
