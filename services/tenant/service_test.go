package tenant

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"careplane/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &Tenant{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParams{DB: db, Node: node})
}

func TestCreateNormalizesSlug(t *testing.T) {
	svc := newTestService(t)

	tn, err := svc.Create(context.Background(), "Clínica São Paulo", "")
	require.NoError(t, err)
	require.Equal(t, "clinica-sao-paulo", tn.Slug)
	require.Equal(t, Active, tn.Status)
}

func TestCreateExistingSlugReturnsExisting(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, "Clinic One", "clinic-one")
	require.NoError(t, err)

	second, err := svc.Create(ctx, "Clinic One Again", "clinic-one")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestFindByIDAbsent(t *testing.T) {
	svc := newTestService(t)

	tn, err := svc.FindByID(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, tn)
}
