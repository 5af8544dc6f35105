package application

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

	db := testutil.NewTestDB(t, &Application{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParams{DB: db, Node: node})
}

func TestRegisterNormalizesSlug(t *testing.T) {
	svc := newTestService(t)

	app, err := svc.Register(context.Background(), "Practice Management", "Practice Management", nil)
	require.NoError(t, err)
	require.Equal(t, "practice-management", app.Slug)
	require.True(t, app.Active)
}

func TestResolveSlugIsCaseInsensitive(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, "Transcription & Quoting", "tq", []string{"transcribe"})
	require.NoError(t, err)

	app, err := svc.ResolveSlug(ctx, "TQ")
	require.NoError(t, err)
	require.NotNil(t, app)
	require.Equal(t, reg.ID, app.ID)
}

func TestResolveSlugUnknown(t *testing.T) {
	svc := newTestService(t)

	app, err := svc.ResolveSlug(context.Background(), "ghost")
	require.NoError(t, err)
	require.Nil(t, app)
}

func TestResolveSlugInactiveApplication(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, "Legacy Billing", "billing", nil)
	require.NoError(t, err)

	require.NoError(t, svc.db.Model(&Application{}).
		Where("id = ?", reg.ID).
		Update("active", false).Error)

	app, err := svc.ResolveSlug(ctx, "billing")
	require.NoError(t, err)
	require.Nil(t, app)
}
