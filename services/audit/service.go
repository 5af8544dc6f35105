package audit

import (
	"context"
	"encoding/json"

	"careplane/pkg/db/option"
	"careplane/pkg/db/pagination"
	"careplane/pkg/errutil"
	"careplane/pkg/middleware"
	"careplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Sink records authorization decisions. Implementations must never fail the
// decision they record: a write failure is logged to process diagnostics and
// swallowed, on the grant path and the deny path alike.
type Sink interface {
	LogGranted(ctx context.Context, actorID, tenantID, appID string, meta middleware.RequestMeta)
	LogDenied(ctx context.Context, actorID, tenantID string, appID *string, reason errutil.Reason, meta middleware.RequestMeta)
}

type Service struct {
	node *snowflake.Node
	repo repository.Repository[DecisionLog]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		node: p.Node,
		repo: repository.ProvideStore[DecisionLog](p.DB),
	}
}

func (s *Service) LogGranted(ctx context.Context, actorID, tenantID, appID string, meta middleware.RequestMeta) {
	entry := &DecisionLog{
		ID:       s.node.Generate().String(),
		ActorID:  actorID,
		TenantID: tenantID,
		AppID:    &appID,
		Decision: DecisionGranted,
	}
	s.append(ctx, entry, meta)
}

func (s *Service) LogDenied(ctx context.Context, actorID, tenantID string, appID *string, reason errutil.Reason, meta middleware.RequestMeta) {
	code := string(reason)
	entry := &DecisionLog{
		ID:         s.node.Generate().String(),
		ActorID:    actorID,
		TenantID:   tenantID,
		AppID:      appID,
		Decision:   DecisionDenied,
		ReasonCode: &code,
	}
	s.append(ctx, entry, meta)
}

func (s *Service) append(ctx context.Context, entry *DecisionLog, meta middleware.RequestMeta) {
	if raw, err := json.Marshal(meta); err == nil {
		entry.RequestMeta = raw
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		zap.L().Error("audit write failed",
			zap.String("actor_id", entry.ActorID),
			zap.String("tenant_id", entry.TenantID),
			zap.String("decision", string(entry.Decision)),
			zap.Error(err))
	}
}

// Recent returns a page of entries for a tenant, newest first.
func (s *Service) Recent(ctx context.Context, tenantID string, p pagination.Pagination) ([]*DecisionLog, error) {
	if p.Limit <= 0 || p.Limit > 250 {
		p.Limit = 50
	}
	return s.repo.Find(ctx, &DecisionLog{TenantID: tenantID},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}),
		option.ApplyPagination(p),
	)
}
