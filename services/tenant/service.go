package tenant

import (
	"context"

	"careplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	gosimple "github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	repo repository.Repository[Tenant]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,
		repo: repository.ProvideStore[Tenant](p.DB),
	}
}

// FindByID returns the tenant or nil when it does not exist.
func (s *Service) FindByID(ctx context.Context, id string) (*Tenant, error) {
	t, err := s.repo.FindOne(ctx, &Tenant{ID: id})
	if err != nil {
		zap.L().Error("failed to query tenant", zap.String("tenant_id", id), zap.Error(err))
		return nil, err
	}
	return t, nil
}

// Create registers a new tenant with a normalized, unique slug.
func (s *Service) Create(ctx context.Context, name, slugName string) (*Tenant, error) {
	if slugName == "" {
		slugName = name
	}
	slugName = gosimple.Make(slugName)

	exist, err := s.repo.FindOne(ctx, &Tenant{Slug: slugName})
	if err != nil {
		zap.L().Error("failed query get tenant by slug", zap.Error(err))
		return nil, err
	}
	if exist != nil {
		zap.L().Warn("tenant already exists", zap.String("slug", slugName))
		return exist, nil
	}

	t := &Tenant{
		ID:     s.node.Generate().String(),
		Name:   name,
		Slug:   slugName,
		Status: Active,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}
