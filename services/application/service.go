package application

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
	repo repository.Repository[Application]
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
		repo: repository.ProvideStore[Application](p.DB),
	}
}

// ResolveSlug returns the active application registered under slug, or nil
// when no such application exists.
func (s *Service) ResolveSlug(ctx context.Context, appSlug string) (*Application, error) {
	app, err := s.repo.FindOne(ctx, &Application{Slug: gosimple.Make(appSlug)})
	if err != nil {
		zap.L().Error("failed to resolve application slug", zap.String("slug", appSlug), zap.Error(err))
		return nil, err
	}
	if app == nil || !app.Active {
		return nil, nil
	}
	return app, nil
}

// Register adds a new application to the catalogue. Slugs are normalized so
// lookups are stable regardless of how operators type them.
func (s *Service) Register(ctx context.Context, name, appSlug string, features []string) (*Application, error) {
	if appSlug == "" {
		appSlug = name
	}

	app := &Application{
		ID:       s.node.Generate().String(),
		Slug:     gosimple.Make(appSlug),
		Name:     name,
		Features: features,
		Active:   true,
	}

	if err := s.repo.Create(ctx, app); err != nil {
		zap.L().Error("failed to register application", zap.String("slug", app.Slug), zap.Error(err))
		return nil, err
	}

	return app, nil
}
