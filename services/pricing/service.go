package pricing

import (
	"context"
	"fmt"
	"time"

	"careplane/pkg/errutil"
	"careplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	repo repository.Repository[Entry]
	now  func() time.Time
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
		repo: repository.ProvideStore[Entry](p.DB),
		now:  time.Now,
	}
}

// GetCurrentPrice returns the entry whose validity window contains now, or
// nil when the pair has no configured price.
func (s *Service) GetCurrentPrice(ctx context.Context, appID, userTypeID string) (*Entry, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	now := s.now()

	var entry Entry
	err := s.db.WithContext(ctx).
		Where("app_id = ? AND user_type_id = ?", appID, userTypeID).
		Where("valid_from <= ?", now).
		Where("valid_to IS NULL OR valid_to > ?", now).
		First(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		zap.L().Error("failed to query current price",
			zap.String("app_id", appID),
			zap.String("user_type_id", userTypeID),
			zap.Error(err))
		return nil, err
	}

	return &entry, nil
}

type ScheduleParams struct {
	AppID        string
	UserTypeID   string
	Price        decimal.Decimal
	Currency     string
	BillingCycle BillingCycle
	ValidFrom    time.Time
	ValidTo      *time.Time
	CreatedBy    string
}

// SchedulePrice inserts a dated pricing entry. Windows for one
// (application, user type) pair may never overlap; history is superseded,
// not rewritten.
func (s *Service) SchedulePrice(ctx context.Context, params ScheduleParams) (*Entry, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if params.Price.IsNegative() {
		return nil, errutil.ValidationFailed(errutil.ReasonInvalidPrice,
			fmt.Sprintf("price must be non-negative, got %s", params.Price))
	}
	if params.Currency == "" || len(params.Currency) != 3 {
		return nil, errutil.ValidationFailed(errutil.ReasonInvalidPrice, "currency must be a 3-letter code")
	}
	if params.ValidTo != nil && !params.ValidTo.After(params.ValidFrom) {
		return nil, errutil.ValidationFailed(errutil.ReasonInvalidPrice, "valid_to must be after valid_from")
	}

	overlap, err := s.findOverlap(ctx, params)
	if err != nil {
		zap.L().Error("failed to check pricing window overlap", zap.Error(err))
		return nil, err
	}
	if overlap != nil {
		return nil, errutil.Conflict(errutil.ReasonInvalidPrice,
			fmt.Sprintf("pricing window overlaps entry %s effective %s",
				overlap.ID, overlap.ValidFrom.Format(time.RFC3339)))
	}

	entry := &Entry{
		ID:           s.node.Generate().String(),
		AppID:        params.AppID,
		UserTypeID:   params.UserTypeID,
		Price:        params.Price,
		Currency:     params.Currency,
		BillingCycle: params.BillingCycle,
		ValidFrom:    params.ValidFrom,
		ValidTo:      params.ValidTo,
		CreatedBy:    params.CreatedBy,
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		zap.L().Error("failed to create pricing entry", zap.Error(err))
		return nil, err
	}

	return entry, nil
}

// findOverlap returns any existing entry whose window intersects the
// candidate window. An open-ended window extends to infinity.
func (s *Service) findOverlap(ctx context.Context, params ScheduleParams) (*Entry, error) {
	q := s.db.WithContext(ctx).
		Where("app_id = ? AND user_type_id = ?", params.AppID, params.UserTypeID)

	if params.ValidTo != nil {
		q = q.Where("valid_from < ?", *params.ValidTo)
	}
	q = q.Where("valid_to IS NULL OR valid_to > ?", params.ValidFrom)

	var entry Entry
	err := q.First(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}
