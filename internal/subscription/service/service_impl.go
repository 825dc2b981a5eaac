package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/tollwaylabs/tollway/internal/clock"
	subscriptiondomain "github.com/tollwaylabs/tollway/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  subscriptiondomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  subscriptiondomain.Repository
}

func New(p Params) subscriptiondomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Upsert(ctx context.Context, sub *subscriptiondomain.Subscription) (*subscriptiondomain.Subscription, error) {
	if sub == nil || sub.TenantID == 0 {
		return nil, subscriptiondomain.ErrInvalidTenant
	}
	sub.UserID = strings.TrimSpace(sub.UserID)
	sub.Plan = strings.TrimSpace(sub.Plan)
	if sub.Plan == "" {
		return nil, subscriptiondomain.ErrInvalidPlan
	}
	sub.Status = subscriptiondomain.SubscriptionStatus(
		strings.ToLower(strings.TrimSpace(string(sub.Status))),
	)
	if sub.Status == "" {
		return nil, subscriptiondomain.ErrInvalidStatus
	}
	sub.Currency = strings.ToLower(strings.TrimSpace(sub.Currency))

	now := s.clock.Now().UTC()
	if sub.ID == 0 {
		sub.ID = s.genID.Generate()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now

	if err := s.repo.Upsert(ctx, s.db, sub); err != nil {
		return nil, err
	}

	s.log.Info("subscription snapshot updated",
		zap.String("tenant_id", sub.TenantID.String()),
		zap.String("user_id", sub.UserID),
		zap.String("plan", sub.Plan),
		zap.String("status", string(sub.Status)),
	)
	return s.repo.Find(ctx, s.db, sub.TenantID, sub.UserID)
}

func (s *Service) Get(ctx context.Context, tenantID snowflake.ID, userID string) (*subscriptiondomain.Subscription, error) {
	if tenantID == 0 {
		return nil, subscriptiondomain.ErrInvalidTenant
	}
	return s.repo.Find(ctx, s.db, tenantID, strings.TrimSpace(userID))
}
