package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/tollwaylabs/tollway/internal/clock"
	inventorydomain "github.com/tollwaylabs/tollway/internal/inventory/domain"
	obsmetrics "github.com/tollwaylabs/tollway/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    inventorydomain.Repository
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    inventorydomain.Repository
	metrics *obsmetrics.Metrics
}

func New(p Params) inventorydomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("inventory.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (s *Service) Decrement(ctx context.Context, req inventorydomain.DecrementRequest) (*inventorydomain.InventoryItem, error) {
	tenantID, priceID, mode, err := normalizeKey(req.TenantID, req.PriceID, req.Mode)
	if err != nil {
		return nil, err
	}
	quantity := req.Quantity
	if quantity < 1 {
		quantity = 1
	}

	matched, err := s.repo.DecrementClamped(ctx, s.db, tenantID, priceID, mode, quantity, s.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !matched {
		return nil, inventorydomain.ErrNotFound
	}

	item, err := s.repo.Find(ctx, s.db, tenantID, priceID, mode)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, inventorydomain.ErrNotFound
	}

	if s.metrics != nil {
		s.metrics.RecordInventoryUpdate(ctx, mode)
	}
	if item.SoldOut {
		s.log.Info("inventory sold out",
			zap.String("tenant_id", tenantID.String()),
			zap.String("price_id", priceID),
			zap.String("mode", mode),
		)
	}
	return item, nil
}

func (s *Service) Seed(ctx context.Context, req inventorydomain.SeedRequest) (*inventorydomain.InventoryItem, error) {
	tenantID, priceID, mode, err := normalizeKey(req.TenantID, req.PriceID, req.Mode)
	if err != nil {
		return nil, err
	}
	quantity := req.Quantity
	if quantity < 0 {
		quantity = 0
	}

	now := s.clock.Now().UTC()
	item := &inventorydomain.InventoryItem{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		PriceID:   priceID,
		Mode:      mode,
		Quantity:  quantity,
		SoldOut:   quantity == 0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Upsert(ctx, s.db, item); err != nil {
		return nil, err
	}
	return s.repo.Find(ctx, s.db, tenantID, priceID, mode)
}

func (s *Service) Get(ctx context.Context, tenantID snowflake.ID, priceID, mode string) (*inventorydomain.InventoryItem, error) {
	tenantID, priceID, mode, err := normalizeKey(tenantID, priceID, mode)
	if err != nil {
		return nil, err
	}
	return s.repo.Find(ctx, s.db, tenantID, priceID, mode)
}

func normalizeKey(tenantID snowflake.ID, priceID, mode string) (snowflake.ID, string, string, error) {
	if tenantID == 0 {
		return 0, "", "", inventorydomain.ErrInvalidTenant
	}
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return 0, "", "", inventorydomain.ErrInvalidPrice
	}
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = "test"
	}
	return tenantID, priceID, mode, nil
}
