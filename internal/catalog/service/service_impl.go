package service

import (
	"context"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/tollwaylabs/tollway/internal/catalog/domain"
	"github.com/tollwaylabs/tollway/internal/config"
	usagedomain "github.com/tollwaylabs/tollway/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Holder *config.CatalogConfigHolder
	Repo   catalogdomain.Repository
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	holder *config.CatalogConfigHolder
	repo   catalogdomain.Repository
}

func New(p Params) catalogdomain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("catalog.service"),
		holder: p.Holder,
		repo:   p.Repo,
	}
}

func (s *Service) GetLimit(ctx context.Context, tenantID snowflake.ID, plan string) (usagedomain.Limit, error) {
	tiers, err := s.effectiveTiers(ctx, tenantID)
	if err != nil {
		return usagedomain.Bounded(0), err
	}

	plan = strings.ToLower(strings.TrimSpace(plan))
	if plan != "" {
		for _, tier := range tiers {
			if strings.ToLower(tier.Plan) == plan {
				return tier.Limit, nil
			}
		}
		s.log.Debug("unknown plan, using default tier",
			zap.String("tenant_id", tenantID.String()),
			zap.String("plan", plan),
		)
	}
	return tiers[0].Limit, nil
}

func (s *Service) DefaultPlan(ctx context.Context, tenantID snowflake.ID) (string, error) {
	tiers, err := s.effectiveTiers(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return tiers[0].Plan, nil
}

func (s *Service) Tiers(ctx context.Context, tenantID snowflake.ID) ([]catalogdomain.Tier, error) {
	return s.effectiveTiers(ctx, tenantID)
}

// effectiveTiers merges platform defaults with tenant overrides, cheapest
// first. Always returns at least one tier or an error.
func (s *Service) effectiveTiers(ctx context.Context, tenantID snowflake.ID) ([]catalogdomain.Tier, error) {
	byPlan := make(map[string]catalogdomain.Tier)
	order := make([]string, 0, 8)

	for _, def := range s.holder.Get().Tiers {
		key := strings.ToLower(strings.TrimSpace(def.Plan))
		if key == "" {
			continue
		}
		if _, seen := byPlan[key]; !seen {
			order = append(order, key)
		}
		byPlan[key] = catalogdomain.Tier{
			Plan:        strings.TrimSpace(def.Plan),
			PriceAmount: def.PriceAmount,
			Currency:    def.Currency,
			Limit:       usagedomain.LimitFromPtr(def.Limit),
		}
	}

	if tenantID != 0 {
		records, err := s.repo.ListByTenant(ctx, s.db, tenantID)
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			key := strings.ToLower(strings.TrimSpace(record.Plan))
			if key == "" {
				continue
			}
			if _, seen := byPlan[key]; !seen {
				order = append(order, key)
			}
			byPlan[key] = catalogdomain.Tier{
				Plan:        strings.TrimSpace(record.Plan),
				PriceAmount: record.PriceAmount,
				Currency:    record.Currency,
				Limit:       usagedomain.LimitFromPtr(record.UsageLimit),
			}
		}
	}

	if len(byPlan) == 0 {
		return nil, catalogdomain.ErrEmptyCatalog
	}

	tiers := make([]catalogdomain.Tier, 0, len(order))
	for _, key := range order {
		tiers = append(tiers, byPlan[key])
	}
	sort.SliceStable(tiers, func(i, j int) bool {
		if tiers[i].PriceAmount != tiers[j].PriceAmount {
			return tiers[i].PriceAmount < tiers[j].PriceAmount
		}
		return tiers[i].Plan < tiers[j].Plan
	})
	return tiers, nil
}
