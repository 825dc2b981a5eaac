package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// TierDefinition is one platform-default pricing tier. Limit nil means
// unlimited usage.
type TierDefinition struct {
	Plan        string `mapstructure:"plan"`
	PriceAmount int64  `mapstructure:"price_amount"`
	Currency    string `mapstructure:"currency"`
	Limit       *int64 `mapstructure:"limit"`
}

// CatalogConfig is the platform-default tier catalog. Tenants override
// individual tiers with their own rows.
type CatalogConfig struct {
	Tiers []TierDefinition `mapstructure:"tiers"`
}

func DefaultCatalogConfig() CatalogConfig {
	return CatalogConfig{
		Tiers: []TierDefinition{
			{Plan: "free", PriceAmount: 0, Currency: "usd", Limit: int64Ptr(100)},
			{Plan: "starter", PriceAmount: 900, Currency: "usd", Limit: int64Ptr(10_000)},
			{Plan: "growth", PriceAmount: 2_900, Currency: "usd", Limit: int64Ptr(100_000)},
			{Plan: "scale", PriceAmount: 9_900, Currency: "usd", Limit: nil},
		},
	}
}

func int64Ptr(v int64) *int64 { return &v }

// LowestPriced returns the cheapest tier; ties break on plan name for
// determinism.
func (c CatalogConfig) LowestPriced() (TierDefinition, bool) {
	if len(c.Tiers) == 0 {
		return TierDefinition{}, false
	}
	lowest := c.Tiers[0]
	for _, tier := range c.Tiers[1:] {
		if tier.PriceAmount < lowest.PriceAmount ||
			(tier.PriceAmount == lowest.PriceAmount && tier.Plan < lowest.Plan) {
			lowest = tier
		}
	}
	return lowest, true
}

// Tier looks up a tier by plan name.
func (c CatalogConfig) Tier(plan string) (TierDefinition, bool) {
	plan = strings.ToLower(strings.TrimSpace(plan))
	for _, tier := range c.Tiers {
		if strings.ToLower(tier.Plan) == plan {
			return tier, true
		}
	}
	return TierDefinition{}, false
}

// CatalogConfigHolder hot-reloads the catalog file.
type CatalogConfigHolder struct {
	current atomic.Value // holds CatalogConfig
}

func NewCatalogConfigHolder() (*CatalogConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("catalog")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/tollway/config")
	v.AddConfigPath("/etc/tollway")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TOLLWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := DefaultCatalogConfig()
	fromFile := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	} else {
		fromFile = true
		if err := v.UnmarshalKey("catalog", &cfg); err != nil {
			return nil, err
		}
	}
	if err := validateCatalogConfig(cfg); err != nil {
		return nil, err
	}

	holder := &CatalogConfigHolder{}
	holder.current.Store(cfg)

	if fromFile {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated CatalogConfig
			if err := v.UnmarshalKey("catalog", &updated); err != nil {
				log.Printf("[catalog-config] reload failed: %v", err)
				return
			}
			if err := validateCatalogConfig(updated); err != nil {
				log.Printf("[catalog-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[catalog-config] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

func (h *CatalogConfigHolder) Get() CatalogConfig {
	return h.current.Load().(CatalogConfig)
}

// Store replaces the current catalog; exported for tests.
func (h *CatalogConfigHolder) Store(cfg CatalogConfig) {
	h.current.Store(cfg)
}

func validateCatalogConfig(cfg CatalogConfig) error {
	if len(cfg.Tiers) == 0 {
		return errors.New("catalog.tiers cannot be empty")
	}
	seen := map[string]bool{}
	for _, tier := range cfg.Tiers {
		plan := strings.ToLower(strings.TrimSpace(tier.Plan))
		if plan == "" {
			return errors.New("catalog.tiers entry missing plan")
		}
		if seen[plan] {
			return fmt.Errorf("catalog.tiers duplicate plan %q", plan)
		}
		seen[plan] = true
		if tier.PriceAmount < 0 {
			return fmt.Errorf("catalog.tiers plan %q has negative price", plan)
		}
		if tier.Limit != nil && *tier.Limit < 0 {
			return fmt.Errorf("catalog.tiers plan %q has negative limit", plan)
		}
	}
	return nil
}
