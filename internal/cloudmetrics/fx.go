package cloudmetrics

import (
	"context"
	"runtime"
	"time"

	"github.com/tollwaylabs/tollway/internal/config"
	"github.com/tollwaylabs/tollway/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const exportLockKey = "cloudmetrics:export"

var Module = fx.Module("cloud.metrics",
	fx.Provide(NewPusher),
	fx.Provide(New),
	fx.Invoke(runExporter),
)

// New wires the accounting registry when export is configured. A nil return
// leaves the package-level recorder a noop.
func New(cfg config.Config, pusher Pusher) *Accounting {
	if !cfg.Export.Enabled || pusher == nil {
		return nil
	}
	acc := newAccounting(pusher, cfg.Export.PlatformID)
	setRecorder(acc)
	return acc
}

type exporterParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Cfg        config.Config
	Accounting *Accounting              `optional:"true"`
	DB         *gorm.DB                 `optional:"true"`
	Limiter    *ratelimit.TenantLimiter `optional:"true"`
	Log        *zap.Logger
}

func runExporter(p exporterParams) {
	if p.Accounting == nil {
		return
	}

	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}

	interval := p.Cfg.Export.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("starting platform metering export", zap.Duration("interval", interval))
			go func() {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()

				exportTick(ctx, p.Accounting, p.DB, p.Limiter, log, interval)
				for {
					select {
					case <-ticker.C:
						exportTick(ctx, p.Accounting, p.DB, p.Limiter, log, interval)
					case <-ctx.Done():
						log.Info("stopping platform metering export")
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func exportTick(ctx context.Context, acc *Accounting, db *gorm.DB, limiter *ratelimit.TenantLimiter, log *zap.Logger, interval time.Duration) {
	if limiter.Enabled() {
		// The winner holds the lock for the full interval, so each window is
		// exported by exactly one replica. Lock trouble falls back to pushing
		// from every replica; the snapshots are idempotent upstream.
		_, acquired, err := limiter.TryLock(ctx, exportLockKey, interval)
		if err != nil {
			log.Warn("metering export lock failed", zap.Error(err))
		} else if !acquired {
			return
		}
	}

	snapshotSystem(acc)
	snapshotStore(ctx, acc, db)
	if err := acc.Push(ctx); err != nil {
		log.Warn("platform metering push failed", zap.Error(err))
	}
}

func snapshotSystem(acc *Accounting) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	acc.SetMemoryUsage(m.Sys)
}

func snapshotStore(ctx context.Context, acc *Accounting, db *gorm.DB) {
	if db == nil {
		return
	}

	var tenants int64
	if err := db.WithContext(ctx).Table("tenants").Count(&tenants).Error; err == nil {
		acc.SetTenantsTotal(tenants)
	}

	var active int64
	if err := db.WithContext(ctx).Table("subscriptions").Where("status = ?", "active").Count(&active).Error; err == nil {
		acc.SetActiveSubscriptions(active)
	}

	var usage int64
	err := db.WithContext(ctx).
		Raw("SELECT COALESCE(SUM(usage_count), 0) FROM usage_records WHERE period_end > ?", time.Now().UTC()).
		Scan(&usage).Error
	if err == nil {
		acc.SetUsageCurrentTotal(usage)
	}
}
