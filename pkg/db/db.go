package db

import (
	"context"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	gormprometheus "gorm.io/plugin/prometheus"
)

// Module provides the authoritative gorm store.
var Module = fx.Module("db",
	fx.Provide(New),
)

// Params collects the dependencies for opening the store.
type Params struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Config     Config
	Logger     *zap.Logger
	GormLogger gormlogger.Interface `optional:"true"`
}

// New opens the configured database, registers tracing and metrics plugins,
// and ties connection lifecycle to the fx app.
func New(p Params) (*gorm.DB, error) {
	dialector, err := Dialect(p.Config)
	if err != nil {
		return nil, err
	}

	gormCfg := &gorm.Config{TranslateError: true}
	if p.GormLogger != nil {
		gormCfg.Logger = p.GormLogger
	}

	conn, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, err
	}

	if err := conn.Use(otelgorm.NewPlugin(otelgorm.WithDBName(p.Config.Name))); err != nil {
		return nil, err
	}
	if err := conn.Use(gormprometheus.New(gormprometheus.Config{
		DBName:          p.Config.Name,
		RefreshInterval: 15,
	})); err != nil {
		return nil, err
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if p.Config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(p.Config.MaxIdleConns)
	}
	if p.Config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(p.Config.MaxOpenConns)
	}
	if p.Config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(p.Config.ConnMaxLifetime)
	}
	if p.Config.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(p.Config.ConnMaxIdleTime)
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := sqlDB.PingContext(pingCtx); err != nil {
				return err
			}
			p.Logger.Info("database connected",
				zap.String("type", p.Config.Type),
				zap.String("name", p.Config.Name),
			)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			_ = ctx
			p.Logger.Info("closing database")
			return sqlDB.Close()
		},
	})

	return conn, nil
}
