package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	tenantdomain "github.com/tollwaylabs/tollway/internal/tenant/domain"
	pkgdb "github.com/tollwaylabs/tollway/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  tenantdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  tenantdomain.Repository
}

func New(p Params) tenantdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("tenant.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Ensure(ctx context.Context, req tenantdomain.EnsureRequest) (*tenantdomain.Tenant, error) {
	externalID := strings.TrimSpace(req.ExternalID)
	if externalID == "" {
		return nil, tenantdomain.ErrInvalidExternalID
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, tenantdomain.ErrInvalidName
	}

	existing, err := s.repo.FindByExternalID(ctx, s.db, externalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now().UTC()
	id := s.genID.Generate()
	tenant := &tenantdomain.Tenant{
		ID:         id,
		ExternalID: externalID,
		Name:       name,
		Slug:       slug.Make(name),
		Metadata:   datatypes.JSONMap{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.Insert(ctx, s.db, tenant); err != nil {
		if !pkgdb.IsDuplicateKeyErr(err) {
			return nil, err
		}
		// Either a concurrent first login won, or the slug is taken.
		existing, findErr := s.repo.FindByExternalID(ctx, s.db, externalID)
		if findErr != nil {
			return nil, findErr
		}
		if existing != nil {
			return existing, nil
		}
		tenant.Slug = slug.Make(name) + "-" + strings.ToLower(strconv.FormatInt(int64(id), 36))
		if err := s.repo.Insert(ctx, s.db, tenant); err != nil {
			if !pkgdb.IsDuplicateKeyErr(err) {
				return nil, err
			}
			existing, findErr = s.repo.FindByExternalID(ctx, s.db, externalID)
			if findErr != nil {
				return nil, findErr
			}
			if existing == nil {
				return nil, err
			}
			return existing, nil
		}
	}

	s.log.Info("tenant created",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("slug", tenant.Slug),
	)
	return tenant, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*tenantdomain.Tenant, error) {
	if id == 0 {
		return nil, tenantdomain.ErrNotFound
	}
	tenant, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, tenantdomain.ErrNotFound
	}
	return tenant, nil
}

func (s *Service) SetMetadataKey(ctx context.Context, id snowflake.ID, key string, value any) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	tenant, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	metadata := tenant.Metadata
	if metadata == nil {
		metadata = datatypes.JSONMap{}
	}
	metadata[key] = value
	return s.repo.UpdateMetadata(ctx, s.db, id, metadata)
}
