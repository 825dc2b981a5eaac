package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	credentialdomain "github.com/tollwaylabs/tollway/internal/credential/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() credentialdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, credential *credentialdomain.Credential) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO credentials (
			id, tenant_id, publishable_key, secret_hash, mode, project_type,
			scopes, is_active, rotated_from_id, expires_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		credential.ID,
		credential.TenantID,
		credential.PublishableKey,
		credential.SecretHash,
		credential.Mode,
		credential.ProjectType,
		credential.Scopes,
		credential.IsActive,
		credential.RotatedFromID,
		credential.ExpiresAt,
		credential.CreatedAt,
		credential.UpdatedAt,
	).Error
}

func (r *repo) FindBySecretHash(ctx context.Context, db *gorm.DB, secretHash string) (*credentialdomain.Credential, error) {
	var credential credentialdomain.Credential
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, publishable_key, secret_hash, mode, project_type,
			scopes, is_active, rotated_from_id, expires_at, created_at, updated_at
		 FROM credentials WHERE secret_hash = ? LIMIT 1`,
		secretHash,
	).Scan(&credential).Error
	if err != nil {
		return nil, err
	}
	if credential.ID == 0 {
		return nil, nil
	}
	return &credential, nil
}

func (r *repo) FindByPublishableKey(ctx context.Context, db *gorm.DB, publishableKey string) (*credentialdomain.Credential, error) {
	var credential credentialdomain.Credential
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, publishable_key, secret_hash, mode, project_type,
			scopes, is_active, rotated_from_id, expires_at, created_at, updated_at
		 FROM credentials WHERE publishable_key = ? LIMIT 1`,
		publishableKey,
	).Scan(&credential).Error
	if err != nil {
		return nil, err
	}
	if credential.ID == 0 {
		return nil, nil
	}
	return &credential, nil
}

func (r *repo) ExpireAt(ctx context.Context, db *gorm.DB, id snowflake.ID, expiresAt, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE credentials SET expires_at = ?, updated_at = ? WHERE id = ?`,
		expiresAt,
		updatedAt,
		id,
	).Error
}
