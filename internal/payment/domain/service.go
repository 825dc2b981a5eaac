package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// IngestWebhook verifies, records and reconciles one provider delivery.
	// Replayed deliveries and ignored event types return nil so the provider
	// stops redelivering.
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}

// AdapterConfig carries platform-level provider settings. Per-tenant access
// tokens live on the tenant row and reach the adapter per call.
type AdapterConfig struct {
	WebhookSecret   string
	APIBaseURL      string
	TestAccessToken string
	LiveAccessToken string
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (Adapter, error)
}

type Adapter interface {
	// Verify checks the delivery signature against the raw body. It must run
	// before anything derived from the payload is trusted.
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	// Parse maps a raw delivery to the canonical event, or ErrEventIgnored
	// for types this system does not act on.
	Parse(ctx context.Context, payload []byte) (*BillingEvent, error)
	// FetchLineItems fetches the purchased lines of a checkout session.
	// A blank accessToken falls back to the platform token for the mode.
	FetchLineItems(ctx context.Context, mode, sessionID, accessToken string) ([]LineItem, error)
}

type Repository interface {
	// InsertEvent records a delivery; reports false on (provider, event id) replay.
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}

var (
	ErrInvalidProvider  = errors.New("invalid_provider")
	ErrProviderNotFound = errors.New("provider_not_found")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrEventIgnored     = errors.New("event_ignored")
	ErrMissingMetadata  = errors.New("missing_metadata")
	ErrNotConfigured    = errors.New("payment_not_configured")
	ErrUpstream         = errors.New("payment_upstream_failed")
)
