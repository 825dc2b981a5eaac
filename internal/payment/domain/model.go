// Package domain contains the billing-event ledger and the canonical event
// shape adapters produce from provider webhooks.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord is one webhook delivery, stored before processing. The
// (provider, provider_event_id) unique index is the replay guard.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	TenantID        snowflake.ID   `json:"tenant_id" gorm:"not null;index"`
	Provider        string         `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_billing_events_provider_event,priority:1"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex:ux_billing_events_provider_event,priority:2"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	UserID          string         `json:"user_id" gorm:"type:text;not null;default:''"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

// TableName sets the database table name.
func (EventRecord) TableName() string { return "billing_events" }

const (
	EventTypeCheckoutCompleted   = "checkout_completed"
	EventTypeSubscriptionUpdated = "subscription_updated"
	EventTypeSubscriptionDeleted = "subscription_deleted"
)

const (
	CheckoutModeSubscription = "subscription"
	CheckoutModePayment      = "payment"
)

// BillingEvent is the canonical billing event parsed by adapters. Tenant and
// user attribution always comes from provider-side metadata stamped at
// checkout creation, never from anything a client can set.
type BillingEvent struct {
	Provider          string
	ProviderEventID   string
	Type              string
	TenantID          snowflake.ID
	UserID            string
	Mode              string
	Plan              string
	CheckoutMode      string
	SessionID         string
	ProviderSubID     string
	Status            string
	PriceID           string
	Amount            int64
	Currency          string
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
	CanceledAt        *time.Time
	OccurredAt        time.Time
	RawPayload        []byte
}

// LineItem is one purchased line of a completed checkout session.
type LineItem struct {
	PriceID  string `json:"price_id"`
	Quantity int64  `json:"quantity"`
}
