// Package domain contains the local snapshot of provider-managed subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SubscriptionStatus mirrors the payment provider's lifecycle states
// verbatim; rows store whatever the provider last sent.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusUnpaid   SubscriptionStatus = "unpaid"
)

// Usable reports whether the status still entitles the user to the plan.
func (s SubscriptionStatus) Usable() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing
}

// Subscription is the local mirror of one user's billing agreement. The
// provider is the source of truth; webhook deliveries overwrite the row
// wholesale, so no field here is authored locally.
type Subscription struct {
	ID                snowflake.ID       `gorm:"primaryKey"`
	TenantID          snowflake.ID       `gorm:"column:tenant_id;not null;uniqueIndex:ux_subscriptions_tenant_user,priority:1"`
	UserID            string             `gorm:"column:user_id;type:text;not null;default:'';uniqueIndex:ux_subscriptions_tenant_user,priority:2"`
	ProviderID        string             `gorm:"column:provider_id;type:text;not null;default:''"`
	Plan              string             `gorm:"type:text;not null"`
	Status            SubscriptionStatus `gorm:"type:text;not null"`
	PriceID           string             `gorm:"column:price_id;type:text;not null;default:''"`
	Amount            int64              `gorm:"not null;default:0"`
	Currency          string             `gorm:"type:text;not null;default:''"`
	CurrentPeriodEnd  *time.Time         `gorm:"column:current_period_end"`
	CancelAtPeriodEnd bool               `gorm:"column:cancel_at_period_end;not null;default:false"`
	CanceledAt        *time.Time         `gorm:"column:canceled_at"`
	CreatedAt         time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }
