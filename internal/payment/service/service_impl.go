package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/tollwaylabs/tollway/internal/catalog/domain"
	"github.com/tollwaylabs/tollway/internal/clock"
	"github.com/tollwaylabs/tollway/internal/config"
	identitydomain "github.com/tollwaylabs/tollway/internal/identity/domain"
	inventorydomain "github.com/tollwaylabs/tollway/internal/inventory/domain"
	obsmetrics "github.com/tollwaylabs/tollway/internal/observability/metrics"
	"github.com/tollwaylabs/tollway/internal/payment/adapters"
	paymentdomain "github.com/tollwaylabs/tollway/internal/payment/domain"
	subscriptiondomain "github.com/tollwaylabs/tollway/internal/subscription/domain"
	tenantdomain "github.com/tollwaylabs/tollway/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Config        config.Config
	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Adapters      *adapters.Registry
	Repo          paymentdomain.Repository
	Tenants       tenantdomain.Service
	Subscriptions subscriptiondomain.Service
	Inventory     inventorydomain.Service
	Identity      identitydomain.Service
	Catalog       catalogdomain.Service
	Metrics       *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	adapters      *adapters.Registry
	adapterCfg    paymentdomain.AdapterConfig
	repo          paymentdomain.Repository
	tenants       tenantdomain.Service
	subscriptions subscriptiondomain.Service
	inventory     inventorydomain.Service
	identity      identitydomain.Service
	catalog       catalogdomain.Service
	metrics       *obsmetrics.Metrics
}

func New(p Params) paymentdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payment.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		adapters: p.Adapters,
		adapterCfg: paymentdomain.AdapterConfig{
			WebhookSecret:   p.Config.Payment.WebhookSecret,
			APIBaseURL:      p.Config.Payment.APIBaseURL,
			TestAccessToken: p.Config.Payment.TestAccessToken,
			LiveAccessToken: p.Config.Payment.LiveAccessToken,
		},
		repo:          p.Repo,
		tenants:       p.Tenants,
		subscriptions: p.Subscriptions,
		inventory:     p.Inventory,
		identity:      p.Identity,
		catalog:       p.Catalog,
		metrics:       p.Metrics,
	}
}

func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	if s.adapters == nil || !s.adapters.ProviderExists(provider) {
		return paymentdomain.ErrProviderNotFound
	}

	adapter, err := s.adapters.NewAdapter(provider, s.adapterCfg)
	if err != nil {
		return err
	}

	// Signature first: nothing in the body is trusted until the delivery
	// proves it came from the provider.
	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.recordWebhook(ctx, provider, "unknown", "signature_invalid")
		return err
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			s.log.Debug("billing event type ignored", zap.String("provider", provider))
			s.recordWebhook(ctx, provider, "ignored", "ack")
			return nil
		}
		if errors.Is(err, paymentdomain.ErrMissingMetadata) {
			s.log.Warn("billing event missing tenant attribution", zap.String("provider", provider))
			s.recordWebhook(ctx, provider, "unknown", "missing_metadata")
		}
		return err
	}

	if err := s.reconcile(ctx, adapter, event, payload); err != nil {
		s.recordWebhook(ctx, provider, event.Type, "error")
		return err
	}
	s.recordWebhook(ctx, provider, event.Type, "ok")
	return nil
}

func (s *Service) reconcile(ctx context.Context, adapter paymentdomain.Adapter, event *paymentdomain.BillingEvent, payload []byte) error {
	if err := validateEvent(event); err != nil {
		return err
	}

	now := s.clock.Now().UTC()
	received := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		TenantID:        event.TenantID,
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		UserID:          event.UserID,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return err
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			// Replay of a processed delivery: ack without re-running effects.
			s.log.Info("billing event replay acknowledged",
				zap.String("provider", event.Provider),
				zap.String("provider_event_id", event.ProviderEventID),
			)
			return nil
		}
	}

	if err := s.dispatch(ctx, adapter, event); err != nil {
		return err
	}

	return s.repo.MarkProcessed(ctx, s.db, stored.ID, s.clock.Now().UTC())
}

func validateEvent(event *paymentdomain.BillingEvent) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	if event.ProviderEventID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	event.Type = strings.TrimSpace(event.Type)
	if event.Type == "" {
		return paymentdomain.ErrInvalidEvent
	}
	if event.TenantID == 0 {
		return paymentdomain.ErrMissingMetadata
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, adapter paymentdomain.Adapter, event *paymentdomain.BillingEvent) error {
	switch event.Type {
	case paymentdomain.EventTypeCheckoutCompleted:
		if event.CheckoutMode == paymentdomain.CheckoutModePayment {
			return s.settleOneTimePurchase(ctx, adapter, event)
		}
		return s.activateSubscription(ctx, event)
	case paymentdomain.EventTypeSubscriptionUpdated:
		return s.mirrorSubscription(ctx, event)
	case paymentdomain.EventTypeSubscriptionDeleted:
		return s.downgradeSubscription(ctx, event)
	default:
		return paymentdomain.ErrInvalidEvent
	}
}

// activateSubscription handles a completed subscription checkout: the user
// paid, so the snapshot goes active and the plan is mirrored to the identity
// provider where session tokens pick it up.
func (s *Service) activateSubscription(ctx context.Context, event *paymentdomain.BillingEvent) error {
	plan, err := s.effectivePlan(ctx, event)
	if err != nil {
		return err
	}

	if _, err := s.subscriptions.Upsert(ctx, &subscriptiondomain.Subscription{
		TenantID:         event.TenantID,
		UserID:           event.UserID,
		ProviderID:       event.ProviderSubID,
		Plan:             plan,
		Status:           subscriptiondomain.SubscriptionStatusActive,
		PriceID:          event.PriceID,
		Amount:           event.Amount,
		Currency:         event.Currency,
		CurrentPeriodEnd: event.CurrentPeriodEnd,
	}); err != nil {
		return err
	}

	return s.mirrorPlanToIdentity(ctx, event.UserID, plan, string(subscriptiondomain.SubscriptionStatusActive))
}

// mirrorSubscription overwrites the snapshot with whatever the provider now
// says the subscription is.
func (s *Service) mirrorSubscription(ctx context.Context, event *paymentdomain.BillingEvent) error {
	plan, err := s.effectivePlan(ctx, event)
	if err != nil {
		return err
	}

	if _, err := s.subscriptions.Upsert(ctx, &subscriptiondomain.Subscription{
		TenantID:          event.TenantID,
		UserID:            event.UserID,
		ProviderID:        event.ProviderSubID,
		Plan:              plan,
		Status:            subscriptiondomain.SubscriptionStatus(event.Status),
		PriceID:           event.PriceID,
		Amount:            event.Amount,
		Currency:          event.Currency,
		CurrentPeriodEnd:  event.CurrentPeriodEnd,
		CancelAtPeriodEnd: event.CancelAtPeriodEnd,
		CanceledAt:        event.CanceledAt,
	}); err != nil {
		return err
	}

	return s.mirrorPlanToIdentity(ctx, event.UserID, plan, event.Status)
}

// downgradeSubscription handles provider-side cancellation: the snapshot is
// marked canceled and the user drops to the cheapest tier.
func (s *Service) downgradeSubscription(ctx context.Context, event *paymentdomain.BillingEvent) error {
	defaultPlan, err := s.catalog.DefaultPlan(ctx, event.TenantID)
	if err != nil {
		return err
	}

	canceledAt := event.CanceledAt
	if canceledAt == nil {
		now := s.clock.Now().UTC()
		canceledAt = &now
	}

	if _, err := s.subscriptions.Upsert(ctx, &subscriptiondomain.Subscription{
		TenantID:   event.TenantID,
		UserID:     event.UserID,
		ProviderID: event.ProviderSubID,
		Plan:       defaultPlan,
		Status:     subscriptiondomain.SubscriptionStatusCanceled,
		CanceledAt: canceledAt,
	}); err != nil {
		return err
	}

	return s.mirrorPlanToIdentity(ctx, event.UserID, defaultPlan, string(subscriptiondomain.SubscriptionStatusCanceled))
}

// settleOneTimePurchase consumes inventory for each purchased line. The
// session's line items come from the provider API with the tenant's own
// access token when one is stored.
func (s *Service) settleOneTimePurchase(ctx context.Context, adapter paymentdomain.Adapter, event *paymentdomain.BillingEvent) error {
	var token string
	if tenant, err := s.tenants.GetByID(ctx, event.TenantID); err == nil && tenant != nil {
		token = tenant.PaymentAccessToken(event.Mode)
	} else if err != nil {
		s.log.Warn("tenant lookup failed, falling back to platform token",
			zap.String("tenant_id", event.TenantID.String()),
			zap.Error(err),
		)
	}

	items, err := adapter.FetchLineItems(ctx, event.Mode, event.SessionID, token)
	if err != nil {
		return err
	}

	for _, item := range items {
		if _, err := s.inventory.Decrement(ctx, inventorydomain.DecrementRequest{
			TenantID: event.TenantID,
			PriceID:  item.PriceID,
			Mode:     event.Mode,
			Quantity: item.Quantity,
		}); err != nil {
			if errors.Is(err, inventorydomain.ErrNotFound) {
				s.log.Warn("purchased price has no tracked inventory",
					zap.String("tenant_id", event.TenantID.String()),
					zap.String("price_id", item.PriceID),
					zap.String("mode", event.Mode),
				)
				continue
			}
			return err
		}
	}
	return nil
}

// effectivePlan prefers the plan stamped on the event; deliveries without
// one fall back to the tenant's cheapest tier.
func (s *Service) effectivePlan(ctx context.Context, event *paymentdomain.BillingEvent) (string, error) {
	plan := strings.TrimSpace(event.Plan)
	if plan != "" {
		return plan, nil
	}
	defaultPlan, err := s.catalog.DefaultPlan(ctx, event.TenantID)
	if err != nil {
		return "", err
	}
	s.log.Warn("billing event carries no plan, using default tier",
		zap.String("tenant_id", event.TenantID.String()),
		zap.String("provider_event_id", event.ProviderEventID),
		zap.String("plan", defaultPlan),
	)
	return defaultPlan, nil
}

// mirrorPlanToIdentity writes the plan into the user's identity-provider
// metadata so freshly minted session tokens carry it. A failure fails the
// reconcile: the provider redelivers and the snapshot upsert is idempotent.
func (s *Service) mirrorPlanToIdentity(ctx context.Context, userID, plan, status string) error {
	if strings.TrimSpace(userID) == "" {
		return nil
	}
	err := s.identity.UpdateUserMetadata(ctx, userID, map[string]any{
		"plan":                plan,
		"subscription_status": status,
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, identitydomain.ErrNotConfigured) {
		s.log.Warn("identity provider not configured, plan not mirrored",
			zap.String("user_id", userID),
			zap.String("plan", plan),
		)
		return nil
	}
	return err
}

func (s *Service) recordWebhook(ctx context.Context, provider, eventType, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordWebhookEvent(ctx, provider, eventType, outcome)
}
