package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/tollwaylabs/tollway/internal/payment/domain"
)

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_123","type":"checkout.session.completed","data":{"object":{}}}`)
	timestamp := time.Now().Unix()

	header := buildStripeSignatureHeader(secret, payload, timestamp)
	reqHeader := http.Header{}
	reqHeader.Set("Stripe-Signature", header)

	adapter := &Adapter{webhookSecret: secret}
	if err := adapter.Verify(context.Background(), payload, reqHeader); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}

	reqHeader.Set("Stripe-Signature", buildStripeSignatureHeader("wrong", payload, timestamp))
	if err := adapter.Verify(context.Background(), payload, reqHeader); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature error, got %v", err)
	}

	if err := adapter.Verify(context.Background(), payload, http.Header{}); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected missing header to fail, got %v", err)
	}
}

func TestParseCheckoutEvent(t *testing.T) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	tenantID := node.Generate()
	created := time.Now().UTC().Unix()

	tests := []struct {
		name         string
		session      map[string]any
		wantUser     string
		wantPlan     string
		checkoutMode string
	}{{
		name: "subscription checkout",
		session: map[string]any{
			"id":           "cs_sub_1",
			"mode":         "subscription",
			"subscription": "sub_9",
			"amount_total": 1900,
			"currency":     "USD",
			"metadata": map[string]any{
				"tenant_id": tenantID.String(),
				"user_id":   "user_42",
				"plan":      "pro",
			},
		},
		wantUser:     "user_42",
		wantPlan:     "pro",
		checkoutMode: paymentdomain.CheckoutModeSubscription,
	}, {
		name: "one-time payment falls back to client reference",
		session: map[string]any{
			"id":                  "cs_pay_1",
			"mode":                "payment",
			"client_reference_id": "user_77",
			"amount_total":        5000,
			"currency":            "usd",
			"metadata": map[string]any{
				"tenant_id": tenantID.String(),
			},
		},
		wantUser:     "user_77",
		wantPlan:     "",
		checkoutMode: paymentdomain.CheckoutModePayment,
	}}

	adapter := &Adapter{webhookSecret: "whsec_test"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := marshalEvent(t, map[string]any{
				"id":       "evt_" + tt.name,
				"type":     "checkout.session.completed",
				"created":  created,
				"livemode": false,
				"data":     map[string]any{"object": tt.session},
			})
			event, err := adapter.Parse(context.Background(), payload)
			if err != nil {
				t.Fatalf("parse event: %v", err)
			}
			if event.Type != paymentdomain.EventTypeCheckoutCompleted {
				t.Fatalf("expected checkout event, got %s", event.Type)
			}
			if event.TenantID != tenantID {
				t.Fatalf("expected tenant %s, got %s", tenantID, event.TenantID)
			}
			if event.UserID != tt.wantUser {
				t.Fatalf("expected user %q, got %q", tt.wantUser, event.UserID)
			}
			if event.Plan != tt.wantPlan {
				t.Fatalf("expected plan %q, got %q", tt.wantPlan, event.Plan)
			}
			if event.CheckoutMode != tt.checkoutMode {
				t.Fatalf("expected checkout mode %q, got %q", tt.checkoutMode, event.CheckoutMode)
			}
			if event.Mode != "test" {
				t.Fatalf("expected test mode, got %q", event.Mode)
			}
			if event.Currency != "usd" {
				t.Fatalf("expected lowercase currency, got %q", event.Currency)
			}
		})
	}
}

func TestParseSubscriptionEvent(t *testing.T) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	tenantID := node.Generate()
	periodEnd := time.Now().UTC().Add(30 * 24 * time.Hour).Unix()

	sub := map[string]any{
		"id":                 "sub_1",
		"status":             "active",
		"current_period_end": periodEnd,
		"metadata": map[string]any{
			"tenant_id": tenantID.String(),
			"user_id":   "user_42",
		},
		"items": map[string]any{
			"data": []any{map[string]any{
				"price": map[string]any{
					"id":          "price_pro",
					"unit_amount": 1900,
					"currency":    "usd",
					"metadata":    map[string]any{"plan": "pro"},
				},
				"quantity": 1,
			}},
		},
	}

	adapter := &Adapter{webhookSecret: "whsec_test"}
	payload := marshalEvent(t, map[string]any{
		"id":   "evt_sub_upd",
		"type": "customer.subscription.updated",
		"data": map[string]any{"object": sub},
	})
	event, err := adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	if event.Type != paymentdomain.EventTypeSubscriptionUpdated {
		t.Fatalf("expected subscription update, got %s", event.Type)
	}
	if event.ProviderSubID != "sub_1" || event.Status != "active" {
		t.Fatalf("unexpected subscription fields: %s %s", event.ProviderSubID, event.Status)
	}
	if event.Plan != "pro" {
		t.Fatalf("expected plan from price metadata, got %q", event.Plan)
	}
	if event.PriceID != "price_pro" || event.Amount != 1900 {
		t.Fatalf("unexpected price fields: %s %d", event.PriceID, event.Amount)
	}
	if event.CurrentPeriodEnd == nil || event.CurrentPeriodEnd.Unix() != periodEnd {
		t.Fatalf("expected current period end %d, got %v", periodEnd, event.CurrentPeriodEnd)
	}

	canceledAt := time.Now().UTC().Unix()
	sub["status"] = "canceled"
	sub["canceled_at"] = canceledAt
	payload = marshalEvent(t, map[string]any{
		"id":   "evt_sub_del",
		"type": "customer.subscription.deleted",
		"data": map[string]any{"object": sub},
	})
	event, err = adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	if event.Type != paymentdomain.EventTypeSubscriptionDeleted {
		t.Fatalf("expected subscription delete, got %s", event.Type)
	}
	if event.CanceledAt == nil || event.CanceledAt.Unix() != canceledAt {
		t.Fatalf("expected canceled at %d, got %v", canceledAt, event.CanceledAt)
	}
}

func TestParseUnknownEventIgnored(t *testing.T) {
	adapter := &Adapter{webhookSecret: "whsec_test"}
	payload := marshalEvent(t, map[string]any{
		"id":   "evt_inv",
		"type": "invoice.paid",
		"data": map[string]any{"object": map[string]any{"id": "in_1"}},
	})
	if _, err := adapter.Parse(context.Background(), payload); !errors.Is(err, paymentdomain.ErrEventIgnored) {
		t.Fatalf("expected event ignored, got %v", err)
	}
}

func TestParseRequiresTenantAttribution(t *testing.T) {
	adapter := &Adapter{webhookSecret: "whsec_test"}
	payload := marshalEvent(t, map[string]any{
		"id":   "evt_orphan",
		"type": "checkout.session.completed",
		"data": map[string]any{"object": map[string]any{
			"id":       "cs_orphan",
			"mode":     "payment",
			"metadata": map[string]any{"user_id": "user_42"},
		}},
	})
	if _, err := adapter.Parse(context.Background(), payload); !errors.Is(err, paymentdomain.ErrMissingMetadata) {
		t.Fatalf("expected missing metadata, got %v", err)
	}
}

func TestFetchLineItems(t *testing.T) {
	var gotAuth, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[
			{"price":{"id":"price_a"},"quantity":2},
			{"price":{"id":"price_b"},"quantity":0},
			{"price":{"id":""},"quantity":3}
		]}`)
	}))
	defer server.Close()

	adapter := &Adapter{
		webhookSecret:   "whsec_test",
		apiBaseURL:      server.URL,
		testAccessToken: "sk_platform",
		httpClient:      server.Client(),
	}

	items, err := adapter.FetchLineItems(context.Background(), "test", "cs_123", "sk_tenant")
	if err != nil {
		t.Fatalf("fetch line items: %v", err)
	}
	if gotAuth != "Bearer sk_tenant" {
		t.Fatalf("expected tenant token, got %q", gotAuth)
	}
	if gotPath != "/v1/checkout/sessions/cs_123/line_items" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].PriceID != "price_a" || items[0].Quantity != 2 {
		t.Fatalf("unexpected first item: %+v", items[0])
	}
	if items[1].PriceID != "price_b" || items[1].Quantity != 1 {
		t.Fatalf("expected zero quantity clamped to 1, got %+v", items[1])
	}

	if _, err := adapter.FetchLineItems(context.Background(), "test", "cs_123", ""); err != nil {
		t.Fatalf("expected platform token fallback, got %v", err)
	}
	if gotAuth != "Bearer sk_platform" {
		t.Fatalf("expected platform token, got %q", gotAuth)
	}

	bare := &Adapter{webhookSecret: "whsec_test", apiBaseURL: server.URL, httpClient: server.Client()}
	if _, err := bare.FetchLineItems(context.Background(), "live", "cs_123", ""); !errors.Is(err, paymentdomain.ErrNotConfigured) {
		t.Fatalf("expected not configured without any token, got %v", err)
	}
}

func TestFetchLineItemsUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	adapter := &Adapter{
		webhookSecret: "whsec_test",
		apiBaseURL:    server.URL,
		httpClient:    server.Client(),
	}
	if _, err := adapter.FetchLineItems(context.Background(), "test", "cs_123", "sk_tenant"); !errors.Is(err, paymentdomain.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func buildStripeSignatureHeader(secret string, payload []byte, timestamp int64) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	signature := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, signature)
}

func marshalEvent(t *testing.T, event map[string]any) []byte {
	t.Helper()
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return payload
}
