package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/tollwaylabs/tollway/internal/payment/domain"
)

const defaultAPIBaseURL = "https://api.stripe.com"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "stripe"
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.Adapter, error) {
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, paymentdomain.ErrNotConfigured
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}

	return &Adapter{
		webhookSecret:   secret,
		apiBaseURL:      baseURL,
		testAccessToken: strings.TrimSpace(cfg.TestAccessToken),
		liveAccessToken: strings.TrimSpace(cfg.LiveAccessToken),
		httpClient:      &http.Client{Timeout: 12 * time.Second},
	}, nil
}

type Adapter struct {
	webhookSecret   string
	apiBaseURL      string
	testAccessToken string
	liveAccessToken string
	httpClient      *http.Client
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return paymentdomain.ErrInvalidSignature
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.BillingEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case "checkout.session.completed":
		return a.parseCheckoutSession(event, payload)
	case "customer.subscription.created", "customer.subscription.updated":
		return a.parseSubscription(event, payload, paymentdomain.EventTypeSubscriptionUpdated)
	case "customer.subscription.deleted":
		return a.parseSubscription(event, payload, paymentdomain.EventTypeSubscriptionDeleted)
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
}

func (a *Adapter) FetchLineItems(ctx context.Context, mode, sessionID, accessToken string) ([]paymentdomain.LineItem, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	token := strings.TrimSpace(accessToken)
	if token == "" {
		token = a.platformToken(mode)
	}
	if token == "" {
		return nil, paymentdomain.ErrNotConfigured
	}

	url := fmt.Sprintf("%s/v1/checkout/sessions/%s/line_items?limit=100", a.apiBaseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrUpstream, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: status %d", paymentdomain.ErrUpstream, resp.StatusCode)
	}

	var list stripeLineItemList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrUpstream, err)
	}

	items := make([]paymentdomain.LineItem, 0, len(list.Data))
	for _, line := range list.Data {
		priceID := strings.TrimSpace(line.Price.ID)
		if priceID == "" {
			continue
		}
		quantity := line.Quantity
		if quantity < 1 {
			quantity = 1
		}
		items = append(items, paymentdomain.LineItem{PriceID: priceID, Quantity: quantity})
	}
	return items, nil
}

func (a *Adapter) platformToken(mode string) string {
	if strings.EqualFold(strings.TrimSpace(mode), "live") {
		return a.liveAccessToken
	}
	return a.testAccessToken
}

type stripeEvent struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Created  int64           `json:"created"`
	Livemode bool            `json:"livemode"`
	Data     stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeCheckoutSession struct {
	ID                string         `json:"id"`
	Mode              string         `json:"mode"`
	Subscription      string         `json:"subscription"`
	ClientReferenceID string         `json:"client_reference_id"`
	AmountTotal       int64          `json:"amount_total"`
	Currency          string         `json:"currency"`
	Metadata          map[string]any `json:"metadata"`
}

type stripeSubscription struct {
	ID                string                  `json:"id"`
	Status            string                  `json:"status"`
	CurrentPeriodEnd  int64                   `json:"current_period_end"`
	CancelAtPeriodEnd bool                    `json:"cancel_at_period_end"`
	CanceledAt        int64                   `json:"canceled_at"`
	Created           int64                   `json:"created"`
	Metadata          map[string]any          `json:"metadata"`
	Items             stripeSubscriptionItems `json:"items"`
}

type stripeSubscriptionItems struct {
	Data []stripeSubscriptionItem `json:"data"`
}

type stripeSubscriptionItem struct {
	Price    stripePrice `json:"price"`
	Quantity int64       `json:"quantity"`
}

type stripePrice struct {
	ID         string         `json:"id"`
	UnitAmount int64          `json:"unit_amount"`
	Currency   string         `json:"currency"`
	Nickname   string         `json:"nickname"`
	Metadata   map[string]any `json:"metadata"`
}

type stripeLineItemList struct {
	Data []stripeSubscriptionItem `json:"data"`
}

func (a *Adapter) parseCheckoutSession(event stripeEvent, payload []byte) (*paymentdomain.BillingEvent, error) {
	var session stripeCheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(session.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	tenantID, userID, err := parseAttribution(session.Metadata)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		userID = strings.TrimSpace(session.ClientReferenceID)
	}

	return &paymentdomain.BillingEvent{
		Provider:        "stripe",
		ProviderEventID: event.ID,
		Type:            paymentdomain.EventTypeCheckoutCompleted,
		TenantID:        tenantID,
		UserID:          userID,
		Mode:            modeFromLivemode(event.Livemode),
		Plan:            readMetadataValue(session.Metadata, "plan"),
		CheckoutMode:    strings.ToLower(strings.TrimSpace(session.Mode)),
		SessionID:       session.ID,
		ProviderSubID:   strings.TrimSpace(session.Subscription),
		Amount:          session.AmountTotal,
		Currency:        strings.ToLower(strings.TrimSpace(session.Currency)),
		OccurredAt:      timestamp(event.Created, 0),
		RawPayload:      payload,
	}, nil
}

func (a *Adapter) parseSubscription(event stripeEvent, payload []byte, eventType string) (*paymentdomain.BillingEvent, error) {
	var sub stripeSubscription
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(sub.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	tenantID, userID, err := parseAttribution(sub.Metadata)
	if err != nil {
		return nil, err
	}

	billing := &paymentdomain.BillingEvent{
		Provider:          "stripe",
		ProviderEventID:   event.ID,
		Type:              eventType,
		TenantID:          tenantID,
		UserID:            userID,
		Mode:              modeFromLivemode(event.Livemode),
		Plan:              readMetadataValue(sub.Metadata, "plan"),
		ProviderSubID:     sub.ID,
		Status:            strings.ToLower(strings.TrimSpace(sub.Status)),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		OccurredAt:        timestamp(sub.Created, event.Created),
		RawPayload:        payload,
	}
	if sub.CurrentPeriodEnd > 0 {
		periodEnd := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		billing.CurrentPeriodEnd = &periodEnd
	}
	if sub.CanceledAt > 0 {
		canceledAt := time.Unix(sub.CanceledAt, 0).UTC()
		billing.CanceledAt = &canceledAt
	}
	if len(sub.Items.Data) > 0 {
		price := sub.Items.Data[0].Price
		billing.PriceID = strings.TrimSpace(price.ID)
		billing.Amount = price.UnitAmount
		billing.Currency = strings.ToLower(strings.TrimSpace(price.Currency))
		if billing.Plan == "" {
			billing.Plan = readMetadataValue(price.Metadata, "plan")
		}
		if billing.Plan == "" {
			billing.Plan = strings.ToLower(strings.TrimSpace(price.Nickname))
		}
	}
	return billing, nil
}

// parseAttribution reads the tenant and user stamped into provider metadata
// at checkout creation. Without a tenant the event cannot be attributed.
func parseAttribution(metadata map[string]any) (snowflake.ID, string, error) {
	tenantRaw := readMetadataValue(metadata, "tenant_id")
	if tenantRaw == "" {
		return 0, "", paymentdomain.ErrMissingMetadata
	}
	tenantID, err := snowflake.ParseString(tenantRaw)
	if err != nil || tenantID == 0 {
		return 0, "", paymentdomain.ErrMissingMetadata
	}
	return tenantID, readMetadataValue(metadata, "user_id"), nil
}

func readMetadataValue(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	switch cast := value.(type) {
	case string:
		return strings.TrimSpace(cast)
	case float64:
		if cast == 0 {
			return ""
		}
		return strconv.FormatInt(int64(cast), 10)
	case json.Number:
		return cast.String()
	case int64:
		return strconv.FormatInt(cast, 10)
	case int:
		return strconv.Itoa(cast)
	}
	return ""
}

func modeFromLivemode(livemode bool) string {
	if livemode {
		return "live"
	}
	return "test"
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

func timestamp(primary int64, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}
