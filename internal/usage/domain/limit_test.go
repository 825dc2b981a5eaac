package domain

import (
	"encoding/json"
	"testing"
)

func TestLimitAllows(t *testing.T) {
	if !Unlimited().Allows(1 << 40) {
		t.Fatal("unlimited must always allow")
	}
	if Bounded(0).Allows(0) {
		t.Fatal("a zero cap must reject the first request")
	}
	if !Bounded(3).Allows(2) {
		t.Fatal("count below the cap must be allowed")
	}
	if Bounded(3).Allows(3) {
		t.Fatal("count at the cap must be rejected")
	}
	if Bounded(-5).Allows(0) {
		t.Fatal("negative caps clamp to zero and reject")
	}
}

func TestLimitJSON(t *testing.T) {
	payload, err := json.Marshal(struct {
		Limit Limit `json:"limit"`
	}{Limit: Unlimited()})
	if err != nil {
		t.Fatalf("marshal unlimited: %v", err)
	}
	if string(payload) != `{"limit":null}` {
		t.Fatalf("unlimited must serialize as null, got %s", payload)
	}

	payload, err = json.Marshal(struct {
		Limit Limit `json:"limit"`
	}{Limit: Bounded(100)})
	if err != nil {
		t.Fatalf("marshal bounded: %v", err)
	}
	if string(payload) != `{"limit":100}` {
		t.Fatalf("bounded must serialize as a number, got %s", payload)
	}

	var decoded struct {
		Limit Limit `json:"limit"`
	}
	if err := json.Unmarshal([]byte(`{"limit":null}`), &decoded); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if !decoded.Limit.IsUnlimited() {
		t.Fatal("null must decode to unlimited")
	}
	if err := json.Unmarshal([]byte(`{"limit":42}`), &decoded); err != nil {
		t.Fatalf("unmarshal number: %v", err)
	}
	if decoded.Limit.IsUnlimited() || decoded.Limit.Value() != 42 {
		t.Fatalf("expected bounded 42, got %v", decoded.Limit)
	}
	if err := json.Unmarshal([]byte(`{"limit":"free"}`), &decoded); err == nil {
		t.Fatal("strings must not decode as limits")
	}
}

func TestLimitFromPtr(t *testing.T) {
	if !LimitFromPtr(nil).IsUnlimited() {
		t.Fatal("nil pointer must map to unlimited")
	}
	cap := int64(10)
	limit := LimitFromPtr(&cap)
	if limit.IsUnlimited() || limit.Value() != 10 {
		t.Fatalf("expected bounded 10, got %v", limit)
	}
}
