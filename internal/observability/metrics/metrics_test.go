package metrics

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("tenant_id", "123"),
		attribute.String("user_id", "456"),
		attribute.String("plan", "free"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	keys := map[attribute.Key]bool{}
	for _, attr := range attrs {
		keys[attr.Key] = true
	}
	if !keys["tenant_id"] {
		t.Fatalf("expected tenant_id to be retained")
	}
	if !keys["plan"] {
		t.Fatalf("expected plan to be retained")
	}
	if keys["user_id"] {
		t.Fatalf("expected user_id to be dropped")
	}
}
