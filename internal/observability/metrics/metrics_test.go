package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("type", "EARN"),
		attribute.String("merchant_id", "12345"),
		attribute.String("user_id", "999"),
		attribute.String("description", "free text"),
	)

	keys := make([]string, 0, len(attrs))
	for _, attr := range attrs {
		keys = append(keys, string(attr.Key))
	}

	assert.ElementsMatch(t, []string{"type", "merchant_id"}, keys)
}
