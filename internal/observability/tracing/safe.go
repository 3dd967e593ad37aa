package tracing

import (
	"errors"

	"go.opentelemetry.io/otel/attribute"
)

var allowedSpanKeys = map[attribute.Key]struct{}{
	"request_id":              {},
	"http.method":             {},
	"http.route":              {},
	"http.status_code":        {},
	"http.server_duration_ms": {},
	"billing_month":           {},
	"invoice_run_id":          {},
}

// SafeAttributes strips span attributes that could carry high-cardinality or
// sensitive values.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedSpanKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

// SafeError returns an error whose message is safe to record on a span.
// Only the sentinel chain is kept; wrapped detail is dropped.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	root := err
	for {
		unwrapped := errors.Unwrap(root)
		if unwrapped == nil {
			break
		}
		root = unwrapped
	}
	return root
}
