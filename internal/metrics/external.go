package metrics

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var uuidPattern = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

var statusErrorTypes = map[int]string{
	400: "bad_request",
	401: "unauthorized",
	403: "forbidden",
	404: "not_found",
	408: "request_timeout",
	429: "too_many_requests",
	500: "internal_server_error",
	502: "bad_gateway",
	503: "service_unavailable",
	504: "gateway_timeout",
}

// transport failures carry no status; matched against the error text in order
var networkErrorTypes = []struct {
	needles []string
	kind    string
}{
	{[]string{"connection refused"}, "connection_refused"},
	{[]string{"no such host"}, "dns_error"},
	{[]string{"timeout", "deadline exceeded"}, "timeout"},
	{[]string{"EOF", "connection reset"}, "connection_reset"},
	{[]string{"TLS", "certificate"}, "tls_error"},
}

// RecordExternalAPICall records a call to the remote store, the refinement
// API or the notification API. A status of 0 means no response arrived.
func (m *Metrics) RecordExternalAPICall(endpoint, method string, statusCode int, duration time.Duration, err error) {
	m.safeExecute("RecordExternalAPICall", func() {
		endpoint = normalizeEndpoint(endpoint)
		status := strconv.Itoa(statusCode)

		m.ExternalAPIRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
		m.ExternalAPIRequestDuration.WithLabelValues(endpoint, status).Observe(duration.Seconds())

		if err != nil || statusCode >= 400 {
			m.ExternalAPIErrors.WithLabelValues(endpoint, getErrorType(statusCode, err)).Inc()
		}
	})
}

// normalizeEndpoint drops the query and replaces entity ids so label
// cardinality stays bounded:
// /store/leads/123e4567-e89b-12d3-a456-426614174000?page=2 -> /store/leads/{id}
func normalizeEndpoint(endpoint string) string {
	endpoint, _, _ = strings.Cut(endpoint, "?")
	return uuidPattern.ReplaceAllString(endpoint, "{id}")
}

// getErrorType labels a failed call, preferring the HTTP status when there is one
func getErrorType(statusCode int, err error) string {
	if kind, ok := statusErrorTypes[statusCode]; ok {
		return kind
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 && statusCode < 600 {
		return "server_error"
	}
	if err == nil {
		return "unknown"
	}

	msg := err.Error()
	for _, candidate := range networkErrorTypes {
		for _, needle := range candidate.needles {
			if strings.Contains(msg, needle) {
				return candidate.kind
			}
		}
	}
	return "network_error"
}
