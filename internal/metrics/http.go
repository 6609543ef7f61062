package metrics

import (
	"time"
)

// endpoints polled by health checks and scrapers; recording them would drown the
// request series
var skippedEndpoints = map[string]struct{}{
	"/metrics":               {},
	"/health":                {},
	"/ready":                 {},
	"/api/crm/health":        {},
	"/api/crm/store/_health": {},
}

// RecordHTTPRequest records one request against its route pattern
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.safeExecute("RecordHTTPRequest", func() {
		m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusClass(statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	})
}

// statusClass buckets a status code as 2xx..5xx
func statusClass(code int) string {
	if code < 200 || code > 599 {
		return "unknown"
	}
	return string(rune('0'+code/100)) + "xx"
}

// ShouldSkipEndpoint reports whether path is excluded from HTTP metrics
func ShouldSkipEndpoint(path string) bool {
	_, skip := skippedEndpoints[path]
	return skip
}
