package storage

import (
	"errors"
	"time"

	"crm-pipeline-api/internal/metrics"
)

func observe(m *metrics.Metrics, backend, op string, start time.Time, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrEntityNotFound):
		result = "not_found"
	default:
		result = "error"
	}
	m.RecordStorageOperation(backend, op, result, time.Since(start))
}
