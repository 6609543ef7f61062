package metrics

import (
	"time"
)

// RecordStorageOperation records one storage adapter call. result is "ok",
// "not_found" or "error".
func (m *Metrics) RecordStorageOperation(backend, operation, result string, duration time.Duration) {
	m.safeExecute("RecordStorageOperation", func() {
		m.StorageOperationsTotal.WithLabelValues(backend, operation, result).Inc()
		m.StorageOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	})
}

// IncrementPermissionDenied counts a request refused by the permission engine
func (m *Metrics) IncrementPermissionDenied(action string) {
	m.safeExecute("IncrementPermissionDenied", func() {
		m.PermissionDenialsTotal.WithLabelValues(action).Inc()
	})
}

// RecordSchemaImport counts an import attempt and, on success, the inferred
// type of every column
func (m *Metrics) RecordSchemaImport(success bool, columnTypes []string) {
	m.safeExecute("RecordSchemaImport", func() {
		if !success {
			m.SchemaImportsTotal.WithLabelValues("error").Inc()
			return
		}
		m.SchemaImportsTotal.WithLabelValues("ok").Inc()
		for _, t := range columnTypes {
			m.InferredColumnsTotal.WithLabelValues(t).Inc()
		}
	})
}

func (m *Metrics) AddForeignKeysResolved(n int) {
	m.safeExecute("AddForeignKeysResolved", func() {
		if n > 0 {
			m.ForeignKeysResolvedTotal.Add(float64(n))
		}
	})
}

func (m *Metrics) IncrementEntityCreated(entityType string) {
	m.safeExecute("IncrementEntityCreated", func() {
		m.EntityCreatedTotal.WithLabelValues(entityType).Inc()
	})
}

func (m *Metrics) IncrementStageTransition(entityType string) {
	m.safeExecute("IncrementStageTransition", func() {
		m.StageTransitionsTotal.WithLabelValues(entityType).Inc()
	})
}

// SetEntitiesTotal sets the entity gauge of one entity type
func (m *Metrics) SetEntitiesTotal(entityType string, count int64) {
	m.safeExecute("SetEntitiesTotal", func() {
		m.EntitiesTotal.WithLabelValues(entityType).Set(float64(count))
	})
}

func (m *Metrics) SetPipelinesTotal(count int64) {
	m.safeExecute("SetPipelinesTotal", func() {
		m.PipelinesTotal.Set(float64(count))
	})
}

func (m *Metrics) SetSchemasTotal(count int64) {
	m.safeExecute("SetSchemasTotal", func() {
		m.SchemasTotal.Set(float64(count))
	})
}
