package metrics

import (
	"database/sql"
	"strings"
	"time"
)

// UpdateDBStats copies a connection pool snapshot into the pool gauges.
// Anything other than sql.DBStats is ignored.
func (m *Metrics) UpdateDBStats(stats interface{}) {
	m.safeExecute("UpdateDBStats", func() {
		s, ok := stats.(sql.DBStats)
		if !ok {
			return
		}
		gauges := []struct {
			g interface{ Set(float64) }
			v int
		}{
			{m.DBConnectionsOpen, s.OpenConnections},
			{m.DBConnectionsInUse, s.InUse},
			{m.DBConnectionsIdle, s.Idle},
			{m.DBConnectionsMax, s.MaxOpenConnections},
		}
		for _, gv := range gauges {
			gv.g.Set(float64(gv.v))
		}

		// sql.DBStats wait figures are cumulative, the counters take deltas
		m.poolMu.Lock()
		defer m.poolMu.Unlock()
		if d := s.WaitCount - m.lastWaitCount; d > 0 {
			m.DBConnectionWaitTotal.Add(float64(d))
		}
		if d := s.WaitDuration - m.lastWaitDuration; d > 0 {
			m.DBConnectionWaitDuration.Add(d.Seconds())
		}
		m.lastWaitCount = s.WaitCount
		m.lastWaitDuration = s.WaitDuration
	})
}

// RecordDBQuery observes one GORM statement against a table such as
// entity_records or schema_records
func (m *Metrics) RecordDBQuery(operation, table string, duration time.Duration, err error) {
	m.safeExecute("RecordDBQuery", func() {
		op := strings.ToLower(operation)
		m.DBQueryDuration.WithLabelValues(op, table).Observe(duration.Seconds())
		if err != nil {
			m.DBQueryErrors.WithLabelValues(op, table).Inc()
		}
	})
}
