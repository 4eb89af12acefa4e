package database

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const journalTable = "ledger_journal"

// TableStats describes the journal table as seen by pg_stat_user_tables
type TableStats struct {
	TableSize      int64
	IndexSize      int64
	TotalSize      int64
	LiveTuples     int64
	DeadTuples     int64
	LastAutovacuum *time.Time
}

// Monitor exposes pool and journal table statistics as Prometheus metrics
type Monitor struct {
	pool    *Pool
	logger  *zap.Logger
	timeout time.Duration

	acquired     *prometheus.Desc
	idle         *prometheus.Desc
	total        *prometheus.Desc
	maxConns     *prometheus.Desc
	acquireCount *prometheus.Desc
	acquireWait  *prometheus.Desc
	emptyWaits   *prometheus.Desc
	tableBytes   *prometheus.Desc
	tableRows    *prometheus.Desc
}

func NewMonitor(pool *Pool, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("auction", "db", name), help, labels, nil)
	}
	return &Monitor{
		pool:         pool,
		logger:       logger,
		timeout:      2 * time.Second,
		acquired:     desc("pool_acquired_connections", "Connections currently checked out"),
		idle:         desc("pool_idle_connections", "Idle connections in the pool"),
		total:        desc("pool_total_connections", "Open connections in the pool"),
		maxConns:     desc("pool_max_connections", "Configured pool size"),
		acquireCount: desc("pool_acquires_total", "Successful connection acquisitions"),
		acquireWait:  desc("pool_acquire_wait_seconds_total", "Time spent waiting for a connection"),
		emptyWaits:   desc("pool_empty_acquires_total", "Acquisitions that had to wait for a connection"),
		tableBytes:   desc("journal_table_bytes", "Size of the journal table", "kind"),
		tableRows:    desc("journal_table_rows", "Estimated journal rows", "state"),
	}
}

// JournalTableStats reads size and tuple counts for the journal table
func (m *Monitor) JournalTableStats(ctx context.Context) (*TableStats, error) {
	const query = `
		SELECT
			pg_table_size(relid),
			pg_indexes_size(relid),
			pg_total_relation_size(relid),
			n_live_tup,
			n_dead_tup,
			last_autovacuum
		FROM pg_stat_user_tables
		WHERE relname = $1`

	var s TableStats
	err := m.pool.QueryRow(ctx, query, journalTable).Scan(
		&s.TableSize,
		&s.IndexSize,
		&s.TotalSize,
		&s.LiveTuples,
		&s.DeadTuples,
		&s.LastAutovacuum,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get journal table stats: %w", err)
	}
	return &s, nil
}

func (m *Monitor) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.acquired
	ch <- m.idle
	ch <- m.total
	ch <- m.maxConns
	ch <- m.acquireCount
	ch <- m.acquireWait
	ch <- m.emptyWaits
	ch <- m.tableBytes
	ch <- m.tableRows
}

// Collect implements prometheus.Collector. Table statistics are skipped if
// the query fails so a database outage does not break the scrape.
func (m *Monitor) Collect(ch chan<- prometheus.Metric) {
	st := m.pool.Stat()
	ch <- prometheus.MustNewConstMetric(m.acquired, prometheus.GaugeValue, float64(st.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(m.idle, prometheus.GaugeValue, float64(st.IdleConns()))
	ch <- prometheus.MustNewConstMetric(m.total, prometheus.GaugeValue, float64(st.TotalConns()))
	ch <- prometheus.MustNewConstMetric(m.maxConns, prometheus.GaugeValue, float64(st.MaxConns()))
	ch <- prometheus.MustNewConstMetric(m.acquireCount, prometheus.CounterValue, float64(st.AcquireCount()))
	ch <- prometheus.MustNewConstMetric(m.acquireWait, prometheus.CounterValue, st.AcquireDuration().Seconds())
	ch <- prometheus.MustNewConstMetric(m.emptyWaits, prometheus.CounterValue, float64(st.EmptyAcquireCount()))

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	ts, err := m.JournalTableStats(ctx)
	if err != nil {
		m.logger.Debug("skipping journal table metrics", zap.Error(err))
		return
	}
	ch <- prometheus.MustNewConstMetric(m.tableBytes, prometheus.GaugeValue, float64(ts.TableSize), "table")
	ch <- prometheus.MustNewConstMetric(m.tableBytes, prometheus.GaugeValue, float64(ts.IndexSize), "index")
	ch <- prometheus.MustNewConstMetric(m.tableBytes, prometheus.GaugeValue, float64(ts.TotalSize), "total")
	ch <- prometheus.MustNewConstMetric(m.tableRows, prometheus.GaugeValue, float64(ts.LiveTuples), "live")
	ch <- prometheus.MustNewConstMetric(m.tableRows, prometheus.GaugeValue, float64(ts.DeadTuples), "dead")
}
