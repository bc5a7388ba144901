package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// ClickHouse table definitions
const (
	createPhaseChangesTable = `
		CREATE TABLE IF NOT EXISTS junction_phase_changes (
			run_id       String,
			junction     LowCardinality(String),
			tick         UInt64,
			at           DateTime64(3),
			from_phase   LowCardinality(String),
			to_phase     LowCardinality(String),
			reason       LowCardinality(String),
			served_ms    Int64,
			green_ms     Int64,
			ns_queue     Int32,
			ns_speed     Float64,
			ns_vehicles  Int32,
			sn_queue     Int32,
			sn_speed     Float64,
			sn_vehicles  Int32
		) ENGINE = MergeTree()
		ORDER BY (junction, at)`

	createSamplesTable = `
		CREATE TABLE IF NOT EXISTS junction_samples (
			run_id        String,
			junction      LowCardinality(String),
			tick          UInt64,
			at            DateTime64(3),
			phase         LowCardinality(String),
			remaining_ms  Int64,
			ns_queue      Int32,
			ns_speed      Float64,
			ns_vehicles   Int32,
			sn_queue      Int32,
			sn_speed      Float64,
			sn_vehicles   Int32,
			reduction_pct Float64
		) ENGINE = MergeTree()
		ORDER BY (junction, at)
		TTL toDateTime(at) + INTERVAL 90 DAY`
)

// ClickHouseTables returns all table definitions in creation order
func ClickHouseTables() []string {
	return []string{createPhaseChangesTable, createSamplesTable}
}

// execer is the part of driver.Conn the sink uses
type execer interface {
	Exec(ctx context.Context, query string, args ...any) error
	Close() error
}

// clickhouseConn is the part of driver.Conn needed to set the sink up
type clickhouseConn interface {
	execer
	Ping(ctx context.Context) error
}

// ClickHouseConfig holds connection settings
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

// ClickHouse ships phase changes and samples to a ClickHouse server for fleet-wide analysis.
// Run metadata lives in the local store; ClickHouse rows carry the junction name instead.
type ClickHouse struct {
	conn   execer
	logger *slog.Logger

	mutex     sync.RWMutex
	junctions map[string]string
}

// NewClickHouse connects, pings and initialises the schema
func NewClickHouse(ctx context.Context, config ClickHouseConfig, logger *slog.Logger) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{config.Addr},
		Auth: clickhouse.Auth{
			Database: config.Database,
			Username: config.Username,
			Password: config.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	return setupClickHouse(ctx, conn, config.Addr, logger)
}

// setupClickHouse pings and initialises the schema, closing conn when either fails
func setupClickHouse(ctx context.Context, conn clickhouseConn, addr string, logger *slog.Logger) (*ClickHouse, error) {
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	ch := newClickHouse(conn, logger)
	ch.logger.Info("connected to ClickHouse", "addr", addr)

	if err := ch.InitSchema(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return ch, nil
}

func newClickHouse(conn execer, logger *slog.Logger) *ClickHouse {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClickHouse{
		conn:      conn,
		logger:    logger.With("component", "clickhouse"),
		junctions: make(map[string]string),
	}
}

// InitSchema creates the necessary tables if they don't exist
func (c *ClickHouse) InitSchema(ctx context.Context) error {
	for _, tableSQL := range ClickHouseTables() {
		if err := c.conn.Exec(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// StartRun remembers the junction name for the run's rows
func (c *ClickHouse) StartRun(ctx context.Context, run Run) error {
	c.mutex.Lock()
	c.junctions[run.ID] = run.Junction
	c.mutex.Unlock()
	return nil
}

// FinishRun forgets the run
func (c *ClickHouse) FinishRun(ctx context.Context, runID string, at time.Time) error {
	c.mutex.Lock()
	delete(c.junctions, runID)
	c.mutex.Unlock()
	return nil
}

func (c *ClickHouse) junction(runID string) string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.junctions[runID]
}

// RecordPhaseChange inserts a phase change row
func (c *ClickHouse) RecordPhaseChange(ctx context.Context, rec PhaseRecord) error {
	query := `
		INSERT INTO junction_phase_changes (run_id, junction, tick, at, from_phase, to_phase, reason, served_ms, green_ms,
			ns_queue, ns_speed, ns_vehicles, sn_queue, sn_speed, sn_vehicles)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	err := c.conn.Exec(ctx, query,
		rec.RunID, c.junction(rec.RunID), rec.Tick, rec.At,
		string(rec.From), string(rec.To), string(rec.Reason),
		rec.Served.Milliseconds(), rec.Green.Milliseconds(),
		int32(rec.Pair.NS.QueueLength), rec.Pair.NS.AvgSpeed, int32(rec.Pair.NS.VehicleCount),
		int32(rec.Pair.SN.QueueLength), rec.Pair.SN.AvgSpeed, int32(rec.Pair.SN.VehicleCount),
	)
	if err != nil {
		return fmt.Errorf("failed to insert phase change: %w", err)
	}
	return nil
}

// RecordSample inserts a sample row
func (c *ClickHouse) RecordSample(ctx context.Context, s Sample) error {
	query := `
		INSERT INTO junction_samples (run_id, junction, tick, at, phase, remaining_ms,
			ns_queue, ns_speed, ns_vehicles, sn_queue, sn_speed, sn_vehicles, reduction_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	err := c.conn.Exec(ctx, query,
		s.RunID, c.junction(s.RunID), s.Tick, s.At, string(s.Phase), s.Remaining.Milliseconds(),
		int32(s.Pair.NS.QueueLength), s.Pair.NS.AvgSpeed, int32(s.Pair.NS.VehicleCount),
		int32(s.Pair.SN.QueueLength), s.Pair.SN.AvgSpeed, int32(s.Pair.SN.VehicleCount),
		s.Reduction,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}
	return nil
}

// Close closes the connection
func (c *ClickHouse) Close() error {
	return c.conn.Close()
}
