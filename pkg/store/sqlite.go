package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/anggasct/junction"
)

// SQLite stores run history in a local database file
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (or creates) the database at path and applies migrations
func OpenSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// PRAGMAs below are per connection, so keep exactly one
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	s := &SQLite{db: db, logger: logger}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DB returns the underlying database handle
func (s *SQLite) DB() *sql.DB {
	return s.db
}

// Close closes the database
func (s *SQLite) Close() error {
	return s.db.Close()
}

func toMillis(d time.Duration) int64 {
	return d.Milliseconds()
}

func fromMillis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func fromNanos(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// StartRun inserts run metadata
func (s *SQLite) StartRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, junction, source, started_at, min_green_ms, max_green_ms, default_green_ms, vehicle_threshold, early_switch)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Junction, run.Source, run.StartedAt.UnixNano(),
		toMillis(run.Thresholds.MinGreen), toMillis(run.Thresholds.MaxGreen), toMillis(run.Thresholds.DefaultGreen),
		run.Thresholds.VehicleThreshold, boolToInt(run.Thresholds.EarlySwitch),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// FinishRun stamps the run's end time
func (s *SQLite) FinishRun(ctx context.Context, runID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET finished_at = ? WHERE run_id = ?`, at.UnixNano(), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// RecordPhaseChange inserts a phase change
func (s *SQLite) RecordPhaseChange(ctx context.Context, rec PhaseRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO phase_changes (run_id, tick, at, from_phase, to_phase, reason, served_ms, green_ms,
			ns_queue, ns_speed, ns_vehicles, sn_queue, sn_speed, sn_vehicles)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, int64(rec.Tick), rec.At.UnixNano(), string(rec.From), string(rec.To), string(rec.Reason),
		toMillis(rec.Served), toMillis(rec.Green),
		rec.Pair.NS.QueueLength, rec.Pair.NS.AvgSpeed, rec.Pair.NS.VehicleCount,
		rec.Pair.SN.QueueLength, rec.Pair.SN.AvgSpeed, rec.Pair.SN.VehicleCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert phase change: %w", err)
	}
	return nil
}

// RecordSample inserts a sample
func (s *SQLite) RecordSample(ctx context.Context, sample Sample) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO samples (run_id, tick, at, phase, remaining_ms,
			ns_queue, ns_speed, ns_vehicles, sn_queue, sn_speed, sn_vehicles, reduction_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sample.RunID, int64(sample.Tick), sample.At.UnixNano(), string(sample.Phase), toMillis(sample.Remaining),
		sample.Pair.NS.QueueLength, sample.Pair.NS.AvgSpeed, sample.Pair.NS.VehicleCount,
		sample.Pair.SN.QueueLength, sample.Pair.SN.AvgSpeed, sample.Pair.SN.VehicleCount,
		sample.Reduction,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}
	return nil
}

// Runs lists stored runs, newest first
func (s *SQLite) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, junction, source, started_at, finished_at, min_green_ms, max_green_ms, default_green_ms, vehicle_threshold, early_switch
		FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                        Run
			started                  int64
			finished                 sql.NullInt64
			minMS, maxMS, defMS      int64
			threshold, earlySwitchOn int
		)
		if err := rows.Scan(&r.ID, &r.Junction, &r.Source, &started, &finished, &minMS, &maxMS, &defMS, &threshold, &earlySwitchOn); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = fromNanos(started)
		if finished.Valid {
			r.FinishedAt = fromNanos(finished.Int64)
		}
		r.Thresholds = junction.Thresholds{
			MinGreen:         fromMillis(minMS),
			MaxGreen:         fromMillis(maxMS),
			DefaultGreen:     fromMillis(defMS),
			VehicleThreshold: threshold,
			EarlySwitch:      earlySwitchOn != 0,
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// PhaseChanges returns a run's phase changes in tick order
func (s *SQLite) PhaseChanges(ctx context.Context, runID string) ([]PhaseRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tick, at, from_phase, to_phase, reason, served_ms, green_ms,
			ns_queue, ns_speed, ns_vehicles, sn_queue, sn_speed, sn_vehicles
		FROM phase_changes WHERE run_id = ? ORDER BY tick`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query phase changes: %w", err)
	}
	defer rows.Close()

	var out []PhaseRecord
	for rows.Next() {
		var (
			rec               PhaseRecord
			tick, at          int64
			from, to, reason  string
			servedMS, greenMS int64
		)
		rec.RunID = runID
		if err := rows.Scan(&tick, &at, &from, &to, &reason, &servedMS, &greenMS,
			&rec.Pair.NS.QueueLength, &rec.Pair.NS.AvgSpeed, &rec.Pair.NS.VehicleCount,
			&rec.Pair.SN.QueueLength, &rec.Pair.SN.AvgSpeed, &rec.Pair.SN.VehicleCount); err != nil {
			return nil, fmt.Errorf("failed to scan phase change: %w", err)
		}
		rec.Tick = uint64(tick)
		rec.At = fromNanos(at)
		rec.From = junction.Phase(from)
		rec.To = junction.Phase(to)
		rec.Reason = junction.SwitchReason(reason)
		rec.Served = fromMillis(servedMS)
		rec.Green = fromMillis(greenMS)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Samples returns a run's samples in tick order
func (s *SQLite) Samples(ctx context.Context, runID string) ([]Sample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tick, at, phase, remaining_ms,
			ns_queue, ns_speed, ns_vehicles, sn_queue, sn_speed, sn_vehicles, reduction_pct
		FROM samples WHERE run_id = ? ORDER BY tick`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var (
			sample      Sample
			tick, at    int64
			phase       string
			remainingMS int64
		)
		sample.RunID = runID
		if err := rows.Scan(&tick, &at, &phase, &remainingMS,
			&sample.Pair.NS.QueueLength, &sample.Pair.NS.AvgSpeed, &sample.Pair.NS.VehicleCount,
			&sample.Pair.SN.QueueLength, &sample.Pair.SN.AvgSpeed, &sample.Pair.SN.VehicleCount,
			&sample.Reduction); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		sample.Tick = uint64(tick)
		sample.At = fromNanos(at)
		sample.Phase = junction.Phase(phase)
		sample.Remaining = fromMillis(remainingMS)
		out = append(out, sample)
	}
	return out, rows.Err()
}
