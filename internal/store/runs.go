package store

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const runColumns = `id, run_id, trained_at, model_version, events_processed,
	commands_analyzed, new_patterns, updated_patterns, pruned_patterns, duration_ms`

// InsertTrainingRun inserts r and returns its row ID. An empty RunID is
// filled with a fresh UUID.
func (db *DB) InsertTrainingRun(r *TrainingRun) (int64, error) {
	return insertRun(db.conn, r)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertRun(ex execer, r *TrainingRun) (int64, error) {
	if r.RunID == "" {
		r.RunID = uuid.NewString()
	}
	result, err := ex.Exec(
		`INSERT INTO training_runs
		(run_id, trained_at, model_version, events_processed, commands_analyzed,
		 new_patterns, updated_patterns, pruned_patterns, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.TrainedAt.UTC().Format(timeLayout), int64(r.ModelVersion),
		r.EventsProcessed, r.CommandsAnalyzed, r.NewPatterns, r.UpdatedPatterns,
		r.PrunedPatterns, r.Duration.Milliseconds(),
	)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	r.ID = id
	return id, nil
}

// InsertRunMetric records a named metric for a run.
func (db *DB) InsertRunMetric(runID int64, name string, value float64) error {
	_, err := db.conn.Exec(
		"INSERT INTO run_metrics (run_id, metric_name, metric_value) VALUES (?, ?, ?)",
		runID, name, value,
	)
	return err
}

// SaveRun inserts r and its metrics in one transaction.
func (db *DB) SaveRun(r *TrainingRun, metrics []RunMetric) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	id, err := insertRun(tx, r)
	if err != nil {
		return 0, fmt.Errorf("inserting training run: %w", err)
	}
	for _, m := range metrics {
		if _, err := tx.Exec(
			"INSERT INTO run_metrics (run_id, metric_name, metric_value) VALUES (?, ?, ?)",
			id, m.Name, m.Value,
		); err != nil {
			return 0, fmt.Errorf("inserting metric %s: %w", m.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// RecentRuns returns up to n runs, newest first.
func (db *DB) RecentRuns(n int) ([]TrainingRun, error) {
	rows, err := db.conn.Query(
		"SELECT "+runColumns+" FROM training_runs ORDER BY id DESC LIMIT ?", n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []TrainingRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// GetRun returns the run with row ID id, or nil if none exists.
func (db *DB) GetRun(id int64) (*TrainingRun, error) {
	row := db.conn.QueryRow("SELECT "+runColumns+" FROM training_runs WHERE id = ?", id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*TrainingRun, error) {
	var r TrainingRun
	var trainedAt string
	var version, durationMs int64
	if err := s.Scan(&r.ID, &r.RunID, &trainedAt, &version, &r.EventsProcessed,
		&r.CommandsAnalyzed, &r.NewPatterns, &r.UpdatedPatterns, &r.PrunedPatterns,
		&durationMs); err != nil {
		return nil, err
	}
	r.TrainedAt, _ = time.Parse(timeLayout, trainedAt)
	r.ModelVersion = uint64(version)
	r.Duration = time.Duration(durationMs) * time.Millisecond
	return &r, nil
}

// RunMetrics returns the metrics recorded for a run, by name.
func (db *DB) RunMetrics(runID int64) (map[string]float64, error) {
	rows, err := db.conn.Query(
		"SELECT metric_name, metric_value FROM run_metrics WHERE run_id = ?", runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metrics := make(map[string]float64)
	for rows.Next() {
		var name string
		var value float64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		metrics[name] = value
	}
	return metrics, rows.Err()
}

// CompareRuns diffs the metrics of two runs. A metric missing from one run
// counts as zero there.
func (db *DB) CompareRuns(prevID, curID int64) (*RunDiff, error) {
	prev, err := db.GetRun(prevID)
	if err != nil {
		return nil, err
	}
	cur, err := db.GetRun(curID)
	if err != nil {
		return nil, err
	}
	if prev == nil || cur == nil {
		return nil, fmt.Errorf("comparing runs %d and %d: run not found", prevID, curID)
	}

	prevMetrics, err := db.RunMetrics(prevID)
	if err != nil {
		return nil, err
	}
	curMetrics, err := db.RunMetrics(curID)
	if err != nil {
		return nil, err
	}

	names := make(map[string]bool)
	for name := range prevMetrics {
		names[name] = true
	}
	for name := range curMetrics {
		names[name] = true
	}

	diff := &RunDiff{Previous: prev, Current: cur}
	for name := range names {
		p, c := prevMetrics[name], curMetrics[name]
		diff.Deltas = append(diff.Deltas, MetricDelta{
			Name:      name,
			Previous:  p,
			Current:   c,
			Delta:     c - p,
			Direction: direction(c - p),
		})
	}
	sort.Slice(diff.Deltas, func(i, j int) bool {
		return diff.Deltas[i].Name < diff.Deltas[j].Name
	})
	return diff, nil
}

func direction(delta float64) string {
	switch {
	case delta > 0:
		return DirectionGrew
	case delta < 0:
		return DirectionShrank
	default:
		return DirectionUnchanged
	}
}

// PruneRunsBefore deletes runs trained before cutoff, with their metrics.
func (db *DB) PruneRunsBefore(cutoff time.Time) (int64, error) {
	result, err := db.conn.Exec(
		"DELETE FROM training_runs WHERE trained_at < ?",
		cutoff.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
