// Package store provides SQLite access to the training run history.
package store

import "time"

// TrainingRun is one completed training pass.
type TrainingRun struct {
	ID               int64         `json:"id"`
	RunID            string        `json:"run_id"`
	TrainedAt        time.Time     `json:"trained_at"`
	ModelVersion     uint64        `json:"model_version"`
	EventsProcessed  int           `json:"events_processed"`
	CommandsAnalyzed int           `json:"commands_analyzed"`
	NewPatterns      int           `json:"new_patterns"`
	UpdatedPatterns  int           `json:"updated_patterns"`
	PrunedPatterns   int           `json:"pruned_patterns"`
	Duration         time.Duration `json:"duration"`
}

// RunMetric is a named value captured with a run, such as a model table size.
type RunMetric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Direction values for MetricDelta.
const (
	DirectionGrew      = "grew"
	DirectionShrank    = "shrank"
	DirectionUnchanged = "unchanged"
)

// RunDiff compares the metrics of two runs.
type RunDiff struct {
	Previous *TrainingRun  `json:"previous"`
	Current  *TrainingRun  `json:"current"`
	Deltas   []MetricDelta `json:"deltas"`
}

// MetricDelta is the change in one metric between runs.
type MetricDelta struct {
	Name      string  `json:"name"`
	Previous  float64 `json:"previous"`
	Current   float64 `json:"current"`
	Delta     float64 `json:"delta"`
	Direction string  `json:"direction"`
}
