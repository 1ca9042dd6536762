package learning

import (
	"time"

	"go.uber.org/zap"

	"github.com/blackwell-systems/termlearn/internal/event"
	"github.com/blackwell-systems/termlearn/internal/model"
)

// Stats is a snapshot of the learning system.
type Stats struct {
	Enabled           bool        `json:"enabled"`
	Running           bool        `json:"running"`
	BufferedEvents    int         `json:"buffered_events"`
	PendingEvents     int         `json:"pending_events"`
	CommandEvents     int         `json:"command_events"`
	InteractionEvents int         `json:"interaction_events"`
	ErrorEvents       int         `json:"error_events"`
	ModelVersion      uint64      `json:"model_version"`
	LastTraining      *time.Time  `json:"last_training,omitempty"`
	Model             model.Sizes `json:"model"`
	DataSizeBytes     int64       `json:"data_size_bytes"`
}

// Stats reports buffer, model and storage figures. A failure to size the
// data directory is logged and reported as zero.
func (s *System) Stats() Stats {
	st := Stats{
		Enabled:       s.cfg.Enabled,
		Running:       s.running,
		PendingEvents: s.collector.Pending(),
		ModelVersion:  s.model.Version,
		Model:         s.model.Sizes(),
	}

	events := s.collector.RecentEvents()
	st.BufferedEvents = len(events)
	for _, e := range events {
		switch e.(type) {
		case *event.CommandEvent:
			st.CommandEvents++
		case *event.InteractionEvent:
			st.InteractionEvents++
		case *event.ErrorEvent:
			st.ErrorEvents++
		}
	}

	if !s.model.LastTrained.IsZero() {
		last := s.model.LastTrained
		st.LastTraining = &last
	}

	size, err := s.collector.DataSize()
	if err != nil {
		s.logger.Warn("measuring data directory", zap.Error(err))
	}
	st.DataSizeBytes = size
	return st
}
