package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rendis/flowcanvas/internal/store"
	"github.com/rendis/flowcanvas/internal/streaming"
	"github.com/rendis/flowcanvas/pkg/schema"
)

// Job names registered by Register.
const (
	JobHeartbeat = "heartbeat"
	JobVacuum    = "vacuum"
)

// SyncStatus is the payload of a sync_status heartbeat event.
type SyncStatus struct {
	ElementCount int               `json:"elementCount"`
	LastSync     *store.SyncResult `json:"lastSync,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// CurrentSyncStatus reads the canvas size and last sync from st.
func CurrentSyncStatus(ctx context.Context, st store.ElementStore) (*SyncStatus, error) {
	n, err := st.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count elements: %w", err)
	}
	last, err := st.LastSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("read last sync: %w", err)
	}
	return &SyncStatus{ElementCount: n, LastSync: last, Timestamp: time.Now().UTC()}, nil
}

// HeartbeatJob publishes the current sync status to hub.
func HeartbeatJob(st store.ElementStore, hub streaming.EventHub) JobFunc {
	return func(ctx context.Context) error {
		status, err := CurrentSyncStatus(ctx, st)
		if err != nil {
			return err
		}
		return hub.Publish(ctx, streaming.Event{
			Kind:      schema.EventSyncStatus,
			Payload:   status,
			Timestamp: status.Timestamp,
		})
	}
}

// VacuumJob compacts the store.
func VacuumJob(st store.ElementStore) JobFunc {
	return func(ctx context.Context) error {
		return st.Vacuum(ctx)
	}
}

// Specs holds the cron expressions for the built-in jobs. An empty spec
// disables that job.
type Specs struct {
	Heartbeat string `json:"heartbeat" toml:"heartbeat"`
	Vacuum    string `json:"vacuum" toml:"vacuum"`
}

// DefaultSpecs returns the built-in schedules.
func DefaultSpecs() Specs {
	return Specs{Heartbeat: "@every 30s", Vacuum: "@daily"}
}

// Register adds the heartbeat and vacuum jobs to s.
func Register(s *Scheduler, specs Specs, st store.ElementStore, hub streaming.EventHub) error {
	if specs.Heartbeat != "" {
		if err := s.Add(JobHeartbeat, specs.Heartbeat, HeartbeatJob(st, hub)); err != nil {
			return err
		}
	}
	if specs.Vacuum != "" {
		if err := s.Add(JobVacuum, specs.Vacuum, VacuumJob(st)); err != nil {
			return err
		}
	}
	return nil
}
