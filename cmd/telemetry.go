package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type telemetryRecord struct {
	Timestamp          time.Time `json:"timestamp"`
	Command            string    `json:"command"`
	RunID              string    `json:"run_id"`
	Operator           string    `json:"operator"`
	NetworkRange       string    `json:"network_range"`
	HostsScanned       int64     `json:"hosts_scanned"`
	PortsChecked       int64     `json:"ports_checked"`
	OpenPortsFound     int64     `json:"open_ports_found"`
	HostsWithExposure  int       `json:"hosts_with_exposure"`
	DurationSeconds    float64   `json:"duration_seconds"`
	AvgDurationPerHost float64   `json:"avg_duration_per_host"`
}

// recordTelemetry appends one JSONL record for the finished run.
func recordTelemetry(dir string, record telemetryRecord) error {
	if record.HostsScanned > 0 {
		record.AvgDurationPerHost = record.DurationSeconds / float64(record.HostsScanned)
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}

	telemetryPath := filepath.Join(dir, "telemetry.jsonl")
	f, err := os.OpenFile(telemetryPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open telemetry file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write telemetry: %w", err)
	}

	return nil
}
