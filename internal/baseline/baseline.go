// Package baseline persists content-hashed snapshots of assessment
// batches and detects configuration drift between runs.
package baseline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sentinelsweep/sweep-cli/internal/risk"
)

// timestampLayout is fixed-width and zero-padded so lexicographic
// filename order equals creation order. Changing it would break
// latest-baseline selection.
const timestampLayout = "20060102_150405"

const filePerm = 0o644

// Baseline is one persisted snapshot. Written once, read-only after.
type Baseline struct {
	CreatedAt   time.Time         `json:"created_at"`
	HostCount   int               `json:"host_count"`
	ContentHash string            `json:"content_hash"`
	Assessments []risk.Assessment `json:"assessments,omitempty"`
}

// Ref points at a written baseline file.
type Ref struct {
	Path     string
	Baseline Baseline
}

// DriftReport compares the current batch against the most recent
// stored baseline.
type DriftReport struct {
	DriftDetected bool   `json:"drift_detected"`
	Message       string `json:"message,omitempty"`
	BaselineTime  string `json:"baseline_time,omitempty"`
	CurrentTime   string `json:"current_time"`
	BaselineHash  string `json:"baseline_hash,omitempty"`
	CurrentHash   string `json:"current_hash"`
	HostDelta     int    `json:"host_delta"`
}

// Store writes and reads baselines under a single directory.
type Store struct {
	Dir string

	// IncludeAssessments embeds the full batch for forensic replay.
	IncludeAssessments bool

	now func() time.Time
}

// NewStore returns a Store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create baseline directory: %w", err)
	}
	return &Store{Dir: dir, now: time.Now}, nil
}

// ContentHash computes a canonical SHA-256 over v. The value is
// round-tripped through generic JSON so object keys serialize in
// sorted order: two logically identical batches hash identically
// regardless of field or map ordering.
func ContentHash(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("serialize for hashing: %w", err)
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("canonicalize for hashing: %w", err)
	}

	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("serialize canonical form: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// WriteBaseline persists a new timestamped baseline and never
// overwrites an existing one: a same-second collision gets a numeric
// suffix, which still sorts after the unsuffixed name.
func (s *Store) WriteBaseline(assessments []risk.Assessment) (*Ref, error) {
	hash, err := ContentHash(assessments)
	if err != nil {
		return nil, err
	}

	b := Baseline{
		CreatedAt:   s.now().UTC(),
		HostCount:   len(assessments),
		ContentHash: hash,
	}
	if s.IncludeAssessments {
		b.Assessments = assessments
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal baseline: %w", err)
	}

	stamp := b.CreatedAt.Format(timestampLayout)
	for attempt := 0; ; attempt++ {
		name := fmt.Sprintf("baseline_%s.json", stamp)
		if attempt > 0 {
			// Zero-padded so the suffix keeps filenames in creation
			// order lexicographically past nine collisions.
			name = fmt.Sprintf("baseline_%s_%02d.json", stamp, attempt)
		}
		path := filepath.Join(s.Dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create baseline file: %w", err)
		}

		if _, err := f.Write(data); err != nil {
			f.Close()
			return nil, fmt.Errorf("write baseline: %w", err)
		}
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("close baseline: %w", err)
		}
		return &Ref{Path: path, Baseline: b}, nil
	}
}

// Latest returns the most recently created baseline, selected by
// lexicographically greatest filename, or nil when none exist.
func (s *Store) Latest() (*Ref, error) {
	matches, err := filepath.Glob(filepath.Join(s.Dir, "baseline_*.json"))
	if err != nil {
		return nil, fmt.Errorf("list baselines: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.Strings(matches)
	path := matches[len(matches)-1]

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read baseline %s: %w", path, err)
	}

	var b Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse baseline %s: %w", path, err)
	}
	return &Ref{Path: path, Baseline: b}, nil
}

// DetectDrift compares the current batch against the latest baseline.
// A missing baseline is reported, not an error.
func (s *Store) DetectDrift(current []risk.Assessment) (*DriftReport, error) {
	currentHash, err := ContentHash(current)
	if err != nil {
		return nil, err
	}

	report := &DriftReport{
		CurrentTime: s.now().UTC().Format(time.RFC3339),
		CurrentHash: currentHash,
		HostDelta:   len(current),
	}

	latest, err := s.Latest()
	if err != nil {
		return nil, err
	}
	if latest == nil {
		report.Message = "no baseline found; this run establishes the first baseline"
		return report, nil
	}

	report.BaselineTime = latest.Baseline.CreatedAt.Format(time.RFC3339)
	report.BaselineHash = latest.Baseline.ContentHash
	report.HostDelta = len(current) - latest.Baseline.HostCount
	report.DriftDetected = currentHash != latest.Baseline.ContentHash
	if !report.DriftDetected {
		report.Message = "no configuration drift since last baseline"
	}
	return report, nil
}
