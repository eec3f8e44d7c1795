package baseline

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sentinelsweep/sweep-cli/internal/risk"
)

func sampleAssessments(t *testing.T) []risk.Assessment {
	t.Helper()
	e := risk.NewEngine(nil)
	fixed := []risk.Assessment{
		e.AssessExposure("10.0.0.1", []int{22, 445, 3389}, nil),
		e.AssessExposure("10.0.0.2", []int{80}, nil),
	}
	// Pin timestamps so repeated hashing is stable across calls.
	ts := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	for i := range fixed {
		fixed[i].Timestamp = ts
	}
	return fixed
}

func TestContentHashKeyOrderInvariance(t *testing.T) {
	// The same logical object expressed with different key orders must
	// hash identically.
	var a, b interface{}
	if err := json.Unmarshal([]byte(`{"ip":"10.0.0.1","open_ports":[22,445],"true_risk":"HIGH"}`), &a); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(`{"true_risk":"HIGH","ip":"10.0.0.1","open_ports":[22,445]}`), &b); err != nil {
		t.Fatal(err)
	}

	hashA, err := ContentHash(a)
	if err != nil {
		t.Fatalf("ContentHash(a): %v", err)
	}
	hashB, err := ContentHash(b)
	if err != nil {
		t.Fatalf("ContentHash(b): %v", err)
	}
	if hashA != hashB {
		t.Errorf("hashes differ under key reordering: %s vs %s", hashA, hashB)
	}
}

func TestContentHashDetectsValueChange(t *testing.T) {
	batch := sampleAssessments(t)
	h1, err := ContentHash(batch)
	if err != nil {
		t.Fatal(err)
	}

	batch[0].OpenPorts = append(batch[0].OpenPorts, 8080)
	h2, err := ContentHash(batch)
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Error("hash unchanged after port set changed")
	}
}

func TestWriteBaselineNeverOverwrites(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store.now = func() time.Time {
		return time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	}

	batch := sampleAssessments(t)
	ref1, err := store.WriteBaseline(batch)
	if err != nil {
		t.Fatalf("first write: %v", err)
	}
	ref2, err := store.WriteBaseline(batch)
	if err != nil {
		t.Fatalf("second write: %v", err)
	}
	if ref1.Path == ref2.Path {
		t.Errorf("second baseline reused path %s, want a new file", ref1.Path)
	}
	if ref2.Path < ref1.Path {
		t.Errorf("collision suffix %s sorts before %s, breaking latest selection", ref2.Path, ref1.Path)
	}
}

func TestWriteBaselineCollisionSortOrderPastNine(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store.now = func() time.Time {
		return time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	}

	batch := sampleAssessments(t)
	var last *Ref
	for i := 0; i < 12; i++ {
		ref, err := store.WriteBaseline(batch)
		if err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		if last != nil && ref.Path <= last.Path {
			t.Fatalf("write %d: path %s does not sort after %s", i, ref.Path, last.Path)
		}
		last = ref
	}

	latest, err := store.Latest()
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest == nil || latest.Path != last.Path {
		t.Errorf("Latest picked %v, want most recent write %s", latest, last.Path)
	}
}

func TestDetectDriftNoBaseline(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	report, err := store.DetectDrift(sampleAssessments(t))
	if err != nil {
		t.Fatalf("DetectDrift: %v", err)
	}
	if report.DriftDetected {
		t.Error("DriftDetected = true with no baseline, want false")
	}
	if report.Message == "" {
		t.Error("Message empty, want explanation for missing baseline")
	}
}

func TestDetectDriftIdenticalBatch(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	batch := sampleAssessments(t)
	if _, err := store.WriteBaseline(batch); err != nil {
		t.Fatal(err)
	}

	// Applied twice in succession: both comparisons must agree.
	for i := 0; i < 2; i++ {
		report, err := store.DetectDrift(batch)
		if err != nil {
			t.Fatalf("DetectDrift #%d: %v", i+1, err)
		}
		if report.DriftDetected {
			t.Errorf("DetectDrift #%d reported drift for identical batch", i+1)
		}
		if report.HostDelta != 0 {
			t.Errorf("DetectDrift #%d HostDelta = %d, want 0", i+1, report.HostDelta)
		}
		if report.BaselineHash != report.CurrentHash {
			t.Errorf("DetectDrift #%d hashes differ: %s vs %s", i+1, report.BaselineHash, report.CurrentHash)
		}
	}
}

func TestDetectDriftChangedBatch(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	batch := sampleAssessments(t)
	if _, err := store.WriteBaseline(batch); err != nil {
		t.Fatal(err)
	}

	e := risk.NewEngine(nil)
	grown := append([]risk.Assessment{}, batch...)
	extra := e.AssessExposure("10.0.0.3", []int{23}, nil)
	extra.Timestamp = batch[0].Timestamp
	grown = append(grown, extra)

	report, err := store.DetectDrift(grown)
	if err != nil {
		t.Fatal(err)
	}
	if !report.DriftDetected {
		t.Error("DriftDetected = false after adding a host, want true")
	}
	if report.HostDelta != 1 {
		t.Errorf("HostDelta = %d, want +1", report.HostDelta)
	}
}

func TestLatestSelectsNewestByName(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	times := []time.Time{
		time.Date(2026, 8, 21, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 22, 9, 0, 0, 0, time.UTC),
	}
	var i int
	store.now = func() time.Time { t := times[i]; i++; return t }

	batch := sampleAssessments(t)
	for range times {
		if _, err := store.WriteBaseline(batch); err != nil {
			t.Fatal(err)
		}
	}

	latest, err := store.Latest()
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil {
		t.Fatal("Latest returned nil with baselines present")
	}
	want := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)
	if !latest.Baseline.CreatedAt.Equal(want) {
		t.Errorf("Latest CreatedAt = %v, want %v", latest.Baseline.CreatedAt, want)
	}
}
