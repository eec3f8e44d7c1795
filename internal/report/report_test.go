package report

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/sentinelsweep/sweep-cli/internal/risk"
)

func testBatch() ([]risk.Assessment, risk.Summary) {
	e := risk.NewEngine(nil)
	assessments := []risk.Assessment{
		e.AssessExposure("10.0.0.1", []int{22, 445, 3389}, &risk.Evidence{FinalRisk: risk.Critical, AdjustmentReason: "RDP without NLA hardening"}),
		e.AssessExposure("10.0.0.2", []int{80}, nil),
	}
	return assessments, risk.GenerateExecutiveSummary(assessments)
}

func TestGenerateReportsArtifacts(t *testing.T) {
	dir := t.TempDir()
	r, err := New(dir, "test")
	if err != nil {
		t.Fatal(err)
	}
	r.EnablePDF = true

	assessments, summary := testBatch()
	paths, err := r.GenerateReports(assessments, summary)
	if err != nil {
		t.Fatalf("GenerateReports: %v", err)
	}

	for name, path := range map[string]string{"json": paths.JSON, "csv": paths.CSV, "html": paths.HTML, "pdf": paths.PDF} {
		if path == "" {
			t.Errorf("%s artifact path empty", name)
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("%s artifact missing: %v", name, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("%s artifact is empty", name)
		}
	}
}

func TestJSONPayloadRoundTrip(t *testing.T) {
	r, err := New(t.TempDir(), "test")
	if err != nil {
		t.Fatal(err)
	}

	assessments, summary := testBatch()
	paths, err := r.GenerateReports(assessments, summary)
	if err != nil {
		t.Fatal(err)
	}

	payload, err := LoadPayload(paths.JSON)
	if err != nil {
		t.Fatalf("LoadPayload: %v", err)
	}
	if payload.SchemaVersion != SchemaVersion {
		t.Errorf("SchemaVersion = %s, want %s", payload.SchemaVersion, SchemaVersion)
	}
	if len(payload.Assessments) != 2 {
		t.Fatalf("Assessments = %d, want 2", len(payload.Assessments))
	}
	if payload.Assessments[0].TrueRisk != risk.Critical {
		t.Errorf("first assessment TrueRisk = %v, want CRITICAL", payload.Assessments[0].TrueRisk)
	}
	if payload.Metadata.RunID != r.RunID() {
		t.Errorf("RunID = %s, want %s", payload.Metadata.RunID, r.RunID())
	}
	if payload.Metadata.ScanSummary.TotalHosts != 2 {
		t.Errorf("summary TotalHosts = %d, want 2", payload.Metadata.ScanSummary.TotalHosts)
	}
}

func TestCSVRows(t *testing.T) {
	r, err := New(t.TempDir(), "test")
	if err != nil {
		t.Fatal(err)
	}

	assessments, summary := testBatch()
	paths, err := r.GenerateReports(assessments, summary)
	if err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(paths.CSV)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("CSV has %d rows, want header + 2", len(rows))
	}
	if rows[1][0] != "10.0.0.1" {
		t.Errorf("row ip = %s, want 10.0.0.1", rows[1][0])
	}
	if rows[1][1] != "22;445;3389" {
		t.Errorf("row ports = %s, want 22;445;3389", rows[1][1])
	}
	if !strings.Contains(rows[1][7], "T1021.001") {
		t.Errorf("row techniques = %s, want RDP technique present", rows[1][7])
	}
}

func TestHTMLContainsFindings(t *testing.T) {
	r, err := New(t.TempDir(), "test")
	if err != nil {
		t.Fatal(err)
	}

	assessments, summary := testBatch()
	paths, err := r.GenerateReports(assessments, summary)
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(paths.HTML)
	if err != nil {
		t.Fatal(err)
	}
	html := string(data)

	for _, want := range []string{"10.0.0.1", "badge-critical", "RDP without NLA hardening", r.RunID()} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML report missing %q", want)
		}
	}
}

func TestLoadPayloadRejectsGarbage(t *testing.T) {
	path := t.TempDir() + "/bad.json"
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPayload(path); err == nil {
		t.Error("LoadPayload succeeded on malformed JSON, want error")
	}
}

func TestPayloadJSONFieldNames(t *testing.T) {
	assessments, summary := testBatch()
	payload := Payload{
		Metadata:      Metadata{ReportID: "sweep_x", ScanSummary: summary},
		SchemaVersion: SchemaVersion,
		Assessments:   assessments,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{`"schema_version"`, `"report_id"`, `"open_ports"`, `"true_risk"`, `"risk_adjusted"`, `"mitre_findings"`, `"network_segment"`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("payload JSON missing field %s", field)
		}
	}
}
