// Package report renders completed assessment batches into the
// analyst-facing artifacts: SIEM-ready JSON, CSV rows, an HTML
// dashboard, and a PDF executive summary.
package report

import (
	"embed"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"

	"github.com/sentinelsweep/sweep-cli/internal/risk"
)

const (
	// SchemaVersion tags the JSON payload for downstream consumers.
	SchemaVersion = "3.0"

	htmlTemplatePath = "templates/report.html"
	timestampLayout  = "20060102_150405"
	maxHTMLFindings  = 20
	maxPDFFindings   = 50
	filePerm         = 0o644
)

//go:embed templates/report.html
var templateFS embed.FS

var htmlTemplateFuncs = template.FuncMap{
	"formatTime":     formatShortTimestamp,
	"joinPorts":      joinPorts,
	"riskBadgeClass": riskBadgeClass,
}

var htmlReportTemplate = template.Must(
	template.New("report.html").Funcs(htmlTemplateFuncs).ParseFS(templateFS, htmlTemplatePath),
)

// Metadata describes one report generation run.
type Metadata struct {
	ReportID    string       `json:"report_id"`
	RunID       string       `json:"run_id"`
	GeneratedAt time.Time    `json:"generated_at"`
	ToolVersion string       `json:"tool_version"`
	ScanSummary risk.Summary `json:"scan_summary"`
}

// Payload is the persisted JSON report shape.
type Payload struct {
	Metadata      Metadata          `json:"metadata"`
	SchemaVersion string            `json:"schema_version"`
	Assessments   []risk.Assessment `json:"assessments"`
}

// Paths lists the artifact files one generation produced.
type Paths struct {
	JSON string `json:"json"`
	CSV  string `json:"csv"`
	HTML string `json:"html"`
	PDF  string `json:"pdf,omitempty"`
}

// Reporter writes report artifacts under a single output directory.
// Each Reporter instance stamps its artifacts with one timestamp and
// one run ID.
type Reporter struct {
	OutputDir string
	Version   string
	EnablePDF bool

	stamp string
	runID string
}

// New returns a Reporter rooted at outputDir, creating it if needed.
func New(outputDir, version string) (*Reporter, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}
	return &Reporter{
		OutputDir: outputDir,
		Version:   version,
		stamp:     time.Now().UTC().Format(timestampLayout),
		runID:     uuid.New().String(),
	}, nil
}

// RunID returns the unique identifier stamped on this run's artifacts.
func (r *Reporter) RunID() string {
	return r.runID
}

// GenerateReports writes every enabled artifact and returns their
// paths. The JSON artifact is the authoritative record; CSV/HTML/PDF
// are renderings of the same batch.
func (r *Reporter) GenerateReports(assessments []risk.Assessment, summary risk.Summary) (Paths, error) {
	meta := Metadata{
		ReportID:    "sweep_" + r.stamp,
		RunID:       r.runID,
		GeneratedAt: time.Now().UTC(),
		ToolVersion: r.Version,
		ScanSummary: summary,
	}

	var paths Paths
	var err error

	if paths.JSON, err = r.writeJSON(meta, assessments); err != nil {
		return paths, err
	}
	if paths.CSV, err = r.writeCSV(assessments); err != nil {
		return paths, err
	}
	if paths.HTML, err = r.writeHTML(meta, assessments, summary); err != nil {
		return paths, err
	}
	if r.EnablePDF {
		if paths.PDF, err = r.writePDF(meta, assessments, summary); err != nil {
			return paths, err
		}
	}
	return paths, nil
}

func (r *Reporter) artifactPath(ext string) string {
	return filepath.Join(r.OutputDir, fmt.Sprintf("sweep_%s.%s", r.stamp, ext))
}

func (r *Reporter) writeJSON(meta Metadata, assessments []risk.Assessment) (string, error) {
	payload := Payload{
		Metadata:      meta,
		SchemaVersion: SchemaVersion,
		Assessments:   assessments,
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report payload: %w", err)
	}

	path := r.artifactPath("json")
	if err := os.WriteFile(path, data, filePerm); err != nil {
		return "", fmt.Errorf("write JSON report: %w", err)
	}
	return path, nil
}

func (r *Reporter) writeCSV(assessments []risk.Assessment) (string, error) {
	path := r.artifactPath("csv")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return "", fmt.Errorf("create CSV report: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"ip", "ports", "initial_risk", "final_risk", "risk_score", "risk_adjusted", "network_segment", "mitre_techniques"}
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("write CSV header: %w", err)
	}

	for _, a := range assessments {
		row := []string{
			a.IP,
			joinPorts(a.OpenPorts, ";"),
			string(a.InitialRisk),
			string(a.TrueRisk),
			strconv.Itoa(a.RiskScore),
			strconv.FormatBool(a.RiskAdjusted),
			a.NetworkSegment,
			joinTechniques(a.MitreFindings),
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("write CSV row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush CSV report: %w", err)
	}
	return path, nil
}

// htmlData feeds the embedded dashboard template.
type htmlData struct {
	ReportID       string
	RunID          string
	GeneratedAt    time.Time
	Summary        risk.Summary
	TopAssessments []risk.Assessment
}

func (r *Reporter) writeHTML(meta Metadata, assessments []risk.Assessment, summary risk.Summary) (string, error) {
	top := topByScore(assessments, maxHTMLFindings)

	path := r.artifactPath("html")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return "", fmt.Errorf("create HTML report: %w", err)
	}
	defer f.Close()

	data := htmlData{
		ReportID:       meta.ReportID,
		RunID:          meta.RunID,
		GeneratedAt:    meta.GeneratedAt,
		Summary:        summary,
		TopAssessments: top,
	}
	if err := htmlReportTemplate.Execute(f, data); err != nil {
		return "", fmt.Errorf("render HTML report: %w", err)
	}
	return path, nil
}

func (r *Reporter) writePDF(meta Metadata, assessments []risk.Assessment, summary risk.Summary) (string, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "Network Exposure Assessment", "", 1, "C", false, 0, "")
	pdf.Ln(5)

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Report ID: %s", meta.ReportID), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Run ID: %s", meta.RunID), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated: %s", formatShortTimestamp(meta.GeneratedAt)), "", 1, "", false, 0, "")
	pdf.Ln(5)

	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, "Executive Summary", "", 1, "", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Hosts: %d total, %d with exposure | Open ports: %d",
		summary.TotalHosts, summary.HostsWithExposure, summary.TotalOpenPorts), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Critical: %d | High: %d | Medium: %d | Low: %d | Triage-adjusted: %d",
		summary.CriticalHosts, summary.HighHosts, summary.MediumHosts, summary.LowHosts, summary.AdjustedRisks), "", 1, "", false, 0, "")
	pdf.Ln(5)

	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, "Findings", "", 1, "", false, 0, "")
	pdf.SetFont("Arial", "", 9)

	top := topByScore(assessments, maxPDFFindings)
	for i, a := range top {
		if pdf.GetY() > 260 {
			pdf.AddPage()
		}
		pdf.CellFormat(0, 5, fmt.Sprintf("%d. %s [%s] score=%d ports=%s segment=%s",
			i+1, a.IP, a.TrueRisk, a.RiskScore, joinPorts(a.OpenPorts, ","), a.NetworkSegment), "", 1, "", false, 0, "")
		if a.RiskAdjusted {
			pdf.CellFormat(0, 5, fmt.Sprintf("   adjusted: %s", a.AdjustmentReason), "", 1, "", false, 0, "")
		}
	}
	if len(assessments) > len(top) {
		pdf.SetFont("Arial", "I", 9)
		pdf.CellFormat(0, 6, fmt.Sprintf("... %d additional hosts omitted ...", len(assessments)-len(top)), "", 1, "", false, 0, "")
	}

	path := r.artifactPath("pdf")
	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("write PDF report: %w", err)
	}
	return path, nil
}

// LoadPayload reads back a persisted JSON report, e.g. for offline
// drift comparison.
func LoadPayload(path string) (*Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report %s: %w", path, err)
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return &p, nil
}

func topByScore(assessments []risk.Assessment, limit int) []risk.Assessment {
	top := append([]risk.Assessment(nil), assessments...)
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].RiskScore > top[j].RiskScore
	})
	if len(top) > limit {
		top = top[:limit]
	}
	return top
}

func joinPorts(ports []int, sep string) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, sep)
}

func joinTechniques(findings []risk.Finding) string {
	limit := len(findings)
	if limit > 5 {
		limit = 5
	}
	parts := make([]string, 0, limit)
	for _, f := range findings[:limit] {
		parts = append(parts, f.TechniqueID)
	}
	return strings.Join(parts, ";")
}

func formatShortTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}

func riskBadgeClass(level risk.Level) string {
	switch level {
	case risk.Critical:
		return "badge-critical"
	case risk.High:
		return "badge-high"
	case risk.Medium:
		return "badge-medium"
	case risk.Low:
		return "badge-low"
	}
	return ""
}
