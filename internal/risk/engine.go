// Package risk scores exposed services against a MITRE ATT&CK port
// reference and merges optional triage evidence into a final tier.
package risk

import (
	"fmt"
	"net/netip"
	"sort"
	"time"
)

// Finding ties one open port to its MITRE technique reference.
type Finding struct {
	Port        int    `json:"port"`
	TechniqueID string `json:"technique_id"`
	TacticName  string `json:"tactic_name"`
	ServiceName string `json:"service_name"`
	Severity    Level  `json:"severity"`
}

// Assessment is the scored exposure record for one host (or, at the
// caller's choice, a single port). TrueRisk equals InitialRisk unless
// RiskAdjusted is set, in which case AdjustmentReason is non-empty.
type Assessment struct {
	IP               string    `json:"ip"`
	OpenPorts        []int     `json:"open_ports"`
	InitialRisk      Level     `json:"initial_risk"`
	RiskScore        int       `json:"risk_score"`
	MitreFindings    []Finding `json:"mitre_findings"`
	Recommendations  []string  `json:"recommendations"`
	TrueRisk         Level     `json:"true_risk"`
	RiskAdjusted     bool      `json:"risk_adjusted"`
	AdjustmentReason string    `json:"adjustment_reason,omitempty"`
	NetworkSegment   string    `json:"network_segment"`
	Timestamp        time.Time `json:"timestamp"`
}

// Evidence is the triage-derived override the scoring engine consumes.
// A nil *Evidence means no triage ran (or it produced no override).
type Evidence struct {
	FinalRisk        Level
	AdjustmentReason string
}

// SegmentRule names an internal address range for segment labeling.
// Rules are evaluated in order; the first containing prefix wins.
type SegmentRule struct {
	Prefix netip.Prefix
	Name   string
}

// DefaultSegments covers the commonly assessed internal ranges.
func DefaultSegments() []SegmentRule {
	return []SegmentRule{
		{Prefix: netip.MustParsePrefix("192.168.10.0/24"), Name: "Internal_Management"},
		{Prefix: netip.MustParsePrefix("192.168.20.0/24"), Name: "User_Network"},
		{Prefix: netip.MustParsePrefix("10.0.0.0/16"), Name: "Server_Farm"},
	}
}

const generalSegment = "General_Network"

// Risk score thresholds for the initial tier.
const (
	criticalThreshold = 15
	highThreshold     = 10
	mediumThreshold   = 5
)

const compoundExposureRecommendation = "CRITICAL: Both RDP and SMB exposed - known lateral movement pattern, isolate host immediately"

// Engine derives assessments from open-port sets and optional triage
// evidence. Segment rules are fixed at construction; the engine itself
// is stateless and safe for concurrent use.
type Engine struct {
	segments []SegmentRule
	now      func() time.Time
}

// NewEngine returns an Engine using the given segment rules, or
// DefaultSegments when none are supplied.
func NewEngine(segments []SegmentRule) *Engine {
	if len(segments) == 0 {
		segments = DefaultSegments()
	}
	return &Engine{segments: segments, now: time.Now}
}

// AssessExposure scores the open ports of one host. Evidence, when
// present and carrying a final risk, overrides the threshold-derived
// tier with a justified adjustment.
func (e *Engine) AssessExposure(ip string, openPorts []int, ev *Evidence) Assessment {
	ports := append([]int(nil), openPorts...)
	sort.Ints(ports)

	var (
		score           int
		findings        = []Finding{}
		recommendations = []string{}
	)

	for _, port := range ports {
		ref, ok := LookupMitre(port)
		if !ok {
			continue
		}
		findings = append(findings, Finding{
			Port:        port,
			TechniqueID: ref.TechniqueID,
			TacticName:  ref.TacticName,
			ServiceName: ref.ServiceName,
			Severity:    ref.BaseSeverity,
		})
		score += ref.BaseSeverity.Weight()

		if rec := recommendationFor(port, ports); rec != "" {
			recommendations = append(recommendations, rec)
		}
	}

	initial := tierForScore(score)

	// Compound-exposure override: RDP plus SMB is a known lateral
	// movement pattern and outranks the threshold tier.
	if containsPort(ports, PortRDP) && containsPort(ports, PortSMB) {
		initial = Critical
		recommendations = append(recommendations, compoundExposureRecommendation)
	}

	a := Assessment{
		IP:              ip,
		OpenPorts:       ports,
		InitialRisk:     initial,
		RiskScore:       score,
		MitreFindings:   findings,
		Recommendations: recommendations,
		TrueRisk:        initial,
		NetworkSegment:  e.segmentFor(ip),
		Timestamp:       e.now().UTC(),
	}

	if ev != nil && ev.FinalRisk != "" {
		a.TrueRisk = ev.FinalRisk
		a.RiskAdjusted = true
		a.AdjustmentReason = ev.AdjustmentReason
		if a.AdjustmentReason == "" {
			a.AdjustmentReason = "Contextual triage applied"
		}
	}

	return a
}

func tierForScore(score int) Level {
	switch {
	case score >= criticalThreshold:
		return Critical
	case score >= highThreshold:
		return High
	case score >= mediumThreshold:
		return Medium
	default:
		return Low
	}
}

func recommendationFor(port int, openPorts []int) string {
	switch port {
	case PortRDP:
		return "Restrict RDP to VPN or jump host"
	case PortSSH:
		return "Implement SSH key authentication only"
	case PortHTTP:
		if !containsPort(openPorts, PortHTTPS) {
			return "Redirect HTTP to HTTPS"
		}
	case PortSMB:
		return "Restrict SMB to internal subnets only"
	}
	return ""
}

func containsPort(ports []int, want int) bool {
	for _, p := range ports {
		if p == want {
			return true
		}
	}
	return false
}

// segmentFor labels the host's network segment. Metadata only; it does
// not affect scoring.
func (e *Engine) segmentFor(ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return generalSegment
	}
	for _, rule := range e.segments {
		if rule.Prefix.Contains(addr) {
			return rule.Name
		}
	}
	return generalSegment
}

// PortCount pairs a port with how many hosts exposed it.
type PortCount struct {
	Port  int `json:"port"`
	Count int `json:"count"`
}

// Summary aggregates a run's assessments for executive reporting.
type Summary struct {
	TotalHosts        int         `json:"total_hosts"`
	HostsWithExposure int         `json:"hosts_with_exposure"`
	CriticalHosts     int         `json:"critical_hosts"`
	HighHosts         int         `json:"high_hosts"`
	MediumHosts       int         `json:"medium_hosts"`
	LowHosts          int         `json:"low_hosts"`
	AdjustedRisks     int         `json:"adjusted_risks"`
	TotalOpenPorts    int         `json:"total_open_ports"`
	CommonPorts       []PortCount `json:"common_ports"`
}

// GenerateExecutiveSummary aggregates assessments into per-tier counts
// and the five most frequently exposed ports. Frequency ties keep
// first-seen order.
func GenerateExecutiveSummary(assessments []Assessment) Summary {
	s := Summary{
		TotalHosts:  len(assessments),
		CommonPorts: []PortCount{},
	}

	counts := map[int]int{}
	order := []int{}

	for _, a := range assessments {
		if len(a.OpenPorts) > 0 {
			s.HostsWithExposure++
		}
		switch a.TrueRisk {
		case Critical:
			s.CriticalHosts++
		case High:
			s.HighHosts++
		case Medium:
			s.MediumHosts++
		case Low:
			s.LowHosts++
		}
		if a.RiskAdjusted {
			s.AdjustedRisks++
		}
		s.TotalOpenPorts += len(a.OpenPorts)

		for _, port := range a.OpenPorts {
			if _, seen := counts[port]; !seen {
				order = append(order, port)
			}
			counts[port]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	for i, port := range order {
		if i == 5 {
			break
		}
		s.CommonPorts = append(s.CommonPorts, PortCount{Port: port, Count: counts[port]})
	}

	return s
}

// String implements a compact finding label used in console output.
func (f Finding) String() string {
	return fmt.Sprintf("%d/%s %s (%s)", f.Port, f.ServiceName, f.TechniqueID, f.Severity)
}
