// Package triage gathers lightweight protocol-level evidence (service
// identity, network locality, best-effort banners) for open ports on
// the deep-dive list and derives justified risk overrides from it.
// Banner evidence is strictly optional: every failure degrades to
// "service identified, no override" rather than aborting a host.
package triage

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sentinelsweep/sweep-cli/internal/risk"
)

// Reliability grades how much weight the evidence deserves.
type Reliability string

const (
	ReliabilityLow    Reliability = "LOW"
	ReliabilityMedium Reliability = "MEDIUM"
	ReliabilityHigh   Reliability = "HIGH"
)

// Context classifies where the assessed address sits on the network.
type Context string

const (
	ContextInternal Context = "Internal"
	ContextExternal Context = "External"
	ContextLoopback Context = "Loopback"
	ContextUnknown  Context = "Unknown"
)

// ServiceEvidence is the immutable triage output for one port. It is
// created once per triaged port and handed to the caller by value.
type ServiceEvidence struct {
	IP               string      `json:"ip"`
	Port             int         `json:"port"`
	ServiceGuess     string      `json:"service_guess"`
	Banner           string      `json:"banner,omitempty"`
	Reliability      Reliability `json:"reliability"`
	NetworkContext   Context     `json:"network_context"`
	ChecksPassed     []string    `json:"checks_passed"`
	ChecksFailed     []string    `json:"checks_failed"`
	FinalRisk        risk.Level  `json:"final_risk,omitempty"`
	AdjustmentReason string      `json:"adjustment_reason,omitempty"`
	Diagnostic       string      `json:"diagnostic,omitempty"`
}

// Override converts the evidence into the scoring engine's view, or
// nil when triage produced no risk override.
func (ev *ServiceEvidence) Override() *risk.Evidence {
	if ev == nil || ev.FinalRisk == "" {
		return nil
	}
	return &risk.Evidence{FinalRisk: ev.FinalRisk, AdjustmentReason: ev.AdjustmentReason}
}

// deepDivePorts is the fixed set of services worth a banner probe.
// Everything else is scored on port identity alone.
var deepDivePorts = map[int]bool{
	risk.PortFTP:     true,
	risk.PortSSH:     true,
	risk.PortTelnet:  true,
	risk.PortSMB:     true,
	risk.PortRDP:     true,
	risk.PortVNC:     true,
	risk.PortHTTP:    true,
	risk.PortHTTPAlt: true,
}

// DeepDivePort reports whether a port belongs to the deep-dive set.
func DeepDivePort(port int) bool {
	return deepDivePorts[port]
}

var serviceGuesses = map[int]string{
	21:    "FTP",
	22:    "SSH",
	23:    "Telnet",
	25:    "SMTP",
	80:    "HTTP",
	443:   "HTTPS",
	445:   "SMB",
	3306:  "MySQL",
	3389:  "RDP",
	5432:  "PostgreSQL",
	5900:  "VNC",
	8080:  "HTTP-Alt",
	27017: "MongoDB",
}

// GuessService maps a port to a human-readable service label.
func GuessService(port int) string {
	if name, ok := serviceGuesses[port]; ok {
		return name
	}
	return fmt.Sprintf("Port-%d", port)
}

// Stats holds the triage engine's counters, updated atomically.
type Stats struct {
	servicesTriaged atomic.Int64
	bannersGrabbed  atomic.Int64
	risksAdjusted   atomic.Int64
	errors          atomic.Int64
}

// StatsSnapshot is a point-in-time copy of triage counters.
type StatsSnapshot struct {
	ServicesTriaged int64 `json:"services_triaged"`
	BannersGrabbed  int64 `json:"banners_grabbed"`
	RisksAdjusted   int64 `json:"risks_adjusted"`
	Errors          int64 `json:"errors"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		ServicesTriaged: s.servicesTriaged.Load(),
		BannersGrabbed:  s.bannersGrabbed.Load(),
		RisksAdjusted:   s.risksAdjusted.Load(),
		Errors:          s.errors.Load(),
	}
}

const (
	defaultBannerTimeout = 2 * time.Second
	defaultBannerBytes   = 256
)

// Engine performs per-port triage. Safe for concurrent use.
type Engine struct {
	bannerTimeout time.Duration
	bannerBytes   int
	logger        *zap.SugaredLogger
	stats         Stats
}

// New returns a triage Engine. Zero values select defaults.
func New(bannerTimeout time.Duration, logger *zap.SugaredLogger) *Engine {
	if bannerTimeout <= 0 {
		bannerTimeout = defaultBannerTimeout
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Engine{
		bannerTimeout: bannerTimeout,
		bannerBytes:   defaultBannerBytes,
		logger:        logger,
	}
}

// Stats returns a snapshot of the engine's counters.
func (e *Engine) Stats() StatsSnapshot {
	return e.stats.Snapshot()
}

// TriageService identifies the service on ip:port, classifies its
// network locality, attempts a best-effort banner read, and applies
// the declarative signal rules. It never fails: all errors are
// recorded in the evidence diagnostics.
func (e *Engine) TriageService(ctx context.Context, ip string, port int) ServiceEvidence {
	e.stats.servicesTriaged.Add(1)

	ev := ServiceEvidence{
		IP:             ip,
		Port:           port,
		ServiceGuess:   GuessService(port),
		Reliability:    ReliabilityMedium,
		NetworkContext: ClassifyContext(ip),
		ChecksPassed:   []string{},
		ChecksFailed:   []string{},
	}
	if ev.NetworkContext == ContextUnknown {
		ev.Reliability = ReliabilityLow
	}

	// SMB carries inherent lateral-movement risk; the floor applies
	// with or without a banner.
	if port == risk.PortSMB {
		ev.FinalRisk = risk.High
		ev.AdjustmentReason = "SMB exposure carries inherent lateral movement risk"
		e.stats.risksAdjusted.Add(1)
	}

	banner, err := e.grabBanner(ctx, ip, port)
	if err != nil {
		// No banner is a normal outcome, not an error.
		ev.Diagnostic = fmt.Sprintf("banner unavailable: %v", err)
		e.logger.Debugw("banner grab failed", "ip", ip, "port", port, "error", err)
		return ev
	}
	if banner == "" {
		ev.Diagnostic = "service accepted connection but sent no banner"
		return ev
	}

	ev.Banner = banner
	ev.Reliability = ReliabilityHigh
	e.stats.bannersGrabbed.Add(1)

	if applySignals(&ev) {
		e.stats.risksAdjusted.Add(1)
	}

	return ev
}

// ClassifyContext derives network locality from the address alone.
// It always succeeds; malformed input maps to Unknown.
func ClassifyContext(ip string) Context {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return ContextUnknown
	}
	switch {
	case addr.IsLoopback():
		return ContextLoopback
	case addr.IsPrivate() || addr.IsLinkLocalUnicast():
		return ContextInternal
	default:
		return ContextExternal
	}
}

// grabBanner opens a short-lived connection, sends a single newline to
// coax line-oriented services into responding, and reads up to the
// byte budget. Non-decodable bytes are dropped, not fatal.
func (e *Engine) grabBanner(ctx context.Context, ip string, port int) (string, error) {
	dialer := net.Dialer{Timeout: e.bannerTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		return "", err
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(e.bannerTimeout))
	if _, err := conn.Write([]byte("\n")); err != nil {
		return "", err
	}

	buf := make([]byte, e.bannerBytes)
	n, err := conn.Read(buf)
	if n == 0 {
		if err != nil {
			return "", err
		}
		return "", nil
	}

	return strings.TrimSpace(strings.ToValidUTF8(string(buf[:n]), "")), nil
}
