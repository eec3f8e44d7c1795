package cmd

import (
	"context"
	"fmt"
	"net/netip"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/sentinelsweep/sweep-cli/internal/baseline"
	"github.com/sentinelsweep/sweep-cli/internal/netrange"
	"github.com/sentinelsweep/sweep-cli/internal/report"
	"github.com/sentinelsweep/sweep-cli/internal/risk"
	"github.com/sentinelsweep/sweep-cli/internal/scanner"
	"github.com/sentinelsweep/sweep-cli/internal/triage"
)

// maxHostParallelism bounds how many hosts are scanned at once. Port
// probe concurrency is bounded separately by the scanner's shared
// worker ceiling, so this only limits per-host bookkeeping.
const maxHostParallelism = 32

var portsSpec string

var scanCmd = &cobra.Command{
	Use:   "scan [network-cidr]",
	Short: "Assess TCP exposure across a network range",
	Long: `Expand a CIDR range, probe each host's TCP ports with a single
connect attempt per port, triage open services via passive banner
inspection, score the exposure against a MITRE ATT&CK reference, and
write JSON/CSV/HTML reports plus a drift baseline.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func init() {
	f := scanCmd.Flags()
	f.StringVarP(&scanConfig.CIDR, "network", "n", "", "Target network in CIDR notation (e.g. 192.168.10.0/24)")
	f.StringVarP(&portsSpec, "ports", "p", "", "Comma-separated TCP ports (default: common service set)")
	f.Float64Var(&scanConfig.ConnectTimeout, "timeout", defaultConnectTimeoutSecs, "Per-connection timeout in seconds")
	f.Float64Var(&scanConfig.ProbeDelay, "delay", defaultProbeDelaySecs, "Post-probe delay in seconds (applies to every probe)")
	f.IntVar(&scanConfig.MaxWorkers, "max-workers", defaultMaxWorkers, "Probe worker ceiling shared across all hosts")
	f.IntVar(&scanConfig.GlobalRate, "rate", defaultGlobalRate, "Global probe budget in probes/second")
	f.Float64Var(&scanConfig.HostSlack, "host-slack", defaultHostSlackSecs, "Extra seconds added to each host's deadline")
	f.Float64Var(&scanConfig.BannerTimeout, "banner-timeout", defaultBannerTimeoutSecs, "Banner grab timeout in seconds")
	f.BoolVar(&scanConfig.DeepDive, "deep-dive", true, "Triage open services on the deep-dive port set")
	f.BoolVar(&scanConfig.WriteBaseline, "baseline", true, "Record a drift baseline after the run")
	f.BoolVar(&scanConfig.IncludeAssessment, "include-assessments", false, "Embed full assessments in the baseline file")
	f.BoolVar(&scanConfig.EnablePDF, "pdf", false, "Also render a PDF report")
	f.StringSliceVar(&scanConfig.InternalRanges, "internal-range", nil, "Segment label as name=CIDR (repeatable)")
	f.BoolVarP(&scanConfig.AssumeYes, "assume-yes", "y", false, "Assert authorization without the interactive prompt")
	f.BoolVar(&scanConfig.TelemetryEnabled, "telemetry", false, "Append a run record to telemetry.jsonl")
}

// hostResult carries one host's outcome back to the aggregator.
type hostResult struct {
	assessment risk.Assessment
	failed     bool
}

func runScan(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		scanConfig.CIDR = args[0]
	}
	if scanConfig.CIDR == "" {
		return fmt.Errorf("target network required (positional argument, --network, or network_cidr in config)")
	}
	if portsSpec != "" {
		parsed, err := ParsePorts(portsSpec)
		if err != nil {
			return err
		}
		scanConfig.Ports = parsed
	}
	if err := scanConfig.Validate(); err != nil {
		return err
	}

	printComplianceBanner(cmd.OutOrStdout(), operator, scanConfig.CIDR)
	if err := confirmAuthorization(cmd.InOrStdin(), cmd.OutOrStdout(), scanConfig.AssumeYes); err != nil {
		return err
	}

	hosts, err := netrange.Expand(scanConfig.CIDR)
	if err != nil {
		return err
	}
	if len(hosts) == 0 {
		return &EmptyTargetError{Range: scanConfig.CIDR}
	}

	segments, err := ParseSegmentRules(scanConfig.InternalRanges)
	if err != nil {
		return err
	}

	var (
		connectTimeout = secondsToDuration(scanConfig.ConnectTimeout)
		probeDelay     = secondsToDuration(scanConfig.ProbeDelay)
		bannerTimeout  = secondsToDuration(scanConfig.BannerTimeout)
		hostDeadline   = time.Duration(len(scanConfig.Ports))*(connectTimeout+probeDelay) +
			secondsToDuration(scanConfig.HostSlack)
	)

	sc := scanner.New(connectTimeout, scanConfig.MaxWorkers, logger)
	tr := triage.New(bannerTimeout, logger)
	engine := risk.NewEngine(segments)

	fmt.Printf("%s Scanning %d hosts x %d ports (rate %d probes/s, %d workers)\n",
		colorInfo("→"), len(hosts), len(scanConfig.Ports), scanConfig.GlobalRate, scanConfig.MaxWorkers)

	start := time.Now()
	assessments, failedHosts, err := sweepHosts(cmd.Context(), sc, tr, engine, hosts, hostDeadline, probeDelay)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	printFindings(assessments)

	summary := risk.GenerateExecutiveSummary(assessments)
	scanStats := sc.Stats()
	printRunSummary(summary, scanStats, tr.Stats(), failedHosts, elapsed)

	reporter, err := report.New(resultsDir, Version)
	if err != nil {
		return err
	}
	reporter.EnablePDF = scanConfig.EnablePDF

	paths, err := reporter.GenerateReports(assessments, summary)
	if err != nil {
		return fmt.Errorf("generate reports: %w", err)
	}
	fmt.Printf("%s Reports written: %s\n", colorInfo("→"), paths.JSON)

	store, err := baseline.NewStore(filepath.Join(resultsDir, "baselines"))
	if err != nil {
		return err
	}
	store.IncludeAssessments = scanConfig.IncludeAssessment

	drift, err := store.DetectDrift(assessments)
	if err != nil {
		return err
	}
	printDriftReport(drift)

	if scanConfig.WriteBaseline {
		ref, err := store.WriteBaseline(assessments)
		if err != nil {
			return fmt.Errorf("write baseline: %w", err)
		}
		fmt.Printf("%s Baseline recorded: %s\n", colorInfo("→"), ref.Path)
	}

	if scanConfig.TelemetryEnabled {
		record := telemetryRecord{
			Command:           "scan",
			RunID:             reporter.RunID(),
			Operator:          operator,
			NetworkRange:      scanConfig.CIDR,
			HostsScanned:      scanStats.HostsScanned,
			PortsChecked:      scanStats.PortsChecked,
			OpenPortsFound:    scanStats.OpenPortsFound,
			HostsWithExposure: summary.HostsWithExposure,
			DurationSeconds:   elapsed.Seconds(),
		}
		if err := recordTelemetry(resultsDir, record); err != nil {
			logger.Warnw("telemetry write failed", "error", err)
		}
	}

	return nil
}

// sweepHosts scans every host with bounded parallelism. The global
// rate limiter reserves a host's full probe budget before its scan
// starts so aggregate probe cadence stays within the configured rate.
func sweepHosts(
	ctx context.Context,
	sc *scanner.Scanner,
	tr *triage.Engine,
	engine *risk.Engine,
	hosts []string,
	hostDeadline time.Duration,
	probeDelay time.Duration,
) ([]risk.Assessment, int, error) {
	burst := scanConfig.GlobalRate
	if burst < len(scanConfig.Ports) {
		burst = len(scanConfig.Ports)
	}
	limiter := rate.NewLimiter(rate.Limit(scanConfig.GlobalRate), burst)

	progress := newProgressPrinter(len(hosts), "scan")
	progress.Start()
	defer progress.Stop()

	var (
		mu          sync.Mutex
		assessments []risk.Assessment
		failedHosts int
		wg          sync.WaitGroup
	)
	hostSlots := make(chan struct{}, maxHostParallelism)

	for _, ip := range hosts {
		if err := limiter.WaitN(ctx, len(scanConfig.Ports)); err != nil {
			wg.Wait()
			return nil, failedHosts, err
		}

		hostSlots <- struct{}{}
		wg.Add(1)
		go func(ip string) {
			defer wg.Done()
			defer func() { <-hostSlots }()

			hostStart := time.Now()
			res := scanOneHost(ctx, sc, tr, engine, ip, hostDeadline, probeDelay)
			hostSeconds := time.Since(hostStart).Seconds()

			mu.Lock()
			if res.failed {
				failedHosts++
			} else {
				assessments = append(assessments, res.assessment)
			}
			mu.Unlock()

			switch {
			case res.failed:
				progress.IncrementFailed(hostSeconds)
			case len(res.assessment.OpenPorts) > 0:
				progress.IncrementExposed(hostSeconds)
			default:
				progress.IncrementClean(hostSeconds)
			}
		}(ip)
	}

	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, failedHosts, err
	}

	sortAssessmentsByAddr(assessments)
	return assessments, failedHosts, nil
}

// scanOneHost probes one host, triages its open deep-dive services, and
// scores the exposure. Hosts whose scan deadline expires are abandoned.
func scanOneHost(
	ctx context.Context,
	sc *scanner.Scanner,
	tr *triage.Engine,
	engine *risk.Engine,
	ip string,
	hostDeadline time.Duration,
	probeDelay time.Duration,
) hostResult {
	hostCtx, cancel := context.WithTimeout(ctx, hostDeadline)
	defer cancel()

	openPorts, err := sc.ScanHost(hostCtx, ip, scanConfig.Ports, probeDelay)
	if err != nil {
		logger.Warnw("host abandoned", "ip", ip, "error", err)
		return hostResult{failed: true}
	}

	var evidence *risk.Evidence
	if scanConfig.DeepDive {
		evidence = triageOpenPorts(ctx, tr, ip, openPorts)
	}

	return hostResult{assessment: engine.AssessExposure(ip, openPorts, evidence)}
}

// triageOpenPorts runs triage on each deep-dive port and keeps the
// worst override produced across the host's services.
func triageOpenPorts(ctx context.Context, tr *triage.Engine, ip string, openPorts []int) *risk.Evidence {
	var worst *risk.Evidence
	for _, port := range openPorts {
		if !triage.DeepDivePort(port) {
			continue
		}
		ev := tr.TriageService(ctx, ip, port)
		override := ev.Override()
		if override == nil {
			continue
		}
		if worst == nil || override.FinalRisk.WorseThan(worst.FinalRisk) {
			worst = override
		}
	}
	return worst
}

func sortAssessmentsByAddr(assessments []risk.Assessment) {
	sort.Slice(assessments, func(i, j int) bool {
		a, errA := netip.ParseAddr(assessments[i].IP)
		b, errB := netip.ParseAddr(assessments[j].IP)
		if errA != nil || errB != nil {
			return assessments[i].IP < assessments[j].IP
		}
		return a.Less(b)
	})
}

func printFindings(assessments []risk.Assessment) {
	for _, a := range assessments {
		if len(a.OpenPorts) == 0 {
			continue
		}
		fmt.Printf("\n%s  %s  segment=%s  score=%d\n",
			formatRiskWithColor(a.TrueRisk), a.IP, a.NetworkSegment, a.RiskScore)
		for _, f := range a.MitreFindings {
			fmt.Printf("  - %s\n", f)
		}
		if a.RiskAdjusted {
			fmt.Printf("  %s %s\n", colorInfo("adjusted:"), a.AdjustmentReason)
		}
		for _, rec := range a.Recommendations {
			fmt.Printf("  %s %s\n", colorMedium("!"), rec)
		}
	}
}

func printRunSummary(summary risk.Summary, scan scanner.StatsSnapshot, tri triage.StatsSnapshot, failedHosts int, elapsed time.Duration) {
	fmt.Printf("\n%s Assessment complete in %.1fs\n", colorInfo("→"), elapsed.Seconds())
	fmt.Printf("  Hosts scanned:        %d (failed: %d)\n", scan.HostsScanned, failedHosts)
	fmt.Printf("  Ports checked:        %d\n", scan.PortsChecked)
	fmt.Printf("  Open ports found:     %d\n", scan.OpenPortsFound)
	fmt.Printf("  Hosts with exposure:  %d\n", summary.HostsWithExposure)
	fmt.Printf("  Risk tiers:           %s:%d %s:%d %s:%d %s:%d\n",
		colorCritical("CRITICAL"), summary.CriticalHosts,
		colorHigh("HIGH"), summary.HighHosts,
		colorMedium("MEDIUM"), summary.MediumHosts,
		colorLow("LOW"), summary.LowHosts)
	if tri.ServicesTriaged > 0 {
		fmt.Printf("  Services triaged:     %d (banners: %d, adjustments: %d)\n",
			tri.ServicesTriaged, tri.BannersGrabbed, tri.RisksAdjusted)
	}
	if len(summary.CommonPorts) > 0 {
		fmt.Printf("  Most exposed ports:  ")
		for _, pc := range summary.CommonPorts {
			fmt.Printf(" %d(x%d)", pc.Port, pc.Count)
		}
		fmt.Println()
	}
}

func printDriftReport(drift *baseline.DriftReport) {
	switch {
	case drift.BaselineHash == "":
		fmt.Printf("%s %s\n", colorInfo("→"), drift.Message)
	case drift.DriftDetected:
		fmt.Printf("%s Configuration drift detected (baseline %s, host delta %+d)\n",
			colorHigh("!"), drift.BaselineTime, drift.HostDelta)
	default:
		fmt.Printf("%s %s\n", colorLow("✓"), drift.Message)
	}
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
