package cmd

import (
	"fmt"
	"net/netip"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sentinelsweep/sweep-cli/internal/risk"
)

const (
	defaultConnectTimeoutSecs = 1.5
	defaultProbeDelaySecs     = 0.25
	defaultMaxWorkers         = 50
	defaultGlobalRate         = 20 // probes per second across all hosts
	defaultHostSlackSecs      = 5.0
	defaultBannerTimeoutSecs  = 2.0
)

// defaultPorts mirrors the commonly assessed service set.
var defaultPorts = []int{21, 22, 23, 25, 80, 443, 445, 3389, 5900, 8080, 8443}

// ScanRuntimeConfig consolidates flag- and config-driven settings for
// the scan command. Flag values win over config file values.
type ScanRuntimeConfig struct {
	CIDR              string
	Ports             []int
	ConnectTimeout    float64 // seconds
	ProbeDelay        float64 // seconds
	MaxWorkers        int
	GlobalRate        int
	HostSlack         float64 // seconds added to each host deadline
	BannerTimeout     float64 // seconds
	DeepDive          bool
	WriteBaseline     bool
	EnablePDF         bool
	InternalRanges    []string // name=CIDR pairs for segment labeling
	AssumeYes         bool
	TelemetryEnabled  bool
	IncludeAssessment bool // embed full batch into the baseline file
}

var scanConfig = ScanRuntimeConfig{
	ConnectTimeout: defaultConnectTimeoutSecs,
	ProbeDelay:     defaultProbeDelaySecs,
	MaxWorkers:     defaultMaxWorkers,
	GlobalRate:     defaultGlobalRate,
	HostSlack:      defaultHostSlackSecs,
	BannerTimeout:  defaultBannerTimeoutSecs,
	DeepDive:       true,
	WriteBaseline:  true,
}

// applyConfigDefaults folds config-file values into settings the user
// did not override on the command line.
func applyConfigDefaults() error {
	flags := scanCmd.Flags()

	if scanConfig.CIDR == "" {
		scanConfig.CIDR = viper.GetString("network_cidr")
	}
	if len(scanConfig.Ports) == 0 {
		if ports := viper.GetString("ports"); ports != "" {
			parsed, err := ParsePorts(ports)
			if err != nil {
				return err
			}
			scanConfig.Ports = parsed
		} else {
			scanConfig.Ports = append([]int(nil), defaultPorts...)
		}
	}
	if len(scanConfig.InternalRanges) == 0 {
		scanConfig.InternalRanges = viper.GetStringSlice("internal_ranges")
	}

	if viper.IsSet("connect_timeout") {
		applyFloatDefault(flags, "timeout", viper.GetFloat64("connect_timeout"), func(v float64) { scanConfig.ConnectTimeout = v })
	}
	if viper.IsSet("probe_delay") {
		applyFloatDefault(flags, "delay", viper.GetFloat64("probe_delay"), func(v float64) { scanConfig.ProbeDelay = v })
	}
	if viper.IsSet("max_workers") {
		applyIntDefault(flags, "max-workers", viper.GetInt("max_workers"), func(v int) { scanConfig.MaxWorkers = v })
	}
	if viper.IsSet("rate") {
		applyIntDefault(flags, "rate", viper.GetInt("rate"), func(v int) { scanConfig.GlobalRate = v })
	}
	if viper.IsSet("deep_dive") {
		applyBoolDefault(flags, "deep-dive", viper.GetBool("deep_dive"), func(v bool) { scanConfig.DeepDive = v })
	}
	if viper.IsSet("telemetry_enabled") {
		applyBoolDefault(flags, "telemetry", viper.GetBool("telemetry_enabled"), func(v bool) { scanConfig.TelemetryEnabled = v })
	}
	return nil
}

// Validate rejects settings that would stall or misconfigure a run.
// A zero rate is an error, not "unlimited": the limiter would hand out
// its initial burst and then block every later host forever.
func (c ScanRuntimeConfig) Validate() error {
	if c.GlobalRate <= 0 {
		return fmt.Errorf("probe rate must be positive, got %d", c.GlobalRate)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive, got %v", c.ConnectTimeout)
	}
	if c.ProbeDelay < 0 {
		return fmt.Errorf("probe delay must not be negative, got %v", c.ProbeDelay)
	}
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("worker ceiling must be positive, got %d", c.MaxWorkers)
	}
	return nil
}

func applyIntDefault(flags *pflag.FlagSet, name string, value int, setter func(int)) {
	if flagChanged(flags, name) {
		return
	}
	setter(value)
}

func applyFloatDefault(flags *pflag.FlagSet, name string, value float64, setter func(float64)) {
	if flagChanged(flags, name) {
		return
	}
	setter(value)
}

func applyBoolDefault(flags *pflag.FlagSet, name string, value bool, setter func(bool)) {
	if flagChanged(flags, name) {
		return
	}
	setter(value)
}

func flagChanged(flags *pflag.FlagSet, name string) bool {
	if flags == nil {
		return false
	}
	flag := flags.Lookup(name)
	return flag != nil && flag.Changed
}

// ParsePorts parses a comma-separated port list into a sorted,
// deduplicated slice.
func ParsePorts(spec string) ([]int, error) {
	seen := map[int]bool{}
	var ports []int
	for _, field := range strings.Split(spec, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		port, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("invalid port %q: %w", field, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("port %d out of range 1-65535", port)
		}
		if !seen[port] {
			seen[port] = true
			ports = append(ports, port)
		}
	}
	if len(ports) == 0 {
		return nil, fmt.Errorf("port list %q contains no ports", spec)
	}
	sort.Ints(ports)
	return ports, nil
}

// ParseSegmentRules parses name=CIDR pairs into risk segment rules.
func ParseSegmentRules(specs []string) ([]risk.SegmentRule, error) {
	rules := make([]risk.SegmentRule, 0, len(specs))
	for _, spec := range specs {
		name, cidr, ok := strings.Cut(spec, "=")
		if !ok || name == "" || cidr == "" {
			return nil, fmt.Errorf("invalid internal range %q, want name=CIDR", spec)
		}
		prefix, err := netip.ParsePrefix(strings.TrimSpace(cidr))
		if err != nil {
			return nil, fmt.Errorf("invalid internal range %q: %w", spec, err)
		}
		rules = append(rules, risk.SegmentRule{Prefix: prefix, Name: strings.TrimSpace(name)})
	}
	return rules, nil
}
