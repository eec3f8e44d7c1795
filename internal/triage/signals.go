package triage

import (
	"strings"

	"github.com/sentinelsweep/sweep-cli/internal/risk"
)

// signalRule is one declarative banner heuristic. Keywords match
// case-insensitively anywhere in the banner. onMatch runs when any
// keyword is present; onMiss, if set, runs when none are. New services
// are added by extending the table, not the control flow.
type signalRule struct {
	check    string
	keywords []string
	onMatch  func(loc Context) (risk.Level, string)
	onMiss   func(loc Context) (risk.Level, string)
}

var bannerSignals = map[int][]signalRule{
	risk.PortRDP: {
		{
			check:    "rdp_auth_hardening",
			keywords: []string{"NLA", "SSL", "SECURE"},
			onMatch: func(loc Context) (risk.Level, string) {
				if loc == ContextInternal || loc == ContextLoopback {
					return risk.Medium, "RDP with network level authentication on internal segment"
				}
				return risk.High, "RDP hardened with NLA but reachable externally"
			},
			onMiss: func(Context) (risk.Level, string) {
				return risk.Critical, "RDP without NLA hardening"
			},
		},
	},
	risk.PortSSH: {
		{
			check:    "ssh_legacy_protocol",
			keywords: []string{"SSH-1."},
			onMatch: func(Context) (risk.Level, string) {
				return risk.High, "Legacy SSH protocol version 1 advertised"
			},
		},
		{
			check:    "ssh_modern_protocol",
			keywords: []string{"SSH-2.0"},
			onMatch: func(loc Context) (risk.Level, string) {
				if loc == ContextInternal || loc == ContextLoopback {
					return risk.Medium, "SSH-2.0 on internal segment"
				}
				return risk.High, "SSH-2.0 reachable externally"
			},
		},
	},
	risk.PortHTTP: {
		{
			check:    "http_default_page",
			keywords: []string{"It works", "Welcome"},
			onMatch: func(Context) (risk.Level, string) {
				return risk.Medium, "Default web server page detected"
			},
		},
	},
	risk.PortHTTPAlt: {
		{
			check:    "http_default_page",
			keywords: []string{"It works", "Welcome"},
			onMatch: func(Context) (risk.Level, string) {
				return risk.Medium, "Default web server page detected"
			},
		},
	},
}

// applySignals evaluates the port's rule table against the banner
// already stored in ev and records the first override produced. It
// reports whether the final risk changed. The SMB floor set before
// banner acquisition is never lowered.
func applySignals(ev *ServiceEvidence) bool {
	rules, ok := bannerSignals[ev.Port]
	if !ok {
		return false
	}

	upper := strings.ToUpper(ev.Banner)
	for _, rule := range rules {
		matched := false
		for _, kw := range rule.keywords {
			if strings.Contains(upper, strings.ToUpper(kw)) {
				matched = true
				break
			}
		}

		if matched {
			ev.ChecksPassed = append(ev.ChecksPassed, rule.check)
			level, reason := rule.onMatch(ev.NetworkContext)
			ev.FinalRisk = level
			ev.AdjustmentReason = reason
			return true
		}

		ev.ChecksFailed = append(ev.ChecksFailed, rule.check)
		if rule.onMiss != nil {
			level, reason := rule.onMiss(ev.NetworkContext)
			ev.FinalRisk = level
			ev.AdjustmentReason = reason
			return true
		}
	}

	return false
}
