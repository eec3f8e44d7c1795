// Package scanner implements rate-limited concurrent TCP connect
// probing. Probing is connect-style only: a single connection attempt
// per port, no retries, no raw sockets. The post-probe delay is a
// domain requirement (it keeps probe cadence below host IDS
// heuristics), not a tuning knob.
package scanner

import (
	"context"
	"errors"
	"net"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const (
	defaultTimeout    = 1500 * time.Millisecond
	defaultMaxWorkers = 50
)

// Stats holds the scanner's shared probe counters. Counters are the
// only state shared across workers and are updated atomically.
type Stats struct {
	hostsScanned   atomic.Int64
	portsChecked   atomic.Int64
	openPortsFound atomic.Int64
}

// StatsSnapshot is a point-in-time copy of the scan counters.
type StatsSnapshot struct {
	HostsScanned   int64 `json:"hosts_scanned"`
	PortsChecked   int64 `json:"ports_checked"`
	OpenPortsFound int64 `json:"open_ports_found"`
}

// Snapshot returns a consistent-enough copy for reporting; individual
// counters are read atomically.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		HostsScanned:   s.hostsScanned.Load(),
		PortsChecked:   s.portsChecked.Load(),
		OpenPortsFound: s.openPortsFound.Load(),
	}
}

// Scanner probes TCP ports with bounded concurrency. The worker
// ceiling is shared across concurrent ScanHost calls so the total
// number of in-flight sockets stays bounded no matter how many hosts
// the caller scans in parallel.
type Scanner struct {
	timeout time.Duration
	slots   chan struct{}
	logger  *zap.SugaredLogger
	stats   Stats
}

// New returns a Scanner with the given per-connection timeout and
// worker ceiling. Zero values select conservative defaults.
func New(timeout time.Duration, maxWorkers int, logger *zap.SugaredLogger) *Scanner {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if maxWorkers <= 0 {
		maxWorkers = defaultMaxWorkers
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Scanner{
		timeout: timeout,
		slots:   make(chan struct{}, maxWorkers),
		logger:  logger,
	}
}

// Stats returns a snapshot of the scanner's counters.
func (s *Scanner) Stats() StatsSnapshot {
	return s.stats.Snapshot()
}

// ScanHost probes every requested port on ip and returns the open
// ports sorted ascending and deduplicated. Each port gets exactly one
// connection attempt; timeouts, refusals, and socket errors all count
// as closed. After every probe, successful or not, the worker sleeps
// delay before taking another slot.
//
// If ctx expires before all probes complete the partial result is
// discarded and ctx's error is returned; callers abandon the host.
func (s *Scanner) ScanHost(ctx context.Context, ip string, ports []int, delay time.Duration) ([]int, error) {
	var (
		mu   sync.Mutex
		open []int
		wg   sync.WaitGroup
	)

	for _, port := range ports {
		wg.Add(1)
		go func(port int) {
			defer wg.Done()

			select {
			case s.slots <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-s.slots }()

			if s.probe(ctx, ip, port) {
				mu.Lock()
				open = append(open, port)
				mu.Unlock()
			}

			// Inter-probe delay applies to every probe regardless of
			// outcome; the slot is held for its duration.
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
				}
			}
		}(port)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warnw("host scan abandoned", "ip", ip, "reason", ctx.Err())
		return nil, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.stats.hostsScanned.Add(1)

	sort.Ints(open)
	return dedupe(open), nil
}

// probe attempts one TCP connection. Open means the connection
// succeeded; everything else is closed. Unexpected socket failures are
// logged at warning level and still classified as closed.
func (s *Scanner) probe(ctx context.Context, ip string, port int) bool {
	if ctx.Err() != nil {
		return false
	}

	dialer := net.Dialer{Timeout: s.timeout}
	addr := net.JoinHostPort(ip, strconv.Itoa(port))

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	s.stats.portsChecked.Add(1)

	if err != nil {
		var netErr net.Error
		switch {
		case errors.As(err, &netErr) && netErr.Timeout():
			// Filtered or silent host: closed.
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			// Caller deadline fired mid-dial.
		case isRefused(err):
			// Actively refused: closed.
		default:
			s.logger.Warnw("probe failed", "ip", ip, "port", port, "error", err)
		}
		return false
	}
	conn.Close()

	s.stats.openPortsFound.Add(1)
	s.logger.Debugw("open port", "ip", ip, "port", port)
	return true
}

func isRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

func dedupe(sorted []int) []int {
	out := sorted[:0]
	for i, p := range sorted {
		if i == 0 || p != sorted[i-1] {
			out = append(out, p)
		}
	}
	return out
}
