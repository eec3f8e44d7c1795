package cmd

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// progressPrinter renders a single-line host progress counter.
type progressPrinter struct {
	total    int
	name     string
	mu       sync.Mutex
	exposed  int
	clean    int
	failed   int
	duration float64
	updates  chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newProgressPrinter(total int, name string) *progressPrinter {
	if total <= 0 {
		total = 1
	}
	return &progressPrinter{
		total:   total,
		name:    name,
		updates: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (p *progressPrinter) Start() {
	go p.loop()
}

// IncrementExposed records a completed host with at least one open port.
func (p *progressPrinter) IncrementExposed(duration float64) { p.increment(&p.exposed, duration) }

// IncrementClean records a completed host with no open ports.
func (p *progressPrinter) IncrementClean(duration float64) { p.increment(&p.clean, duration) }

// IncrementFailed records a host that could not be fully scanned.
func (p *progressPrinter) IncrementFailed(duration float64) { p.increment(&p.failed, duration) }

func (p *progressPrinter) increment(counter *int, duration float64) {
	p.mu.Lock()
	*counter++
	p.duration += duration
	p.mu.Unlock()

	select {
	case p.updates <- struct{}{}:
	default:
	}
}

func (p *progressPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
	})
	fmt.Fprintf(os.Stdout, "\r%s\r", strings.Repeat(" ", 80))
	p.print()
	fmt.Fprintln(os.Stdout)
}

func (p *progressPrinter) loop() {
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-p.updates:
			p.print()
		case <-ticker.C:
			p.print()
		case <-p.done:
			return
		}
	}
}

func (p *progressPrinter) print() {
	p.mu.Lock()
	exposed := p.exposed
	clean := p.clean
	failed := p.failed
	dur := p.duration
	p.mu.Unlock()

	completed := exposed + clean + failed
	if completed > p.total {
		p.total = completed
	}

	percent := (float64(completed) / float64(p.total)) * 100
	avg := 0.0
	if completed > 0 {
		avg = dur / float64(completed)
	}

	line := fmt.Sprintf("\r[%s] Hosts: %d/%d (%.1f%%) Exposed:%d Clean:%d Failed:%d Avg:%.2fs",
		p.name, completed, p.total, percent, exposed, clean, failed, avg)
	fmt.Fprintf(os.Stdout, "%s", line)
}
