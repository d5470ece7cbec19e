package discovery

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ScanFunc runs one discovery pass and returns the number of units found.
type ScanFunc func(ctx context.Context) int

// Poller repeats discovery scans in the background so the unit list stays
// current without an operator triggering scans.
type Poller struct {
	scan     ScanFunc
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func NewPoller(scan ScanFunc, interval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		scan:     scan,
		interval: interval,
		logger:   logger,
	}
}

// Start begins periodic scanning.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.wg.Add(1)

	go p.pollLoop(pollCtx)

	p.logger.Info("Discovery poller started", zap.Duration("interval", p.interval))
}

// Stop ends scanning and waits for a scan in progress.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.logger.Info("Discovery poller stopped")
}

func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) pollLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			found := p.scan(ctx)
			p.logger.Debug("Background scan finished", zap.Int("units", found))
		}
	}
}
