package headless

import (
	"context"
	"sync"
	"time"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/vfs"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/infrastructure/monitoring"
	"go.uber.org/zap"
)

// Pool bounds how many runtimes execute at once
type Pool struct {
	config   Config
	runtimes chan *Runtime
	logger   *logging.Logger
	metrics  *monitoring.Metrics

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a pool of config.Size runtimes
func NewPool(config Config, logger *logging.Logger, metrics *monitoring.Metrics) *Pool {
	if config.Size <= 0 {
		config.Size = DefaultConfig().Size
	}
	if config.AcquireTimeout <= 0 {
		config.AcquireTimeout = DefaultConfig().AcquireTimeout
	}

	p := &Pool{
		config:   config,
		runtimes: make(chan *Runtime, config.Size),
		logger:   logging.OrNop(logger).Named("headless"),
		metrics:  metrics,
	}
	for i := 0; i < config.Size; i++ {
		p.runtimes <- New(config)
	}
	return p
}

// Acquire takes a runtime, waiting up to the acquire timeout
func (p *Pool) Acquire(ctx context.Context) (*Runtime, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	wait := time.NewTimer(p.config.AcquireTimeout)
	defer wait.Stop()

	select {
	case rt := <-p.runtimes:
		return rt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-wait.C:
		return nil, ErrTimeout
	}
}

// Release returns a runtime to the pool
func (p *Pool) Release(rt *Runtime) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return
	}
	select {
	case p.runtimes <- rt:
	default:
	}
}

// Execute runs files on a pooled runtime
func (p *Pool) Execute(ctx context.Context, files []*vfs.Node) (*Result, error) {
	rt, err := p.Acquire(ctx)
	if err != nil {
		p.metrics.RecordHeadlessRun("unavailable")
		return nil, err
	}
	defer p.Release(rt)

	result, err := rt.Execute(ctx, files)
	if err != nil {
		p.metrics.RecordHeadlessRun("cancelled")
		return nil, err
	}

	status := "ok"
	switch {
	case result.TimedOut:
		status = "timeout"
	case result.Failed():
		status = "error"
	}
	p.metrics.RecordHeadlessRun(status)
	p.logger.Debug("Headless run finished",
		zap.String("status", status),
		zap.Int("files", len(result.Files)),
		zap.Int("messages", len(result.Messages)),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// Close stops handing out runtimes
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	close(p.runtimes)
	for range p.runtimes {
	}
	return nil
}

// Stats reports pool occupancy
func (p *Pool) Stats() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return map[string]interface{}{
		"size":      p.config.Size,
		"available": len(p.runtimes),
		"in_use":    p.config.Size - len(p.runtimes),
		"closed":    p.closed,
	}
}
