package viewer

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/t77yq/script-supervisor/internal/scheduler"
)

// Renderer displays a snapshot of the log file
type Renderer interface {
	Render(snapshot string) error
}

// Poller refreshes a viewer on a fixed interval and renders changed snapshots
type Poller struct {
	logger    *zap.Logger
	viewer    *Viewer
	renderer  Renderer
	scheduler *scheduler.Scheduler
	interval  time.Duration

	mu      sync.Mutex
	entryID cron.EntryID
	started bool

	// tickMu serializes ticks and guards the last rendered snapshot
	tickMu   sync.Mutex
	rendered bool
	previous string
}

// NewPoller creates a poller. Intervals below one second are rounded up
// to one second by the scheduler.
func NewPoller(v *Viewer, renderer Renderer, sched *scheduler.Scheduler, interval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		logger:    logger.Named("viewer"),
		viewer:    v,
		renderer:  renderer,
		scheduler: sched,
		interval:  interval,
	}
}

// Start renders once immediately and then on every tick
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}

	id, err := p.scheduler.Every(p.interval, p.Tick)
	if err != nil {
		return err
	}
	p.entryID = id
	p.started = true

	go p.Tick()
	return nil
}

// Stop unregisters the refresh job
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.scheduler.Remove(p.entryID)
	p.started = false
}

// Tick performs one refresh
func (p *Poller) Tick() {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()

	snapshot, err := p.viewer.Refresh()
	if err != nil {
		p.logger.Error("Failed to refresh log view",
			zap.String("path", p.viewer.Path()),
			zap.Error(err))
		return
	}

	if p.rendered && snapshot == p.previous {
		return
	}

	if err := p.renderer.Render(snapshot); err != nil {
		p.logger.Error("Failed to render log view", zap.Error(err))
		return
	}

	p.previous = snapshot
	p.rendered = true
}
