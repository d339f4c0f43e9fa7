// Package schedule runs the periodic maintenance jobs: today that is the
// idle-session sweep.
package schedule

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Sweeper collects expired state and reports how much was removed.
type Sweeper interface {
	Sweep() int
}

// GC wraps a cron runner around the session sweeper.
type GC struct {
	cron    *cron.Cron
	sweeper Sweeper
	logger  *slog.Logger
}

// NewGC schedules the sweeper on the given cron expression (standard
// five-field syntax).
func NewGC(log *slog.Logger, sweeper Sweeper, spec string) (*GC, error) {
	if log == nil {
		log = slog.Default()
	}
	gc := &GC{
		cron:    cron.New(),
		sweeper: sweeper,
		logger:  log.With(slog.String("service", "schedule")),
	}
	if _, err := gc.cron.AddFunc(spec, gc.run); err != nil {
		return nil, fmt.Errorf("invalid gc schedule %q: %w", spec, err)
	}
	return gc, nil
}

func (g *GC) run() {
	removed := g.sweeper.Sweep()
	g.logger.Debug("session gc pass", slog.Int("removed", removed))
}

// Start begins running scheduled jobs.
func (g *GC) Start() {
	g.cron.Start()
}

// Stop halts the scheduler and waits for a running job to finish.
func (g *GC) Stop() {
	<-g.cron.Stop().Done()
}
