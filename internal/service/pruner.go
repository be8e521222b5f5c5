package service

import (
	"context"
	"errors"
	"time"

	"github.com/GoPolymarket/extgate/internal/audit"
	"github.com/GoPolymarket/extgate/internal/descriptor"
	"github.com/GoPolymarket/extgate/internal/pkg/logger"
)

// PruneTarget is the retention setup of one service.
type PruneTarget struct {
	Service   string
	Settings  descriptor.PruneSettings
	Requests  audit.Pruner
	Responses audit.Pruner
}

// Pruner deletes audit records past their retention window.
type Pruner struct {
	targets  []PruneTarget
	interval time.Duration
	now      func() time.Time
}

func NewPruner(interval time.Duration, targets ...PruneTarget) *Pruner {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Pruner{targets: targets, interval: interval, now: time.Now}
}

// Run prunes once immediately and then on every tick until ctx is done.
func (p *Pruner) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		if err := p.RunOnce(ctx); err != nil {
			logger.Error("Audit pruning failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce prunes every target whose settings enable it. Failures of one
// target do not stop the others.
func (p *Pruner) RunOnce(ctx context.Context) error {
	var errs []error
	now := p.now().UTC()
	for _, t := range p.targets {
		if t.Settings.PruneRequests() && t.Requests != nil {
			errs = append(errs, p.prune(ctx, t.Service, "requests", t.Requests, now.Add(-t.Settings.RequestRetention())))
		}
		if t.Settings.PruneResponses() && t.Responses != nil {
			errs = append(errs, p.prune(ctx, t.Service, "responses", t.Responses, now.Add(-t.Settings.ResponseRetention())))
		}
	}
	return errors.Join(errs...)
}

func (p *Pruner) prune(ctx context.Context, service, phase string, store audit.Pruner, cutoff time.Time) error {
	n, err := store.Prune(ctx, service, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Info("Pruned audit records", "service", service, "phase", phase, "removed", n, "cutoff", cutoff)
	}
	return nil
}
