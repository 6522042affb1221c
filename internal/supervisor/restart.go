package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/deskmate/deskmate/internal/audit"
	"github.com/deskmate/deskmate/internal/event"
	"github.com/deskmate/deskmate/internal/metrics"
)

// healthLoop polls every service's self-reported running flag and restarts
// services that stopped on their own. Services at the restart cap stay
// permanently unhealthy; RestartService refuses them without an attempt.
func (c *Coordinator) healthLoop(ctx context.Context) {
	defer c.loopWG.Done()
	t := time.NewTicker(c.opts.HealthInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, svc := range c.services {
				if ctx.Err() != nil {
					return
				}
				if svc.Running() {
					continue
				}
				c.log.Warn("Service is not running, attempting restart", "service", svc.Name())
				if err := c.RestartService(ctx, svc.Name()); err != nil {
					c.log.Error("Restart failed", "service", svc.Name(), "error", err)
				}
			}
		}
	}
}

// RestartService restarts one managed service with the capped-retry policy.
// The cap is checked before anything else: a service whose restart count
// has reached MaxRestarts is marked permanently unhealthy and never touched
// again. The counter increments on every attempt regardless of outcome and
// is never reset, so restartCounts[s] can never exceed MaxRestarts.
func (c *Coordinator) RestartService(ctx context.Context, name string) error {
	c.mu.Lock()
	svc, ok := c.byName[name]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("restart %s: %w", name, ErrUnknownService)
	}
	if c.restartCounts[name] >= c.opts.MaxRestarts {
		c.health[name] = false
		c.mu.Unlock()
		metrics.SetServiceHealthy(name, false)
		return fmt.Errorf("restart %s: %w (max %d)", name, ErrRestartLimit, c.opts.MaxRestarts)
	}
	c.restartCounts[name]++
	attempt := c.restartCounts[name]
	c.mu.Unlock()
	metrics.IncServiceRestart(name)

	cooldown, ok := c.opts.Cooldowns[name]
	if !ok {
		cooldown = c.opts.DefaultCooldown
	}
	c.log.Info("Restarting service", "service", name, "attempt", attempt, "cooldown", cooldown)
	c.trail.Record(ctx, audit.Record{
		Kind:    audit.KindRestart,
		Service: name,
		Detail:  fmt.Sprintf("attempt %d/%d", attempt, c.opts.MaxRestarts),
	})

	if err := svc.Stop(ctx); err != nil {
		c.log.Warn("Stop before restart failed", "service", name, "error", err)
	}

	timer := time.NewTimer(cooldown)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
		c.setHealth(name, false)
		return ctx.Err()
	}

	if err := svc.Start(ctx); err != nil {
		c.setHealth(name, false)
		c.trail.Record(ctx, audit.Record{Kind: audit.KindServiceError, Service: name, Detail: err.Error()})
		if e, evErr := event.NewServiceEvent(event.ServiceError, "coordinator", name, map[string]any{"error": err.Error()}); evErr == nil {
			c.bus.Publish(e)
		}
		return fmt.Errorf("restart %s: %w", name, err)
	}

	c.setHealth(name, true)
	c.publishServiceEvent(event.ServiceStarted, name)
	c.log.Info("Service restarted", "service", name, "attempt", attempt)
	return nil
}
