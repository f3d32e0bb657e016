package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kraigferns/feedback-intel/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker periodically collects a snapshot and alerts on breaches. Alerts are
// edge-triggered: a type that fired on the previous check is not resent until
// it clears.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	lookback  int

	mu     sync.Mutex
	firing map[AlertType]bool
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  interval,
		lookback:  cfg.LookbackWindowHours,
		firing:    make(map[AlertType]bool),
	}
}

// Run checks on every interval until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("monitoring: checker started",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("monitoring: checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check collects one snapshot and sends alerts that were not already firing.
// It returns the number of newly raised alerts.
func (c *Checker) Check(ctx context.Context) int {
	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		zap.L().Error("monitoring: collect metrics", zap.Error(err))
		return 0
	}

	raised := c.transition(c.alerter.Evaluate(snap))
	if len(raised) == 0 {
		zap.L().Debug("monitoring: no new alerts",
			zap.Int("runs_total", snap.RunsTotal),
			zap.Float64("failure_rate", snap.FailureRate),
		)
		return 0
	}

	sent := c.alerter.SendAlerts(ctx, raised)
	zap.L().Info("monitoring: alerts raised",
		zap.Int("raised", len(raised)),
		zap.Int("sent", sent),
	)
	return len(raised)
}

// transition records the currently firing types and returns the alerts whose
// type was not firing before.
func (c *Checker) transition(alerts []Alert) []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make(map[AlertType]bool, len(alerts))
	var raised []Alert
	for _, a := range alerts {
		next[a.Type] = true
		if !c.firing[a.Type] {
			raised = append(raised, a)
		}
	}
	for t := range c.firing {
		if !next[t] {
			zap.L().Info("monitoring: alert cleared", zap.String("type", string(t)))
		}
	}
	c.firing = next
	return raised
}
