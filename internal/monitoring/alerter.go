package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kraigferns/feedback-intel/internal/config"
	"github.com/kraigferns/feedback-intel/internal/resilience"
)

// minFinishedRuns keeps a handful of early failures from tripping the
// failure rate alert.
const minFinishedRuns = 5

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate   AlertType = "run_failure_rate"
	AlertStalledRuns      AlertType = "stalled_runs"
	AlertCriticalFeedback AlertType = "critical_feedback"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and posts breaches to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	policy resilience.Policy
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		policy: resilience.DefaultPolicy(),
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.RunsComplete + snap.RunsFailed
	if finished >= minFinishedRuns && snap.FailureRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Enrichment failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.FailureRate*100, a.cfg.FailureRateThreshold*100,
				snap.RunsFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.FailureRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.RunsFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if len(snap.StalledRuns) > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertStalledRuns,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d enrichment run(s) idle for more than %dm",
				len(snap.StalledRuns), a.cfg.StalledAfterMins,
			),
			Details: map[string]any{
				"run_ids": snap.StalledRuns,
			},
			Timestamp: now,
		})
	}

	if a.cfg.CriticalThreshold > 0 && snap.CriticalFeedback >= a.cfg.CriticalThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertCriticalFeedback,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d critical feedback item(s) in last %dh",
				snap.CriticalFeedback, snap.LookbackHours,
			),
			Details: map[string]any{
				"critical":  snap.CriticalFeedback,
				"negative":  snap.NegativeFeedback,
				"threshold": a.cfg.CriticalThreshold,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		p := a.policy
		p.OnRetry = resilience.LogRetry("monitoring.webhook", zap.String("type", string(alert.Type)))
		err := resilience.Do(ctx, p, func(ctx context.Context) error {
			return a.sendWebhook(ctx, alert)
		})
		if err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		err := eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
		if resilience.IsTransientStatus(resp.StatusCode) {
			return resilience.Transient(err, resp.StatusCode)
		}
		return err
	}
	return nil
}
