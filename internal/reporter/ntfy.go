// Package reporter delivers alert notifications and shift summaries via ntfy.
package reporter

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/medobsmind/obswatch/internal/alert"
	"github.com/medobsmind/obswatch/internal/config"
)

// Ntfy sends alert notifications to an ntfy server.
type Ntfy struct {
	cfg    *config.Config
	client *http.Client
	log    *zap.Logger
}

// NewNtfy creates a new Ntfy reporter.
func NewNtfy(cfg *config.Config, log *zap.Logger) *Ntfy {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ntfy{
		cfg: cfg,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

// Enabled reports whether an ntfy URL is configured.
func (n *Ntfy) Enabled() bool {
	return n.cfg.Ntfy.URL != ""
}

// Report sends an alert notification if the alert's severity is in the
// configured notification severities. repeats > 0 marks an aggregated
// notification for repeated alerts within the cooldown window.
func (n *Ntfy) Report(ctx context.Context, a *alert.Alert, repeats int) error {
	if !n.Enabled() {
		n.log.Debug("ntfy URL not configured, skipping notification")
		return nil
	}

	if !n.cfg.ShouldNotify(string(a.Severity)) {
		n.log.Debug("alert severity not in notification severities, skipping",
			zap.String("severity", string(a.Severity)))
		return nil
	}

	title := FormatTitle(n.cfg.Instance.Ward, a)
	if repeats > 0 {
		title = fmt.Sprintf("[x%d] %s", repeats, title)
	}
	priority := n.cfg.NtfyPriority(string(a.Severity))

	if err := n.Send(ctx, title, FormatBody(a), priority, TagsForSeverity(a.Severity)); err != nil {
		return err
	}

	n.log.Info("notification sent",
		zap.String("alert_id", a.ID),
		zap.String("severity", string(a.Severity)),
		zap.String("priority", priority),
	)
	return nil
}

// Send posts a message to the configured ntfy topic.
func (n *Ntfy) Send(ctx context.Context, title, body, priority, tags string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.Ntfy.URL, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating ntfy request: %w", err)
	}

	req.Header.Set("Title", title)
	req.Header.Set("Priority", priority)
	req.Header.Set("Tags", tags)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned status %d", resp.StatusCode)
	}
	return nil
}

// SampleAlert builds a synthetic alert for checking ntfy connectivity.
func SampleAlert() *alert.Alert {
	return alert.New("test-patient", alert.TypeClinicalObservation, alert.SevHigh,
		"Test notification from obswatch",
		"This is a test notification to verify ntfy connectivity.\nIf you see this, obswatch is configured correctly.",
		nil, nil)
}
