// Package notify posts a one-line summary of every finished upload task to
// an ntfy-style endpoint.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dgnsrekt/shotpost/internal/orchestrator"
)

// DefaultTimeout bounds one notification request.
const DefaultTimeout = 10 * time.Second

// Notifier sends task summaries. A nil *Notifier or an empty endpoint
// disables sending.
type Notifier struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
	timeout  time.Duration
}

// New returns a notifier for endpoint. client may be nil.
func New(endpoint string, client *http.Client, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{endpoint: strings.TrimSpace(endpoint), client: client, logger: logger, timeout: DefaultTimeout}
}

// Enabled reports whether an endpoint is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.endpoint != ""
}

// TaskFinished sends the summary of rep. Failures are logged, never returned,
// so it can be used directly as an orchestrator finish hook.
func (n *Notifier) TaskFinished(rep orchestrator.Report) {
	if !n.Enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	title := "shotpost upload staged"
	priority := "default"
	if rep.Final == orchestrator.Failed {
		title = "shotpost upload failed"
		priority = "high"
	}
	headers := http.Header{}
	headers.Set("Title", title)
	headers.Set("Priority", priority)
	if err := Send(ctx, n.client, n.endpoint, rep.Summary(), headers); err != nil {
		n.logger.Warn("notification failed", "task", rep.TaskID, "error", err)
		return
	}
	n.logger.Debug("notification sent", "task", rep.TaskID)
}

// Send posts message to endpoint as text/plain with optional extra headers.
func Send(ctx context.Context, client *http.Client, endpoint, message string, headers http.Header) error {
	if strings.TrimSpace(endpoint) == "" {
		return errors.New("ntfy notification failed: endpoint is required")
	}
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
