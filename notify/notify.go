// Moderator notification transport. The trust engine emits short
// human-readable messages when it escalates something for review; wiring
// them to a team channel is a deployment concern, so the transport is an
// interface with a slack webhook implementation and a log-only fallback.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

type Notifier interface {
	NotifyModerators(ctx context.Context, msg string) error
}

type SlackNotifier struct {
	SlackWebhookURL string
	Logger          *slog.Logger
}

type SlackWebhookBody struct {
	Text string `json:"text"`
}

// Sends a simple slack message to a channel via "incoming webhook".
//
// The slack incoming webhook must be already configured in the slack workplace.
func (n *SlackNotifier) NotifyModerators(ctx context.Context, msg string) error {
	n.Logger.Debug("sending slack notification")

	body, err := json.Marshal(SlackWebhookBody{Text: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.SlackWebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	client := http.DefaultClient
	resp, err := client.Do(req)
	if err != nil {
		notificationErrorCount.Inc()
		return err
	}

	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)
	if resp.StatusCode != 200 || buf.String() != "ok" {
		notificationErrorCount.Inc()
		return fmt.Errorf("failed slack webhook POST request. status=%d", resp.StatusCode)
	}
	notificationSentCount.Inc()
	return nil
}

// SlogNotifier writes moderator notifications to the structured log.
// Used when no webhook is configured (dev, tests).
type SlogNotifier struct {
	Logger *slog.Logger
}

func (n *SlogNotifier) NotifyModerators(ctx context.Context, msg string) error {
	n.Logger.Warn("moderator notification", "msg", msg)
	notificationSentCount.Inc()
	return nil
}
