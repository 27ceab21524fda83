package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Notifier sends alert summaries to external channels.
type Notifier interface {
	Notify(ctx context.Context, alerts []Alert) error
}

// slackNotifier posts board alert digests to a Slack webhook.
type slackNotifier struct {
	webhookURL string
	boardURL   string
	client     *http.Client
}

// NewSlackNotifier creates a Notifier posting to the given Slack incoming
// webhook. When boardURL is set, task and agent IDs in the digest link to
// the board's HTTP API under it.
func NewSlackNotifier(webhookURL, boardURL string) Notifier {
	return &slackNotifier{
		webhookURL: webhookURL,
		boardURL:   strings.TrimRight(boardURL, "/"),
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Notify posts one message listing every alert. No request is made when
// alerts is empty.
func (s *slackNotifier) Notify(ctx context.Context, alerts []Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	msg := s.buildMessage(alerts)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// buildMessage lays out a digest: a header, a severity tally, then one
// section per alert with the most urgent first.
func (s *slackNotifier) buildMessage(alerts []Alert) slackMessage {
	ordered := make([]Alert, len(alerts))
	copy(ordered, alerts)
	sort.SliceStable(ordered, func(i, j int) bool {
		return severityRank(ordered[i].Severity) < severityRank(ordered[j].Severity)
	})

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: fmt.Sprintf("Claw board: %d alert%s", len(alerts), plural(len(alerts)))},
		},
		{
			Type:     "context",
			Elements: []slackText{{Type: "mrkdwn", Text: severityTally(ordered)}},
		},
	}

	for i, alert := range ordered {
		if i > 0 {
			blocks = append(blocks, slackBlock{Type: "divider"})
		}
		text := fmt.Sprintf("%s *[%s]* %s\n%s `%s` _%s_",
			severityEmoji(alert.Severity),
			strings.ToUpper(string(alert.Severity)),
			alert.Message,
			s.subject(alert),
			alert.Condition,
			alert.TriggeredAt.Format("2006-01-02 15:04 UTC"),
		)
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: text},
		})
	}

	return slackMessage{Blocks: blocks}
}

// subject names what an alert is about, derived from its ID: a task for
// blocked and review alerts, an agent for offline alerts, the board
// otherwise.
func (s *slackNotifier) subject(alert Alert) string {
	kind, id := "board", ""
	for prefix, k := range map[string]string{"blocked-": "task", "review-": "task", "offline-": "agent"} {
		if rest, ok := strings.CutPrefix(alert.ID, prefix); ok {
			kind, id = k, rest
			break
		}
	}
	if id == "" {
		return "*board*"
	}
	if s.boardURL == "" {
		return fmt.Sprintf("%s *%s*", kind, id)
	}
	return fmt.Sprintf("%s <%s/api/%ss/%s|%s>", kind, s.boardURL, kind, url.PathEscape(id), id)
}

func severityTally(alerts []Alert) string {
	counts := map[AlertSeverity]int{}
	for _, a := range alerts {
		counts[a.Severity]++
	}
	var parts []string
	for _, sev := range []AlertSeverity{SeverityHigh, SeverityMedium, SeverityLow} {
		if counts[sev] > 0 {
			parts = append(parts, fmt.Sprintf("%s %d %s", severityEmoji(sev), counts[sev], sev))
		}
	}
	return strings.Join(parts, " · ")
}

func severityEmoji(severity AlertSeverity) string {
	switch severity {
	case SeverityHigh:
		return "\U0001f534"
	case SeverityMedium:
		return "\U0001f7e1"
	case SeverityLow:
		return "\U0001f535"
	default:
		return "\u2753"
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
