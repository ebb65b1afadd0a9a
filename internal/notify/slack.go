// Package notify posts migration outcomes to a Slack incoming webhook.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/johndauphine/dualstore-migrate/internal/config"
	"github.com/johndauphine/dualstore-migrate/internal/migrate"
)

// Notifier sends notifications to Slack
type Notifier struct {
	config     *config.SlackConfig
	httpClient *http.Client
}

// SlackMessage represents a Slack webhook message
type SlackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Text        string            `json:"text,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment represents a Slack message attachment
type SlackAttachment struct {
	Color     string       `json:"color,omitempty"`
	Title     string       `json:"title,omitempty"`
	Text      string       `json:"text,omitempty"`
	Fields    []SlackField `json:"fields,omitempty"`
	Footer    string       `json:"footer,omitempty"`
	Timestamp int64        `json:"ts,omitempty"`
}

// SlackField represents a field in a Slack attachment
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

const footer = "dualstore-migrate"

// New creates a new Slack notifier
func New(cfg *config.SlackConfig) *Notifier {
	if cfg == nil {
		cfg = &config.SlackConfig{Enabled: false}
	}
	return &Notifier{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// IsEnabled returns true if notifications are enabled
func (n *Notifier) IsEnabled() bool {
	return n.config != nil && n.config.Enabled && n.config.WebhookURL != ""
}

// MigrationCompleted sends notification when migration completes successfully
func (n *Notifier) MigrationCompleted(report *migrate.Report) error {
	if !n.IsEnabled() {
		return nil
	}

	headerText := fmt.Sprintf("Schema migration completed. %d columns added across %d tables, %s rows backfilled.",
		report.Applied(), len(report.PerTable), formatNumberWithCommas(report.RowsBackfilled()))

	msg := SlackMessage{
		Channel:   n.config.Channel,
		Username:  n.getUsername(),
		IconEmoji: ":white_check_mark:",
		Text:      headerText,
		Attachments: []SlackAttachment{
			{
				Color: "#36a64f", // green
				Fields: []SlackField{
					{Title: "Run ID", Value: report.RunID, Short: true},
					{Title: "Started", Value: report.StartedAt.UTC().Format("2006-01-02 15:04:05 UTC"), Short: true},
					{Title: "Duration", Value: formatDuration(report.Duration()), Short: true},
					{Title: "Tables", Value: fmt.Sprintf("%d", len(report.PerTable)), Short: true},
					{Title: "Columns Added", Value: fmt.Sprintf("%d", report.Applied()), Short: true},
					{Title: "Rows Backfilled", Value: formatNumberWithCommas(report.RowsBackfilled()), Short: true},
				},
				Footer:    footer,
				Timestamp: time.Now().Unix(),
			},
		},
	}

	return n.send(msg)
}

// MigrationCompletedWithErrors sends notification when migration completes with failures
func (n *Notifier) MigrationCompletedWithErrors(report *migrate.Report) error {
	if !n.IsEnabled() {
		return nil
	}

	failures := failureList(report)
	failureSummary := ""
	if len(failures) <= 5 {
		failureSummary = strings.Join(failures, ", ")
	} else {
		failureSummary = fmt.Sprintf("%s... and %d more", strings.Join(failures[:3], ", "), len(failures)-3)
	}

	headerText := fmt.Sprintf("Schema migration completed with %d failure(s). %d columns added, %s rows backfilled.",
		report.Failed(), report.Applied(), formatNumberWithCommas(report.RowsBackfilled()))

	msg := SlackMessage{
		Channel:   n.config.Channel,
		Username:  n.getUsername(),
		IconEmoji: ":warning:",
		Text:      headerText,
		Attachments: []SlackAttachment{
			{
				Color: "#ffc107", // yellow/orange
				Fields: []SlackField{
					{Title: "Run ID", Value: report.RunID, Short: true},
					{Title: "Duration", Value: formatDuration(report.Duration()), Short: true},
					{Title: "Failures", Value: fmt.Sprintf("%d", report.Failed()), Short: true},
					{Title: "Columns Added", Value: fmt.Sprintf("%d", report.Applied()), Short: true},
					{Title: "Failed", Value: failureSummary, Short: false},
				},
				Footer:    footer,
				Timestamp: time.Now().Unix(),
			},
		},
	}

	return n.send(msg)
}

// MigrationFailed sends notification when migration fails
func (n *Notifier) MigrationFailed(runID string, err error, duration time.Duration) error {
	if !n.IsEnabled() {
		return nil
	}

	errMsg := "Unknown error"
	if err != nil {
		errMsg = err.Error()
		if len(errMsg) > 500 {
			errMsg = errMsg[:500] + "..."
		}
	}
	if runID == "" {
		runID = "-"
	}

	msg := SlackMessage{
		Channel:   n.config.Channel,
		Username:  n.getUsername(),
		IconEmoji: ":x:",
		Attachments: []SlackAttachment{
			{
				Color: "#dc3545", // red
				Title: "Schema Migration Failed",
				Fields: []SlackField{
					{Title: "Run ID", Value: runID, Short: true},
					{Title: "Duration", Value: duration.Round(time.Second).String(), Short: true},
					{Title: "Error", Value: errMsg, Short: false},
				},
				Footer:    footer,
				Timestamp: time.Now().Unix(),
			},
		},
	}

	return n.send(msg)
}

// failureList names every failed column, table and backfill as table.column.
func failureList(report *migrate.Report) []string {
	var out []string
	for _, table := range report.Tables() {
		t := report.PerTable[table]
		if t.Error != "" {
			out = append(out, table)
		}
		for _, f := range t.Failed {
			out = append(out, table+"."+f.Column)
		}
	}
	for _, b := range report.Backfilled {
		if b.Error != "" {
			out = append(out, "backfill "+b.Table+"."+b.Column)
		}
	}
	return out
}

func (n *Notifier) send(msg SlackMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	resp, err := n.httpClient.Post(n.config.WebhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("sending to Slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Slack returned status %d", resp.StatusCode)
	}

	return nil
}

func (n *Notifier) getUsername() string {
	if n.config.Username != "" {
		return n.config.Username
	}
	return "dualstore"
}

func formatNumberWithCommas(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var result []byte
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, byte(c))
	}
	return string(result)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
