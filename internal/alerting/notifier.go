package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Notification carries the context of one trigger transition.
type Notification struct {
	AsOfUTC       time.Time
	EventType     string
	PhaseGapDeg   float64
	GTI           *float64
	Confidence    float64
	ETADays       *float64
	ETADate       *time.Time
	ClosingRate   float64 // degrees per day, positive while closing
	Confirmed     int
	Channels      []string
	AdditionalMsg string
}

// Notifier delivers trigger notifications.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify sends the rendered message through the sendMessage API.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Time("as_of", note.AsOfUTC).
		Str("event_type", note.EventType).
		Str("channels", strings.Join(note.Channels, ",")).
		Msg("alert delivered (Telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[Phase Convergence Alert]\n")
	builder.WriteString(fmt.Sprintf("Event: %s\n", note.EventType))
	builder.WriteString(fmt.Sprintf("As of: %s UTC\n", note.AsOfUTC.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Phase gap: %.3f deg\n", note.PhaseGapDeg))
	if note.GTI != nil {
		builder.WriteString(fmt.Sprintf("GTI: %.3f\n", *note.GTI))
	}
	builder.WriteString(fmt.Sprintf("Confidence: %.2f\n", note.Confidence))
	builder.WriteString(fmt.Sprintf("Closing rate: %.4f deg/day\n", note.ClosingRate))
	builder.WriteString(fmt.Sprintf("Confirmed samples: %d\n", note.Confirmed))
	if note.ETADays != nil {
		builder.WriteString(fmt.Sprintf("ETA: %.1f days", *note.ETADays))
		if note.ETADate != nil {
			builder.WriteString(fmt.Sprintf(" (%s)", note.ETADate.UTC().Format("2006-01-02")))
		}
		builder.WriteString("\n")
	}
	if len(note.Channels) > 0 {
		builder.WriteString(fmt.Sprintf("Channels: %s\n", strings.Join(note.Channels, ",")))
	}
	if note.AdditionalMsg != "" {
		builder.WriteString(note.AdditionalMsg)
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
