// Package telegram sends run summaries through the Telegram Bot API.
// Delivery is retried with linear backoff; messages use MarkdownV2.
package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/contactfit/internal/models"
)

// sender is the part of the bot API the client needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client handles Telegram notifications
type Client struct {
	bot            sender
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	return newClient(bot, chatIDInt, maxRetries, retryDelayBase), nil
}

func newClient(bot sender, chatID int64, maxRetries int, retryDelayBase time.Duration) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	return &Client{
		bot:            bot,
		chatID:         chatID,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}
}

// SendSummary posts the outcome tally of a finished run.
func (c *Client) SendSummary(run *models.Run) error {
	return c.send(formatSummary(run))
}

// SendError reports a run that failed before producing a summary.
func (c *Client) SendError(err error) error {
	return c.send(fmt.Sprintf("⚠️ *Analysis failed*\n\n%s", escapeMarkdownV2(err.Error())))
}

func (c *Client) send(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

// formatSummary renders a run as a MarkdownV2 message
func formatSummary(run *models.Run) string {
	s := run.Summary
	var b strings.Builder

	b.WriteString("📊 *Contact duration fit complete*\n\n")
	if run.InputPath != "" {
		fmt.Fprintf(&b, "📁 Input: `%s`\n", escapeMarkdownV2(run.InputPath))
	}
	fmt.Fprintf(&b, "🆔 Run: `%s`\n", escapeMarkdownV2(run.ID))
	if !run.CompletedAt.IsZero() {
		fmt.Fprintf(&b, "⏱ Took: %s\n", escapeMarkdownV2(formatDuration(run.CompletedAt.Sub(run.StartedAt))))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Subjects: *%s*\n", escapeMarkdownV2(humanize.Comma(int64(s.Subjects))))
	fmt.Fprintf(&b, "Skipped: %s\n", escapeMarkdownV2(humanize.Comma(int64(s.Skipped))))
	if s.InvalidRecords > 0 {
		fmt.Fprintf(&b, "Invalid records: %s\n", escapeMarkdownV2(humanize.Comma(int64(s.InvalidRecords))))
	}
	fmt.Fprintf(&b, "Testable: *%s*\n\n", escapeMarkdownV2(humanize.Comma(int64(s.Testable))))

	rows := []struct {
		emoji string
		label string
		n     int
	}{
		{"✅", "Geometric at 0.001", s.NotRejected001},
		{"✅", "Geometric at 0.01", s.NotRejected01},
		{"✅", "Geometric at 0.05", s.NotRejected05},
		{"❌", "Rejected", s.Rejected},
	}
	for _, r := range rows {
		fmt.Fprintf(&b, "%s %s: *%s*%s\n", r.emoji, escapeMarkdownV2(r.label),
			escapeMarkdownV2(humanize.Comma(int64(r.n))), escapeMarkdownV2(share(r.n, s.Testable)))
	}
	return b.String()
}

func share(n, total int) string {
	if total == 0 {
		return ""
	}
	return fmt.Sprintf(" (%.1f%%)", 100*float64(n)/float64(total))
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	// _ * [ ] ( ) ~ ` > # + - = | { } . ! and the escape character itself
	var b strings.Builder
	for _, char := range text {
		switch char {
		case '\\', '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if h := int(d.Hours()); h >= 1 {
		return fmt.Sprintf("%dh%dm", h, int(d.Minutes())%60)
	}
	if m := int(d.Minutes()); m >= 1 {
		return fmt.Sprintf("%dm%ds", m, int(d.Seconds())%60)
	}
	return d.Round(time.Millisecond).String()
}
