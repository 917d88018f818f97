package router

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/linkerlin/tgmonitor/internal/types"
)

// TimeLayout is used for every timestamp shown to the recipient.
const TimeLayout = "2006-01-02 15:04:05"

// maxBodyRunes keeps a forwarded body well inside Telegram's 4096 character
// message limit once the template is added.
const maxBodyRunes = 3500

// FormatForward renders the notification for a matched message.
func FormatForward(e types.Event, sender types.Sender) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🔔 KEYWORDS FOUND: %s\n\n", strings.Join(e.Keywords, ", "))
	fmt.Fprintf(&sb, "📍 Group/Channel: %s\n", e.Container.Title)
	fmt.Fprintf(&sb, "👤 Sender: %s\n", sender.Display())
	fmt.Fprintf(&sb, "📅 Time: %s\n\n", e.Message.Timestamp.Format(TimeLayout))
	fmt.Fprintf(&sb, "💬 Message:\n%s\n\n", truncate(e.Message.Body, maxBodyRunes))
	sb.WriteString("---\n")
	fmt.Fprintf(&sb, "Message ID: %d\n", e.Message.ID)
	fmt.Fprintf(&sb, "Chat ID: %d", e.Container.ID)
	return sb.String()
}

// FormatStatus renders the periodic status report.
func FormatStatus(e types.Event) string {
	up := e.Stats.Uptime(e.At)
	hours := int(up.Hours())
	minutes := int(up.Minutes()) % 60

	var sb strings.Builder
	sb.WriteString("📊 Monitor status\n\n")
	fmt.Fprintf(&sb, "⏱ Uptime: %dh %dm\n", hours, minutes)
	fmt.Fprintf(&sb, "🔄 Scan cycles: %d\n", e.Stats.Cycles)
	fmt.Fprintf(&sb, "🔔 Matches found: %d\n", e.Stats.Matches)
	fmt.Fprintf(&sb, "🔑 Keywords: %d\n", e.KeywordCount)
	fmt.Fprintf(&sb, "🕒 Time: %s", e.At.Format(TimeLayout))
	return sb.String()
}

// FormatError renders a scan failure notice announcing the retry delay.
func FormatError(e types.Event, retry time.Duration) string {
	var sb strings.Builder
	sb.WriteString("⚠️ Scan error\n\n")
	fmt.Fprintf(&sb, "%s\n\n", FormatOutbound(e.Err))
	fmt.Fprintf(&sb, "🕒 Time: %s\n", e.At.Format(TimeLayout))
	fmt.Fprintf(&sb, "🔁 Retrying in %s", humanDuration(retry))
	return sb.String()
}

// FormatOutbound cleans up free text before it is sent.
func FormatOutbound(rawText string) string {
	return strings.TrimSpace(rawText)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}

func humanDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	}
	m := int(d.Round(time.Minute).Minutes())
	if m == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", m)
}
