package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ChanlerDev/deep-research/internal/research"
)

const eventDetailMaxRunes = 160

// timelineView renders the merged transcript: user/assistant messages
// interleaved with indented workflow event groups, and the final report in
// full markdown.
type timelineView struct {
	theme    Theme
	renderer *ReportRenderer
}

func newTimelineView(theme Theme) timelineView {
	return timelineView{theme: theme, renderer: NewReportRenderer(theme)}
}

func (v timelineView) Render(snap research.Snapshot, width int) string {
	var b strings.Builder
	for i, item := range snap.Timeline {
		if i > 0 {
			b.WriteString("\n")
		}
		if item.Message != nil {
			b.WriteString(v.renderMessage(item, snap, width))
		} else {
			b.WriteString(v.renderGroup(item.Group, width))
		}
	}
	if snap.Status.Active() && snap.ID != "" {
		b.WriteString("\n")
		b.WriteString(v.theme.Muted.Render("working..."))
		b.WriteString("\n")
	}
	return b.String()
}

func (v timelineView) renderMessage(item research.TimelineItem, snap research.Snapshot, width int) string {
	msg := item.Message
	var b strings.Builder
	if msg.Role == "user" {
		b.WriteString(v.theme.RoleUser.Render("You"))
	} else {
		b.WriteString(v.theme.RoleAssistant.Render("Researcher"))
	}
	if !msg.CreateTime.IsZero() {
		b.WriteString("  ")
		b.WriteString(v.theme.Muted.Render(msg.CreateTime.Format("15:04:05")))
	}
	b.WriteString("\n")
	if msg.Role == "assistant" && msg.Content == snap.Report && snap.Report != "" {
		b.WriteString(v.renderer.Render(msg.Content, width))
	} else {
		b.WriteString(wrapText(msg.Content, width-2))
	}
	b.WriteString("\n")
	return b.String()
}

func (v timelineView) renderGroup(group []*research.EventNode, width int) string {
	var b strings.Builder
	for _, node := range group {
		b.WriteString(v.renderEvent(node, width))
	}
	return b.String()
}

func (v timelineView) renderEvent(node *research.EventNode, width int) string {
	indent := strings.Repeat("  ", node.Depth)
	bullet := "•"
	if node.Depth > 0 {
		bullet = "└"
	}
	line := indent + v.theme.EventBullet.Render(bullet) + " " +
		v.theme.EventTitle.Render(eventLabel(node.Type)+node.Title)
	if node.HasDetail() {
		detail := truncateRunes(oneLine(node.Content), eventDetailMaxRunes)
		line += "\n" + indent + "  " + v.theme.EventDetail.Render(detail)
	}
	return line + "\n"
}

// eventLabel maps a pipeline event type to a short prefix. Unknown types
// render bare so new server-side stages stay legible.
func eventLabel(kind string) string {
	switch strings.ToUpper(kind) {
	case "SCOPE":
		return "[scope] "
	case "SUPERVISOR":
		return "[plan] "
	case "RESEARCH":
		return "[research] "
	case "SEARCH":
		return "[search] "
	case "REPORT":
		return "[report] "
	case "":
		return ""
	}
	return "[" + strings.ToLower(kind) + "] "
}

// formatMetrics is the one-line token/duration summary for the top bar.
func formatMetrics(m research.Metrics) string {
	var parts []string
	if m.TotalInputTokens > 0 || m.TotalOutputTokens > 0 {
		parts = append(parts, fmt.Sprintf("tokens %d in / %d out", m.TotalInputTokens, m.TotalOutputTokens))
	}
	if !m.StartTime.IsZero() {
		end := m.CompleteTime
		if end.IsZero() {
			end = time.Now()
		}
		if d := end.Sub(m.StartTime); d > 0 {
			parts = append(parts, formatDuration(d))
		}
	}
	return strings.Join(parts, "  ")
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}

func wrapText(s string, width int) string {
	if width < 10 {
		width = 10
	}
	return lipgloss.NewStyle().Width(width).Render(s)
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
