package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ChanlerDev/deep-research/internal/api"
	"github.com/ChanlerDev/deep-research/internal/research"
)

// arenaView renders the model comparison board: one card per run, side by
// side, each showing the run's recent events and its report once finished.
type arenaView struct {
	theme    Theme
	timeline timelineView
}

func newArenaView(theme Theme) arenaView {
	return arenaView{theme: theme, timeline: newTimelineView(theme)}
}

const arenaCardEventTail = 8

func (v arenaView) Render(snap research.ArenaSnapshot, width, height int) string {
	if snap.Launching {
		return v.theme.Muted.Render("allocating sessions...")
	}
	if len(snap.Runs) == 0 {
		return v.renderIntro()
	}

	cardWidth := width/len(snap.Runs) - 2
	if cardWidth < 24 {
		cardWidth = 24
	}
	cards := make([]string, len(snap.Runs))
	for i, run := range snap.Runs {
		cards[i] = v.renderCard(run, cardWidth, height)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func (v arenaView) renderIntro() string {
	lines := []string{
		v.theme.PaneTitle.Render("Model arena"),
		"",
		"Race the same topic across up to 3 models side by side.",
		"",
		v.theme.Muted.Render("Type a topic below, pick models with space, then press enter."),
	}
	return strings.Join(lines, "\n")
}

func (v arenaView) renderCard(run research.ArenaRunView, width, height int) string {
	style := v.theme.RunCard
	switch {
	case run.Err != "" || run.Status == api.StatusFailed:
		style = v.theme.RunCardErr
	case run.Status == api.StatusCompleted:
		style = v.theme.RunCardDone
	}

	var b strings.Builder
	name := run.ModelName
	if name == "" {
		name = "default model"
	}
	b.WriteString(v.theme.PaneTitle.Render(truncateRunes(name, width-4)))
	b.WriteString("\n")
	b.WriteString(v.theme.StatusBadge(run.Status))
	if metrics := formatMetrics(run.Metrics); metrics != "" {
		b.WriteString("  ")
		b.WriteString(v.theme.Muted.Render(metrics))
	}
	b.WriteString("\n\n")

	switch {
	case run.Err != "":
		b.WriteString(v.theme.ErrorLine.Render(wrapText(run.Err, width-4)))
	case run.Report != "":
		b.WriteString(v.timeline.renderer.Render(run.Report, width-4))
	default:
		b.WriteString(v.renderRecentEvents(run, width-4))
	}

	content := b.String()
	if height > 4 {
		content = clampLines(content, height-2)
	}
	return style.Width(width).Render(content)
}

// renderRecentEvents shows the tail of the run's event stream: with three
// cards on screen there is no room for full histories.
func (v arenaView) renderRecentEvents(run research.ArenaRunView, width int) string {
	var nodes []*research.EventNode
	for _, item := range run.Timeline {
		nodes = append(nodes, item.Group...)
	}
	if len(nodes) == 0 {
		return v.theme.Muted.Render("waiting for first update...")
	}
	if len(nodes) > arenaCardEventTail {
		nodes = nodes[len(nodes)-arenaCardEventTail:]
	}
	var b strings.Builder
	for _, node := range nodes {
		line := v.theme.EventBullet.Render("•") + " " +
			truncateRunes(eventLabel(node.Type)+node.Title, width-2)
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func clampLines(s string, max int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= max {
		return s
	}
	kept := lines[len(lines)-max:]
	return fmt.Sprintf("%s\n%s", "…", strings.Join(kept, "\n"))
}
