package tui

import (
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/ChanlerDev/deep-research/internal/api"
)

// Theme bundles every style the views draw with. One instance is built at
// startup and shared read-only.
type Theme struct {
	TextPrimary lipgloss.AdaptiveColor
	TextMuted   lipgloss.AdaptiveColor
	Accent      lipgloss.AdaptiveColor
	Success     lipgloss.AdaptiveColor
	Warn        lipgloss.AdaptiveColor
	Error       lipgloss.AdaptiveColor
	Border      lipgloss.AdaptiveColor
	BorderHi    lipgloss.AdaptiveColor

	TopBar      lipgloss.Style
	TopBarTitle lipgloss.Style
	TopBarMeta  lipgloss.Style
	Footer      lipgloss.Style

	Pane        lipgloss.Style
	PaneFocused lipgloss.Style
	PaneTitle   lipgloss.Style

	InputBox  lipgloss.Style
	InputBoxF lipgloss.Style

	RoleUser      lipgloss.Style
	RoleAssistant lipgloss.Style
	ErrorLine     lipgloss.Style
	Muted         lipgloss.Style

	EventBullet lipgloss.Style
	EventTitle  lipgloss.Style
	EventDetail lipgloss.Style

	RunCard     lipgloss.Style
	RunCardDone lipgloss.Style
	RunCardErr  lipgloss.Style

	statusBadges map[api.Status]lipgloss.Style
	badgeDefault lipgloss.Style
}

func NewTheme() Theme {
	if os.Getenv("DEEP_RESEARCH_NO_COLOR") == "1" {
		return newMonoTheme()
	}
	return newDefaultTheme()
}

func newDefaultTheme() Theme {
	t := Theme{
		TextPrimary: lipgloss.AdaptiveColor{Light: "#1F2430", Dark: "#E6E6E6"},
		TextMuted:   lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#8B93A7"},
		Accent:      lipgloss.AdaptiveColor{Light: "#5B5FC7", Dark: "#8B8FF0"},
		Success:     lipgloss.AdaptiveColor{Light: "#1A7F37", Dark: "#56D364"},
		Warn:        lipgloss.AdaptiveColor{Light: "#9A6700", Dark: "#E3B341"},
		Error:       lipgloss.AdaptiveColor{Light: "#CF222E", Dark: "#FF7B72"},
		Border:      lipgloss.AdaptiveColor{Light: "#D0D7DE", Dark: "#30363D"},
		BorderHi:    lipgloss.AdaptiveColor{Light: "#5B5FC7", Dark: "#8B8FF0"},
	}

	t.TopBar = lipgloss.NewStyle().Padding(0, 1)
	t.TopBarTitle = lipgloss.NewStyle().Bold(true).Foreground(t.Accent)
	t.TopBarMeta = lipgloss.NewStyle().Foreground(t.TextMuted)
	t.Footer = lipgloss.NewStyle().Foreground(t.TextMuted).Padding(0, 1)

	t.Pane = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(t.Border).Padding(0, 1)
	t.PaneFocused = t.Pane.BorderForeground(t.BorderHi)
	t.PaneTitle = lipgloss.NewStyle().Bold(true).Foreground(t.TextPrimary)

	t.InputBox = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(t.Border)
	t.InputBoxF = t.InputBox.BorderForeground(t.BorderHi)

	t.RoleUser = lipgloss.NewStyle().Bold(true).Foreground(t.Accent)
	t.RoleAssistant = lipgloss.NewStyle().Bold(true).Foreground(t.Success)
	t.ErrorLine = lipgloss.NewStyle().Foreground(t.Error)
	t.Muted = lipgloss.NewStyle().Foreground(t.TextMuted)

	t.EventBullet = lipgloss.NewStyle().Foreground(t.Accent)
	t.EventTitle = lipgloss.NewStyle().Foreground(t.TextPrimary)
	t.EventDetail = lipgloss.NewStyle().Foreground(t.TextMuted)

	t.RunCard = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(t.Border).Padding(0, 1)
	t.RunCardDone = t.RunCard.BorderForeground(t.Success)
	t.RunCardErr = t.RunCard.BorderForeground(t.Error)

	badge := func(c lipgloss.AdaptiveColor) lipgloss.Style {
		return lipgloss.NewStyle().Bold(true).Foreground(c)
	}
	t.badgeDefault = badge(t.TextMuted)
	t.statusBadges = map[api.Status]lipgloss.Style{
		api.StatusNew:               badge(t.TextMuted),
		api.StatusCompleted:         badge(t.Success),
		api.StatusFailed:            badge(t.Error),
		api.StatusCancelled:         badge(t.TextMuted),
		api.StatusNeedClarification: badge(t.Warn),
	}
	return t
}

func newMonoTheme() Theme {
	plain := lipgloss.NewStyle()
	boxed := lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1)
	return Theme{
		TopBar:        plain.Padding(0, 1),
		TopBarTitle:   plain.Bold(true),
		TopBarMeta:    plain,
		Footer:        plain.Padding(0, 1),
		Pane:          boxed,
		PaneFocused:   boxed,
		PaneTitle:     plain.Bold(true),
		InputBox:      lipgloss.NewStyle().Border(lipgloss.NormalBorder()),
		InputBoxF:     lipgloss.NewStyle().Border(lipgloss.NormalBorder()),
		RoleUser:      plain.Bold(true),
		RoleAssistant: plain.Bold(true),
		ErrorLine:     plain,
		Muted:         plain,
		EventBullet:   plain,
		EventTitle:    plain,
		EventDetail:   plain,
		RunCard:       boxed,
		RunCardDone:   boxed,
		RunCardErr:    boxed,
		badgeDefault:  plain.Bold(true),
		statusBadges:  map[api.Status]lipgloss.Style{},
	}
}

// StatusBadge styles a status label. Intermediate pipeline states share the
// accent color; terminal states get their own.
func (t Theme) StatusBadge(s api.Status) string {
	if style, ok := t.statusBadges[s]; ok {
		return style.Render(string(s))
	}
	if s.Active() {
		return lipgloss.NewStyle().Bold(true).Foreground(t.Accent).Render(string(s))
	}
	return t.badgeDefault.Render(string(s))
}
