package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ChanlerDev/deep-research/internal/api"
	"github.com/ChanlerDev/deep-research/internal/app"
	"github.com/ChanlerDev/deep-research/internal/archive"
	"github.com/ChanlerDev/deep-research/internal/research"
)

type focusArea int

const (
	focusInput focusArea = iota
	focusSidebar
	focusMain
)

type screen int

const (
	screenChat screen = iota
	screenArena
	screenArchive
)

// refreshMsg asks for a redraw after state changed off the UI goroutine.
type refreshMsg struct{}

type historyMsg struct {
	sessions []api.StatusResponse
	err      error
}

type modelsMsg struct {
	models []api.ModelInfo
}

type archiveMsg struct {
	reports []archive.Report
}

type spinMsg struct{}

// Deps is everything the UI needs, wired in cmd.
type Deps struct {
	Config     app.Config
	Client     *api.Client
	Controller *research.Controller
	Arena      *research.Arena
	Archive    *archive.Archive
	Logger     *app.Logger
	// Updates is drained by the UI loop; the controllers push into it.
	Updates chan struct{}
	// StartArena opens the program on the arena board.
	StartArena bool
}

// Model is the root program state: a history sidebar, the main pane (chat
// transcript, arena board, or archived reports), and the composer.
type Model struct {
	deps     Deps
	theme    Theme
	timeline timelineView
	arena    arenaView

	screen screen
	focus  focusArea
	width  int
	height int

	input    textarea.Model
	main     viewport.Model
	spinStep int

	history     []api.StatusResponse
	historyErr  string
	selected    int
	freeModels  []api.ModelInfo
	pickedModel map[int]bool

	reports        []archive.Report
	reportSelected int
	reportOpen     bool

	// statusCh carries per-session row patches; historyDirty flags that the
	// sidebar needs a full refetch on the next refresh cycle.
	statusCh     chan research.SessionChange
	historyDirty chan struct{}
}

func New(deps Deps) *Model {
	theme := NewTheme()

	ta := textarea.New()
	ta.Placeholder = "Describe a research topic..."
	ta.Focus()
	ta.CharLimit = 8000
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.BlurredStyle.CursorLine = lipgloss.NewStyle()

	m := &Model{
		deps:        deps,
		theme:       theme,
		timeline:    newTimelineView(theme),
		arena:       newArenaView(theme),
		input:       ta,
		main:        viewport.New(80, 20),
		width:       80,
		height:      24,
		pickedModel: map[int]bool{0: true},

		statusCh:     make(chan research.SessionChange, 16),
		historyDirty: make(chan struct{}, 1),
	}
	if deps.StartArena {
		m.screen = screenArena
	}

	wake := func() {
		select {
		case deps.Updates <- struct{}{}:
		default:
		}
	}
	// History broadcasts force a refetch on the next refresh cycle; status
	// broadcasts patch the matching sidebar row in place.
	deps.Controller.Bus().SubscribeHistory(func() {
		select {
		case m.historyDirty <- struct{}{}:
		default:
		}
		wake()
	})
	deps.Controller.Bus().SubscribeStatus(func(change research.SessionChange) {
		select {
		case m.statusCh <- change:
		default:
			// Overflow degrades to a refetch.
			select {
			case m.historyDirty <- struct{}{}:
			default:
			}
		}
		wake()
	})
	return m
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.waitUpdate(),
		m.fetchHistory(),
		m.fetchModels(),
		m.spinTick(),
	)
}

func (m *Model) waitUpdate() tea.Cmd {
	return func() tea.Msg {
		<-m.deps.Updates
		return refreshMsg{}
	}
}

func (m *Model) fetchHistory() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sessions, err := m.deps.Client.GetHistory(ctx)
		return historyMsg{sessions: sessions, err: err}
	}
}

func (m *Model) fetchModels() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		models, err := m.deps.Client.GetModels(ctx)
		if err != nil {
			// The composer falls back to the configured default model.
			return modelsMsg{}
		}
		return modelsMsg{models: models}
	}
}

func (m *Model) fetchArchive() tea.Cmd {
	return func() tea.Msg {
		if m.deps.Archive == nil {
			return archiveMsg{}
		}
		reports, err := m.deps.Archive.List()
		if err != nil {
			m.deps.Logger.Warn("archive list failed", map[string]any{"error": err.Error()})
			return archiveMsg{}
		}
		return archiveMsg{reports: reports}
	}
}

func (m *Model) spinTick() tea.Cmd {
	return tea.Tick(150*time.Millisecond, func(time.Time) tea.Msg { return spinMsg{} })
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.refreshMain()
		return m, nil

	case refreshMsg:
		m.refreshMain()
		if draft := m.deps.Controller.TakeDraft(); draft != "" {
			m.input.SetValue(draft)
		}
		m.drainStatusPatches()
		cmds := []tea.Cmd{m.waitUpdate()}
		select {
		case <-m.historyDirty:
			cmds = append(cmds, m.fetchHistory())
		default:
		}
		return m, tea.Batch(cmds...)

	case historyMsg:
		if msg.err != nil {
			m.historyErr = msg.err.Error()
		} else {
			m.historyErr = ""
			m.history = visibleSessions(msg.sessions)
			if m.selected >= len(m.history) {
				m.selected = max(0, len(m.history)-1)
			}
		}
		return m, nil

	case modelsMsg:
		m.freeModels = msg.models
		return m, nil

	case archiveMsg:
		m.reports = msg.reports
		if m.reportSelected >= len(m.reports) {
			m.reportSelected = 0
		}
		m.refreshMain()
		return m, nil

	case spinMsg:
		m.spinStep++
		if m.busy() {
			m.refreshMain()
		}
		return m, m.spinTick()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "tab":
		m.cycleFocus()
		return m, nil
	case "ctrl+n":
		m.screen = screenChat
		m.deps.Controller.NewSession()
		m.input.Reset()
		m.focusInput()
		return m, nil
	case "ctrl+a":
		if m.screen == screenArena {
			m.screen = screenChat
		} else {
			m.screen = screenArena
		}
		m.refreshMain()
		return m, nil
	case "ctrl+o":
		if m.screen == screenArchive {
			m.screen = screenChat
			m.refreshMain()
			return m, nil
		}
		m.screen = screenArchive
		m.reportOpen = false
		m.focus = focusMain
		return m, m.fetchArchive()
	case "ctrl+r":
		if m.screen == screenArena {
			m.deps.Arena.Reset()
			m.input.Reset()
			m.refreshMain()
		}
		return m, nil
	case "esc":
		if m.screen == screenArchive && m.reportOpen {
			m.reportOpen = false
			m.refreshMain()
			return m, nil
		}
		m.focusInput()
		return m, nil
	}

	switch m.focus {
	case focusSidebar:
		return m.handleSidebarKey(msg)
	case focusMain:
		return m.handleMainKey(msg)
	default:
		return m.handleInputKey(msg)
	}
}

func (m *Model) handleSidebarKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(m.history)-1 {
			m.selected++
		}
	case "enter":
		if m.selected < len(m.history) {
			m.screen = screenChat
			m.deps.Controller.Load(m.history[m.selected].ID)
			m.focusInput()
		}
	case "q":
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) handleMainKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.screen == screenArchive && !m.reportOpen {
		switch msg.String() {
		case "up", "k":
			if m.reportSelected > 0 {
				m.reportSelected--
			}
			m.refreshMain()
			return m, nil
		case "down", "j":
			if m.reportSelected < len(m.reports)-1 {
				m.reportSelected++
			}
			m.refreshMain()
			return m, nil
		case "enter":
			if len(m.reports) > 0 {
				m.reportOpen = true
				m.refreshMain()
			}
			return m, nil
		case "q":
			return m, tea.Quit
		}
	}
	if msg.String() == "q" {
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.main, cmd = m.main.Update(msg)
	return m, cmd
}

func (m *Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		return m, m.submit()
	case "ctrl+j":
		m.input.InsertString("\n")
		return m, nil
	}
	if m.screen == screenArena {
		// Number keys toggle which models race.
		if n := len(msg.String()); n == 1 && msg.String()[0] >= '1' && msg.String()[0] <= '9' {
			idx := int(msg.String()[0] - '1')
			if idx < len(m.freeModels) {
				m.pickedModel[idx] = !m.pickedModel[idx]
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) submit() tea.Cmd {
	content := strings.TrimSpace(m.input.Value())
	if content == "" {
		return nil
	}
	if m.screen == screenArena {
		models := m.selectedModels()
		if err := m.deps.Arena.Launch(content, models); err != nil {
			m.historyErr = err.Error()
			return nil
		}
		m.input.Reset()
		m.refreshMain()
		return nil
	}
	if !m.deps.Controller.Snapshot().CanSend {
		return nil
	}
	m.deps.Controller.Send(content, m.defaultSelection())
	m.input.Reset()
	return nil
}

// defaultSelection is the binding for a session's first message: the
// configured model when set, otherwise the platform default.
func (m *Model) defaultSelection() research.ModelSelection {
	sel := research.ModelSelection{
		ModelName: m.deps.Config.DefaultModel,
		Budget:    api.Budget(m.deps.Config.DefaultBudget),
	}
	if m.deps.Config.ModelBaseURL != "" {
		sel.BaseURL = m.deps.Config.ModelBaseURL
		sel.APIKey = m.deps.Config.ModelAPIKey
	}
	return sel
}

func (m *Model) selectedModels() []research.ModelSelection {
	var models []research.ModelSelection
	for i, info := range m.freeModels {
		if m.pickedModel[i] && len(models) < research.MaxArenaRuns {
			models = append(models, research.ModelSelection{
				ModelName: info.ModelName,
				ModelID:   info.Model,
				Budget:    api.Budget(m.deps.Config.DefaultBudget),
			})
		}
	}
	if len(models) == 0 {
		models = append(models, m.defaultSelection())
	}
	return models
}

func (m *Model) cycleFocus() {
	switch m.focus {
	case focusInput:
		m.focus = focusSidebar
		m.input.Blur()
	case focusSidebar:
		m.focus = focusMain
	default:
		m.focusInput()
	}
}

func (m *Model) focusInput() {
	m.focus = focusInput
	m.input.Focus()
}

func (m *Model) busy() bool {
	snap := m.deps.Controller.Snapshot()
	return snap.Sending || snap.View == research.ViewLoading ||
		(snap.ID != "" && snap.Status.Active())
}

func (m *Model) layout() {
	sidebarWidth := m.sidebarWidth()
	mainWidth := m.width - sidebarWidth - 6
	if mainWidth < 30 {
		mainWidth = 30
	}
	m.main.Width = mainWidth
	m.main.Height = max(5, m.height-9)
	m.input.SetWidth(m.width - 6)
}

func (m *Model) sidebarWidth() int {
	w := m.width / 4
	if w < 22 {
		w = 22
	}
	if w > 36 {
		w = 36
	}
	return w
}

// refreshMain rebuilds the main viewport content and keeps it pinned to the
// bottom while a session is streaming.
func (m *Model) refreshMain() {
	wasAtBottom := m.main.AtBottom()
	switch m.screen {
	case screenArena:
		m.main.SetContent(m.arena.Render(m.deps.Arena.Snapshot(), m.main.Width, m.main.Height))
	case screenArchive:
		m.main.SetContent(m.renderArchive())
	default:
		m.main.SetContent(m.renderChat())
	}
	if wasAtBottom {
		m.main.GotoBottom()
	}
}

func (m *Model) renderChat() string {
	snap := m.deps.Controller.Snapshot()
	switch snap.View {
	case research.ViewLoading:
		return m.theme.Muted.Render(m.spinner() + " loading session...")
	case research.ViewLoadFailed:
		return m.theme.ErrorLine.Render("Could not load this session: "+snap.Err) + "\n\n" +
			m.theme.Muted.Render("Pick another session or press ctrl+n for a new one.")
	}
	if snap.ID == "" && len(snap.Timeline) == 0 {
		return m.renderWelcome()
	}
	out := m.timeline.Render(snap, m.main.Width)
	if snap.Err != "" {
		out += "\n" + m.theme.ErrorLine.Render(snap.Err)
	}
	return out
}

func (m *Model) renderWelcome() string {
	lines := []string{
		m.theme.PaneTitle.Render("Deep research"),
		"",
		"Give the agent a topic and it will scope, search, and write a",
		"cited report, streaming its progress here as it works.",
		"",
		m.theme.Muted.Render("effort tier: " + api.Budget(m.deps.Config.DefaultBudget).Label()),
		"",
		m.theme.Muted.Render("enter send, ctrl+a arena, ctrl+o archived reports, ctrl+n new"),
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderArchive() string {
	if len(m.reports) == 0 {
		return m.theme.Muted.Render("No archived reports yet. Completed research lands here automatically.")
	}
	if m.reportOpen {
		r := m.reports[m.reportSelected]
		head := m.theme.PaneTitle.Render(r.Title) + "\n" +
			m.theme.Muted.Render(fmt.Sprintf("%s  %s", r.Model, r.CompletedAt.Format("2006-01-02 15:04"))) + "\n\n"
		return head + m.timeline.renderer.Render(r.Report, m.main.Width)
	}
	var b strings.Builder
	b.WriteString(m.theme.PaneTitle.Render("Archived reports"))
	b.WriteString("\n\n")
	for i, r := range m.reports {
		marker := "  "
		if i == m.reportSelected {
			marker = m.theme.EventBullet.Render("> ")
		}
		title := r.Title
		if title == "" {
			title = r.ResearchID
		}
		b.WriteString(fmt.Sprintf("%s%s  %s\n", marker,
			truncateRunes(title, m.main.Width-22),
			m.theme.Muted.Render(r.CompletedAt.Format("2006-01-02"))))
	}
	b.WriteString("\n")
	b.WriteString(m.theme.Muted.Render("enter open, esc back"))
	return b.String()
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

func (m *Model) spinner() string {
	return spinnerFrames[m.spinStep%len(spinnerFrames)]
}

func (m *Model) View() string {
	top := m.renderTopBar()
	sidebar := m.renderSidebar()
	mainStyle := m.theme.Pane
	if m.focus == focusMain {
		mainStyle = m.theme.PaneFocused
	}
	main := mainStyle.Width(m.main.Width + 2).Render(m.main.View())
	body := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, main)

	inputStyle := m.theme.InputBox
	if m.focus == focusInput {
		inputStyle = m.theme.InputBoxF
	}
	if m.screen == screenChat && !m.deps.Controller.Snapshot().CanSend {
		inputStyle = inputStyle.BorderForeground(m.theme.TextMuted)
	}
	input := inputStyle.Width(m.width - 4).Render(m.input.View())

	return strings.Join([]string{top, body, input, m.renderFooter()}, "\n")
}

func (m *Model) renderTopBar() string {
	snap := m.deps.Controller.Snapshot()
	title := "new research"
	switch {
	case m.screen == screenArena:
		title = "model arena"
	case m.screen == screenArchive:
		title = "archived reports"
	case snap.Title != "":
		title = snap.Title
	}
	parts := []string{m.theme.TopBarTitle.Render(truncateRunes(title, m.width/2))}
	if m.screen == screenChat && snap.ID != "" {
		parts = append(parts, m.theme.StatusBadge(snap.Status))
		if snap.Status.Active() {
			if snap.Connected {
				parts = append(parts, m.theme.TopBarMeta.Render("live"))
			} else {
				parts = append(parts, m.theme.TopBarMeta.Render(m.spinner()+" reconnecting"))
			}
		}
		if metrics := formatMetrics(snap.Metrics); metrics != "" {
			parts = append(parts, m.theme.TopBarMeta.Render(metrics))
		}
		if snap.ModelID != "" {
			parts = append(parts, m.theme.TopBarMeta.Render(snap.ModelID))
		}
	}
	return m.theme.TopBar.Render(strings.Join(parts, "  "))
}

func (m *Model) renderSidebar() string {
	width := m.sidebarWidth()
	style := m.theme.Pane
	if m.focus == focusSidebar {
		style = m.theme.PaneFocused
	}

	var b strings.Builder
	b.WriteString(m.theme.PaneTitle.Render("History"))
	b.WriteString("\n\n")
	if m.historyErr != "" {
		b.WriteString(m.theme.ErrorLine.Render(wrapText(m.historyErr, width-4)))
		b.WriteString("\n")
	}
	if len(m.history) == 0 && m.historyErr == "" {
		b.WriteString(m.theme.Muted.Render("nothing yet"))
		b.WriteString("\n")
	}
	visible := m.history
	maxRows := max(3, m.main.Height-2)
	if len(visible) > maxRows {
		start := min(m.selected, len(visible)-maxRows)
		visible = visible[start : start+maxRows]
	}
	for i, session := range visible {
		idx := i
		if len(m.history) > maxRows {
			idx = i + min(m.selected, len(m.history)-maxRows)
		}
		marker := "  "
		if idx == m.selected && m.focus == focusSidebar {
			marker = m.theme.EventBullet.Render("> ")
		}
		title := session.Title
		if title == "" {
			title = "(untitled)"
		}
		b.WriteString(marker)
		b.WriteString(truncateRunes(title, width-8))
		b.WriteString("\n  ")
		b.WriteString(m.theme.StatusBadge(session.Status))
		b.WriteString("\n")
	}

	if m.screen == screenArena && len(m.freeModels) > 0 {
		b.WriteString("\n")
		b.WriteString(m.theme.PaneTitle.Render("Models"))
		b.WriteString("\n")
		for i, info := range m.freeModels {
			check := "[ ]"
			if m.pickedModel[i] {
				check = "[x]"
			}
			b.WriteString(fmt.Sprintf(" %d %s %s\n", i+1, check, truncateRunes(info.ModelName, width-12)))
		}
	}

	return style.Width(width).Height(m.main.Height).Render(b.String())
}

func (m *Model) renderFooter() string {
	var hints []string
	switch m.screen {
	case screenArena:
		hints = []string{"enter launch", "1-3 pick models", "ctrl+r reset", "ctrl+a back"}
	case screenArchive:
		hints = []string{"enter open", "esc back", "ctrl+o close"}
	default:
		hints = []string{"enter send", "tab focus", "ctrl+n new", "ctrl+a arena", "ctrl+o archive"}
	}
	hints = append(hints, "ctrl+c quit")
	return m.theme.Footer.Render(strings.Join(hints, "  ·  "))
}

// drainStatusPatches applies queued per-session changes to the sidebar
// rows. A change for a session the list has never seen falls back to a full
// refetch.
func (m *Model) drainStatusPatches() {
	for {
		select {
		case change := <-m.statusCh:
			if !patchSession(m.history, change) {
				select {
				case m.historyDirty <- struct{}{}:
				default:
				}
			}
		default:
			return
		}
	}
}

// patchSession updates the matching row in place and reports whether it
// found one.
func patchSession(sessions []api.StatusResponse, change research.SessionChange) bool {
	for i := range sessions {
		if sessions[i].ID != change.ID {
			continue
		}
		sessions[i].Status = change.Status
		if change.Title != "" {
			sessions[i].Title = change.Title
		}
		return true
	}
	return false
}

// visibleSessions filters the history list the way the sidebar wants it:
// unclaimed NEW allocations are noise until a message binds them.
func visibleSessions(sessions []api.StatusResponse) []api.StatusResponse {
	var out []api.StatusResponse
	for _, s := range sessions {
		if s.Status == api.StatusNew && s.Title == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
