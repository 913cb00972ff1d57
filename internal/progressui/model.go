// Package progressui provides the Bubble Tea progress browser.
package progressui

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/arcade/internal/ledger"
	"github.com/verte-zerg/arcade/internal/model"
	"github.com/verte-zerg/arcade/internal/progress"
)

const (
	tabOverview = iota
	tabLessons
	tabHomework
)

const maxColumnWidth = 48

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
)

// Model implements the Bubble Tea progress UI.
type Model struct {
	ledger *ledger.Ledger
	userID string
	filter ledger.Filter

	snap   model.Snapshot
	report progress.Report
	errMsg string

	tabs      []string
	activeTab int
	overview  viewport.Model
	lessons   table.Model
	homework  table.Model

	width  int
	height int

	filterMode   bool
	filterInputs []textinput.Model
	filterIndex  int
}

// NewModel constructs a progress UI model for userID.
func NewModel(l *ledger.Ledger, userID string, filter ledger.Filter) *Model {
	m := &Model{
		ledger:   l,
		userID:   userID,
		filter:   filter,
		tabs:     []string{"Overview", "Lessons", "Homework"},
		overview: viewport.New(0, 0),
		lessons:  newTable(),
		homework: newTable(),
	}
	m.filterInputs = []textinput.Model{
		newFilterInput("Level: "),
		newFilterInput("Skill: "),
	}
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.renderOverview()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.filterMode {
			return m.updateFilter(msg)
		}
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "left", "h":
			m.moveTab(-1)
			return m, tea.ClearScreen
		case "right", "l":
			m.moveTab(1)
			return m, tea.ClearScreen
		case "/":
			return m.startFilter()
		case "r":
			m.refresh()
			return m, nil
		case "g", "home":
			m.gotoEdge(true)
			return m, nil
		case "G", "end":
			m.gotoEdge(false)
			return m, nil
		}
		var cmd tea.Cmd
		switch m.activeTab {
		case tabLessons:
			m.lessons, cmd = m.lessons.Update(msg)
		case tabHomework:
			m.homework, cmd = m.homework.Update(msg)
		default:
			m.overview, cmd = m.overview.Update(msg)
		}
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

// Filter returns the active archive filter.
func (m *Model) Filter() ledger.Filter {
	return m.filter
}

func newFilterInput(prompt string) textinput.Model {
	input := textinput.New()
	input.Prompt = prompt
	input.CharLimit = 16
	input.Cursor.SetMode(cursor.CursorBlink)
	return input
}

func newTable() table.Model {
	t := table.New(table.WithHeight(1))
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		PaddingLeft(0)
	styles.Cell = styles.Cell.PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	t.SetStyles(styles)
	return t
}

func (m *Model) refresh() {
	ctx := context.Background()
	snap, err := m.ledger.Snapshot(ctx, m.userID)
	if err != nil {
		m.errMsg = err.Error()
		m.overview.SetContent("Failed to load progress.")
		return
	}
	m.errMsg = ""
	m.snap = snap
	m.report = progress.FromSnapshot(snap)

	lessons, err := m.ledger.Lessons.List(ctx, m.userID, m.filter)
	if err != nil {
		m.errMsg = err.Error()
		return
	}
	setTableData(&m.lessons, progress.LessonHeaders, progress.LessonRows(lessons))

	homework, err := m.ledger.Homework.List(ctx, m.userID, m.filter)
	if err != nil {
		m.errMsg = err.Error()
		return
	}
	setTableData(&m.homework, progress.HomeworkHeaders, progress.HomeworkRows(homework))
	m.renderOverview()
}

func setTableData(t *table.Model, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	tableRows := make([]table.Row, 0, len(rows))
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = min(maxColumnWidth, max(widths[i], runewidth.StringWidth(cell)))
			}
		}
		tableRows = append(tableRows, table.Row(row))
	}
	cols := make([]table.Column, len(headers))
	for i, h := range headers {
		cols[i] = table.Column{Title: h, Width: widths[i] + 1}
	}
	// Rows must never have more cells than columns.
	t.SetRows(nil)
	t.SetColumns(cols)
	t.SetRows(tableRows)
}

func (m *Model) renderOverview() {
	if m.errMsg != "" {
		return
	}
	var buf bytes.Buffer
	if err := progress.Render(&buf, m.report, true); err != nil {
		m.overview.SetContent(fmt.Sprintf("Failed to render progress: %v", err))
		return
	}
	m.overview.SetContent(strings.TrimRight(buf.String(), "\n"))
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	tabsHeight := max(1, lipgloss.Height(activeNavStyle.Render("X")))
	headerHeight = tabsHeight + 1
	footerHeight = 1
	if !m.filterMode && m.errMsg != "" {
		footerHeight++
	}
	bodyHeight = max(1, m.height-headerHeight-footerHeight)
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, bodyHeight, _ := m.layoutHeights()
	m.overview.Width = m.width
	m.overview.Height = bodyHeight
	for _, t := range []*table.Model{&m.lessons, &m.homework} {
		t.SetWidth(m.width)
		t.SetHeight(max(1, bodyHeight-1))
	}
	for i := range m.filterInputs {
		promptWidth := lipgloss.Width(m.filterInputs[i].Prompt)
		m.filterInputs[i].Width = max(10, m.width-promptWidth-2)
	}
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	next := (m.activeTab + delta + count) % count
	m.activeTab = next
	m.lessons.Blur()
	m.homework.Blur()
	switch m.activeTab {
	case tabLessons:
		m.lessons.Focus()
	case tabHomework:
		m.homework.Focus()
	}
}

func (m *Model) gotoEdge(top bool) {
	switch m.activeTab {
	case tabLessons:
		if top {
			m.lessons.GotoTop()
		} else {
			m.lessons.GotoBottom()
		}
	case tabHomework:
		if top {
			m.homework.GotoTop()
		} else {
			m.homework.GotoBottom()
		}
	default:
		if top {
			m.overview.GotoTop()
		} else {
			m.overview.GotoBottom()
		}
	}
}

func (m *Model) startFilter() (tea.Model, tea.Cmd) {
	m.filterMode = true
	m.filterInputs[0].SetValue(m.filter.Level)
	m.filterInputs[1].SetValue(m.filter.Skill)
	return m, m.setFilterIndex(0)
}

func (m *Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.filterMode = false
		return m, nil
	case tea.KeyEnter:
		m.filter = ledger.Filter{
			Level: strings.TrimSpace(m.filterInputs[0].Value()),
			Skill: strings.TrimSpace(m.filterInputs[1].Value()),
		}
		m.filterMode = false
		m.refresh()
		m.updateLayout()
		return m, nil
	case tea.KeyTab:
		return m, m.setFilterIndex(m.filterIndex + 1)
	case tea.KeyShiftTab:
		return m, m.setFilterIndex(m.filterIndex - 1)
	}
	var cmd tea.Cmd
	m.filterInputs[m.filterIndex], cmd = m.filterInputs[m.filterIndex].Update(msg)
	return m, cmd
}

func (m *Model) setFilterIndex(idx int) tea.Cmd {
	count := len(m.filterInputs)
	m.filterIndex = (idx + count) % count
	var cmd tea.Cmd
	for i := range m.filterInputs {
		if i == m.filterIndex {
			cmd = m.filterInputs[i].Focus()
		} else {
			m.filterInputs[i].Blur()
		}
	}
	return cmd
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderHeader() string {
	level := m.filter.Level
	if level == "" {
		level = "any"
	}
	skill := m.filter.Skill
	if skill == "" {
		skill = "any"
	}
	summary := fmt.Sprintf("Filter: level=%s  skill=%s  lessons=%d  homework=%d",
		level, skill, len(m.snap.Lessons), len(m.snap.Homework))
	summary = runewidth.Truncate(summary, max(1, m.width), "...")
	return m.renderTabs() + "\n" + headerStyle.Render(summary)
}

func (m *Model) renderBody() string {
	if m.filterMode {
		lines := []string{"Filter archives (enter to apply, esc to cancel)"}
		for _, input := range m.filterInputs {
			lines = append(lines, input.View())
		}
		return strings.Join(lines, "\n")
	}
	switch m.activeTab {
	case tabLessons:
		if len(m.lessons.Rows()) == 0 {
			return "No lessons found."
		}
		return tableMutedStyle.Render(m.lessons.View())
	case tabHomework:
		if len(m.homework.Rows()) == 0 {
			return "No homework saved."
		}
		return tableMutedStyle.Render(m.homework.View())
	}
	return m.overview.View()
}

func (m *Model) renderFooter() string {
	if m.filterMode {
		return headerStyle.Render("tab/shift+tab: next field  enter: apply  esc: cancel")
	}
	help := headerStyle.Render("Nav: left/right  Scroll: up/down/pgup/pgdn  Filter: /  Reload: r  Quit: q")
	if m.errMsg != "" {
		return help + "\n" + errorStyle.Render(m.errMsg)
	}
	return help
}

func padLine(line string, width int) string {
	lineWidth := lipgloss.Width(line)
	if lineWidth < width {
		return line + strings.Repeat(" ", width-lineWidth)
	}
	return line
}

func fitLines(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}
