// Package ui is the interactive terminal browser over an open database:
// an index list on the left, the selected index's documents on the right,
// pretty-printed and scrollable.
package ui

import (
	"docstore/pkg/database"
	"docstore/pkg/document"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"docstore/pkg/ui/base"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// maxDocsShown caps how many documents one pane load renders.
const maxDocsShown = 200

// Model represents the application state
type Model struct {
	database    *database.Database
	docView     viewport.Model
	spinner     spinner.Model
	help        help.Model
	highlighter *JSONHighlighter

	indexNames []string
	counts     map[string]uint64
	selected   int

	width    int
	height   int
	loading  bool
	showHelp bool

	docCount  int
	lastError error
	loadTime  time.Duration
	keys      keyMap
}

func NewModel(db *database.Database) Model {
	vp := viewport.New(80, 20)
	vp.Style = docPaneStyle

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(primaryColor)

	return Model{
		database:    db,
		docView:     vp,
		spinner:     sp,
		help:        help.New(),
		highlighter: NewJSONHighlighter(),
		indexNames:  db.IndexesNames(),
		counts:      make(map[string]uint64),
		keys:        keys,
		loading:     true,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.loadDocuments(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.NextIndex):
			if m.selected < len(m.indexNames)-1 {
				m.selected++
				m.loading = true
				return m, m.loadDocuments()
			}

		case key.Matches(msg, m.keys.PrevIndex):
			if m.selected > 0 {
				m.selected--
				m.loading = true
				return m, m.loadDocuments()
			}

		case key.Matches(msg, m.keys.Refresh):
			m.loading = true
			return m, m.loadDocuments()

		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp

		case key.Matches(msg, m.keys.ScrollUp):
			m.docView.LineUp(1)

		case key.Matches(msg, m.keys.ScrollDown):
			m.docView.LineDown(1)
		}

	case docsLoadedMsg:
		m.loading = false
		m.lastError = msg.err
		m.loadTime = msg.duration
		m.docCount = len(msg.docs)
		m.counts = msg.counts
		if msg.err == nil {
			m.docView.SetContent(m.renderDocuments(msg.docs))
			m.docView.GotoTop()
		}

	case spinner.TickMsg:
		if m.loading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.docView, cmd = m.docView.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	var sections []string

	sections = append(sections, m.renderHeader())

	body := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderIndexList(),
		" ",
		m.renderDocPane(),
	)
	sections = append(sections, body)
	sections = append(sections, m.renderStatusBar())

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	}

	return appStyle.Render(strings.Join(sections, "\n"))
}

func (m Model) renderHeader() string {
	title := titleStyle.Render("docstore browser")
	path := lipgloss.NewStyle().
		Foreground(textSecondary).
		Render(m.database.Path())
	return lipgloss.JoinHorizontal(lipgloss.Left, title, "  ", path)
}

func (m Model) renderIndexList() string {
	var lines []string
	for i, name := range m.indexNames {
		label := fmt.Sprintf("%s (%d)", name, m.counts[name])
		label = base.PadString(base.TruncateString(label, 24), 24)
		if i == m.selected {
			lines = append(lines, indexSelectedStyle.Render(label))
		} else {
			lines = append(lines, indexItemStyle.Render(label))
		}
	}
	return indexListStyle.Render(strings.Join(lines, "\n"))
}

func (m Model) renderDocPane() string {
	if m.loading {
		return docPaneStyle.Render(m.spinner.View() + " loading documents...")
	}
	if m.lastError != nil {
		return docPaneStyle.Render(errorStyle.Render(" error ") + " " + m.lastError.Error())
	}
	return m.docView.View()
}

func (m Model) renderDocuments(docs []document.Document) string {
	if len(docs) == 0 {
		return lipgloss.NewStyle().Foreground(textMuted).Render("no documents")
	}

	var blocks []string
	for _, doc := range docs {
		pretty, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			continue
		}
		blocks = append(blocks, m.highlighter.Highlight(string(pretty)))
	}
	if m.docCount >= maxDocsShown {
		note := lipgloss.NewStyle().Foreground(textMuted).
			Render(fmt.Sprintf("showing first %d documents", maxDocsShown))
		blocks = append(blocks, note)
	}
	return strings.Join(blocks, "\n\n")
}

func (m Model) renderStatusBar() string {
	name := m.currentIndex()
	status := fmt.Sprintf("index: %s | documents: %d", name, m.docCount)
	if m.loadTime > 0 {
		status += fmt.Sprintf(" | loaded in %v", m.loadTime)
	}
	status += " | press ? for help"

	width := base.Max(m.width-4, 0)
	return statusBarStyle.Width(width).Render(status)
}

func (m Model) renderHelp() string {
	helpText := m.help.FullHelpView([][]key.Binding{
		{
			m.keys.NextIndex,
			m.keys.PrevIndex,
			m.keys.Refresh,
			m.keys.ScrollUp,
			m.keys.ScrollDown,
			m.keys.Help,
			m.keys.Quit,
		},
	})

	return lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(primaryColor).
		Padding(1, 2).
		Background(bgMedium).
		Render(helpText)
}

func (m Model) currentIndex() string {
	if m.selected >= 0 && m.selected < len(m.indexNames) {
		return m.indexNames[m.selected]
	}
	return database.PrimaryIndexName
}

// updateLayout adjusts component sizes based on window size
func (m *Model) updateLayout() {
	listWidth := 28
	m.docView.Width = base.Max(m.width-listWidth-8, 20)
	m.docView.Height = base.Max(m.height-8, 5)
}

type docsLoadedMsg struct {
	docs     []document.Document
	counts   map[string]uint64
	err      error
	duration time.Duration
}

// loadDocuments fetches the selected index's documents plus every index's
// live entry count off the UI goroutine.
func (m Model) loadDocuments() tea.Cmd {
	name := m.currentIndex()
	return func() tea.Msg {
		start := time.Now()

		counts := make(map[string]uint64)
		for _, idxName := range m.database.IndexesNames() {
			if n, err := m.database.Count(idxName); err == nil {
				counts[idxName] = n
			}
		}

		docs, err := m.database.All(name, true)
		if err == nil && len(docs) > maxDocsShown {
			docs = docs[:maxDocsShown]
		}

		return docsLoadedMsg{
			docs:     docs,
			counts:   counts,
			err:      err,
			duration: time.Since(start),
		}
	}
}
