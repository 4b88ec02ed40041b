// Package tui renders an analysis run in the terminal and lets the user
// rank, filter and reorder its results.
package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kalambet/cvsift/internal/match"
	"github.com/kalambet/cvsift/internal/results"
	"github.com/kalambet/cvsift/internal/run"
)

// Controller is the part of a run the view can drive.
type Controller interface {
	Snapshot() run.Snapshot
	SetSort(key results.SortKey)
	SetFilter(f results.Filter)
	MoveItem(filename string, dir results.Direction) (bool, error)
}

// Config holds what the header shows and how filter keys step.
type Config struct {
	Criteria string
	// MatchStep is how much + and - change the minimum overall match.
	MatchStep float64
}

type focusArea int

const (
	focusItems focusArea = iota
	focusResults
)

var (
	cTitle = lipgloss.NewStyle().Bold(true)
	cDim   = lipgloss.NewStyle().Faint(true)

	box = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1)

	headerBar = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, true, false).
			Padding(0, 1)

	badgeOK = lipgloss.NewStyle().
		Foreground(lipgloss.Color("10")).
		Bold(true)

	badgeRun = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	badgeWarn = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Bold(true)

	badgeErr = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	keyHint = lipgloss.NewStyle().Faint(true)
)

// tableChrome is the height a table spends on its header.
const tableChrome = 3

type snapshotMsg run.Snapshot

type feedClosedMsg struct{}

type model struct {
	width  int
	height int

	ctl     Controller
	updates <-chan run.Snapshot
	cfg     Config

	snap       run.Snapshot
	feedClosed bool
	notice     string

	prog    progress.Model
	spin    spinner.Model
	items   table.Model
	results table.Model
	skill   textinput.Model
	editing bool

	focus focusArea
}

func newModel(ctl Controller, updates <-chan run.Snapshot, cfg Config) model {
	if cfg.MatchStep <= 0 {
		cfg.MatchStep = 10
	}

	p := progress.New(progress.WithDefaultGradient())
	p.Width = 40

	s := spinner.New()
	s.Spinner = spinner.Dot

	items := table.New(
		table.WithColumns([]table.Column{
			{Title: "Document", Width: 36},
			{Title: "Status", Width: 11},
			{Title: "Progress", Width: 8},
			{Title: "Step", Width: 24},
		}),
		table.WithFocused(true),
	)
	res := table.New(table.WithColumns([]table.Column{
		{Title: "#", Width: 3},
		{Title: "Document", Width: 30},
		{Title: "Overall", Width: 7},
		{Title: "Skills", Width: 6},
		{Title: "Exp", Width: 5},
		{Title: "Edu", Width: 5},
		{Title: "Tech", Width: 5},
		{Title: "Soft", Width: 5},
		{Title: "Top skills", Width: 28},
	}))

	st := table.DefaultStyles()
	st.Header = st.Header.Bold(true)
	st.Selected = st.Selected.Bold(true)
	items.SetStyles(st)
	res.SetStyles(st)

	ti := textinput.New()
	ti.Placeholder = "skill, e.g. python"
	ti.Prompt = "skill> "
	ti.CharLimit = 64

	m := model{
		ctl:     ctl,
		updates: updates,
		cfg:     cfg,
		prog:    p,
		spin:    s,
		items:   items,
		results: res,
		skill:   ti,
		focus:   focusItems,
	}
	m.setSnapshot(ctl.Snapshot())
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spin.Tick,
		waitSnapshot(m.updates),
	)
}

func waitSnapshot(ch <-chan run.Snapshot) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return feedClosedMsg{}
		}
		return snapshotMsg(s)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case spinner.TickMsg:
		if m.snap.Phase.Done() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.prog.Width = clamp(m.width-12, 20, 90)

		cols := m.items.Columns()
		cols[0].Width = clamp(m.width-60, 20, 60)
		m.items.SetColumns(cols)

		cols = m.results.Columns()
		cols[1].Width = clamp(m.width-90, 16, 48)
		m.results.SetColumns(cols)

		avail := maxInt(6, m.height-14)
		m.items.SetHeight(minInt(avail/2, len(m.snap.Items)+tableChrome))
		m.results.SetHeight(maxInt(4, avail/2))
		return m, nil

	case snapshotMsg:
		m.setSnapshot(run.Snapshot(msg))
		return m, waitSnapshot(m.updates)

	case feedClosedMsg:
		m.feedClosed = true
		return m, nil

	case tea.KeyMsg:
		if m.editing {
			return m.updateFilterInput(msg)
		}
		return m.updateKeys(msg)

	default:
		return m, nil
	}
}

func (m model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "tab":
		m.setFocus(1 - m.focus)
		return m, nil
	case "s":
		m.ctl.SetSort(m.snap.SortKey.Next())
		m.refresh()
		return m, nil
	case "/":
		m.editing = true
		m.skill.SetValue(m.snap.Filter.Skill)
		m.skill.CursorEnd()
		cmd := m.skill.Focus()
		return m, cmd
	case "+", "=":
		m.stepMinMatch(m.cfg.MatchStep)
		return m, nil
	case "-", "_":
		m.stepMinMatch(-m.cfg.MatchStep)
		return m, nil
	case "K", "shift+up":
		m.move(results.Up)
		return m, nil
	case "J", "shift+down":
		m.move(results.Down)
		return m, nil
	}

	var cmd tea.Cmd
	if m.focus == focusItems {
		m.items, cmd = m.items.Update(msg)
	} else {
		m.results, cmd = m.results.Update(msg)
	}
	return m, cmd
}

func (m model) updateFilterInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		f := m.snap.Filter
		f.Skill = strings.TrimSpace(m.skill.Value())
		m.ctl.SetFilter(f)
		m.editing = false
		m.skill.Blur()
		m.refresh()
		return m, nil
	case "esc":
		m.editing = false
		m.skill.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.skill, cmd = m.skill.Update(msg)
	return m, cmd
}

func (m *model) stepMinMatch(delta float64) {
	f := m.snap.Filter
	f.MinOverallMatch = min(100, max(0, f.MinOverallMatch+delta))
	m.ctl.SetFilter(f)
	m.refresh()
}

func (m *model) move(dir results.Direction) {
	if m.focus != focusResults || len(m.snap.Results) == 0 {
		m.notice = "select a result first (tab)"
		return
	}
	i := m.results.Cursor()
	if i < 0 || i >= len(m.snap.Results) {
		return
	}
	name := m.snap.Results[i].Filename
	moved, err := m.ctl.MoveItem(name, dir)
	switch {
	case err != nil:
		m.notice = err.Error()
		return
	case !moved:
		m.notice = name + " is already at the " + edge(dir)
	case m.snap.SortKey != results.SortManual:
		m.notice = "moved " + name + "; it only shows where scores tie, press s until manual"
	default:
		m.notice = "moved " + name + " " + dir.String()
	}
	m.refresh()
	for j, r := range m.snap.Results {
		if r.Filename == name {
			m.results.SetCursor(j)
			break
		}
	}
}

func edge(dir results.Direction) string {
	if dir == results.Up {
		return "top"
	}
	return "bottom"
}

func (m *model) setFocus(f focusArea) {
	m.focus = f
	if f == focusItems {
		m.items.Focus()
		m.results.Blur()
	} else {
		m.results.Focus()
		m.items.Blur()
	}
}

func (m *model) refresh() {
	m.setSnapshot(m.ctl.Snapshot())
}

func (m *model) setSnapshot(s run.Snapshot) {
	hadResults := m.snap.HasResults
	m.snap = s

	rows := make([]table.Row, 0, len(s.Items))
	for _, it := range s.Items {
		rows = append(rows, table.Row{
			it.Filename,
			strings.ToUpper(string(it.Status)),
			fmt.Sprintf("%3.0f%%", it.Progress),
			it.CurrentStep,
		})
	}
	m.items.SetRows(rows)
	if m.height == 0 {
		m.items.SetHeight(minInt(14, len(rows)+tableChrome))
	}

	rrows := make([]table.Row, 0, len(s.Results))
	for i, r := range s.Results {
		rrows = append(rrows, table.Row{
			strconv.Itoa(i + 1),
			r.Filename,
			score(r.OverallMatch),
			score(r.SkillsMatch),
			score(r.ExperienceMatch),
			score(r.EducationMatch),
			score(r.TechnicalSkillsScore),
			score(r.SoftSkillsScore),
			topSkills(r, 3),
		})
	}
	m.results.SetRows(rrows)
	if m.height == 0 {
		m.results.SetHeight(minInt(14, maxInt(len(rrows), 1)+tableChrome))
	}

	// Move focus to the results the first time they arrive.
	if s.HasResults && !hadResults {
		m.setFocus(focusResults)
	}
}

func score(v float64) string {
	return strconv.FormatFloat(v, 'f', 0, 64)
}

func topSkills(r match.MatchResult, n int) string {
	names := make([]string, 0, n)
	for _, s := range r.SkillBreakdown {
		if s.Level == match.LevelMissing {
			continue
		}
		names = append(names, s.SkillName)
		if len(names) == n {
			break
		}
	}
	return strings.Join(names, ", ")
}

func (m model) View() string {
	header := headerBar.Width(maxInt(0, m.width-2)).Render(m.headerView())

	bar := m.prog.ViewAs(float64(m.snap.Overall.Percent) / 100)
	stats := fmt.Sprintf("Overall %s %d%%  Documents %d  Diagnostics %d  Elapsed %s",
		strings.ToUpper(string(m.snap.Overall.Status)),
		m.snap.Overall.Percent,
		len(m.snap.Items),
		m.snap.Diagnostics,
		m.elapsed())

	itemsBox := box.Render(cTitle.Render("Documents") + "\n" + m.items.View())

	parts := []string{header, "", bar, cDim.Render(stats), "", itemsBox}

	if m.snap.HasResults {
		title := cTitle.Render(fmt.Sprintf("Results %d/%d", len(m.snap.Results), m.snap.Total))
		settings := cDim.Render(fmt.Sprintf("sort=%s  min=%s  skill=%s",
			m.snap.SortKey, score(m.snap.Filter.MinOverallMatch), orDash(m.snap.Filter.Skill)))
		body := m.results.View()
		if len(m.snap.Results) == 0 {
			body = cDim.Render("no result matches the current filter")
		}
		parts = append(parts, "", box.Render(title+"  "+settings+"\n"+body))
	}

	if m.editing {
		parts = append(parts, "", m.skill.View())
	}
	if e := m.snap.Err; e != nil {
		parts = append(parts, "", badgeErr.Render("ERROR: "+errorText(e)))
	}
	for _, w := range m.snap.Warnings {
		parts = append(parts, badgeWarn.Render("WARN: "+w))
	}
	if m.notice != "" {
		parts = append(parts, "", cDim.Render(m.notice))
	}

	parts = append(parts, "", keyHint.Render(m.hint()))
	return strings.Join(parts, "\n")
}

func (m model) headerView() string {
	var badge string
	switch m.snap.Phase {
	case run.PhaseCompleted:
		badge = badgeOK.Render(" DONE ")
	case run.PhaseFailed:
		badge = badgeErr.Render(" FAILED ")
	default:
		badge = badgeRun.Render(" " + m.spin.View() + " ANALYZING ")
	}
	left := cTitle.Render("cvsift") + " " + badge
	right := cDim.Render("criteria: " + truncate(oneLine(m.cfg.Criteria), maxInt(20, m.width-16)))
	return left + "\n" + right
}

func (m model) elapsed() time.Duration {
	if m.snap.Started.IsZero() {
		return 0
	}
	end := m.snap.Finished
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(m.snap.Started).Truncate(100 * time.Millisecond)
}

func (m model) hint() string {
	if m.editing {
		return "Keys: enter apply | esc cancel"
	}
	if !m.snap.HasResults {
		return "Keys: ↑/↓ scroll | q quit"
	}
	return "Keys: tab focus | s sort | / skill | +/- min match | K/J move | q quit"
}

// errorText shows the service's own message verbatim.
func errorText(e *run.Error) string {
	if e.Kind == run.KindApplication {
		return e.Message
	}
	return e.Error()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
