// Package tui is the terminal front-end of moodcam: a bubbletea model that
// drives a session controller and browses the history store.
package tui

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/muesli/reflow/truncate"

	"github.com/teslashibe/go-moodcam/pkg/emotions"
	"github.com/teslashibe/go-moodcam/pkg/session"
	"github.com/teslashibe/go-moodcam/pkg/store"

	tea "github.com/charmbracelet/bubbletea"
)

const (
	historyLimit      = 20
	defaultStatsDays  = 7
	noticeTimeout     = 3 * time.Second
	eventBuffer       = 64
	maxNotesLen       = 280
	notesPreviewWidth = 40
)

// Tab is one of the views.
type Tab int

const (
	TabLive Tab = iota
	TabLog
	TabHistory
	TabStats
	tabCount
)

func (t Tab) String() string {
	switch t {
	case TabLive:
		return "Live"
	case TabLog:
		return "Log"
	case TabHistory:
		return "History"
	case TabStats:
		return "Trends"
	default:
		return "?"
	}
}

// Controller is the session controller driven by the TUI.
type Controller interface {
	Start(ctx context.Context) error
	Stop()
	Reset()
	Save(ctx context.Context, notes string) (store.Entry, error)
	Status() session.Status
}

// Source publishes controller events.
type Source interface {
	OnState(fn func(session.Status)) func()
	OnObservation(fn func(emotions.Observation)) func()
}

// Subscribe forwards controller events into a channel the model reads.
// Events are dropped rather than blocking the controller when the UI falls
// behind; the next status carries the full picture.
func Subscribe(src Source) (<-chan tea.Msg, func()) {
	ch := make(chan tea.Msg, eventBuffer)
	send := func(msg tea.Msg) {
		select {
		case ch <- msg:
		default:
		}
	}
	unState := src.OnState(func(st session.Status) { send(StatusMsg{Status: st}) })
	unObs := src.OnObservation(func(o emotions.Observation) { send(ObservationMsg{Observation: o}) })
	return ch, func() {
		unState()
		unObs()
	}
}

// Options configures a Model.
type Options struct {
	Controller Controller
	History    store.History
	Vocabulary *emotions.Registry
	UserID     string
	Events     <-chan tea.Msg
	StatsDays  int
}

// Model is the root bubbletea model.
type Model struct {
	ctrl    Controller
	history store.History
	vocab   []emotions.Emotion
	icons   map[string]emotions.Emotion
	userID  string
	events  <-chan tea.Msg
	ctx     context.Context

	// Session
	status   session.Status
	obs      emotions.Observation
	hasObs   bool
	starting bool
	saving   bool

	// Notes entry before saving
	editingNotes bool
	notes        textinput.Model

	// Views
	tab        Tab
	vocabIndex int
	entries    []store.Entry
	stats      store.Stats
	statsDays  int

	// UI state
	width  int
	height int

	errorMessage string
	notice       string
	noticeSeq    int
}

// New creates a Model.
func New(opts Options) Model {
	vocab := opts.Vocabulary
	if vocab == nil {
		vocab = emotions.DefaultRegistry()
	}
	all := vocab.All()
	icons := make(map[string]emotions.Emotion, len(all))
	for _, e := range all {
		icons[e.Name] = e
	}
	days := opts.StatsDays
	if days <= 0 {
		days = defaultStatsDays
	}

	notes := textinput.New()
	notes.Prompt = "Notes: "
	notes.Placeholder = "optional"
	notes.CharLimit = maxNotesLen

	m := Model{
		ctrl:      opts.Controller,
		notes:     notes,
		history:   opts.History,
		vocab:     all,
		icons:     icons,
		userID:    opts.UserID,
		events:    opts.Events,
		ctx:       context.Background(),
		statsDays: days,
	}
	if m.ctrl != nil {
		m.applyStatus(m.ctrl.Status())
	}
	return m
}

// Init starts listening for controller events.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

// waitForEvent reads the next controller event.
func waitForEvent(ch <-chan tea.Msg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func (m Model) startCmd() tea.Cmd {
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		return StartResultMsg{Err: ctrl.Start(ctx)}
	}
}

func (m Model) saveCmd(notes string) tea.Cmd {
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		entry, err := ctrl.Save(ctx, notes)
		return SaveResultMsg{Entry: entry, Err: err}
	}
}

func (m Model) logCmd(e emotions.Emotion) tea.Cmd {
	history, ctx, user := m.history, m.ctx, m.userID
	return func() tea.Msg {
		entry := store.Entry{
			ID:         uuid.NewString(),
			UserID:     user,
			Emotion:    e.Name,
			Confidence: store.DefaultManualConfidence,
			Source:     store.SourceManual,
			Timestamp:  time.Now(),
		}
		return LoggedMsg{Entry: entry, Err: history.Save(ctx, entry)}
	}
}

func (m Model) loadHistoryCmd() tea.Cmd {
	if m.history == nil {
		return nil
	}
	history, ctx, user := m.history, m.ctx, m.userID
	return func() tea.Msg {
		entries, err := history.List(ctx, user, historyLimit)
		return HistoryLoadedMsg{Entries: entries, Err: err}
	}
}

func (m Model) loadStatsCmd() tea.Cmd {
	if m.history == nil {
		return nil
	}
	history, ctx, user, days := m.history, m.ctx, m.userID, m.statsDays
	return func() tea.Msg {
		st, err := store.StatsFor(ctx, history, user, days, time.Now())
		return StatsLoadedMsg{Stats: st, Err: err}
	}
}

func clearNoticeCmd(seq int) tea.Cmd {
	return tea.Tick(noticeTimeout, func(time.Time) tea.Msg {
		return ClearNoticeMsg{Seq: seq}
	})
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case StatusMsg:
		m.applyStatus(msg.Status)
		return m, waitForEvent(m.events)

	case ObservationMsg:
		if m.status.State == session.Capturing || m.status.State == session.CapturePending {
			m.obs, m.hasObs = msg.Observation, true
		}
		return m, waitForEvent(m.events)

	case StartResultMsg:
		m.starting = false
		if msg.Err != nil && !errors.Is(msg.Err, session.ErrCancelled) {
			m.errorMessage = msg.Err.Error()
		}
		m.applyStatus(m.ctrl.Status())
		return m, nil

	case SaveResultMsg:
		m.saving = false
		if msg.Err != nil {
			// The session is untouched on failure; keep the notes for a retry.
			m.errorMessage = "Save failed: " + msg.Err.Error() + " (enter to retry)"
			return m, nil
		}
		m.editingNotes = false
		m.notes.Reset()
		m.notes.Blur()
		m.errorMessage = ""
		m.applyStatus(m.ctrl.Status())
		return m.setNotice(fmt.Sprintf("Saved %s (%s)", msg.Entry.Emotion, emotions.Percent(msg.Entry.Confidence)))

	case LoggedMsg:
		if msg.Err != nil {
			m.errorMessage = "Log failed: " + msg.Err.Error()
			return m, nil
		}
		m.errorMessage = ""
		return m.setNotice("Logged " + msg.Entry.Emotion)

	case HistoryLoadedMsg:
		if msg.Err != nil {
			m.errorMessage = msg.Err.Error()
			return m, nil
		}
		m.entries = msg.Entries
		return m, nil

	case StatsLoadedMsg:
		if msg.Err != nil {
			m.errorMessage = msg.Err.Error()
			return m, nil
		}
		m.stats = msg.Stats
		return m, nil

	case ClearNoticeMsg:
		if msg.Seq == m.noticeSeq {
			m.notice = ""
		}
		return m, nil
	}

	// Cursor blinks and similar input plumbing.
	if m.editingNotes {
		var cmd tea.Cmd
		m.notes, cmd = m.notes.Update(msg)
		return m, cmd
	}
	return m, nil
}

// applyStatus mirrors a controller snapshot.
func (m *Model) applyStatus(st session.Status) {
	m.status = st
	if st.Observation != nil {
		m.obs, m.hasObs = *st.Observation, true
	} else {
		m.obs, m.hasObs = emotions.Observation{}, false
		m.editingNotes = false
		m.notes.Blur()
	}
	if st.State == session.Error && st.Message != "" {
		m.errorMessage = st.Message
	}
}

func (m Model) setNotice(text string) (tea.Model, tea.Cmd) {
	m.noticeSeq++
	m.notice = text
	return m, clearNoticeCmd(m.noticeSeq)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.editingNotes {
		return m.handleNotesKey(msg)
	}

	switch msg.String() {
	case KeyQuit, KeyQuitUpper, KeyCtrlC:
		if m.ctrl != nil {
			m.ctrl.Stop()
		}
		return m, tea.Quit

	case KeyTab:
		return m.switchTab((m.tab + 1) % tabCount)

	case KeyShiftTab:
		return m.switchTab((m.tab + tabCount - 1) % tabCount)

	case KeyStart:
		if m.tab != TabLive || m.starting {
			return m, nil
		}
		m.errorMessage = ""
		m.starting = true
		return m, m.startCmd()

	case KeyStop:
		m.ctrl.Stop()
		m.applyStatus(m.ctrl.Status())
		return m, nil

	case KeyReset:
		m.ctrl.Reset()
		m.errorMessage = ""
		m.applyStatus(m.ctrl.Status())
		return m, nil

	case KeyUp, KeyK:
		if m.tab == TabLog && m.vocabIndex > 0 {
			m.vocabIndex--
		}
		return m, nil

	case KeyDown, KeyJ:
		if m.tab == TabLog && m.vocabIndex < len(m.vocab)-1 {
			m.vocabIndex++
		}
		return m, nil

	case KeyEnter:
		switch m.tab {
		case TabLive:
			if m.hasObs {
				m.editingNotes = true
				return m, m.notes.Focus()
			}
		case TabLog:
			if m.history != nil && len(m.vocab) > 0 {
				return m, m.logCmd(m.vocab[m.vocabIndex])
			}
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleNotesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.ctrl.Stop()
		return m, tea.Quit
	case tea.KeyEsc:
		m.editingNotes = false
		m.notes.Blur()
		return m, nil
	case tea.KeyEnter:
		if m.saving {
			return m, nil
		}
		m.saving = true
		return m, m.saveCmd(strings.TrimSpace(m.notes.Value()))
	}
	var cmd tea.Cmd
	m.notes, cmd = m.notes.Update(msg)
	return m, cmd
}

func (m Model) switchTab(t Tab) (tea.Model, tea.Cmd) {
	m.tab = t
	switch t {
	case TabHistory:
		return m, m.loadHistoryCmd()
	case TabStats:
		return m, m.loadStatsCmd()
	}
	return m, nil
}

// View renders the UI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderTabs())
	sections = append(sections, DividerStyle.Render(strings.Repeat("─", m.width)))

	switch m.tab {
	case TabLive:
		sections = append(sections, m.renderLive())
	case TabLog:
		sections = append(sections, m.renderLog())
	case TabHistory:
		sections = append(sections, m.renderHistory())
	case TabStats:
		sections = append(sections, m.renderStats())
	}

	sections = append(sections, DividerStyle.Render(strings.Repeat("─", m.width)))
	if m.errorMessage != "" {
		sections = append(sections, ErrorStyle.Render("✗ "+m.errorMessage))
	}
	if m.notice != "" {
		sections = append(sections, NoticeStyle.Render("✓ "+m.notice))
	}
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := TitleStyle.Render("MOODCAM")
	state := m.status.State.String()
	badge := stateStyle(state).Render(" ● " + strings.ReplaceAll(state, "_", " "))
	if m.starting && m.status.State == session.Idle {
		badge = stateStyle("starting").Render(" ● starting")
	}
	return title + badge
}

func (m Model) renderTabs() string {
	var tabs []string
	for t := TabLive; t < tabCount; t++ {
		if t == m.tab {
			tabs = append(tabs, ActiveTabStyle.Render(t.String()))
		} else {
			tabs = append(tabs, TabStyle.Render(t.String()))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m Model) renderLive() string {
	var b strings.Builder

	switch m.status.State {
	case session.Idle:
		b.WriteString(DimStyle.Render("Press s to start detection."))
	case session.ModelsLoading:
		b.WriteString("Loading face models...")
	case session.Ready, session.CapturePending:
		b.WriteString("Waiting for the camera...")
	case session.Error:
		b.WriteString(ErrorStyle.Render(m.status.Message))
		b.WriteString("\n")
		b.WriteString(DimStyle.Render("Press r to reset."))
	case session.Capturing:
		if !m.hasObs {
			b.WriteString("Looking for a face...")
			break
		}
		e := m.icons[m.obs.Emotion]
		label := strings.TrimSpace(e.Icon + " " + m.obs.Emotion)
		b.WriteString(emotionStyle(e.Color).Render(label))
		b.WriteString(" ")
		b.WriteString(emotions.Percent(m.obs.Confidence))
		b.WriteString(DimStyle.Render("  (" + m.obs.Category + ")"))
	}

	if m.status.State == session.Capturing {
		loop := m.status.Loop
		b.WriteString("\n")
		b.WriteString(DimStyle.Render(fmt.Sprintf("ticks %d · skipped %d · failed %d · discarded %d",
			loop.Ticks, loop.Skipped, loop.Failed, loop.Discarded)))
	}

	if m.editingNotes {
		b.WriteString("\n\n")
		b.WriteString(m.notes.View())
	}
	return b.String()
}

func (m Model) renderLog() string {
	var b strings.Builder
	b.WriteString(DimStyle.Render("How are you feeling?"))
	for i, e := range m.vocab {
		b.WriteString("\n")
		line := fmt.Sprintf("%s %-11s %s", e.Icon, e.Name, DimStyle.Render(e.Description))
		if i == m.vocabIndex {
			b.WriteString(SelectedStyle.Render("› ") + line)
		} else {
			b.WriteString("  " + line)
		}
	}
	return b.String()
}

func (m Model) renderHistory() string {
	if len(m.entries) == 0 {
		return DimStyle.Render("No entries yet.")
	}
	lines := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		icon := m.icons[e.Emotion].Icon
		line := fmt.Sprintf("%s  %s %-11s %4s  %s",
			e.Timestamp.Local().Format("Jan 02 15:04"), icon, e.Emotion,
			emotions.Percent(e.Confidence), DimStyle.Render(e.Source))
		if e.Notes != "" {
			line += "  " + truncate.StringWithTail(e.Notes, notesPreviewWidth, "…")
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderStats() string {
	st := m.stats
	if st.Total == 0 {
		return DimStyle.Render(fmt.Sprintf("No entries in the last %d days.", m.statsDays))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Last %d days: %d entries · most frequent %s · avg confidence %s\n",
		m.statsDays, st.Total, st.TopEmotion, emotions.Percent(st.AverageConfidence))

	names := make([]string, 0, len(st.ByEmotion))
	for name := range st.ByEmotion {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ci, cj := st.ByEmotion[names[i]], st.ByEmotion[names[j]]
		if ci != cj {
			return ci > cj
		}
		return names[i] < names[j]
	})

	barWidth := 30
	for _, name := range names {
		n := st.ByEmotion[name]
		w := n * barWidth / st.Total
		if w == 0 {
			w = 1
		}
		e := m.icons[name]
		fmt.Fprintf(&b, "\n%-11s %s %d", name, emotionStyle(e.Color).Render(strings.Repeat("█", w)), n)
	}

	if len(st.ByDay) > 0 {
		b.WriteString("\n")
		for _, d := range st.ByDay {
			fmt.Fprintf(&b, "\n%s  %s", DimStyle.Render(d.Day), strings.Repeat("•", d.Count))
		}
	}
	return b.String()
}

func (m Model) renderFooter() string {
	var keys string
	switch {
	case m.editingNotes:
		keys = "enter save · esc cancel"
	case m.tab == TabLive:
		keys = "s start · x stop · enter save · r reset · tab views · q quit"
	case m.tab == TabLog:
		keys = "↑/↓ choose · enter log · tab views · q quit"
	default:
		keys = "tab views · q quit"
	}
	return DimStyle.Render(keys)
}
