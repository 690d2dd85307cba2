// Package tui renders the todo list controller in the terminal.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vyrodovalexey/todo-sync/internal/controller"
	"github.com/vyrodovalexey/todo-sync/internal/locale"
	"github.com/vyrodovalexey/todo-sync/internal/model"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "160", Dark: "203"}).Bold(true)
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "130", Dark: "214"})
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "25", Dark: "75"}).Bold(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "240", Dark: "245"})
	inputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.AdaptiveColor{Light: "250", Dark: "238"}).
			Padding(0, 1)
)

// stateMsg carries a controller state change into the program.
type stateMsg struct {
	state controller.State
}

// intentMsg reports a finished intent. err is a controller error such as
// ErrBusy; store failures arrive as State.LastError. submitted is the input
// text an add was issued with.
type intentMsg struct {
	added     bool
	submitted string
	err       error
}

// Model is the bubbletea model for the todo list.
type Model struct {
	ctx   context.Context
	ctrl  *controller.Controller
	msgs  *locale.Messages
	keys  keyMap
	state controller.State

	input   textinput.Model
	edit    textinput.Model
	spinner spinner.Model
	cursor  int
	notice  string
	width   int
}

// New creates the model. The controller is activated by Init.
func New(ctx context.Context, ctrl *controller.Controller, msgs *locale.Messages) Model {
	input := textinput.New()
	input.Placeholder = msgs.Placeholder
	input.CharLimit = model.MaxTextLength
	input.Width = 50
	input.Prompt = "+ "
	input.Focus()

	edit := textinput.New()
	edit.CharLimit = model.MaxTextLength
	edit.Width = 50
	edit.Prompt = ""

	return Model{
		ctx:     ctx,
		ctrl:    ctrl,
		msgs:    msgs,
		keys:    defaultKeyMap(),
		state:   ctrl.State(),
		input:   input,
		edit:    edit,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

// Run activates ctrl, runs the program until the user quits, then
// deactivates ctrl.
func Run(ctx context.Context, ctrl *controller.Controller, msgs *locale.Messages) error {
	p := tea.NewProgram(New(ctx, ctrl, msgs), tea.WithAltScreen(), tea.WithContext(ctx))
	ctrl.OnChange(func(s controller.State) {
		p.Send(stateMsg{state: s})
	})
	defer ctrl.Deactivate()

	_, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running tui: %w", err)
	}
	return nil
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.activateCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		if w := msg.Width - 8; w > 10 {
			m.input.Width = w
			m.edit.Width = w
		}
		return m, nil

	case stateMsg:
		return m.applyState(msg.state), nil

	case intentMsg:
		m.notice = ""
		if msg.err != nil && !errors.Is(msg.err, controller.ErrBusy) {
			m.notice = msg.err.Error()
		}
		if msg.added && msg.err == nil && m.state.LastError == "" && m.input.Value() == msg.submitted {
			m.input.Reset()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		if m.state.EditingID != "" {
			return m.updateEditing(msg)
		}
		return m.updateBrowsing(msg)
	}

	return m, nil
}

func (m Model) updateBrowsing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		if m.state.LastError != "" || m.notice != "" {
			m.notice = ""
			return m, m.clearErrorCmd()
		}
		return m, tea.Quit
	case key.Matches(msg, m.keys.Add):
		if m.state.IsLoading {
			return m, nil
		}
		return m, m.addCmd(m.input.Value())
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.state.Items)-1 {
			m.cursor++
		}
		return m, nil
	case key.Matches(msg, m.keys.Edit):
		if item, ok := m.selected(); ok {
			return m, m.beginEditCmd(item.ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.Delete):
		if item, ok := m.selected(); ok {
			return m, m.deleteCmd(item.ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.Reconnect):
		return m, m.reconnectCmd()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		return m, m.cancelEditCmd()
	case key.Matches(msg, m.keys.Save):
		return m, m.commitCmd(m.edit.Value())
	}

	var cmd tea.Cmd
	m.edit, cmd = m.edit.Update(msg)
	return m, cmd
}

// applyState moves focus between the input and edit lines as the edited
// item changes.
func (m Model) applyState(s controller.State) Model {
	prev := m.state.EditingID
	m.state = s

	if s.EditingID != prev {
		if s.EditingID == "" {
			m.edit.Blur()
			m.input.Focus()
		} else {
			for _, item := range s.Items {
				if item.ID == s.EditingID {
					m.edit.SetValue(item.Text)
				}
			}
			m.edit.CursorEnd()
			m.edit.Focus()
			m.input.Blur()
		}
	}

	if m.cursor >= len(s.Items) {
		m.cursor = len(s.Items) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	return m
}

func (m Model) selected() (model.Item, bool) {
	if m.cursor < 0 || m.cursor >= len(m.state.Items) {
		return model.Item{}, false
	}
	return m.state.Items[m.cursor], true
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("todo"))
	b.WriteString("\n")
	b.WriteString(inputBoxStyle.Render(m.input.View()))
	b.WriteString("\n")

	if m.state.ConnectionLost {
		b.WriteString(warnStyle.Render(m.msgs.ConnectionLost))
		b.WriteString("\n")
	}
	if m.state.LastError != "" {
		b.WriteString(errorStyle.Render(m.state.LastError))
		b.WriteString("\n")
	}
	if m.notice != "" {
		b.WriteString(errorStyle.Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	for i, item := range m.state.Items {
		prefix := "  "
		text := item.Text
		if i == m.cursor {
			prefix = cursorStyle.Render("> ")
			text = cursorStyle.Render(text)
		}
		if item.ID == m.state.EditingID {
			text = m.edit.View()
		}
		b.WriteString(prefix)
		b.WriteString(text)
		b.WriteString("  ")
		b.WriteString(mutedStyle.Render(item.CreatedAt.Local().Format("Jan 2 15:04")))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	footer := m.msgs.Footer(len(m.state.Items))
	if m.state.IsLoading {
		footer = m.spinner.View() + " " + footer
	}
	b.WriteString(mutedStyle.Render(footer))
	b.WriteString("\n")

	help := m.msgs.Help
	if m.state.EditingID != "" {
		help = m.msgs.EditHelp
	}
	b.WriteString(mutedStyle.Render(help))
	b.WriteString("\n")

	return b.String()
}

func (m Model) activateCmd() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		err := ctrl.Activate(ctx)
		// Subscribe failures already show as the connection banner; only
		// misuse is reported as a notice.
		if errors.Is(err, controller.ErrAlreadyActive) {
			return intentMsg{err: err}
		}
		return intentMsg{}
	}
}

func (m Model) addCmd(text string) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		ctrl.SetPendingText(text)
		return intentMsg{added: true, submitted: text, err: ctrl.Add(ctx)}
	}
}

func (m Model) beginEditCmd(id string) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return intentMsg{err: ctrl.BeginEdit(id)}
	}
}

func (m Model) commitCmd(text string) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return intentMsg{err: ctrl.CommitEdit(ctx, text)}
	}
}

func (m Model) cancelEditCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctrl.CancelEdit()
		return intentMsg{}
	}
}

func (m Model) deleteCmd(id string) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return intentMsg{err: ctrl.Delete(ctx, id)}
	}
}

func (m Model) reconnectCmd() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		err := ctrl.Reconnect(ctx)
		// Subscribe failures already show as the connection banner; only
		// misuse is reported as a notice.
		if errors.Is(err, controller.ErrNotActive) {
			return intentMsg{err: err}
		}
		return intentMsg{}
	}
}

func (m Model) clearErrorCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctrl.ClearError()
		return intentMsg{}
	}
}
