// Package tui is a terminal front end for a single conversation.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/zhouzirui/promptdesk/internal/model/catalog"
	"github.com/zhouzirui/promptdesk/internal/model/chat"
	"github.com/zhouzirui/promptdesk/internal/service/ai"
	chatService "github.com/zhouzirui/promptdesk/internal/service/chat"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00f5d4"))
	userStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00f5d4")).MarginLeft(2)
	botStyle    = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#00f5d4")).Padding(0, 1)
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff6b6b"))
	helpStyle   = lipgloss.NewStyle().Faint(true)
)

// responseMsg reports the end of a submission.
type responseMsg struct {
	err error
}

// Model is the bubbletea model of the chat screen.
type Model struct {
	conversation *chatService.Conversation
	models       []catalog.Model
	modelIdx     int
	apiKey       string

	input    textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	markdown *glamour.TermRenderer

	pending bool
	notice  string
	width   int
	height  int
}

// Option configures a Model.
type Option func(*Model)

// WithMarkdown renders bot replies with glamour.
func WithMarkdown(r *glamour.TermRenderer) Option {
	return func(m *Model) {
		m.markdown = r
	}
}

// New returns a chat screen bound to conversation. modelID selects the initial
// entry of models; unknown ids fall back to the first entry.
func New(conversation *chatService.Conversation, models []catalog.Model, modelID, apiKey string, opts ...Option) Model {
	input := textarea.New()
	input.Placeholder = "Type your question here..."
	input.ShowLineNumbers = false
	input.SetHeight(3)
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	m := Model{
		conversation: conversation,
		models:       models,
		apiKey:       apiKey,
		input:        input,
		viewport:     viewport.New(80, 20),
		spinner:      spin,
	}
	for i, model := range models {
		if model.ID == modelID {
			m.modelIdx = i
		}
	}
	for _, o := range opts {
		o(&m)
	}
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.SetWidth(msg.Width)
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-m.input.Height()-5, 3)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyTab:
			if !m.pending && len(m.models) > 0 {
				m.modelIdx = (m.modelIdx + 1) % len(m.models)
			}
			return m, nil
		case tea.KeyCtrlL:
			if !m.pending {
				m.conversation.Reset()
				m.notice = ""
				m.refresh()
			}
			return m, nil
		case tea.KeyEnter:
			if m.pending {
				return m, nil
			}
			req := chatService.Request{Prompt: m.input.Value(), ModelID: m.ModelID(), APIKey: m.apiKey}
			m.input.Reset()
			m.pending = true
			m.notice = ""
			return m, tea.Batch(m.spinner.Tick, m.submit(req))
		}

	case responseMsg:
		m.pending = false
		if msg.err != nil {
			m.notice = noticeText(msg.err)
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.pending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("AI Chat Assistant"))
	b.WriteString("  ")
	b.WriteString(helpStyle.Render("model: " + m.ModelID()))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	switch {
	case m.pending:
		b.WriteString(m.spinner.View() + " Generating response...")
	case m.notice != "":
		b.WriteString(noticeStyle.Render(m.notice))
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter: send • tab: next model • ctrl+l: clear • esc: quit"))
	return b.String()
}

// ModelID returns the selected model.
func (m Model) ModelID() string {
	if len(m.models) == 0 {
		return ""
	}
	return m.models[m.modelIdx].ID
}

// Pending reports whether a submission is in flight.
func (m Model) Pending() bool {
	return m.pending
}

// Notice returns the message shown for the last failed submission.
func (m Model) Notice() string {
	return m.notice
}

func (m Model) submit(req chatService.Request) tea.Cmd {
	conversation := m.conversation
	return func() tea.Msg {
		return responseMsg{err: conversation.Submit(context.Background(), req)}
	}
}

// refresh redraws the conversation into the viewport.
func (m *Model) refresh() {
	var b strings.Builder
	for turn := range m.conversation.Render() {
		b.WriteString(m.renderTurn(turn))
		b.WriteString("\n")
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m *Model) renderTurn(turn chat.Turn) string {
	if turn.Role == chat.RoleUser {
		return userStyle.Render("You: " + turn.Content)
	}

	content := turn.Content
	if m.markdown != nil {
		if rendered, err := m.markdown.Render(content); err == nil {
			content = strings.TrimSpace(rendered)
		}
	}
	return botStyle.Render(content)
}

func noticeText(err error) string {
	var aiErr *ai.Error
	switch {
	case errors.Is(err, chatService.ErrMissingCredential):
		return "Client is not initialized. Provide a valid API key with --api-key."
	case errors.Is(err, chatService.ErrEmptyPrompt):
		return "Please enter a prompt."
	case errors.As(err, &aiErr):
		return fmt.Sprintf("Error from %s API: %s", providerName(aiErr.Provider), aiErr.Message)
	default:
		return err.Error()
	}
}

func providerName(provider string) string {
	if provider == "" {
		return "model service"
	}
	return provider
}
