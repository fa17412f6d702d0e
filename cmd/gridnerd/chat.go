package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gridnerd/internal/agent"
	"gridnerd/internal/tools"
	"gridnerd/internal/ux"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive session (default)",
	Long: `Interactive session. Plain input is planned and executed against the workbook.

Commands:
  /ask <question>   answer without changing the workbook
  /exec <json>      execute one command
  /connect          reconnect to the workbook
  /health           show service health
  /clear            clear the history
  /quit             exit`,
	RunE: runChat,
}

const chatHelp = "Commands: `/ask <question>`, `/exec <json>`, `/connect`, `/health`, `/clear`, `/quit`. " +
	"Anything else is run as a task against the workbook."

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := serverContext(cmd)
	defer cancel()

	a, err := newAgent(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	m := newChatModel(ctx, a, timeout)
	m.connect()
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

// chatEntry is one rendered exchange in the history.
type chatEntry struct {
	input  string
	output string
}

// chatResultMsg carries a finished request back to the UI loop.
type chatResultMsg struct {
	output string
}

type chatModel struct {
	ctx     context.Context
	agent   *agent.Agent
	timeout time.Duration

	styles   ux.Styles
	textarea textarea.Model
	spinner  spinner.Model
	viewport viewport.Model

	history []chatEntry
	status  string
	busy    bool
	width   int
}

func newChatModel(ctx context.Context, a *agent.Agent, timeout time.Duration) *chatModel {
	styles := ux.DefaultStyles()

	ta := textarea.New()
	ta.Placeholder = "Describe a task, or /ask a question... (Enter to send, Ctrl+C to exit)"
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Title

	return &chatModel{
		ctx:      ctx,
		agent:    a,
		timeout:  timeout,
		styles:   styles,
		textarea: ta,
		spinner:  sp,
		viewport: viewport.New(80, 20),
		width:    80,
	}
}

func (m *chatModel) connect() {
	status := m.agent.Connect(m.ctx)
	m.status = strings.TrimSpace(ux.RenderConnection(m.styles, status))
}

func (m *chatModel) Init() tea.Cmd {
	return textarea.Blink
}

func (m *chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.textarea.SetWidth(msg.Width - 2)
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-m.textarea.Height()-4, 3)
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.busy {
				return m, nil
			}
			input := strings.TrimSpace(m.textarea.Value())
			m.textarea.Reset()
			if input == "" {
				return m, nil
			}
			return m, m.submit(input)
		}

	case chatResultMsg:
		m.busy = false
		if n := len(m.history); n > 0 {
			m.history[n-1].output = msg.output
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submit handles slash commands inline and starts a request for everything else.
func (m *chatModel) submit(input string) tea.Cmd {
	word, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch word {
	case "/quit", "/exit":
		return tea.Quit
	case "/clear":
		m.history = nil
		m.refresh()
		return nil
	case "/help":
		m.append(input, ux.RenderMarkdown(chatHelp, m.width-4))
		return nil
	case "/connect":
		m.connect()
		m.append(input, m.status)
		return nil
	}

	m.append(input, "")
	m.busy = true
	return tea.Batch(m.spinner.Tick, m.request(word, rest, input))
}

// request runs the agent call off the UI loop.
func (m *chatModel) request(word, rest, input string) tea.Cmd {
	a, styles, width := m.agent, m.styles, m.width
	return func() tea.Msg {
		ctx, cancel := m.requestContext()
		defer cancel()
		return chatResultMsg{output: dispatchChat(ctx, a, styles, width, word, rest, input)}
	}
}

func (m *chatModel) requestContext() (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(m.ctx)
	}
	return context.WithTimeout(m.ctx, m.timeout)
}

// dispatchChat performs one chat request and renders its outcome.
func dispatchChat(ctx context.Context, a *agent.Agent, styles ux.Styles, width int, word, rest, input string) string {
	switch word {
	case "/ask":
		if rest == "" {
			return styles.Error.Render("usage: /ask <question>")
		}
		answer, err := a.AnswerQuery(ctx, rest, nil, nil)
		if err != nil {
			return styles.Error.Render(err.Error())
		}
		return ux.RenderMarkdown(answer, width-4)
	case "/exec":
		var command tools.Command
		if err := json.Unmarshal([]byte(rest), &command); err != nil {
			return styles.Error.Render(fmt.Sprintf("invalid command JSON: %v", err))
		}
		return ux.RenderResult(styles, a.ExecuteCommand(ctx, command))
	case "/health":
		return ux.RenderHealth(styles, a.CheckHealth(ctx))
	default:
		return ux.RenderReport(styles, a.RunAutonomousQuery(ctx, input, nil, nil))
	}
}

func (m *chatModel) append(input, output string) {
	m.history = append(m.history, chatEntry{input: input, output: output})
	m.refresh()
}

func (m *chatModel) refresh() {
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

func (m *chatModel) renderHistory() string {
	var sb strings.Builder
	for _, e := range m.history {
		sb.WriteString(m.styles.Prompt.Render("› "))
		sb.WriteString(e.input)
		sb.WriteString("\n")
		if e.output != "" {
			sb.WriteString(e.output)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func (m *chatModel) View() string {
	var sb strings.Builder
	sb.WriteString(m.styles.Header.Render("gridNERD"))
	sb.WriteString(" ")
	sb.WriteString(m.status)
	sb.WriteString("\n")
	sb.WriteString(m.viewport.View())
	sb.WriteString("\n")
	if m.busy {
		sb.WriteString(m.spinner.View())
		sb.WriteString(" working...\n")
	}
	sb.WriteString(m.textarea.View())
	return sb.String()
}
