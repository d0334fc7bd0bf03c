package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/protocol"
)

// Session is the part of a relay connection the chat screen drives.
type Session interface {
	Incoming() <-chan protocol.Envelope
	SendAIMessage(text string) error
	SetAIMode(enabled bool) error
}

type frameMsg protocol.Envelope

type disconnectedMsg struct{}

type sendErrMsg struct{ err error }

const (
	headerHeight = 1
	footerHeight = 3
)

// ChatModel is the bubbletea model for `callroom chat`.
type ChatModel struct {
	session Session
	agent   string

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	lines   []string
	aiMode  bool
	pending int
	clients int
	ready   bool
	closed  bool
}

// NewChatModel builds the chat screen. agent is only used as a label.
func NewChatModel(session Session, agent string) ChatModel {
	in := textinput.New()
	in.Placeholder = "type a message, /ai on, /ai off or /quit"
	in.Prompt = "› "
	in.CharLimit = 4000
	in.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	if agent == "" {
		agent = "AI"
	}

	return ChatModel{
		session:  session,
		agent:    agent,
		input:    in,
		viewport: viewport.New(80, 20),
		spinner:  s,
	}
}

func listen(ch <-chan protocol.Envelope) tea.Cmd {
	return func() tea.Msg {
		env, ok := <-ch
		if !ok {
			return disconnectedMsg{}
		}
		return frameMsg(env)
	}
}

func (m ChatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, listen(m.session.Incoming()))
}

func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-headerHeight-footerHeight, 1)
		m.input.Width = max(msg.Width-4, 10)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if line == "" {
				return m, nil
			}
			return m.submit(line)
		}

	case frameMsg:
		m.handleFrame(protocol.Envelope(msg))
		cmds = append(cmds, listen(m.session.Incoming()))
		if m.pending > 0 {
			cmds = append(cmds, m.spinner.Tick)
		}
		return m, tea.Batch(cmds...)

	case disconnectedMsg:
		m.closed = true
		m.pending = 0
		m.appendLine(ErrorStyle.Render("connection to relay closed"))
		return m, tea.Quit

	case sendErrMsg:
		m.appendLine(ErrorStyle.Render("send failed: " + msg.err.Error()))
		return m, nil

	case spinner.TickMsg:
		if m.pending == 0 {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m ChatModel) submit(line string) (tea.Model, tea.Cmd) {
	switch strings.ToLower(line) {
	case "/quit", "/exit":
		return m, tea.Quit
	case "/ai on":
		return m, m.send(func() error { return m.session.SetAIMode(true) })
	case "/ai off":
		return m, m.send(func() error { return m.session.SetAIMode(false) })
	}

	if !m.aiMode {
		m.appendLine(MutedStyle.Render("AI mode is off. Type /ai on first."))
		return m, nil
	}

	m.appendLine(YouStyle.Render("You: ") + line)
	m.pending++
	text := line
	return m, tea.Batch(m.send(func() error { return m.session.SendAIMessage(text) }), m.spinner.Tick)
}

func (m ChatModel) send(fn func() error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			return sendErrMsg{err: err}
		}
		return nil
	}
}

func (m *ChatModel) handleFrame(env protocol.Envelope) {
	switch env.Kind() {
	case protocol.KindConnectionStatus:
		if env.ClientCount != nil {
			m.clients = *env.ClientCount
		}
		m.ready = env.Ready != nil && *env.Ready
	case protocol.KindPeerDisconnected:
		m.appendLine(WarningStyle.Render(IconPeer + " peer disconnected"))
	case protocol.KindAIModeStatus:
		m.aiMode = env.Enabled != nil && *env.Enabled
		switch {
		case env.Error != "":
			m.appendLine(ErrorStyle.Render(env.Error))
		case m.aiMode:
			m.appendLine(SuccessStyle.Render(fmt.Sprintf("AI mode on. Talking to %s.", m.agent)))
		default:
			m.pending = 0
			m.appendLine(MutedStyle.Render("AI mode off."))
		}
	case protocol.KindAIResponse:
		m.settle()
		m.appendLine(AgentStyle.Render(m.agent+": ") + env.Message)
	case protocol.KindAIError:
		m.settle()
		m.appendLine(ErrorStyle.Render(env.Error))
	case protocol.KindError:
		m.appendLine(ErrorStyle.Render(env.Message))
	}
}

func (m *ChatModel) settle() {
	if m.pending > 0 {
		m.pending--
	}
}

func (m *ChatModel) appendLine(s string) {
	m.lines = append(m.lines, s)
	m.refresh()
}

func (m *ChatModel) refresh() {
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

func (m ChatModel) statusLine() string {
	mode := "AI off"
	if m.aiMode {
		mode = "AI on"
	}
	peer := "waiting for peer"
	if m.ready {
		peer = "call ready"
	}
	if m.closed {
		peer = "disconnected"
	}
	return fmt.Sprintf("%d/2 in room · %s · %s", m.clients, peer, mode)
}

func (m ChatModel) View() string {
	var b strings.Builder
	b.WriteString(StatusBarStyle.Render(TitleStyle.Render("callroom") + "  " + m.statusLine()))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	if m.pending > 0 {
		b.WriteString(m.spinner.View() + MutedStyle.Render(" "+m.agent+" is thinking..."))
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	return b.String()
}

// Lines returns the rendered transcript lines.
func (m ChatModel) Lines() []string { return m.lines }

func (m ChatModel) AIMode() bool { return m.aiMode }

func (m ChatModel) Pending() int { return m.pending }
