package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kirillkom/campus-assistant/internal/core/domain"
	"github.com/kirillkom/campus-assistant/internal/core/ports"
)

const (
	Title       = "목포해양대생을 위한 챗봇 - 뮤톡🐬"
	Placeholder = "질문을 입력하세요"
	Thinking    = "데이터를 처리하고 있습니다..."
)

type answerMsg struct {
	answer *domain.Answer
	err    error
}

type sessionMsg struct {
	session *domain.Session
	err     error
}

// Model is the Bubble Tea model for one terminal conversation.
type Model struct {
	ctx       context.Context
	chat      ports.ChatService
	formatter ports.ResponseFormatter

	sessionID string
	messages  []domain.ChatMessage

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	busy     bool
	ready    bool
	status   string
}

func New(ctx context.Context, chat ports.ChatService, formatter ports.ResponseFormatter) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = Placeholder
	ti.CharLimit = 2000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctx:       ctx,
		chat:      chat,
		formatter: formatter,
		input:     ti,
		viewport:  viewport.New(0, 0),
		spinner:   sp,
		busy:      true,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.startSession())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, frame := historyBoxStyle.GetFrameSize()
		_, inputFrame := inputBoxStyle.GetFrameSize()
		reserved := 1 + 1 + inputFrame + 1 // title, status, input line
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-frame)
		m.refresh()
		return m, nil

	case sessionMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "세션을 시작할 수 없습니다: " + msg.err.Error()
			return m, nil
		}
		m.sessionID = msg.session.ID
		m.messages = append([]domain.ChatMessage(nil), msg.session.ChatHistory...)
		m.status = ""
		m.refresh()
		return m, nil

	case answerMsg:
		m.busy = false
		text := domain.FallbackMessage
		if msg.err == nil {
			text = msg.answer.Raw
		}
		m.messages = append(m.messages, domain.ChatMessage{Role: domain.RoleAssistant, Content: text})
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyCtrlR:
			if m.busy || m.sessionID == "" {
				return m, nil
			}
			m.busy = true
			return m, tea.Batch(m.spinner.Tick, m.resetSession())
		case tea.KeyEnter:
			question := strings.TrimSpace(m.input.Value())
			if question == "" || m.busy || m.sessionID == "" {
				return m, nil
			}
			m.input.Reset()
			m.messages = append(m.messages, domain.ChatMessage{Role: domain.RoleUser, Content: question})
			m.busy = true
			m.refresh()
			return m, tea.Batch(m.spinner.Tick, m.ask(question))
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if !m.ready {
		return Thinking
	}
	status := statusStyle.Render(m.status)
	if m.busy {
		status = m.spinner.View() + " " + Thinking
	}
	return titleStyle.Render(Title) + "\n" +
		historyBoxStyle.Render(m.viewport.View()) + "\n" +
		inputBoxStyle.Render(m.input.View()) + "\n" +
		status + hintStyle.Render("  ctrl+r 대화 내역 지우기 · esc 종료")
}

func (m Model) startSession() tea.Cmd {
	return func() tea.Msg {
		session, err := m.chat.Start(m.ctx)
		return sessionMsg{session: session, err: err}
	}
}

func (m Model) resetSession() tea.Cmd {
	id := m.sessionID
	return func() tea.Msg {
		session, err := m.chat.Reset(m.ctx, id)
		return sessionMsg{session: session, err: err}
	}
}

func (m Model) ask(question string) tea.Cmd {
	id := m.sessionID
	return func() tea.Msg {
		answer, err := m.chat.Ask(m.ctx, id, question)
		return answerMsg{answer: answer, err: err}
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

func (m Model) renderHistory() string {
	var b strings.Builder
	for i, msg := range m.messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch msg.Role {
		case domain.RoleUser:
			b.WriteString(userStyle.Render("🙋 " + msg.Content))
		default:
			b.WriteString(assistantStyle.Render("🐬 ") + m.displayAssistant(msg.Content))
		}
	}
	return b.String()
}

// History keeps raw generations, the same as the session store.
func (m Model) displayAssistant(content string) string {
	if m.formatter == nil {
		return content
	}
	return m.formatter.Format(content)
}

var (
	titleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	historyBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	assistantStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	hintStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)
