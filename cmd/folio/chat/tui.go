package chatcmder

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	bubbletea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/papercomputeco/folio/api"
	"github.com/papercomputeco/folio/pkg/cliui"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("folio> ")
	footerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

const (
	inputHeight  = 3
	defaultWidth = 80
)

type chatKeyMap struct {
	Send key.Binding
	Quit key.Binding
}

func defaultKeyMap() chatKeyMap {
	return chatKeyMap{
		Send: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		Quit: key.NewBinding(key.WithKeys("ctrl+c", "ctrl+d"), key.WithHelp("ctrl+c", "quit")),
	}
}

type entry struct {
	question string
	answer   *api.AnswerResponse
	err      error
}

type answerMsg struct {
	resp *api.AnswerResponse
	err  error
}

type chatModel struct {
	ctx       context.Context
	client    answerClient
	sessionID string

	keys     chatKeyMap
	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model
	width    int

	entries []entry
	waiting bool
}

func runTUI(ctx context.Context, cl answerClient, sessionID string) error {
	program := bubbletea.NewProgram(newChatModel(ctx, cl, sessionID),
		bubbletea.WithContext(ctx),
		bubbletea.WithAltScreen(),
	)
	_, err := program.Run()
	return err
}

func newChatModel(ctx context.Context, cl answerClient, sessionID string) chatModel {
	input := textinput.New()
	input.Placeholder = "Ask a question"
	input.Prompt = userPrompt
	input.CharLimit = 4000
	input.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	return chatModel{
		ctx:       ctx,
		client:    cl,
		sessionID: sessionID,
		keys:      defaultKeyMap(),
		input:     input,
		spinner:   sp,
		viewport:  viewport.New(defaultWidth, 20),
		width:     defaultWidth,
	}
}

func (m chatModel) Init() bubbletea.Cmd {
	return textinput.Blink
}

func (m chatModel) Update(msg bubbletea.Msg) (bubbletea.Model, bubbletea.Cmd) {
	switch msg := msg.(type) {
	case bubbletea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-inputHeight, 1)
		m.input.Width = max(msg.Width-lipgloss.Width(userPrompt)-1, 10)
		m.refresh()
		return m, nil

	case answerMsg:
		m.waiting = false
		if len(m.entries) == 0 {
			return m, nil
		}
		last := &m.entries[len(m.entries)-1]
		last.answer, last.err = msg.resp, msg.err
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd bubbletea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case bubbletea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, bubbletea.Quit
		case key.Matches(msg, m.keys.Send):
			return m.submit()
		}
	}

	var inputCmd, vpCmd bubbletea.Cmd
	m.input, inputCmd = m.input.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, bubbletea.Batch(inputCmd, vpCmd)
}

func (m chatModel) submit() (bubbletea.Model, bubbletea.Cmd) {
	question := strings.TrimSpace(m.input.Value())
	if question == "" || m.waiting {
		return m, nil
	}
	m.input.Reset()

	switch question {
	case "/exit":
		return m, bubbletea.Quit
	case "/new":
		m.sessionID = newSessionID()
		m.entries = nil
		m.refresh()
		return m, nil
	}

	m.entries = append(m.entries, entry{question: question})
	m.waiting = true
	m.refresh()
	return m, bubbletea.Batch(m.spinner.Tick, m.ask(question))
}

// ask sends question on the current session.
func (m chatModel) ask(question string) bubbletea.Cmd {
	ctx, cl, sessionID := m.ctx, m.client, m.sessionID
	return func() bubbletea.Msg {
		resp, err := cl.Answer(ctx, api.AnswerRequest{Query: question, SessionID: sessionID})
		return answerMsg{resp: resp, err: err}
	}
}

func (m *chatModel) refresh() {
	m.viewport.SetContent(m.transcript())
	m.viewport.GotoBottom()
}

func (m chatModel) transcript() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n  %s %s\n\n", cliui.KeyStyle.Render("Session:"), cliui.NameStyle.Render(m.sessionID))

	for _, e := range m.entries {
		fmt.Fprintf(&b, "%s%s\n", userPrompt, e.question)
		switch {
		case e.err != nil:
			fmt.Fprintf(&b, "%s%s %s\n\n", assistantPrompt, cliui.FailMark, cliui.ErrorStyle.Render(e.err.Error()))
		case e.answer != nil:
			b.WriteString(assistantPrompt + "\n")
			b.WriteString(m.renderAnswer(e.answer))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m chatModel) renderAnswer(resp *api.AnswerResponse) string {
	text, err := cliui.RenderMarkdown(resp.AnswerText)
	if err != nil {
		text = resp.AnswerText
	}
	text = strings.TrimRight(text, "\n")

	if len(resp.SelectedPages) == 0 {
		return text + "\n"
	}
	pages := make([]string, 0, len(resp.SelectedPages))
	for _, p := range resp.SelectedPages {
		pages = append(pages, fmt.Sprintf("%s p. %d", p.DocumentName, p.PageNumber))
	}
	return text + "\n  " + cliui.DimStyle.Render("Sources: "+strings.Join(pages, ", ")) + "\n"
}

func (m chatModel) View() string {
	status := footerStyle.Render("enter send · /new new session · ctrl+c quit")
	if m.waiting {
		status = m.spinner.View() + " " + footerStyle.Render("answering...")
	}
	return m.viewport.View() + "\n" + m.input.View() + "\n" + status
}
