// Package tui holds the terminal prompt used during OAuth consent.
package tui

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// ErrCancelled is returned when the user leaves the prompt without a code.
var ErrCancelled = errors.New("authorization cancelled")

// PromptModel asks for the authorization code shown after consent.
type PromptModel struct {
	authURL   string
	input     textinput.Model
	code      string
	cancelled bool
	errText   string
	width     int
}

func NewPromptModel(authURL string) PromptModel {
	ti := textinput.New()
	ti.Placeholder = "paste the code or the full redirect URL"
	ti.Prompt = "> "
	ti.Focus()
	ti.Width = 60
	return PromptModel{authURL: authURL, input: ti, width: 80}
}

func (m PromptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m PromptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(msg.Width-8, 10)
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit
		case "enter":
			code := ExtractCode(m.input.Value())
			if code == "" {
				m.errText = "No authorization code found in input"
				return m, nil
			}
			m.code = code
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m PromptModel) View() string {
	if m.code != "" || m.cancelled {
		return ""
	}
	var b strings.Builder
	b.WriteString(TitleStyle.Render("mailcmd authorization"))
	b.WriteString("\n\n")
	b.WriteString("Go to the following link in your browser, then paste the authorization code:\n")
	b.WriteString(URLStyle.Render(m.authURL))
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	if m.errText != "" {
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render(m.errText))
	}
	b.WriteString("\n")
	b.WriteString(HintStyle.Render("enter: submit • esc: cancel"))
	return BoxStyle.Width(max(m.width-2, 20)).Render(b.String()) + "\n"
}

// Code is the submitted authorization code, empty until enter is pressed.
func (m PromptModel) Code() string { return m.code }

func (m PromptModel) Cancelled() bool { return m.cancelled }

// ExtractCode accepts either a bare code or the redirect URL the browser
// landed on and returns the code.
func ExtractCode(input string) string {
	input = strings.TrimSpace(input)
	if !strings.Contains(input, "code=") {
		return input
	}
	raw := input
	if i := strings.Index(raw, "?"); i >= 0 {
		raw = raw[i+1:]
	}
	q, err := url.ParseQuery(raw)
	if err != nil {
		return ""
	}
	return q.Get("code")
}

// PromptAuthCode runs the prompt on the terminal. Its signature matches
// gmail.CodePrompter.
func PromptAuthCode(ctx context.Context, authURL string) (string, error) {
	p := tea.NewProgram(NewPromptModel(authURL), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("running prompt: %w", err)
	}
	m, ok := final.(PromptModel)
	if !ok || m.Cancelled() || m.Code() == "" {
		return "", ErrCancelled
	}
	return m.Code(), nil
}

var _ tea.Model = PromptModel{}
