// Package tui holds the terminal screen shown while the device flow waits for
// the user to authorize the client.
package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/waabox/kinopub/internal/auth"
	"github.com/waabox/kinopub/internal/domain"
)

// DeviceCodeMsg carries the device code once the service issued it.
// It is exported so that tests can inject it directly into LoginModel.Update.
type DeviceCodeMsg struct {
	Session auth.DeviceFlowSession
	Err     error
}

// LoginCompleteMsg signals that polling finished.
type LoginCompleteMsg struct {
	Token auth.TokenState
	Err   error
}

// browserOpenedMsg reports the result of opening the verification URL.
type browserOpenedMsg struct{ err error }

// tickMsg redraws the remaining time.
type tickMsg time.Time

type loginState int

const (
	stateRequesting loginState = iota
	stateWaiting
	stateDone
)

// LoginModel is the bubbletea model for the device login screen.
type LoginModel struct {
	parent  context.Context
	ctx     context.Context
	cancel  context.CancelFunc
	state   loginState
	session auth.DeviceFlowSession
	token   auth.TokenState
	err     error
	now     time.Time
	notice  string

	// Callbacks set by the caller.
	RequestCode func(ctx context.Context) (auth.DeviceFlowSession, error)
	Poll        func(ctx context.Context, s auth.DeviceFlowSession) (auth.TokenState, error)
	// OpenURL, when set, is called with the verification URL once it is known.
	OpenURL func(url string) error
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewLoginModel creates a login screen bound to ctx. Cancelling ctx or pressing
// esc stops polling.
func NewLoginModel(parent context.Context) LoginModel {
	ctx, cancel := context.WithCancel(parent)
	return LoginModel{parent: parent, ctx: ctx, cancel: cancel, Now: time.Now}
}

// Init requests the device code.
func (m LoginModel) Init() tea.Cmd {
	return m.requestCode()
}

func (m LoginModel) requestCode() tea.Cmd {
	return func() tea.Msg {
		s, err := m.RequestCode(m.ctx)
		return DeviceCodeMsg{Session: s, Err: err}
	}
}

func (m LoginModel) pollToken() tea.Cmd {
	return func() tea.Msg {
		tok, err := m.Poll(m.ctx, m.session)
		return LoginCompleteMsg{Token: tok, Err: err}
	}
}

func (m LoginModel) openBrowser() tea.Cmd {
	if m.OpenURL == nil || m.session.VerificationURI == "" {
		return nil
	}
	uri := m.session.VerificationURI
	open := m.OpenURL
	return func() tea.Msg {
		return browserOpenedMsg{err: open(uri)}
	}
}

func tickEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles all incoming messages and key events.
func (m LoginModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case DeviceCodeMsg:
		if msg.Err != nil {
			m.state = stateDone
			m.err = fmt.Errorf("requesting device code: %w", msg.Err)
			return m, tea.Quit
		}
		m.session = msg.Session
		m.state = stateWaiting
		m.now = m.Now()
		return m, tea.Batch(m.pollToken(), m.openBrowser(), tickEvery(time.Second))

	case browserOpenedMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("could not open browser: %v", msg.err)
		}

	case tickMsg:
		if m.state != stateWaiting {
			return m, nil
		}
		m.now = time.Time(msg)
		return m, tickEvery(time.Second)

	case LoginCompleteMsg:
		m.state = stateDone
		m.token = msg.Token
		m.err = msg.Err
		m.cancel()
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "q", "ctrl+c":
			m.cancel()
			m.state = stateDone
			m.err = domain.ContextError("login", context.Canceled)
			return m, tea.Quit
		}
	}
	return m, nil
}

// View renders the login screen.
func (m LoginModel) View() string {
	header := " kinopub — Device Login\n"
	separator := "────────────────────────────────────────────────────────────\n"

	var body string
	switch m.state {
	case stateRequesting:
		body = "\n Requesting authorization code...\n\n"
	case stateWaiting:
		body = fmt.Sprintf(
			"\n Visit:  %s\n"+
				" Code:   %s\n\n"+
				" Waiting for authorization...%s\n\n",
			m.session.VerificationURI, m.session.UserCode, m.remaining())
		if m.notice != "" {
			body += " " + m.notice + "\n\n"
		}
	case stateDone:
		if m.err != nil {
			body = fmt.Sprintf("\n Login failed: %v\n\n", m.err)
		} else {
			body = "\n Authorized.\n\n"
		}
	}

	footer := " Press ESC to cancel\n"
	return header + separator + body + separator + footer
}

func (m LoginModel) remaining() string {
	if m.session.ExpiresAt.IsZero() || m.now.IsZero() {
		return ""
	}
	left := m.session.ExpiresAt.Sub(m.now).Truncate(time.Second)
	if left <= 0 {
		return ""
	}
	return fmt.Sprintf(" (code expires in %s)", left)
}

// Result returns the token obtained by the flow, or why it stopped.
func (m LoginModel) Result() (auth.TokenState, error) {
	if m.state != stateDone {
		return auth.TokenState{}, errors.New("login did not finish")
	}
	return m.token, m.err
}

// RunLogin runs the login screen on stderr until the flow completes.
func RunLogin(m LoginModel) (auth.TokenState, error) {
	defer m.cancel()
	p := tea.NewProgram(m, tea.WithOutput(os.Stderr), tea.WithContext(m.parent))
	final, err := p.Run()
	if err != nil {
		if ctxErr := domain.ContextError("login", m.parent.Err()); ctxErr != nil {
			return auth.TokenState{}, ctxErr
		}
		return auth.TokenState{}, fmt.Errorf("login screen: %w", err)
	}
	return final.(LoginModel).Result()
}
