package tui_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/waabox/kinopub/internal/auth"
	"github.com/waabox/kinopub/internal/domain"
	"github.com/waabox/kinopub/internal/tui"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newLogin() tui.LoginModel {
	m := tui.NewLoginModel(context.Background())
	m.Now = func() time.Time { return now }
	m.RequestCode = func(context.Context) (auth.DeviceFlowSession, error) {
		return auth.DeviceFlowSession{DeviceCode: "dev", UserCode: "ABCD-1234", VerificationURI: "https://kino.pub/device", ExpiresAt: now.Add(5 * time.Minute)}, nil
	}
	m.Poll = func(context.Context, auth.DeviceFlowSession) (auth.TokenState, error) {
		return auth.TokenState{AccessToken: "tok"}, nil
	}
	return m
}

func TestLogin_InitialViewShowsRequesting(t *testing.T) {
	view := newLogin().View()
	if !strings.Contains(view, "Requesting authorization code") {
		t.Errorf("expected requesting message, got:\n%s", view)
	}
}

func TestLogin_InitRequestsCode(t *testing.T) {
	m := newLogin()
	msg := m.Init()()
	code, ok := msg.(tui.DeviceCodeMsg)
	if !ok {
		t.Fatalf("expected DeviceCodeMsg, got %T", msg)
	}
	if code.Session.UserCode != "ABCD-1234" {
		t.Errorf("user code: want 'ABCD-1234', got '%s'", code.Session.UserCode)
	}
}

func TestLogin_DeviceCodeShowsVisitAndCode(t *testing.T) {
	m := newLogin()
	updated, cmd := m.Update(m.Init()())
	if cmd == nil {
		t.Fatal("expected poll command after device code")
	}
	view := updated.(tui.LoginModel).View()
	for _, want := range []string{"Visit:  https://kino.pub/device", "Code:   ABCD-1234", "Waiting for authorization", "expires in 5m0s"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected %q in view, got:\n%s", want, view)
		}
	}
}

func TestLogin_OpensBrowserWhenConfigured(t *testing.T) {
	m := newLogin()
	var opened string
	m.OpenURL = func(u string) error {
		opened = u
		return errors.New("no display")
	}
	updated, cmd := m.Update(tui.DeviceCodeMsg{Session: auth.DeviceFlowSession{UserCode: "X", VerificationURI: "https://kino.pub/device"}})
	batch, ok := cmd().(tea.BatchMsg)
	if !ok {
		t.Fatal("expected a batch of commands")
	}
	for _, c := range batch {
		if c == nil {
			continue
		}
		msg := c()
		if _, done := msg.(tui.LoginCompleteMsg); done {
			continue
		}
		updated, _ = updated.Update(msg)
	}
	if opened != "https://kino.pub/device" {
		t.Errorf("opened: want 'https://kino.pub/device', got '%s'", opened)
	}
	if !strings.Contains(updated.(tui.LoginModel).View(), "could not open browser") {
		t.Errorf("expected browser notice, got:\n%s", updated.(tui.LoginModel).View())
	}
}

func TestLogin_CompleteReturnsToken(t *testing.T) {
	m := newLogin()
	m1, _ := m.Update(m.Init()())
	m2, cmd := m1.Update(tui.LoginCompleteMsg{Token: auth.TokenState{AccessToken: "tok"}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	tok, err := m2.(tui.LoginModel).Result()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.AccessToken != "tok" {
		t.Errorf("token: want 'tok', got '%s'", tok.AccessToken)
	}
	if !strings.Contains(m2.(tui.LoginModel).View(), "Authorized") {
		t.Errorf("expected authorized message, got:\n%s", m2.(tui.LoginModel).View())
	}
}

func TestLogin_FailureIsReported(t *testing.T) {
	m := newLogin()
	expired := &domain.AuthError{Kind: domain.ErrDeviceCodeExpired}
	m1, _ := m.Update(tui.LoginCompleteMsg{Err: expired})
	_, err := m1.(tui.LoginModel).Result()
	if !errors.Is(err, domain.ErrDeviceCodeExpired) {
		t.Errorf("expected device code expired, got %v", err)
	}
	if !strings.Contains(m1.(tui.LoginModel).View(), "Login failed") {
		t.Errorf("expected failure message, got:\n%s", m1.(tui.LoginModel).View())
	}
}

func TestLogin_EscCancels(t *testing.T) {
	m := newLogin()
	m1, _ := m.Update(m.Init()())
	m2, _ := m1.Update(tea.KeyMsg{Type: tea.KeyEsc})
	_, err := m2.(tui.LoginModel).Result()
	if !errors.Is(err, domain.ErrCancelled) {
		t.Errorf("expected cancelled, got %v", err)
	}
}

func TestLogin_ResultBeforeDoneIsError(t *testing.T) {
	if _, err := newLogin().Result(); err == nil {
		t.Error("expected error before the flow finished")
	}
}
