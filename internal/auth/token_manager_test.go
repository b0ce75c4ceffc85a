package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/waabox/kinopub/internal/auth"
	"github.com/waabox/kinopub/internal/clock"
	"github.com/waabox/kinopub/internal/domain"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newManager(t *testing.T, serverURL string, clk clock.Clock, opts ...auth.Option) *auth.TokenManager {
	t.Helper()
	flow := auth.NewDeviceFlow(testCreds, serverURL, nil, clk)
	tm, err := auth.NewTokenManager(flow, append([]auth.Option{auth.WithClock(clk)}, opts...)...)
	if err != nil {
		t.Fatalf("creating token manager: %v", err)
	}
	return tm
}

func TestTokenManager_PollForToken_ThreePendingThenToken(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("grant_type") != "device_token" || r.URL.Query().Get("code") != "dev_abc" {
			t.Errorf("unexpected query: %v", r.URL.Query())
		}
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&calls, 1) <= 3 {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"authorization_pending"}`))
			return
		}
		w.Write([]byte(`{"access_token":"acc","refresh_token":"ref","expires_in":3600}`))
	}))
	defer server.Close()

	clk := clock.NewFake(epoch)
	var states []auth.PollState
	tm := newManager(t, server.URL, clk, auth.WithPollObserver(func(s auth.PollState) { states = append(states, s) }))

	session := auth.DeviceFlowSession{DeviceCode: "dev_abc", Interval: 5 * time.Second, ExpiresAt: epoch.Add(10 * time.Minute)}
	st, err := tm.PollForToken(context.Background(), session)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.AccessToken != "acc" || st.RefreshToken != "ref" {
		t.Errorf("unexpected token: %+v", st)
	}
	if st.TokenType != "Bearer" {
		t.Errorf("token type: want 'Bearer', got '%s'", st.TokenType)
	}
	sleeps := clk.Sleeps()
	if len(sleeps) != 3 {
		t.Fatalf("sleeps: want 3, got %d (%v)", len(sleeps), sleeps)
	}
	for i, d := range sleeps {
		if d != 5*time.Second {
			t.Errorf("sleep %d: want 5s, got %s", i, d)
		}
	}
	if atomic.LoadInt32(&calls) != 4 {
		t.Errorf("polls: want 4, got %d", calls)
	}
	if states[len(states)-1] != auth.PollSucceeded {
		t.Errorf("final state: want succeeded, got %s", states[len(states)-1])
	}
	if tm.Token().AccessToken != "acc" {
		t.Errorf("token not stored")
	}
}

func TestTokenManager_PollForToken_SlowDownIncreasesInterval(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Write([]byte(`{"error":"slow_down"}`))
			return
		}
		w.Write([]byte(`{"access_token":"acc"}`))
	}))
	defer server.Close()

	clk := clock.NewFake(epoch)
	tm := newManager(t, server.URL, clk)
	_, err := tm.PollForToken(context.Background(), auth.DeviceFlowSession{DeviceCode: "d", Interval: 5 * time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := clk.Sleeps(); len(got) != 1 || got[0] != 10*time.Second {
		t.Errorf("sleeps: want [10s], got %v", got)
	}
}

func TestTokenManager_PollForToken_ExpiredToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error":"expired_token"}`))
	}))
	defer server.Close()

	tm := newManager(t, server.URL, clock.NewFake(epoch))
	_, err := tm.PollForToken(context.Background(), auth.DeviceFlowSession{DeviceCode: "d", Interval: time.Second})
	if !errors.Is(err, domain.ErrDeviceCodeExpired) {
		t.Fatalf("expected ErrDeviceCodeExpired, got %v", err)
	}
}

func TestTokenManager_PollForToken_SessionExpiresWhilePending(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error":"authorization_pending"}`))
	}))
	defer server.Close()

	tm := newManager(t, server.URL, clock.NewFake(epoch))
	session := auth.DeviceFlowSession{DeviceCode: "d", Interval: 5 * time.Second, ExpiresAt: epoch.Add(12 * time.Second)}
	_, err := tm.PollForToken(context.Background(), session)
	if !errors.Is(err, domain.ErrDeviceCodeExpired) {
		t.Fatalf("expected ErrDeviceCodeExpired, got %v", err)
	}
	// polls at t=0, 5s, 10s; at 15s the session is over
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("polls: want 3, got %d", calls)
	}
}

func TestTokenManager_PollForToken_AccessDenied(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error":"access_denied"}`))
	}))
	defer server.Close()

	tm := newManager(t, server.URL, clock.NewFake(epoch))
	_, err := tm.PollForToken(context.Background(), auth.DeviceFlowSession{DeviceCode: "d", Interval: time.Second})
	if !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
}

func TestTokenManager_PollForToken_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"acc"}`))
	}))
	defer server.Close()

	tm := newManager(t, server.URL, clock.NewFake(epoch))
	st, err := tm.PollForToken(context.Background(), auth.DeviceFlowSession{DeviceCode: "d", Interval: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.AccessToken != "acc" {
		t.Errorf("token: want 'acc', got '%s'", st.AccessToken)
	}
}

func TestTokenManager_PollForToken_StopsOnCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error":"authorization_pending"}`))
	}))
	defer server.Close()

	tm := newManager(t, server.URL, clock.Real{})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := tm.PollForToken(ctx, auth.DeviceFlowSession{DeviceCode: "d", Interval: time.Hour})
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("poll did not stop promptly")
	}
}

func TestTokenManager_ValidToken_IdempotentWithinWindow(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	clk := clock.NewFake(epoch)
	tm := newManager(t, server.URL, clk)
	if err := tm.Seed(auth.TokenState{AccessToken: "acc", RefreshToken: "ref", ExpiresAt: epoch.Add(time.Hour)}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	first, err := tm.ValidToken(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clk.Advance(10 * time.Minute)
	second, err := tm.ValidToken(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Errorf("expected identical tokens, got %+v and %+v", first, second)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Errorf("expected no network calls, got %d", calls)
	}
}

func TestTokenManager_ValidToken_ConcurrentCallersShareOneRefresh(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		<-release
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"fresh","refresh_token":"ref2","expires_in":3600}`))
	}))
	defer server.Close()

	clk := clock.NewFake(epoch)
	tm := newManager(t, server.URL, clk)
	tm.Seed(auth.TokenState{AccessToken: "stale", RefreshToken: "ref", ExpiresAt: epoch.Add(-time.Minute)})

	const n = 20
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = tm.AccessToken(context.Background())
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: unexpected error: %v", i, errs[i])
		}
		if results[i] != "fresh" {
			t.Errorf("caller %d: want 'fresh', got '%s'", i, results[i])
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("refresh requests: want 1, got %d", got)
	}
}

func TestTokenManager_CancelledWaiterDoesNotCancelSharedRefresh(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"fresh","expires_in":3600}`))
	}))
	defer server.Close()

	tm := newManager(t, server.URL, clock.NewFake(epoch))
	tm.Seed(auth.TokenState{AccessToken: "stale", RefreshToken: "ref", ExpiresAt: epoch})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := tm.ValidToken(ctx)
		done <- err
	}()
	other := make(chan string, 1)
	go func() {
		tok, _ := tm.AccessToken(context.Background())
		other <- tok
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, domain.ErrCancelled) {
		t.Fatalf("expected ErrCancelled for cancelled waiter, got %v", err)
	}
	close(release)
	if tok := <-other; tok != "fresh" {
		t.Errorf("other waiter: want 'fresh', got '%s'", tok)
	}
}

func TestTokenManager_RefreshAfterUnauthorized_SkipsWhenAlreadyReplaced(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	tm := newManager(t, server.URL, clock.NewFake(epoch))
	tm.Seed(auth.TokenState{AccessToken: "current", RefreshToken: "ref", ExpiresAt: epoch.Add(time.Hour)})

	st, err := tm.RefreshAfterUnauthorized(context.Background(), "older")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.AccessToken != "current" {
		t.Errorf("want current token, got '%s'", st.AccessToken)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Errorf("expected no refresh request, got %d", calls)
	}
}

func TestTokenManager_Refresh_FailureIsSurfaced(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer server.Close()

	var observed error
	tm := newManager(t, server.URL, clock.NewFake(epoch), auth.WithRefreshObserver(func(err error) { observed = err }))
	tm.Seed(auth.TokenState{AccessToken: "a", RefreshToken: "revoked"})

	_, err := tm.Refresh(context.Background())
	if !errors.Is(err, domain.ErrRefreshFailed) {
		t.Fatalf("expected ErrRefreshFailed, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("refresh must not be retried, got %d calls", calls)
	}
	if !errors.Is(observed, domain.ErrRefreshFailed) {
		t.Errorf("observer: expected refresh failure, got %v", observed)
	}
}

func TestTokenManager_ValidToken_NotLoggedIn(t *testing.T) {
	tm := newManager(t, "http://127.0.0.1:1", clock.NewFake(epoch))
	_, err := tm.ValidToken(context.Background())
	if !errors.Is(err, domain.ErrRefreshFailed) {
		t.Fatalf("expected ErrRefreshFailed, got %v", err)
	}
}

func TestTokenManager_InvalidateClearsStore(t *testing.T) {
	store := auth.NewFileStore(filepath.Join(t.TempDir(), "token.toml"))
	if err := store.Save(auth.TokenState{AccessToken: "a", RefreshToken: "r"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	tm := newManager(t, "http://127.0.0.1:1", clock.NewFake(epoch), auth.WithStore(store))
	if tm.Token().AccessToken != "a" {
		t.Fatalf("expected stored token to be loaded, got %+v", tm.Token())
	}

	tm.Invalidate()

	if !tm.Token().IsZero() {
		t.Errorf("expected empty token after invalidate")
	}
	if _, ok, _ := store.Load(); ok {
		t.Errorf("expected store to be cleared")
	}
}

func TestTokenManager_LoadsPersistedToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.toml")
	store := auth.NewFileStore(path)
	if err := store.Save(auth.TokenState{AccessToken: "persisted", ExpiresAt: epoch.Add(time.Hour)}); err != nil {
		t.Fatalf("save: %v", err)
	}

	tm := newManager(t, "http://127.0.0.1:1", clock.NewFake(epoch), auth.WithStore(auth.NewFileStore(path)))
	tok, err := tm.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok != "persisted" {
		t.Errorf("want 'persisted', got '%s'", tok)
	}
}

func TestTokenManager_TokenSource(t *testing.T) {
	tm := newManager(t, "http://127.0.0.1:1", clock.NewFake(epoch))
	tm.Seed(auth.TokenState{AccessToken: "acc", ExpiresAt: epoch.Add(time.Hour)})

	tok, err := tm.TokenSource(context.Background()).Token()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.AccessToken != "acc" || tok.TokenType != "Bearer" {
		t.Errorf("unexpected oauth2 token: %+v", tok)
	}
}

func TestTokenManager_SeedKeepsStoredLogin(t *testing.T) {
	store := auth.NewFileStore(filepath.Join(t.TempDir(), "token.toml"))
	if err := store.Save(auth.TokenState{AccessToken: "login-access", RefreshToken: "login-refresh"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	tm := newManager(t, "http://127.0.0.1:1", clock.NewFake(epoch), auth.WithStore(store))

	if err := tm.Seed(auth.TokenState{AccessToken: "one-off"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if tm.Token().AccessToken != "one-off" {
		t.Errorf("want 'one-off', got '%s'", tm.Token().AccessToken)
	}
	st, ok, err := store.Load()
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if st.AccessToken != "login-access" || st.RefreshToken != "login-refresh" {
		t.Errorf("seed overwrote the stored login: %+v", st)
	}

	tm.Invalidate()

	if !tm.Token().IsZero() {
		t.Errorf("expected empty token after invalidate")
	}
	if st, ok, _ := store.Load(); !ok || st.AccessToken != "login-access" {
		t.Errorf("invalidating a seeded token must keep the stored login, got %+v (ok=%v)", st, ok)
	}
}

func TestTokenManager_SeedRejectsEmptyToken(t *testing.T) {
	tm := newManager(t, "http://127.0.0.1:1", clock.NewFake(epoch))
	if err := tm.Seed(auth.TokenState{}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestTokenManager_PollForToken_SuccessWithoutAccessToken(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	var states []auth.PollState
	tm := newManager(t, server.URL, clock.NewFake(epoch), auth.WithPollObserver(func(s auth.PollState) { states = append(states, s) }))

	session := auth.DeviceFlowSession{DeviceCode: "dev_abc", Interval: 5 * time.Second, ExpiresAt: epoch.Add(10 * time.Minute)}
	_, err := tm.PollForToken(context.Background(), session)
	if !errors.Is(err, domain.ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("want 1 poll, got %d", n)
	}
	if len(states) == 0 || states[len(states)-1] != auth.PollFailed {
		t.Errorf("expected final state PollFailed, got %v", states)
	}
}
