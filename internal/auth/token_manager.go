package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/waabox/kinopub/internal/clock"
	"github.com/waabox/kinopub/internal/domain"
)

const (
	defaultRefreshMargin  = 60 * time.Second
	defaultRefreshTimeout = 30 * time.Second
	defaultPollInterval   = 5 * time.Second
	slowDownStep          = 5 * time.Second
	refreshKey            = "refresh"
)

// TokenManager owns the token lifecycle: device login, silent refresh and
// persistence to a TokenStore. It is safe for concurrent use.
type TokenManager struct {
	flow           *DeviceFlow
	store          TokenStore
	clock          clock.Clock
	log            logrus.FieldLogger
	margin         time.Duration
	refreshTimeout time.Duration
	observer       func(PollState)
	onRefresh      func(error)

	mu     sync.RWMutex
	state  TokenState
	seeded bool
	group  singleflight.Group
}

// Option configures a TokenManager.
type Option func(*TokenManager)

// WithStore sets where tokens are persisted. The default is a MemoryStore.
func WithStore(s TokenStore) Option { return func(m *TokenManager) { m.store = s } }

// WithClock injects the clock used for expiry checks and poll sleeps.
func WithClock(c clock.Clock) Option { return func(m *TokenManager) { m.clock = c } }

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option { return func(m *TokenManager) { m.log = l } }

// WithRefreshMargin sets how long before expiry a token is refreshed.
func WithRefreshMargin(d time.Duration) Option { return func(m *TokenManager) { m.margin = d } }

// WithRefreshTimeout bounds a single refresh exchange.
func WithRefreshTimeout(d time.Duration) Option {
	return func(m *TokenManager) { m.refreshTimeout = d }
}

// WithPollObserver receives every device-flow state transition.
func WithPollObserver(fn func(PollState)) Option { return func(m *TokenManager) { m.observer = fn } }

// WithRefreshObserver is called after every outbound refresh with its result.
func WithRefreshObserver(fn func(error)) Option { return func(m *TokenManager) { m.onRefresh = fn } }

// NewTokenManager creates a TokenManager and loads any persisted token from the store.
func NewTokenManager(flow *DeviceFlow, opts ...Option) (*TokenManager, error) {
	m := &TokenManager{
		flow:           flow,
		store:          NewMemoryStore(),
		clock:          clock.Real{},
		log:            discardLogger(),
		margin:         defaultRefreshMargin,
		refreshTimeout: defaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	st, ok, err := m.store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading token: %w", err)
	}
	if ok {
		m.state = st
	}
	return m, nil
}

// StartDeviceFlow requests a device code for the user to enter.
func (m *TokenManager) StartDeviceFlow(ctx context.Context) (DeviceFlowSession, error) {
	return m.flow.RequestCode(ctx)
}

// PollForToken polls until the user authorizes the device, the code expires, or
// ctx is done. The first poll is immediate; later polls wait session.Interval.
// Network failures are retried at the same interval.
func (m *TokenManager) PollForToken(ctx context.Context, session DeviceFlowSession) (TokenState, error) {
	interval := session.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	m.transition(PollPending)

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if err := m.clock.Sleep(ctx, interval); err != nil {
				m.transition(PollFailed)
				return TokenState{}, domain.ContextError("poll token", err)
			}
		}
		if !session.ExpiresAt.IsZero() && !m.clock.Now().Before(session.ExpiresAt) {
			m.transition(PollExpired)
			return TokenState{}, &domain.AuthError{Kind: domain.ErrDeviceCodeExpired}
		}

		m.transition(PollPolling)
		p, err := m.flow.exchange(ctx, session.DeviceCode)
		if err != nil {
			if ctxErr := domain.ContextError("poll token", ctx.Err()); ctxErr != nil {
				m.transition(PollFailed)
				return TokenState{}, ctxErr
			}
			if errors.Is(err, domain.ErrNetworkFailure) || errors.Is(err, domain.ErrServerError) {
				m.log.WithError(err).WithField("attempt", attempt+1).Warn("device token poll failed, retrying")
				continue
			}
			m.transition(PollFailed)
			return TokenState{}, err
		}

		switch p.Error {
		case "":
			if p.AccessToken == "" {
				m.transition(PollFailed)
				return TokenState{}, &domain.APIError{Kind: domain.ErrMalformedResponse, Message: "token response without access_token"}
			}
			st := m.flow.tokenFrom(p)
			m.set(st)
			m.transition(PollSucceeded)
			m.log.WithField("expires_at", st.ExpiresAt).Info("device authorized")
			return st, nil
		case "authorization_pending":
			m.transition(PollPending)
		case "slow_down":
			interval += slowDownStep
			m.log.WithField("interval", interval).Debug("server asked to slow down")
			m.transition(PollPending)
		case "expired_token", "code_expired":
			m.transition(PollExpired)
			return TokenState{}, &domain.AuthError{Kind: domain.ErrDeviceCodeExpired, Description: p.ErrorDescription}
		case "access_denied":
			m.transition(PollFailed)
			return TokenState{}, &domain.AuthError{Kind: domain.ErrAccessDenied, Description: p.ErrorDescription}
		case "invalid_client", "unauthorized_client":
			m.transition(PollFailed)
			return TokenState{}, &domain.AuthError{Kind: domain.ErrInvalidCredentials, Description: p.ErrorDescription}
		default:
			m.transition(PollFailed)
			return TokenState{}, &domain.APIError{Kind: domain.ErrRequestRejected, Code: p.Error, Message: p.ErrorDescription}
		}
	}
}

// ValidToken returns the current token if it is fresh, refreshing it otherwise.
// Concurrent callers share a single refresh.
func (m *TokenManager) ValidToken(ctx context.Context) (TokenState, error) {
	st := m.Token()
	if st.FreshAt(m.clock.Now(), m.margin) {
		return st, nil
	}
	if st.IsZero() && st.RefreshToken == "" {
		return TokenState{}, &domain.AuthError{Kind: domain.ErrRefreshFailed, Description: "not logged in"}
	}
	return m.coalesce(ctx, st.AccessToken, false)
}

// AccessToken returns only the access token string of ValidToken.
func (m *TokenManager) AccessToken(ctx context.Context) (string, error) {
	st, err := m.ValidToken(ctx)
	if err != nil {
		return "", err
	}
	return st.AccessToken, nil
}

// Refresh unconditionally exchanges the refresh token. It is never retried.
func (m *TokenManager) Refresh(ctx context.Context) (TokenState, error) {
	return m.coalesce(ctx, m.Token().AccessToken, true)
}

// RefreshAfterUnauthorized refreshes after the server rejected stale. If another
// caller already replaced stale, the current token is returned without a request.
func (m *TokenManager) RefreshAfterUnauthorized(ctx context.Context, stale string) (TokenState, error) {
	return m.coalesce(ctx, stale, false)
}

// Invalidate drops the current token and clears the store.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	seeded := m.seeded
	m.state = TokenState{}
	m.seeded = false
	m.mu.Unlock()
	if seeded {
		m.log.Info("seeded token dropped, stored login kept")
		return
	}
	if err := m.store.Clear(); err != nil {
		m.log.WithError(err).Warn("clearing token store")
	}
	m.log.Info("token invalidated")
}

// Seed installs a token obtained elsewhere (flag, environment, token file)
// for this process only. The store keeps whatever login it already holds
// until a refresh or a new login replaces it.
func (m *TokenManager) Seed(st TokenState) error {
	if st.AccessToken == "" {
		return domain.InvalidArgument("seed token", "access token is empty")
	}
	if st.TokenType == "" {
		st.TokenType = defaultTokenType
	}
	m.mu.Lock()
	m.state = st
	m.seeded = true
	m.mu.Unlock()
	return nil
}

// Token returns a snapshot of the current state without refreshing.
func (m *TokenManager) Token() TokenState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// TokenSource adapts the manager to oauth2.TokenSource.
func (m *TokenManager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, m: m}
}

type tokenSource struct {
	ctx context.Context
	m   *TokenManager
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	st, err := s.m.ValidToken(s.ctx)
	if err != nil {
		return nil, err
	}
	return st.OAuth2(), nil
}

// coalesce runs at most one refresh at a time. The shared refresh runs on a
// context detached from any single caller, so a caller giving up never cancels
// it for the others and the key is always released.
func (m *TokenManager) coalesce(ctx context.Context, stale string, force bool) (TokenState, error) {
	ch := m.group.DoChan(refreshKey, func() (any, error) {
		cur := m.Token()
		if !force && cur.AccessToken != stale && cur.FreshAt(m.clock.Now(), m.margin) {
			return cur, nil
		}
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
		defer cancel()
		return m.refresh(rctx, cur)
	})

	select {
	case <-ctx.Done():
		return TokenState{}, domain.ContextError("refresh token", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return TokenState{}, res.Err
		}
		return res.Val.(TokenState), nil
	}
}

func (m *TokenManager) refresh(ctx context.Context, cur TokenState) (TokenState, error) {
	m.log.Debug("refreshing access token")
	st, err := m.flow.RefreshToken(ctx, cur.RefreshToken)
	if m.onRefresh != nil {
		m.onRefresh(err)
	}
	if err != nil {
		m.log.WithError(err).Warn("token refresh failed")
		return TokenState{}, err
	}
	m.set(st)
	return st, nil
}

func (m *TokenManager) set(st TokenState) {
	m.mu.Lock()
	m.state = st
	m.seeded = false
	m.mu.Unlock()
	if err := m.store.Save(st); err != nil {
		// The token is usable for this session even if it could not be persisted.
		m.log.WithError(err).Warn("saving token")
	}
}

func (m *TokenManager) transition(s PollState) {
	if m.observer != nil {
		m.observer(s)
	}
}
