package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/waabox/kinopub/internal/clock"
	"github.com/waabox/kinopub/internal/domain"
	"github.com/waabox/kinopub/internal/normalize"
)

const defaultBaseURL = "https://api.service-kp.com/"

const (
	grantDeviceCode   = "device_code"
	grantDeviceToken  = "device_token"
	grantRefreshToken = "refresh_token"
)

// DeviceFlow speaks the KinoPub variant of the OAuth 2.0 device flow. Every step
// is a POST to /oauth2/device with parameters in the query string and an empty body.
type DeviceFlow struct {
	creds   Credentials
	baseURL string
	client  *http.Client
	clock   clock.Clock
}

// NewDeviceFlow creates a DeviceFlow.
// Pass an empty baseURL to use the real service. Pass a test server URL in tests.
// A nil client gets a 15 second timeout; a nil clk uses the wall clock.
func NewDeviceFlow(creds Credentials, baseURL string, client *http.Client, clk clock.Clock) *DeviceFlow {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &DeviceFlow{creds: creds, baseURL: baseURL, client: client, clock: clk}
}

// RequestCode starts a device authorization.
// The returned session's UserCode must be shown to the user along with VerificationURI.
func (f *DeviceFlow) RequestCode(ctx context.Context) (DeviceFlowSession, error) {
	if f.creds.ClientID == "" || f.creds.ClientSecret == "" {
		return DeviceFlowSession{}, &domain.AuthError{Kind: domain.ErrInvalidCredentials, Description: "client id and secret are required"}
	}
	status, p, err := f.post(ctx, url.Values{"grant_type": {grantDeviceCode}})
	if err != nil {
		return DeviceFlowSession{}, err
	}
	if status >= http.StatusInternalServerError {
		return DeviceFlowSession{}, &domain.APIError{Kind: domain.ErrServerError, StatusCode: status, Code: p.Error, Message: p.ErrorDescription}
	}
	if status >= http.StatusBadRequest || p.IsError() {
		return DeviceFlowSession{}, &domain.AuthError{Kind: domain.ErrInvalidCredentials, Description: describe(p, status)}
	}
	if p.Code == "" || p.UserCode == "" {
		return DeviceFlowSession{}, &domain.APIError{Kind: domain.ErrMalformedResponse, StatusCode: status, Message: "device code response without code"}
	}

	verification := p.VerificationURI
	if verification == "" {
		verification = p.VerificationURIComplete
	}
	session := DeviceFlowSession{
		DeviceCode:      p.Code,
		UserCode:        p.UserCode,
		VerificationURI: verification,
		Interval:        time.Duration(p.Interval) * time.Second,
	}
	if p.ExpiresIn > 0 {
		session.ExpiresAt = f.clock.Now().Add(time.Duration(p.ExpiresIn) * time.Second)
	}
	return session, nil
}

// exchange performs a single device_token poll. OAuth errors such as
// authorization_pending come back in the payload, not as an error.
func (f *DeviceFlow) exchange(ctx context.Context, deviceCode string) (normalize.OAuthPayload, error) {
	status, p, err := f.post(ctx, url.Values{
		"grant_type": {grantDeviceToken},
		"code":       {deviceCode},
	})
	if err != nil {
		return p, err
	}
	if status >= http.StatusInternalServerError {
		return p, &domain.APIError{Kind: domain.ErrServerError, StatusCode: status, Code: p.Error}
	}
	if status >= http.StatusBadRequest && !p.IsError() {
		return p, &domain.APIError{Kind: normalize.KindForStatus(status), StatusCode: status}
	}
	return p, nil
}

// RefreshToken exchanges a refresh token for a new token pair. A rejected
// refresh token yields ErrRefreshFailed; the caller must restart the device flow.
func (f *DeviceFlow) RefreshToken(ctx context.Context, refreshToken string) (TokenState, error) {
	if refreshToken == "" {
		return TokenState{}, &domain.AuthError{Kind: domain.ErrRefreshFailed, Description: "no refresh token available"}
	}
	status, p, err := f.post(ctx, url.Values{
		"grant_type":    {grantRefreshToken},
		"refresh_token": {refreshToken},
	})
	if err != nil {
		return TokenState{}, err
	}
	if status >= http.StatusBadRequest || p.IsError() || p.AccessToken == "" {
		cause := error(nil)
		if status >= http.StatusInternalServerError {
			cause = &domain.APIError{Kind: domain.ErrServerError, StatusCode: status}
		}
		return TokenState{}, &domain.AuthError{Kind: domain.ErrRefreshFailed, Description: describe(p, status), Err: cause}
	}
	st := f.tokenFrom(p)
	if st.RefreshToken == "" {
		st.RefreshToken = refreshToken
	}
	return st, nil
}

func (f *DeviceFlow) tokenFrom(p normalize.OAuthPayload) TokenState {
	st := TokenState{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    p.TokenType,
		Scope:        p.Scope,
	}
	if p.ExpiresIn > 0 {
		st.ExpiresAt = f.clock.Now().Add(time.Duration(p.ExpiresIn) * time.Second)
	}
	return st
}

func (f *DeviceFlow) post(ctx context.Context, params url.Values) (int, normalize.OAuthPayload, error) {
	var p normalize.OAuthPayload
	endpoint, err := url.JoinPath(f.baseURL, "/oauth2/device")
	if err != nil {
		return 0, p, fmt.Errorf("building URL: %w", err)
	}
	params.Set("client_id", f.creds.ClientID)
	params.Set("client_secret", f.creds.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return 0, p, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctxErr := domain.ContextError("oauth2/device", ctx.Err()); ctxErr != nil {
			return 0, p, ctxErr
		}
		return 0, p, &domain.AuthError{Kind: domain.ErrNetworkFailure, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, p, &domain.AuthError{Kind: domain.ErrNetworkFailure, Err: err}
	}
	p, err = normalize.DecodeOAuth(resp.StatusCode, resp.Header.Get("Content-Type"), body)
	if err != nil && resp.StatusCode >= http.StatusInternalServerError {
		return resp.StatusCode, p, &domain.APIError{Kind: domain.ErrServerError, StatusCode: resp.StatusCode}
	}
	return resp.StatusCode, p, err
}

func describe(p normalize.OAuthPayload, status int) string {
	switch {
	case p.ErrorDescription != "":
		return p.Error + ": " + p.ErrorDescription
	case p.Error != "":
		return p.Error
	}
	return fmt.Sprintf("HTTP %d", status)
}
