package normalize

import (
	"bytes"

	"github.com/waabox/kinopub/internal/domain"
)

const defaultTokenType = "Bearer"

// OAuthPayload is the body of any /oauth2/device response: a device code, a
// token, or an OAuth error.
type OAuthPayload struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`

	// Device code step.
	Code                    string `json:"code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	Interval                int    `json:"interval"`

	// Token step.
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int    `json:"expires_in"`
}

// IsError reports whether the payload carries an OAuth error code.
func (p OAuthPayload) IsError() bool { return p.Error != "" }

// DecodeOAuth decodes an OAuth response body. token_type defaults to "Bearer"
// when a token is present. Non-JSON bodies yield ErrUnexpectedContentType.
func DecodeOAuth(statusCode int, contentType string, body []byte) (OAuthPayload, error) {
	var p OAuthPayload
	if !LooksLikeJSON(contentType, body) || len(bytes.TrimSpace(body)) == 0 {
		return p, &domain.APIError{Kind: domain.ErrUnexpectedContentType, StatusCode: statusCode, Message: snippet(body)}
	}
	raw, err := parse(bytes.TrimSpace(body))
	if err != nil {
		return p, malformed(statusCode, err.Error())
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return p, malformed(statusCode, "oauth response is not an object")
	}
	// Some gateways wrap OAuth errors as {"error": {"code": ..., "message": ...}}.
	if e, ok := obj["error"].(map[string]any); ok {
		obj["error"] = stringOr(e["code"], "error")
		if msg, ok := e["message"].(string); ok && obj["error_description"] == nil {
			obj["error_description"] = msg
		}
	}
	coerce(obj, toSet([]string{"expires_in", "interval"}))
	if err := remarshal(obj, &p); err != nil {
		return p, malformed(statusCode, err.Error())
	}
	if p.AccessToken != "" && p.TokenType == "" {
		p.TokenType = defaultTokenType
	}
	return p, nil
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}
