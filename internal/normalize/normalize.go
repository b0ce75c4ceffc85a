// Package normalize turns the service's inconsistent response bodies into typed
// envelopes. Every call site states the shape it expects through a Schema; the
// decoder never guesses.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/waabox/kinopub/internal/domain"
)

// Schema describes where the payload lives in a response body.
type Schema struct {
	// Field is the payload key ("items", "history", "item", ...). Empty means the
	// whole object is the payload.
	Field string
	// BareArray accepts a top-level JSON array with no status wrapper.
	BareArray bool
	// NullOK treats a null or empty 2xx body, or a missing Field, as success with zero Data.
	NullOK bool
	// Numeric lists field names whose string values are coerced to numbers at any depth.
	Numeric []string
}

// Pagination is the optional page descriptor of list responses. A nil field is unknown.
type Pagination struct {
	Total      *int `json:"total,omitempty"`
	Current    *int `json:"current,omitempty"`
	PerPage    *int `json:"perpage,omitempty"`
	TotalItems *int `json:"total_items,omitempty"`
}

// Envelope is the uniform result of a decoded response.
type Envelope[T any] struct {
	Status     int
	Data       T
	Pagination *Pagination
}

var paginationNumeric = []string{"total", "current", "perpage", "total_items"}

// Decode extracts the payload described by s from body.
func Decode[T any](statusCode int, body []byte, s Schema) (Envelope[T], error) {
	var env Envelope[T]
	env.Status = statusCode

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		if s.NullOK && statusCode < http.StatusBadRequest {
			return env, nil
		}
		return env, malformed(statusCode, "empty response body")
	}
	if !LooksLikeJSON("", trimmed) {
		return env, &domain.APIError{Kind: domain.ErrUnexpectedContentType, StatusCode: statusCode, Message: snippet(trimmed)}
	}

	raw, err := parse(trimmed)
	if err != nil {
		return env, malformed(statusCode, err.Error())
	}

	var payload any
	switch v := raw.(type) {
	case []any:
		if !s.BareArray {
			return env, malformed(statusCode, "unexpected top-level array")
		}
		payload = v
	case map[string]any:
		if st, ok := intField(v, "status"); ok {
			env.Status = st
		}
		if env.Status >= http.StatusBadRequest {
			return env, errorFromObject(env.Status, v)
		}
		if p, ok := v["pagination"].(map[string]any); ok {
			pg, err := decodePagination(p)
			if err != nil {
				return env, malformed(statusCode, err.Error())
			}
			env.Pagination = pg
		}
		if s.Field == "" {
			payload = v
			break
		}
		field, ok := v[s.Field]
		if !ok || field == nil {
			if s.NullOK {
				return env, nil
			}
			return env, malformed(statusCode, fmt.Sprintf("missing field %q", s.Field))
		}
		payload = field
	default:
		if s.NullOK {
			return env, nil
		}
		return env, malformed(statusCode, "unexpected top-level value")
	}

	if len(s.Numeric) > 0 {
		payload = coerce(payload, toSet(s.Numeric))
	}
	if err := remarshal(payload, &env.Data); err != nil {
		return env, malformed(statusCode, err.Error())
	}
	return env, nil
}

// LooksLikeJSON reports whether a body should be parsed as JSON. HTML error
// pages served for wrong paths fail this check.
func LooksLikeJSON(contentType string, body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '<' {
		return false
	}
	if strings.Contains(strings.ToLower(contentType), "json") {
		return true
	}
	if len(trimmed) == 0 {
		return contentType == ""
	}
	switch trimmed[0] {
	case '{', '[':
		return true
	}
	return bytes.Equal(trimmed, []byte("null"))
}

// KindForStatus maps an HTTP status to an API error kind.
func KindForStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case status == http.StatusNotFound:
		return domain.ErrNotFound
	case status == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case status >= 500:
		return domain.ErrServerError
	}
	return domain.ErrRequestRejected
}

// ParseError builds the APIError for a failed response. JSON bodies of the form
// {status, error} and {error, error_description} contribute code and message.
func ParseError(statusCode int, contentType string, body []byte) *domain.APIError {
	if !LooksLikeJSON(contentType, body) {
		return &domain.APIError{Kind: domain.ErrUnexpectedContentType, StatusCode: statusCode, Message: snippet(body)}
	}
	raw, err := parse(bytes.TrimSpace(body))
	obj, ok := raw.(map[string]any)
	if err != nil || !ok {
		return &domain.APIError{Kind: KindForStatus(statusCode), StatusCode: statusCode}
	}
	return errorFromObject(statusCode, obj)
}

func errorFromObject(status int, obj map[string]any) *domain.APIError {
	e := &domain.APIError{Kind: KindForStatus(status), StatusCode: status}
	switch v := obj["error"].(type) {
	case string:
		e.Code = v
	case map[string]any:
		if s, ok := v["message"].(string); ok {
			e.Message = s
		}
		if s, ok := v["code"].(string); ok {
			e.Code = s
		}
	}
	for _, k := range []string{"error_description", "message"} {
		if s, ok := obj[k].(string); ok && s != "" {
			e.Message = s
			break
		}
	}
	return e
}

func parse(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func remarshal(v any, out any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func decodePagination(p map[string]any) (*Pagination, error) {
	var pg Pagination
	if err := remarshal(coerce(p, toSet(paginationNumeric)), &pg); err != nil {
		return nil, fmt.Errorf("pagination: %w", err)
	}
	return &pg, nil
}

// coerce rewrites string values of the named fields into JSON numbers. Values
// that are not numeric are left as they are; empty strings become null.
func coerce(v any, fields map[string]struct{}) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if s, ok := child.(string); ok {
				if _, numeric := fields[k]; numeric {
					t[k] = numberOrSelf(s)
				}
				continue
			}
			t[k] = coerce(child, fields)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = coerce(child, fields)
		}
		return t
	}
	return v
}

func numberOrSelf(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n, ok := canonicalNumber(s)
	if !ok {
		return s
	}
	return json.Number(n)
}

// canonicalNumber rewrites a numeric string into JSON number grammar:
// "+5" -> "5", ".5" -> "0.5", "0111161" -> "111161", "5." -> "5".
func canonicalNumber(s string) (string, bool) {
	var b strings.Builder
	switch s[0] {
	case '-':
		b.WriteByte('-')
		s = s[1:]
	case '+':
		s = s[1:]
	}
	mant, exp, hasExp := s, "", false
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		mant, exp, hasExp = s[:i], s[i+1:], true
	}
	whole, frac, _ := strings.Cut(mant, ".")
	if whole+frac == "" || !digits(whole) || !digits(frac) {
		return "", false
	}
	whole = strings.TrimLeft(whole, "0")
	if whole == "" {
		whole = "0"
	}
	b.WriteString(whole)
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	if hasExp {
		sign := ""
		if exp != "" && (exp[0] == '+' || exp[0] == '-') {
			sign, exp = exp[:1], exp[1:]
		}
		if exp == "" || !digits(exp) {
			return "", false
		}
		b.WriteString("e" + sign + exp)
	}
	out := b.String()
	return out, json.Valid([]byte(out))
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func intField(obj map[string]any, key string) (int, bool) {
	switch v := obj[key].(type) {
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

func malformed(status int, msg string) error {
	return &domain.APIError{Kind: domain.ErrMalformedResponse, StatusCode: status, Message: msg}
}

func snippet(body []byte) string {
	const limit = 120
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "..."
	}
	return s
}

// HasField reports whether body is a JSON object carrying key at the top level.
func HasField(body []byte, key string) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return false
	}
	_, ok := obj[key]
	return ok
}
