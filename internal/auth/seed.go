package auth

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ReadTokenFile extracts an access token from a file holding either a JSON
// object with "access_token" or "token", or the token itself on the first
// non-empty line that is not a # comment.
func ReadTokenFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading token file: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var obj struct {
			AccessToken string `json:"access_token"`
			Token       string `json:"token"`
		}
		if err := json.Unmarshal(trimmed, &obj); err == nil {
			if obj.AccessToken != "" {
				return strings.TrimSpace(obj.AccessToken), nil
			}
			if obj.Token != "" {
				return strings.TrimSpace(obj.Token), nil
			}
		}
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line, nil
	}
	return "", fmt.Errorf("no token found in %s", path)
}

// ResolveAccessToken picks the first available token in precedence order:
// explicit flag value, environment value, token file. It returns "" when none is set.
func ResolveAccessToken(flagValue, envValue, tokenFile string) (string, error) {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v, nil
	}
	if v := strings.TrimSpace(envValue); v != "" {
		return v, nil
	}
	if tokenFile == "" {
		return "", nil
	}
	if _, err := os.Stat(tokenFile); err != nil {
		return "", nil
	}
	return ReadTokenFile(tokenFile)
}
