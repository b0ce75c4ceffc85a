package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/waabox/kinopub/internal/auth"
	"github.com/waabox/kinopub/internal/config"
)

// fileStoreConfig writes a config using a file token store holding a login.
func fileStoreConfig(t *testing.T) (string, *auth.FileStore) {
	t.Helper()
	dir := t.TempDir()
	tokenPath := filepath.Join(dir, "token.toml")
	store := auth.NewFileStore(tokenPath)
	if err := store.Save(auth.TokenState{AccessToken: "login-access", RefreshToken: "login-refresh"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	cfgPath := filepath.Join(dir, "config.toml")
	body := "[token]\nstore = \"file\"\npath = " + strconv.Quote(tokenPath) + "\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath, store
}

func TestUserCommand_UsesSuppliedToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/user" {
			t.Errorf("path: want '/v1/user', got '%s'", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer cli-token" {
			t.Errorf("authorization: want 'Bearer cli-token', got '%s'", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":200,"user":{"username":"viewer","subscription":{"active":true,"days":"12.5"}}}`))
	}))
	defer server.Close()
	t.Setenv("KINOPUB_BASE_URL", server.URL)
	t.Setenv("KINOPUB_ACCESS_TOKEN", "")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.toml"), "--token", "cli-token", "user"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), `"username": "viewer"`) {
		t.Errorf("expected username in output, got:\n%s", out.String())
	}
}

func TestUserCommand_SuppliedTokenKeepsStoredLogin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer cli-token" {
			t.Errorf("authorization: want 'Bearer cli-token', got '%s'", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":200,"user":{"username":"viewer"}}`))
	}))
	defer server.Close()
	t.Setenv("KINOPUB_BASE_URL", server.URL)
	t.Setenv("KINOPUB_ACCESS_TOKEN", "")
	cfgPath, store := fileStoreConfig(t)

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--config", cfgPath, "--token", "cli-token", "user"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st, ok, err := store.Load()
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if st.AccessToken != "login-access" || st.RefreshToken != "login-refresh" {
		t.Errorf("stored login was replaced: %+v", st)
	}
}

func TestLogoutCommand_ClearsStoredLoginDespiteSuppliedToken(t *testing.T) {
	t.Setenv("KINOPUB_ACCESS_TOKEN", "")
	cfgPath, store := fileStoreConfig(t)

	root := newRootCmd()
	root.SetArgs([]string{"--config", cfgPath, "--token", "cli-token", "logout"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok, _ := store.Load(); ok {
		t.Errorf("expected stored login to be cleared")
	}
}

func TestUserCommand_WithoutTokenFails(t *testing.T) {
	t.Setenv("KINOPUB_ACCESS_TOKEN", "")
	root := newRootCmd()
	root.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.toml"), "user"})
	if err := root.ExecuteContext(context.Background()); err == nil {
		t.Fatal("expected error without a token")
	}
}

func TestOpenStore_RejectsUnknownStore(t *testing.T) {
	cfg := config.Config{Token: config.TokenConfig{Store: "redis"}}
	if _, _, err := openStore(cfg); err == nil {
		t.Fatal("expected error for unknown store")
	}
}

func TestOpenStore_Bolt(t *testing.T) {
	cfg := config.Config{Token: config.TokenConfig{Store: "bolt", Path: filepath.Join(t.TempDir(), "tokens.db")}}
	store, closeFn, err := openStore(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer closeFn()
	if _, ok, err := store.Load(); err != nil || ok {
		t.Errorf("expected empty store, got ok=%v err=%v", ok, err)
	}
}
