package config

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeVault serves a KV v2 secret at secret/data/catalog and a KV v1
// secret at kv/catalog. Requests must carry token and, when set, namespace.
func fakeVault(t *testing.T, token, namespace string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != token {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if r.Header.Get("X-Vault-Namespace") != namespace {
			http.Error(w, "wrong namespace", http.StatusBadRequest)
			return
		}
		fields := map[string]any{"password": "s3cret", "port": 1433}
		switch r.URL.Path {
		case "/v1/secret/data/catalog":
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"data": fields}})
		case "/v1/kv/catalog":
			json.NewEncoder(w).Encode(map[string]any{"data": fields})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResolveVault(t *testing.T) {
	tests := []struct {
		name      string
		envToken  string
		fileToken string // written to ~/.vault-token when set
		namespace string
		ref       string
		want      string
		wantErr   bool
	}{
		{name: "env token", envToken: "env-token", ref: "secret/data/catalog#password", want: "s3cret"},
		{name: "token file", fileToken: "file-token\n", ref: "secret/data/catalog#password", want: "s3cret"},
		{name: "env token wins over file", envToken: "env-token", fileToken: "file-token", ref: "secret/data/catalog#password", want: "s3cret"},
		{name: "namespace", envToken: "env-token", namespace: "team-a", ref: "secret/data/catalog#password", want: "s3cret"},
		{name: "kv v1", envToken: "env-token", ref: "kv/catalog#password", want: "s3cret"},
		{name: "blank token file", fileToken: "  \n", ref: "secret/data/catalog#password", wantErr: true},
		{name: "no token", ref: "secret/data/catalog#password", wantErr: true},
		{name: "missing key", envToken: "env-token", ref: "secret/data/catalog#user", wantErr: true},
		{name: "non-string value", envToken: "env-token", ref: "secret/data/catalog#port", wantErr: true},
		{name: "no secret", envToken: "env-token", ref: "secret/data/other#password", wantErr: true},
		{name: "no key separator", envToken: "env-token", ref: "secret/data/catalog", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// The server expects whichever token the resolver should pick.
			expect := tt.envToken
			if expect == "" {
				expect = strings.TrimSpace(tt.fileToken)
			}
			srv := fakeVault(t, expect, tt.namespace)

			home := t.TempDir()
			if tt.fileToken != "" {
				if err := os.WriteFile(filepath.Join(home, ".vault-token"), []byte(tt.fileToken), 0o600); err != nil {
					t.Fatal(err)
				}
			}
			t.Setenv("HOME", home)
			t.Setenv("VAULT_ADDR", srv.URL)
			t.Setenv("VAULT_TOKEN", tt.envToken)
			t.Setenv("VAULT_NAMESPACE", tt.namespace)

			got, err := resolveVault(tt.ref)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolveVault(%q) error = %v, wantErr %v", tt.ref, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("resolveVault(%q) = %q, want %q", tt.ref, got, tt.want)
			}
		})
	}
}

func TestResolveVault_NoAddress(t *testing.T) {
	t.Setenv("VAULT_ADDR", "")
	t.Setenv("VAULT_TOKEN", "env-token")

	if _, err := resolveVault("secret/data/catalog#password"); err == nil {
		t.Error("expected error when VAULT_ADDR is not set")
	}
}

func TestResolveValue_VaultPassword(t *testing.T) {
	srv := fakeVault(t, "env-token", "team-a")
	t.Setenv("VAULT_ADDR", srv.URL)
	t.Setenv("VAULT_TOKEN", "env-token")
	t.Setenv("VAULT_NAMESPACE", "team-a")

	got, err := ResolveValue("${VAULT:secret/data/catalog#password}")
	if err != nil {
		t.Fatalf("ResolveValue: %v", err)
	}
	if got != "s3cret" {
		t.Errorf("ResolveValue = %q, want %q", got, "s3cret")
	}
}
