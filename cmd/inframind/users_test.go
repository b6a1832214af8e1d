package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/inframind/inframind/internal/appconfig"
	"github.com/inframind/inframind/internal/auth"
	"github.com/inframind/inframind/schema"
)

func TestUsersAddRejectsInvalidEmail(t *testing.T) {
	cfgPath := writeTestConfig(t)

	cmd := newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "add", "not-an-email", "--auto-password"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error for invalid email")
	}
}

func TestUsersAddAndDelete(t *testing.T) {
	cfgPath := writeTestConfig(t)
	cfg := loadConfigFromPath(t, cfgPath)

	cmd := newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "add", "alice@example.com", "--auto-password", "--role", "analyst"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("add user: %v", err)
	}

	store := reloadStore(t, cfg)
	user := findUser(store.LoadUsers(), "alice@example.com")
	if user == nil {
		t.Fatalf("expected alice@example.com in store")
	}
	if user.Role != schema.RoleAnalyst {
		t.Fatalf("expected analyst role, got %s", user.Role)
	}
	if user.Name != "alice" {
		t.Fatalf("expected display name from email local part, got %q", user.Name)
	}

	cmd = newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "delete", "alice@example.com"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	store = reloadStore(t, cfg)
	if findUser(store.LoadUsers(), "alice@example.com") != nil {
		t.Fatalf("expected alice@example.com to be removed")
	}
}

func TestUsersRotateTOTP(t *testing.T) {
	cfgPath := writeTestConfig(t)
	cfg := loadConfigFromPath(t, cfgPath)

	addTestUser(t, cfgPath, "bob@example.com")

	cmd := newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "rotate-totp", "bob@example.com"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("rotate-totp: %v", err)
	}

	store := reloadStore(t, cfg)
	user := findUser(store.LoadUsers(), "bob@example.com")
	if user == nil {
		t.Fatalf("expected bob@example.com after rotate")
	}
	if user.TOTPSecret == "" {
		t.Fatalf("expected TOTP secret to be set")
	}
	if !user.TOTPEnabled {
		t.Fatalf("expected TOTP to be enabled")
	}
}

func TestUsersChpasswd(t *testing.T) {
	cfgPath := writeTestConfig(t)
	cfg := loadConfigFromPath(t, cfgPath)

	addTestUser(t, cfgPath, "carol@example.com")
	orig := findUser(reloadStore(t, cfg).LoadUsers(), "carol@example.com")
	if orig == nil {
		t.Fatalf("expected carol@example.com")
	}

	cmd := newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "chpasswd", "carol@example.com", "--auto-password"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("chpasswd: %v", err)
	}

	updated := findUser(reloadStore(t, cfg).LoadUsers(), "carol@example.com")
	if updated == nil {
		t.Fatalf("expected carol@example.com after chpasswd")
	}
	if updated.PasswordHash == orig.PasswordHash {
		t.Fatalf("expected password hash to change")
	}
}

func TestUsersSetRole(t *testing.T) {
	cfgPath := writeTestConfig(t)
	cfg := loadConfigFromPath(t, cfgPath)

	addTestUser(t, cfgPath, "dave@example.com")

	cmd := newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "set-role", "dave@example.com", "admin"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("set-role: %v", err)
	}

	user := findUser(reloadStore(t, cfg).LoadUsers(), "dave@example.com")
	if user == nil {
		t.Fatalf("expected dave@example.com after set-role")
	}
	if user.Role != schema.RoleAdmin {
		t.Fatalf("expected admin role, got %s", user.Role)
	}
}

func TestUsersBackupCodes(t *testing.T) {
	cfgPath := writeTestConfig(t)
	cfg := loadConfigFromPath(t, cfgPath)

	addTestUser(t, cfgPath, "erin@example.com")

	var out bytes.Buffer
	cmd := newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "backup-codes", "erin@example.com", "--count", "5"})
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("backup-codes: %v", err)
	}
	if out.Len() == 0 {
		t.Fatalf("expected backup codes on stdout")
	}

	user := findUser(reloadStore(t, cfg).LoadUsers(), "erin@example.com")
	if user == nil {
		t.Fatalf("expected erin@example.com after backup-codes")
	}
	if len(user.BackupCodeHashes) != 5 {
		t.Fatalf("expected 5 backup code hashes, got %d", len(user.BackupCodeHashes))
	}
}

func addTestUser(t *testing.T, cfgPath, email string) {
	t.Helper()
	cmd := newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "add", email, "--auto-password"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("add user %s: %v", email, err)
	}
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	cfg, err := appconfig.DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.StateDir = t.TempDir()
	cfg.Auth.UserFile = filepath.Join(t.TempDir(), "users.json")
	cfg.HTTP.SessionStorePath = filepath.Join(cfg.StateDir, "sessions.json")
	cfg.GitOps.TokenStorePath = filepath.Join(cfg.StateDir, "token.bundle")
	cfg.GitOps.KeyStorePath = filepath.Join(cfg.StateDir, "keys.bundle")
	cfg.GitOps.KeyDir = filepath.Join(cfg.StateDir, "keys")
	cfg.GitOps.MirrorDir = filepath.Join(cfg.StateDir, "mirrors")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func loadConfigFromPath(t *testing.T, path string) appconfig.Config {
	t.Helper()
	cfg, err := appconfig.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func reloadStore(t *testing.T, cfg appconfig.Config) *auth.Store {
	t.Helper()
	store, err := auth.NewStoreWithLogger(cfg.Auth.UserFile, nil, auth.Policy{}, nil)
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	return store
}

func findUser(users []auth.User, email string) *auth.User {
	for _, user := range users {
		if user.Email == email {
			copy := user
			return &copy
		}
	}
	return nil
}
