package appconfig

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from path. When path is empty the default
// location is used and a missing file yields the defaults.
func Load(path string) (Config, error) {
	def, err := DefaultConfig()
	if err != nil {
		return Config{}, fmt.Errorf("default config: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		defPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		v.SetConfigFile(defPath)
	}

	setDefaults(v, def)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			if path != "" {
				return Config{}, fmt.Errorf("config file %s: %w", path, err)
			}
			fileLoaded = false
		} else {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if fileLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config file %s: missing config_version (expected %d)", v.ConfigFileUsed(), CurrentConfigVersion)
		}
		if got := v.GetInt("config_version"); got != CurrentConfigVersion {
			return Config{}, fmt.Errorf("config file %s: config_version %d not supported (expected %d)", v.ConfigFileUsed(), got, CurrentConfigVersion)
		}
		if err := rejectLegacyKeys(v); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	expandConfigEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, def Config) {
	v.SetDefault("config_version", def.ConfigVersion)
	v.SetDefault("state_dir", def.StateDir)

	v.SetDefault("http.addr", def.HTTP.Addr)
	v.SetDefault("http.session_cookie", def.HTTP.SessionCookie)
	v.SetDefault("http.session_ttl_hours", def.HTTP.SessionTTLHours)
	v.SetDefault("http.session_store_path", def.HTTP.SessionStorePath)
	v.SetDefault("http.base_url", def.HTTP.BaseURL)
	v.SetDefault("http.base_path", def.HTTP.BasePath)

	v.SetDefault("database.dsn", def.Database.DSN)
	v.SetDefault("database.max_conns", def.Database.MaxConns)
	v.SetDefault("database.migrate", def.Database.Migrate)

	v.SetDefault("auth.user_file", def.Auth.UserFile)
	v.SetDefault("auth.lockout_threshold", def.Auth.LockoutThreshold)
	v.SetDefault("auth.lockout_minutes", def.Auth.LockoutMinutes)
	v.SetDefault("auth.challenge_ttl_minutes", def.Auth.ChallengeTTLMinutes)
	v.SetDefault("auth.totp_issuer", def.Auth.TOTPIssuer)
	v.SetDefault("auth.google_client_id", def.Auth.GoogleClientID)

	v.SetDefault("service.kpi_window_days", def.Service.KPIWindowDays)
	v.SetDefault("service.assessment_steps", def.Service.AssessmentSteps)
	v.SetDefault("service.page_size_default", def.Service.PageSizeDefault)
	v.SetDefault("service.page_size_max", def.Service.PageSizeMax)
	v.SetDefault("service.plan_log_max_lines", def.Service.PlanLogMaxLines)
	v.SetDefault("service.comment_max_len", def.Service.CommentMaxLen)

	v.SetDefault("gitops.github_api", def.GitOps.GitHubAPI)
	v.SetDefault("gitops.gitlab_api", def.GitOps.GitLabAPI)
	v.SetDefault("gitops.token_store_path", def.GitOps.TokenStorePath)
	v.SetDefault("gitops.key_store_path", def.GitOps.KeyStorePath)
	v.SetDefault("gitops.key_dir", def.GitOps.KeyDir)
	v.SetDefault("gitops.mirror_dir", def.GitOps.MirrorDir)
	v.SetDefault("gitops.sync_timeout_minutes", def.GitOps.SyncTimeoutMinutes)
	v.SetDefault("gitops.force_fallback", def.GitOps.ForceFallback)

	v.SetDefault("runner.mode", def.Runner.Mode)
	v.SetDefault("runner.image", def.Runner.Image)
	v.SetDefault("runner.containerd.address", def.Runner.Containerd.Address)
	v.SetDefault("runner.containerd.namespace", def.Runner.Containerd.Namespace)
	v.SetDefault("runner.health_addr", def.Runner.HealthAddr)
	v.SetDefault("runner.run_timeout_minutes", def.Runner.RunTimeoutMinutes)
	v.SetDefault("runner.pull_timeout_minutes", def.Runner.PullTimeoutMinutes)

	v.SetDefault("ssh.addr", def.SSH.Addr)
	v.SetDefault("ssh.host_key_path", def.SSH.HostKeyPath)

	v.SetDefault("report.chrome_url", def.Report.ChromeURL)

	v.SetDefault("logging.disable_audit_trails", def.Logging.DisableAuditTrails)
}

// rejectLegacyKeys fails on keys from versions that never shipped with
// this config_version so stale files surface loudly.
func rejectLegacyKeys(v *viper.Viper) error {
	legacy := []string{
		"server.listen",
		"auth.password_file",
		"gitops.provider_url",
	}
	for _, key := range legacy {
		if v.InConfig(key) {
			return fmt.Errorf("config file %s: key %q is no longer supported", v.ConfigFileUsed(), key)
		}
	}
	return nil
}

// Validate checks config invariants shared by all commands.
func Validate(cfg Config) error {
	if cfg.StateDir == "" {
		return fmt.Errorf("state_dir must not be empty")
	}
	if cfg.HTTP.Addr == "" {
		return fmt.Errorf("http.addr must not be empty")
	}
	if cfg.HTTP.SessionTTLHours <= 0 {
		return fmt.Errorf("http.session_ttl_hours must be positive, got %d", cfg.HTTP.SessionTTLHours)
	}
	if err := validateBaseURL(cfg.HTTP.BaseURL); err != nil {
		return err
	}
	if err := validateBasePath(cfg.HTTP.BasePath); err != nil {
		return err
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn must not be empty")
	}
	if cfg.Database.MaxConns <= 0 {
		return fmt.Errorf("database.max_conns must be positive, got %d", cfg.Database.MaxConns)
	}
	if cfg.Auth.LockoutThreshold <= 0 {
		return fmt.Errorf("auth.lockout_threshold must be positive, got %d", cfg.Auth.LockoutThreshold)
	}
	if cfg.Auth.LockoutMinutes <= 0 {
		return fmt.Errorf("auth.lockout_minutes must be positive, got %d", cfg.Auth.LockoutMinutes)
	}
	if cfg.Auth.ChallengeTTLMinutes <= 0 {
		return fmt.Errorf("auth.challenge_ttl_minutes must be positive, got %d", cfg.Auth.ChallengeTTLMinutes)
	}
	for i, su := range cfg.Auth.SeedUsers {
		if su.Email == "" {
			return fmt.Errorf("auth.seed_users[%d]: email must not be empty", i)
		}
		if su.PasswordHash == "" {
			return fmt.Errorf("auth.seed_users[%d]: password_hash must not be empty", i)
		}
	}
	switch cfg.Runner.Mode {
	case "local", "containerd":
	default:
		return fmt.Errorf("runner.mode must be \"local\" or \"containerd\", got %q", cfg.Runner.Mode)
	}
	if cfg.Runner.Mode == "containerd" {
		if cfg.Runner.Containerd.Address == "" {
			return fmt.Errorf("runner.containerd.address must not be empty when runner.mode is containerd")
		}
		if cfg.Runner.Containerd.Namespace == "" {
			return fmt.Errorf("runner.containerd.namespace must not be empty when runner.mode is containerd")
		}
		if cfg.Runner.Image == "" {
			return fmt.Errorf("runner.image must not be empty when runner.mode is containerd")
		}
	}
	if cfg.Runner.RunTimeoutMinutes <= 0 {
		return fmt.Errorf("runner.run_timeout_minutes must be positive, got %d", cfg.Runner.RunTimeoutMinutes)
	}
	if cfg.GitOps.SyncTimeoutMinutes <= 0 {
		return fmt.Errorf("gitops.sync_timeout_minutes must be positive, got %d", cfg.GitOps.SyncTimeoutMinutes)
	}
	return nil
}

func validateBaseURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("http.base_url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("http.base_url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("http.base_url %q: host must not be empty", raw)
	}
	return nil
}

func validateBasePath(p string) error {
	if p == "" {
		return nil
	}
	if !strings.HasPrefix(p, "/") {
		return fmt.Errorf("http.base_path %q must start with /", p)
	}
	if strings.HasSuffix(p, "/") {
		return fmt.Errorf("http.base_path %q must not end with /", p)
	}
	return nil
}

// expandConfigEnv expands ${VAR} references in path and endpoint fields.
func expandConfigEnv(cfg *Config) {
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.HTTP.SessionStorePath = expandEnv(cfg.HTTP.SessionStorePath)
	cfg.Database.DSN = expandEnv(cfg.Database.DSN)
	cfg.Auth.UserFile = expandEnv(cfg.Auth.UserFile)
	cfg.GitOps.TokenStorePath = expandEnv(cfg.GitOps.TokenStorePath)
	cfg.GitOps.KeyStorePath = expandEnv(cfg.GitOps.KeyStorePath)
	cfg.GitOps.KeyDir = expandEnv(cfg.GitOps.KeyDir)
	cfg.GitOps.MirrorDir = expandEnv(cfg.GitOps.MirrorDir)
	cfg.Runner.Containerd.Address = expandEnv(cfg.Runner.Containerd.Address)
	cfg.SSH.HostKeyPath = expandEnv(cfg.SSH.HostKeyPath)
	cfg.Report.ChromeURL = expandEnv(cfg.Report.ChromeURL)
}

func expandEnv(s string) string {
	return os.Expand(s, lookupEnv)
}

// lookupEnv resolves environment references plus the UID and GID
// pseudo-variables used in socket paths.
func lookupEnv(key string) string {
	switch key {
	case "UID":
		if u, err := user.Current(); err == nil {
			return u.Uid
		}
		return ""
	case "GID":
		if u, err := user.Current(); err == nil {
			return u.Gid
		}
		return ""
	default:
		return os.Getenv(key)
	}
}

// WriteDefault writes the default config to path, creating parent
// directories. It refuses to overwrite an existing file.
func WriteDefault(path string) (string, error) {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return "", err
		}
	}
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("config file %s already exists", path)
	} else if !os.IsNotExist(err) {
		return "", err
	}
	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
