package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hay-kot/criterio"

	"codepilot/internal/auth"
)

var envKeys = []string{
	configDirEnvKey,
	trustProjectConfigEnvKey,
	"CODEPILOT_API_URL",
	"CODEPILOT_STORE_BACKEND",
	"CODEPILOT_STORE_PATH",
	"CODEPILOT_DB",
	"CODEPILOT_WORKSPACE_ROOT",
	"TARGET_REPO_LOCAL_PATH",
	"CODEPILOT_GIT_PATH",
	"CODEPILOT_DEFAULT_BRANCH",
	"TARGET_REPO_DEFAULT_BRANCH",
	"CODEPILOT_TARGET_REPO",
	"TARGET_REPO_URL",
	"CODEPILOT_AI_PROVIDER",
	"CODEPILOT_AI_BASE_URL",
	"OPENAI_BASE_URL",
	"CODEPILOT_AI_API_KEY",
	"OPENAI_API_KEY",
	"CODEPILOT_AI_MODEL",
	"OPENAI_MODEL",
	"CODEPILOT_AUTH_TOKEN_HASH",
	"CODEPILOT_WORKSPACE_IGNORE",
	"CODEPILOT_AI_TEMPERATURE",
	"CODEPILOT_AI_TIMEOUT",
	"CODEPILOT_ATTEMPT_TIMEOUT",
	"CODEPILOT_GENERATE_TIMEOUT",
	"CODEPILOT_GIT_TIMEOUT",
}

// isolate points HOME and the working directory at fresh temp dirs and clears
// every variable Load reads. It returns (home, workspace).
func isolate(t *testing.T) (string, string) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
	homeDir := t.TempDir()
	workspace := t.TempDir()
	t.Setenv("HOME", homeDir)
	t.Setenv("XDG_CACHE_HOME", filepath.Join(homeDir, ".cache"))

	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(oldWD)
	})
	if err := os.Chdir(workspace); err != nil {
		t.Fatalf("chdir workspace: %v", err)
	}
	return homeDir, workspace
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.APIURL != DefaultAPIURL {
		t.Fatalf("expected default API URL, got %q", cfg.APIURL)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("expected default log level %q, got %q", DefaultLogLevel, cfg.LogLevel)
	}
	if cfg.Store.Backend != BackendSQLite || cfg.Store.Path != "" {
		t.Fatalf("unexpected store defaults: %+v", cfg.Store)
	}
	if cfg.AI.Provider != ProviderOpenAI || cfg.AI.Model != DefaultAIModel {
		t.Fatalf("unexpected ai defaults: %+v", cfg.AI)
	}
	if cfg.Apply.AttemptTimeout.Duration != DefaultAttemptTimeout {
		t.Fatalf("expected attempt timeout %v, got %v", DefaultAttemptTimeout, cfg.Apply.AttemptTimeout)
	}
	if cfg.Apply.GenerateTimeout.Duration != DefaultGenerateTimeout {
		t.Fatalf("expected generate timeout %v, got %v", DefaultGenerateTimeout, cfg.Apply.GenerateTimeout)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), configFileName)
	writeFile(t, path, `api_url = "http://localhost:9999"
log_level = "warn"
target_repo = "https://example.com/acme/app.git"

[store]
backend = "json"

[workspace]
ignore = ["vendor/**", "**/*.min.js"]

[ai]
timeout = "90s"
temperature = 0.5

[apply]
attempt_timeout = "30m"
`)

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://localhost:9999" || cfg.LogLevel != "warn" {
		t.Fatalf("unexpected top-level values: %+v", cfg)
	}
	if cfg.Store.Backend != BackendJSON {
		t.Fatalf("expected json backend, got %q", cfg.Store.Backend)
	}
	if len(cfg.Workspace.Ignore) != 2 {
		t.Fatalf("expected two ignore patterns, got %v", cfg.Workspace.Ignore)
	}
	if cfg.AI.Timeout.Duration != 90*time.Second || cfg.AI.Temperature != 0.5 {
		t.Fatalf("unexpected ai values: %+v", cfg.AI)
	}
	if cfg.Apply.AttemptTimeout.Duration != 30*time.Minute {
		t.Fatalf("expected 30m attempt timeout, got %v", cfg.Apply.AttemptTimeout)
	}
	if cfg.Apply.GenerateTimeout.Duration != DefaultGenerateTimeout {
		t.Fatalf("expected untouched generate timeout, got %v", cfg.Apply.GenerateTimeout)
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg := Default()
	if err := loadFile("/nonexistent/path/.codepilot.toml", &cfg); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.APIURL != DefaultAPIURL {
		t.Fatalf("defaults should be preserved")
	}
}

func TestLoadFileInvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), configFileName)
	writeFile(t, path, "[apply]\ngit_timeout = \"soon\"\n")

	cfg := Default()
	if err := loadFile(path, &cfg); err == nil {
		t.Fatal("expected parse error for invalid duration")
	}
}

func TestIsAllowedKey(t *testing.T) {
	for _, key := range []string{
		"api_url",
		"log_level",
		"target_repo",
		"store.backend",
		"workspace.ignore",
		"ai.api_key",
		"apply.generate_timeout",
		"auth.token_hash",
	} {
		if !IsAllowedKey(key) {
			t.Fatalf("expected %q to be allowed", key)
		}
	}
	if IsAllowedKey("invalid") {
		t.Fatal("expected 'invalid' to not be allowed")
	}
}

func TestGetKey(t *testing.T) {
	cfg := Default()
	cfg.TargetRepo = "https://example.com/app.git"
	cfg.Workspace.Ignore = []string{"vendor/**", "dist/**"}

	tests := map[string]string{
		"api_url":               DefaultAPIURL,
		"target_repo":           "https://example.com/app.git",
		"store.backend":         "sqlite",
		"workspace.ignore":      "vendor/**,dist/**",
		"ai.temperature":        "0.2",
		"apply.attempt_timeout": "15m0s",
		"apply.author_email":    DefaultAuthorEmail,
	}
	for key, want := range tests {
		got, err := cfg.Get(key)
		if err != nil || got != want {
			t.Fatalf("Get(%q)=%q (err: %v), want %q", key, got, err, want)
		}
	}
	if _, err := cfg.Get("invalid"); err == nil {
		t.Fatal("expected error for invalid key")
	}
	for _, key := range AllowedKeys() {
		if _, err := cfg.Get(key); err != nil {
			t.Fatalf("allowed key %q has no getter: %v", key, err)
		}
	}
}

func TestSetKeyCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.toml")
	if err := SetKey(path, "target_repo", "https://example.com/app.git"); err != nil {
		t.Fatalf("set: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TargetRepo != "https://example.com/app.git" {
		t.Fatalf("expected target repo, got %q", cfg.TargetRepo)
	}
}

func TestSetKeyUpdatesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "existing.toml")
	writeFile(t, path, "log_level = \"info\"\napi_url = \"http://keep\"\n")

	if err := SetKey(path, "log_level", "error"); err != nil {
		t.Fatalf("set: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "error" {
		t.Fatalf("expected 'error', got %q", cfg.LogLevel)
	}
	if cfg.APIURL != "http://keep" {
		t.Fatalf("expected preserved api_url 'http://keep', got %q", cfg.APIURL)
	}
}

func TestSetNestedKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested.toml")
	for key, value := range map[string]string{
		"apply.git_timeout": "45",
		"ai.temperature":    "0.7",
		"workspace.ignore":  "vendor/**, node_modules/**",
		"ai.provider":       "static",
	} {
		if err := SetKey(path, key, value); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Apply.GitTimeout.Duration != 45*time.Second {
		t.Fatalf("expected 45s git timeout, got %v", cfg.Apply.GitTimeout)
	}
	if cfg.AI.Temperature != 0.7 || cfg.AI.Provider != ProviderStatic {
		t.Fatalf("unexpected ai values: %+v", cfg.AI)
	}
	if len(cfg.Workspace.Ignore) != 2 || cfg.Workspace.Ignore[1] != "node_modules/**" {
		t.Fatalf("unexpected ignore list: %v", cfg.Workspace.Ignore)
	}
}

func TestSetKeyRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.toml")
	for key, value := range map[string]string{
		"invalid_key":       "value",
		"store.backend":     "postgres",
		"apply.git_timeout": "-5s",
		"ai.temperature":    "hot",
		"log_level":         "loud",
		"auth.token_hash":   "plaintext-token",
	} {
		if err := SetKey(path, key, value); err == nil {
			t.Fatalf("expected error for %s=%s", key, value)
		}
	}
}

func TestSetKeySecretFileMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret.toml")
	if err := SetKey(path, "ai.api_key", "sk-test"); err != nil {
		t.Fatalf("set: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600, got %v", info.Mode().Perm())
	}
}

func TestConfigDirOverridePaths(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	t.Setenv(configDirEnvKey, dir)

	globalPath, err := GlobalPath()
	if err != nil {
		t.Fatalf("global path: %v", err)
	}
	if globalPath != filepath.Join(dir, configFileName) {
		t.Fatalf("unexpected global path: %s", globalPath)
	}

	projectPath, err := ProjectPath()
	if err != nil {
		t.Fatalf("project path: %v", err)
	}
	if projectPath != filepath.Join(dir, configFileName) {
		t.Fatalf("unexpected project path: %s", projectPath)
	}
}

func TestLoadDefaultsDependOnWorkingDir(t *testing.T) {
	homeDir, workspace := isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Path != filepath.Join(workspace, DefaultDBFileName) {
		t.Fatalf("expected default db path in workspace, got %q", cfg.Store.Path)
	}
	if cfg.Workspace.Root != filepath.Join(homeDir, ".cache", "codepilot", "workspaces") {
		t.Fatalf("unexpected workspace root %q", cfg.Workspace.Root)
	}
}

func TestLoadJSONBackendDefaultsToTasksDir(t *testing.T) {
	homeDir, workspace := isolate(t)
	writeFile(t, filepath.Join(homeDir, configFileName), "[store]\nbackend = \"json\"\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Path != filepath.Join(workspace, DefaultTasksDirName) {
		t.Fatalf("expected tasks dir, got %q", cfg.Store.Path)
	}
}

func TestLoadConfigDirOverride(t *testing.T) {
	_, workspace := isolate(t)
	configDir := t.TempDir()
	writeFile(t, filepath.Join(configDir, configFileName), "api_url = \"http://127.0.0.1:9001\"\n")
	writeFile(t, filepath.Join(workspace, configFileName), "api_url = \"http://127.0.0.1:9002\"\n")
	t.Setenv(configDirEnvKey, configDir)
	t.Setenv(trustProjectConfigEnvKey, "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://127.0.0.1:9001" {
		t.Fatalf("expected config-dir api_url, got %q", cfg.APIURL)
	}
	if cfg.TrustedProjectConfigPath != "" {
		t.Fatalf("expected project config to be ignored, got %q", cfg.TrustedProjectConfigPath)
	}
}

func TestLoadProjectConfigTrust(t *testing.T) {
	tests := []struct {
		name      string
		trust     string
		wantRepo  string
		wantTrust bool
	}{
		{name: "ignored by default", trust: "", wantRepo: "https://example.com/global.git"},
		{name: "applied when trusted", trust: "true", wantRepo: "https://example.com/project.git", wantTrust: true},
		{name: "invalid env value", trust: "maybe", wantRepo: "https://example.com/global.git"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			homeDir, workspace := isolate(t)
			writeFile(t, filepath.Join(homeDir, configFileName), "target_repo = \"https://example.com/global.git\"\n")
			writeFile(t, filepath.Join(workspace, configFileName), "target_repo = \"https://example.com/project.git\"\n")
			t.Setenv(trustProjectConfigEnvKey, tt.trust)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if cfg.TargetRepo != tt.wantRepo {
				t.Fatalf("expected target repo %q, got %q", tt.wantRepo, cfg.TargetRepo)
			}
			if got := cfg.TrustedProjectConfigPath != ""; got != tt.wantTrust {
				t.Fatalf("expected trusted=%v, got path %q", tt.wantTrust, cfg.TrustedProjectConfigPath)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	homeDir, _ := isolate(t)
	writeFile(t, filepath.Join(homeDir, configFileName), "target_repo = \"https://example.com/file.git\"\n")
	t.Setenv("CODEPILOT_API_URL", "http://example.com:8080")
	t.Setenv("CODEPILOT_DB", "/tmp/override.db")
	t.Setenv("TARGET_REPO_URL", "https://example.com/env.git")
	t.Setenv("TARGET_REPO_DEFAULT_BRANCH", "develop")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("CODEPILOT_GENERATE_TIMEOUT", "120")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://example.com:8080" {
		t.Fatalf("expected env override for API URL, got %q", cfg.APIURL)
	}
	if cfg.Store.Path != "/tmp/override.db" {
		t.Fatalf("expected env override for store path, got %q", cfg.Store.Path)
	}
	if cfg.TargetRepo != "https://example.com/env.git" || cfg.Workspace.DefaultBranch != "develop" {
		t.Fatalf("unexpected repo settings: %q %q", cfg.TargetRepo, cfg.Workspace.DefaultBranch)
	}
	if cfg.AI.APIKey != "sk-env" {
		t.Fatalf("expected api key from env, got %q", cfg.AI.APIKey)
	}
	if cfg.Apply.GenerateTimeout.Duration != 2*time.Minute {
		t.Fatalf("expected 2m generate timeout, got %v", cfg.Apply.GenerateTimeout)
	}
}

func TestPrefixedEnvWinsOverCompatibilityName(t *testing.T) {
	isolate(t)
	t.Setenv("CODEPILOT_TARGET_REPO", "https://example.com/prefixed.git")
	t.Setenv("TARGET_REPO_URL", "https://example.com/legacy.git")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TargetRepo != "https://example.com/prefixed.git" {
		t.Fatalf("expected prefixed variable to win, got %q", cfg.TargetRepo)
	}
}

func TestLoadDotEnv(t *testing.T) {
	_, workspace := isolate(t)
	writeFile(t, filepath.Join(workspace, envFileName), "OPENAI_API_KEY=sk-dotenv\nTARGET_REPO_URL=https://example.com/dotenv.git\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AI.APIKey != "sk-dotenv" || cfg.TargetRepo != "https://example.com/dotenv.git" {
		t.Fatalf("expected .env values, got %q %q", cfg.AI.APIKey, cfg.TargetRepo)
	}
	if os.Getenv("OPENAI_API_KEY") != "" {
		t.Fatal(".env values must not leak into the process environment")
	}

	t.Setenv("OPENAI_API_KEY", "sk-process")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AI.APIKey != "sk-process" {
		t.Fatalf("expected process env to win over .env, got %q", cfg.AI.APIKey)
	}
}

func TestLoadInvalidEnvDuration(t *testing.T) {
	isolate(t)
	t.Setenv("CODEPILOT_ATTEMPT_TIMEOUT", "forever")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "CODEPILOT_ATTEMPT_TIMEOUT") {
		t.Fatalf("expected attempt timeout error, got %v", err)
	}
}

func TestLoadFallsBackToDefaultLogLevelWhenConfiguredEmpty(t *testing.T) {
	homeDir, _ := isolate(t)
	writeFile(t, filepath.Join(homeDir, configFileName), "log_level = \"\"\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("expected default log level %q, got %q", DefaultLogLevel, cfg.LogLevel)
	}
}

func TestValidateReportsEveryField(t *testing.T) {
	cfg := Default()
	cfg.Store.Path = "/tmp/x.db"
	cfg.APIURL = "not a url"
	cfg.Store.Backend = "postgres"
	cfg.AI.Provider = "anthropic"
	cfg.Workspace.Ignore = []string{"[unclosed"}
	cfg.Apply.GenerateTimeout = Duration{time.Hour}

	err := cfg.Validate()
	var fieldErrs criterio.FieldErrors
	if !errors.As(err, &fieldErrs) {
		t.Fatalf("expected field errors, got %v", err)
	}
	fields := map[string]bool{}
	for _, fe := range fieldErrs {
		fields[fe.Field] = true
	}
	for _, want := range []string{"api_url", "store.backend", "ai.provider", "workspace.ignore[0]", "apply.generate_timeout"} {
		if !fields[want] {
			t.Fatalf("expected error for %s, got %v", want, err)
		}
	}
}

func TestValidateTokenHash(t *testing.T) {
	cfg := Default()
	cfg.Store.Path = "/tmp/x.db"
	cfg.Auth.TokenHash = "not-a-hash"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected invalid token hash error")
	}

	hash, err := auth.HashToken("a-long-enough-token")
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	cfg.Auth.TokenHash = hash
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateDeepStorePathKind(t *testing.T) {
	cfg := Default()
	cfg.Workspace.Root = t.TempDir()
	cfg.Workspace.GitPath = os.Args[0]
	cfg.Store.Backend = BackendJSON
	cfg.Store.Path = filepath.Join(t.TempDir(), "tasks.db")
	writeFile(t, cfg.Store.Path, "")

	err := cfg.ValidateDeep()
	var fieldErrs criterio.FieldErrors
	if !errors.As(err, &fieldErrs) {
		t.Fatalf("expected field errors, got %v", err)
	}
	if len(fieldErrs) != 1 || fieldErrs[0].Field != "store.path" {
		t.Fatalf("expected store.path error only, got %v", err)
	}
}
