// Package config loads codepilot settings from TOML files, .env files and the
// environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	DefaultAPIURL   = "http://127.0.0.1:7480"
	DefaultLogLevel = "debug"

	BackendSQLite = "sqlite"
	BackendJSON   = "json"

	ProviderOpenAI = "openai"
	ProviderStatic = "static"

	DefaultStoreBackend    = BackendSQLite
	DefaultDBFileName      = ".codepilot.db"
	DefaultTasksDirName    = "tasks"
	DefaultGitPath         = "git"
	DefaultAIProvider      = ProviderOpenAI
	DefaultAIBaseURL       = "https://api.openai.com/v1"
	DefaultAIModel         = "gpt-4o"
	DefaultAITemperature   = 0.2
	DefaultAITimeout       = 2 * time.Minute
	DefaultAttemptTimeout  = 15 * time.Minute
	DefaultGenerateTimeout = 3 * time.Minute
	DefaultGitTimeout      = 2 * time.Minute
	DefaultAuthorName      = "CodePilot"
	DefaultAuthorEmail     = "codepilot@localhost"

	configFileName           = ".codepilot.toml"
	envFileName              = ".env"
	configDirEnvKey          = "CODEPILOT_CONFIG_DIR"
	trustProjectConfigEnvKey = "CODEPILOT_TRUST_PROJECT_CONFIG"
)

// Duration is a time.Duration written as a string such as "15m".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := parseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// StoreConfig selects the task store backend.
type StoreConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

// WorkspaceConfig controls the local clones of target repositories.
type WorkspaceConfig struct {
	Root          string   `toml:"root"`
	GitPath       string   `toml:"git_path"`
	DefaultBranch string   `toml:"default_branch"`
	Ignore        []string `toml:"ignore"`
}

// AIConfig configures the generator service.
type AIConfig struct {
	Provider    string   `toml:"provider"`
	BaseURL     string   `toml:"base_url"`
	APIKey      string   `toml:"api_key"`
	Model       string   `toml:"model"`
	Temperature float64  `toml:"temperature"`
	Timeout     Duration `toml:"timeout"`
}

// ApplyConfig bounds apply attempts and sets the commit author.
type ApplyConfig struct {
	AttemptTimeout  Duration `toml:"attempt_timeout"`
	GenerateTimeout Duration `toml:"generate_timeout"`
	GitTimeout      Duration `toml:"git_timeout"`
	AuthorName      string   `toml:"author_name"`
	AuthorEmail     string   `toml:"author_email"`
}

// AuthConfig holds the API token hash.
type AuthConfig struct {
	TokenHash string `toml:"token_hash"`
}

// Config defines runtime configuration for codepilot.
type Config struct {
	APIURL                   string          `toml:"api_url"`
	LogLevel                 string          `toml:"log_level"`
	TargetRepo               string          `toml:"target_repo"`
	Store                    StoreConfig     `toml:"store"`
	Workspace                WorkspaceConfig `toml:"workspace"`
	AI                       AIConfig        `toml:"ai"`
	Apply                    ApplyConfig     `toml:"apply"`
	Auth                     AuthConfig      `toml:"auth"`
	TrustedProjectConfigPath string          `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		LogLevel: DefaultLogLevel,
		Store: StoreConfig{
			Backend: DefaultStoreBackend,
		},
		Workspace: WorkspaceConfig{
			GitPath: DefaultGitPath,
		},
		AI: AIConfig{
			Provider:    DefaultAIProvider,
			BaseURL:     DefaultAIBaseURL,
			Model:       DefaultAIModel,
			Temperature: DefaultAITemperature,
			Timeout:     Duration{DefaultAITimeout},
		},
		Apply: ApplyConfig{
			AttemptTimeout:  Duration{DefaultAttemptTimeout},
			GenerateTimeout: Duration{DefaultGenerateTimeout},
			GitTimeout:      Duration{DefaultGitTimeout},
			AuthorName:      DefaultAuthorName,
			AuthorEmail:     DefaultAuthorEmail,
		},
	}
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, configFileName), nil
}

// Load reads config from trusted files, then .env files, then the process
// environment, and validates the result.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, configFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	env, err := loadEnv()
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(env); err != nil {
		return nil, err
	}
	cfg.fillDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// fillDefaults resolves settings whose defaults depend on the environment.
func (c *Config) fillDefaults() {
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Store.Backend == "" {
		c.Store.Backend = DefaultStoreBackend
	}
	if c.Store.Path == "" {
		if cwd, err := os.Getwd(); err == nil {
			if c.Store.Backend == BackendJSON {
				c.Store.Path = filepath.Join(cwd, DefaultTasksDirName)
			} else {
				c.Store.Path = filepath.Join(cwd, DefaultDBFileName)
			}
		}
	}
	if c.Workspace.Root == "" {
		if cache, err := os.UserCacheDir(); err == nil {
			c.Workspace.Root = filepath.Join(cache, "codepilot", "workspaces")
		}
	}
	if c.Workspace.GitPath == "" {
		c.Workspace.GitPath = DefaultGitPath
	}
	if c.AI.Provider == "" {
		c.AI.Provider = DefaultAIProvider
	}
	if c.AI.BaseURL == "" {
		c.AI.BaseURL = DefaultAIBaseURL
	}
	if c.AI.Model == "" {
		c.AI.Model = DefaultAIModel
	}
}

// envSource looks up a variable in the process environment first and the
// parsed .env files second.
type envSource struct {
	dotenv map[string]string
}

func (e envSource) get(key string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return strings.TrimSpace(e.dotenv[key])
}

// loadEnv parses .env from the config directory override and the working
// directory. Entries from the working directory win.
func loadEnv() (envSource, error) {
	values := map[string]string{}
	var paths []string
	if dir := strings.TrimSpace(os.Getenv(configDirEnvKey)); dir != "" {
		paths = append(paths, filepath.Join(dir, envFileName))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, envFileName))
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		parsed, err := godotenv.Read(path)
		if err != nil {
			return envSource{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		for key, value := range parsed {
			values[key] = value
		}
	}
	return envSource{dotenv: values}, nil
}

// applyEnv applies environment overrides. The OPENAI_* and TARGET_REPO_*
// names are accepted for compatibility with existing .env files.
func (c *Config) applyEnv(env envSource) error {
	strs := []struct {
		keys []string
		dst  *string
	}{
		{[]string{"CODEPILOT_API_URL"}, &c.APIURL},
		{[]string{"CODEPILOT_STORE_BACKEND"}, &c.Store.Backend},
		{[]string{"CODEPILOT_STORE_PATH", "CODEPILOT_DB"}, &c.Store.Path},
		{[]string{"CODEPILOT_WORKSPACE_ROOT", "TARGET_REPO_LOCAL_PATH"}, &c.Workspace.Root},
		{[]string{"CODEPILOT_GIT_PATH"}, &c.Workspace.GitPath},
		{[]string{"CODEPILOT_DEFAULT_BRANCH", "TARGET_REPO_DEFAULT_BRANCH"}, &c.Workspace.DefaultBranch},
		{[]string{"CODEPILOT_TARGET_REPO", "TARGET_REPO_URL"}, &c.TargetRepo},
		{[]string{"CODEPILOT_AI_PROVIDER"}, &c.AI.Provider},
		{[]string{"CODEPILOT_AI_BASE_URL", "OPENAI_BASE_URL"}, &c.AI.BaseURL},
		{[]string{"CODEPILOT_AI_API_KEY", "OPENAI_API_KEY"}, &c.AI.APIKey},
		{[]string{"CODEPILOT_AI_MODEL", "OPENAI_MODEL"}, &c.AI.Model},
		{[]string{"CODEPILOT_AUTH_TOKEN_HASH"}, &c.Auth.TokenHash},
	}
	for _, s := range strs {
		for _, key := range s.keys {
			if value := env.get(key); value != "" {
				*s.dst = value
				break
			}
		}
	}

	if raw := env.get("CODEPILOT_WORKSPACE_IGNORE"); raw != "" {
		c.Workspace.Ignore = splitCSV(raw)
	}
	if raw := env.get("CODEPILOT_AI_TEMPERATURE"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("invalid CODEPILOT_AI_TEMPERATURE %q", raw)
		}
		c.AI.Temperature = parsed
	}

	durations := []struct {
		key string
		dst *Duration
	}{
		{"CODEPILOT_AI_TIMEOUT", &c.AI.Timeout},
		{"CODEPILOT_ATTEMPT_TIMEOUT", &c.Apply.AttemptTimeout},
		{"CODEPILOT_GENERATE_TIMEOUT", &c.Apply.GenerateTimeout},
		{"CODEPILOT_GIT_TIMEOUT", &c.Apply.GitTimeout},
	}
	for _, d := range durations {
		raw := env.get(d.key)
		if raw == "" {
			continue
		}
		parsed, err := parseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.key, raw, err)
		}
		d.dst.Duration = parsed
	}
	return nil
}

// parseDuration accepts Go durations and bare integer seconds.
func parseDuration(raw string) (time.Duration, error) {
	value := strings.TrimSpace(raw)
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	return time.ParseDuration(value)
}

func splitCSV(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
