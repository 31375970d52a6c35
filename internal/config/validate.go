package config

import (
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hay-kot/criterio"

	"codepilot/internal/auth"
)

// Validate checks the loaded configuration and reports every invalid field.
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		criterio.Run("api_url", c.APIURL, isHTTPURL),
		criterio.Run("log_level", c.LogLevel, isLogLevel),
		criterio.Run("store.backend", c.Store.Backend, oneOf(BackendSQLite, BackendJSON)),
		criterio.Run("store.path", c.Store.Path, notEmpty),
		criterio.Run("workspace.git_path", c.Workspace.GitPath, notEmpty),
		criterio.Run("ai.provider", c.AI.Provider, oneOf(ProviderOpenAI, ProviderStatic)),
		criterio.Run("auth.token_hash", c.Auth.TokenHash, isTokenHash),
		c.validateIgnore(),
		c.validateAI(),
		c.validateApply(),
	)
}

// ValidateDeep runs Validate and then checks the filesystem: the git
// executable must exist and the workspace root must be a directory.
func (c *Config) ValidateDeep() error {
	if err := c.Validate(); err != nil {
		return err
	}
	return criterio.ValidateStruct(
		criterio.Run("workspace.git_path", c.Workspace.GitPath, gitExecutableExists),
		criterio.Run("workspace.root", c.Workspace.Root, isDirectoryOrNotExist),
		criterio.Run("store.path", c.Store.Path, c.storePathUsable),
	)
}

// storePathUsable rejects a store path whose kind does not match the backend.
func (c *Config) storePathUsable(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot access: %w", err)
	}
	if c.Store.Backend == BackendJSON && !info.IsDir() {
		return fmt.Errorf("json backend needs a directory")
	}
	if c.Store.Backend == BackendSQLite && info.IsDir() {
		return fmt.Errorf("sqlite backend needs a file path")
	}
	return nil
}

func (c *Config) validateIgnore() error {
	var errs criterio.FieldErrorsBuilder
	for i, pattern := range c.Workspace.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			errs = errs.Append(fmt.Sprintf("workspace.ignore[%d]", i), fmt.Errorf("invalid glob %q", pattern))
		}
	}
	return errs.ToError()
}

func (c *Config) validateAI() error {
	var errs criterio.FieldErrorsBuilder
	if c.AI.Provider == ProviderOpenAI {
		if err := isHTTPURL(c.AI.BaseURL); err != nil {
			errs = errs.Append("ai.base_url", err)
		}
		if strings.TrimSpace(c.AI.Model) == "" {
			errs = errs.Append("ai.model", fmt.Errorf("is required"))
		}
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		errs = errs.Append("ai.temperature", fmt.Errorf("must be between 0 and 2"))
	}
	if err := positive(c.AI.Timeout.Duration); err != nil {
		errs = errs.Append("ai.timeout", err)
	}
	return errs.ToError()
}

func (c *Config) validateApply() error {
	var errs criterio.FieldErrorsBuilder
	for field, d := range map[string]time.Duration{
		"apply.attempt_timeout":  c.Apply.AttemptTimeout.Duration,
		"apply.generate_timeout": c.Apply.GenerateTimeout.Duration,
		"apply.git_timeout":      c.Apply.GitTimeout.Duration,
	} {
		if err := positive(d); err != nil {
			errs = errs.Append(field, err)
		}
	}
	if c.Apply.GenerateTimeout.Duration > c.Apply.AttemptTimeout.Duration {
		errs = errs.Append("apply.generate_timeout", fmt.Errorf("must not exceed apply.attempt_timeout"))
	}
	if strings.TrimSpace(c.Apply.AuthorName) == "" {
		errs = errs.Append("apply.author_name", fmt.Errorf("is required"))
	}
	if !strings.Contains(c.Apply.AuthorEmail, "@") {
		errs = errs.Append("apply.author_email", fmt.Errorf("must be an email address"))
	}
	return errs.ToError()
}

func isHTTPURL(value string) error {
	u, err := url.Parse(strings.TrimSpace(value))
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("must be an http(s) URL")
	}
	return nil
}

func isLogLevel(value string) error {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("must be one of debug, info, warn, error")
	}
}

func oneOf(allowed ...string) func(string) error {
	return func(value string) error {
		for _, a := range allowed {
			if value == a {
				return nil
			}
		}
		return fmt.Errorf("must be one of %s", strings.Join(allowed, ", "))
	}
}

func notEmpty(value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("is required")
	}
	return nil
}

func positive(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

// gitExecutableExists validates that the git path is executable.
func gitExecutableExists(path string) error {
	if path == "" {
		return fmt.Errorf("is required")
	}
	if _, err := exec.LookPath(path); err != nil {
		return fmt.Errorf("executable not found: %s", path)
	}
	return nil
}

// isDirectoryOrNotExist validates that a path is a directory or doesn't exist.
func isDirectoryOrNotExist(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot access: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("exists but is not a directory")
	}
	return nil
}

func isTokenHash(value string) error {
	if value == "" || auth.IsHash(value) {
		return nil
	}
	return fmt.Errorf("must be a bcrypt hash; create one with: codepilot token hash")
}
