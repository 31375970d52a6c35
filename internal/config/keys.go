package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

var allowedKeys = []string{
	"api_url",
	"log_level",
	"target_repo",
	"store.backend",
	"store.path",
	"workspace.root",
	"workspace.git_path",
	"workspace.default_branch",
	"workspace.ignore",
	"ai.provider",
	"ai.base_url",
	"ai.api_key",
	"ai.model",
	"ai.temperature",
	"ai.timeout",
	"apply.attempt_timeout",
	"apply.generate_timeout",
	"apply.git_timeout",
	"apply.author_name",
	"apply.author_email",
	"auth.token_hash",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	return slices.Contains(allowedKeys, key)
}

// IsSecretKey reports whether a key holds a credential.
func IsSecretKey(key string) bool {
	return key == "ai.api_key"
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "log_level":
		return c.LogLevel, nil
	case "target_repo":
		return c.TargetRepo, nil
	case "store.backend":
		return c.Store.Backend, nil
	case "store.path":
		return c.Store.Path, nil
	case "workspace.root":
		return c.Workspace.Root, nil
	case "workspace.git_path":
		return c.Workspace.GitPath, nil
	case "workspace.default_branch":
		return c.Workspace.DefaultBranch, nil
	case "workspace.ignore":
		return strings.Join(c.Workspace.Ignore, ","), nil
	case "ai.provider":
		return c.AI.Provider, nil
	case "ai.base_url":
		return c.AI.BaseURL, nil
	case "ai.api_key":
		return c.AI.APIKey, nil
	case "ai.model":
		return c.AI.Model, nil
	case "ai.temperature":
		return strconv.FormatFloat(c.AI.Temperature, 'g', -1, 64), nil
	case "ai.timeout":
		return c.AI.Timeout.String(), nil
	case "apply.attempt_timeout":
		return c.Apply.AttemptTimeout.String(), nil
	case "apply.generate_timeout":
		return c.Apply.GenerateTimeout.String(), nil
	case "apply.git_timeout":
		return c.Apply.GitTimeout.String(), nil
	case "apply.author_name":
		return c.Apply.AuthorName, nil
	case "apply.author_email":
		return c.Apply.AuthorEmail, nil
	case "auth.token_hash":
		return c.Auth.TokenHash, nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	perm := os.FileMode(0o644)
	if IsSecretKey(key) {
		perm = 0o600
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "ai.temperature":
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil || parsed < 0 || parsed > 2 {
			return nil, fmt.Errorf("%s must be a number between 0 and 2", key)
		}
		return parsed, nil
	case "ai.timeout", "apply.attempt_timeout", "apply.generate_timeout", "apply.git_timeout":
		parsed, err := parseDuration(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive duration such as 90s or 15m", key)
		}
		return parsed.String(), nil
	case "store.backend":
		if err := oneOf(BackendSQLite, BackendJSON)(value); err != nil {
			return nil, fmt.Errorf("%s %w", key, err)
		}
		return value, nil
	case "ai.provider":
		if err := oneOf(ProviderOpenAI, ProviderStatic)(value); err != nil {
			return nil, fmt.Errorf("%s %w", key, err)
		}
		return value, nil
	case "log_level":
		if err := isLogLevel(value); err != nil {
			return nil, fmt.Errorf("%s %w", key, err)
		}
		return value, nil
	case "auth.token_hash":
		if err := isTokenHash(value); err != nil {
			return nil, fmt.Errorf("%s %w", key, err)
		}
		return value, nil
	case "workspace.ignore":
		return splitCSV(value), nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}
