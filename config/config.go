// Package config loads agent settings from defaults, an optional config file,
// AGENT_* environment variables and command-line flags, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces environment overrides: llm.base_url is read from
// AGENT_LLM_BASE_URL.
const EnvPrefix = "AGENT"

// FallbackAPIKeyEnv supplies the credential when llm.api_key is unset.
const FallbackAPIKeyEnv = "OPENAI_API_KEY"

// Config file lookup when no explicit path is given.
const (
	configName = "agent"
	configDir  = "agent"
)

// Keys, for flag binding.
const (
	KeyLLMProvider         = "llm.provider"
	KeyLLMBaseURL          = "llm.base_url"
	KeyLLMAPIKey           = "llm.api_key"
	KeyLLMModel            = "llm.model"
	KeyLLMTemperature      = "llm.temperature"
	KeyLLMMaxTokens        = "llm.max_tokens"
	KeyLLMMaxRetries       = "llm.max_retries"
	KeyLLMTimeout          = "llm.timeout"
	KeyWorkspace           = "workspace"
	KeySkillsPaths         = "skills.paths"
	KeySkillsWatch         = "skills.watch"
	KeyMemoryMaxShortTerm  = "memory.max_short_term"
	KeyMemorySummaryThresh = "memory.summary_threshold"
	KeyMemoryFile          = "memory.file"
	KeyExecTimeout         = "exec.timeout"
	KeyExecInterpreter     = "exec.interpreter"
	KeyExecOutputLimit     = "exec.output_limit"
	KeyLogLevel            = "log.level"
	KeyLogDevelopment      = "log.development"
	KeyUIMarkdown          = "ui.markdown"
)

// LLMConfig selects and tunes the model endpoint.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type SkillsConfig struct {
	Paths []string `mapstructure:"paths"`
	Watch bool     `mapstructure:"watch"`
}

type MemoryConfig struct {
	MaxShortTerm     int    `mapstructure:"max_short_term"`
	SummaryThreshold int    `mapstructure:"summary_threshold"`
	File             string `mapstructure:"file"`
}

type ExecConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	Interpreter []string      `mapstructure:"interpreter"`
	OutputLimit int           `mapstructure:"output_limit"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type UIConfig struct {
	Markdown bool `mapstructure:"markdown"`
}

// Config is the full agent configuration.
type Config struct {
	LLM       LLMConfig    `mapstructure:"llm"`
	Workspace string       `mapstructure:"workspace"`
	Skills    SkillsConfig `mapstructure:"skills"`
	Memory    MemoryConfig `mapstructure:"memory"`
	Exec      ExecConfig   `mapstructure:"exec"`
	Log       LogConfig    `mapstructure:"log"`
	UI        UIConfig     `mapstructure:"ui"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		LLM: LLMConfig{
			Provider:    "openai-compatible",
			BaseURL:     "http://localhost:11434/v1",
			Model:       "llama3",
			Temperature: 0.7,
			Timeout:     120 * time.Second,
		},
		Workspace: "./workspace",
		Skills:    SkillsConfig{Paths: []string{"./skills"}},
		Memory: MemoryConfig{
			MaxShortTerm:     20,
			SummaryThreshold: 15,
			File:             "_memory.json",
		},
		Exec: ExecConfig{
			Timeout:     30 * time.Second,
			Interpreter: []string{"python3"},
			OutputLimit: 30000,
		},
		Log: LogConfig{Level: "warn"},
	}
}

// SetDefaults registers every key with its default so environment overrides
// reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault(KeyLLMProvider, d.LLM.Provider)
	v.SetDefault(KeyLLMBaseURL, d.LLM.BaseURL)
	v.SetDefault(KeyLLMAPIKey, d.LLM.APIKey)
	v.SetDefault(KeyLLMModel, d.LLM.Model)
	v.SetDefault(KeyLLMTemperature, d.LLM.Temperature)
	v.SetDefault(KeyLLMMaxTokens, d.LLM.MaxTokens)
	v.SetDefault(KeyLLMMaxRetries, d.LLM.MaxRetries)
	v.SetDefault(KeyLLMTimeout, d.LLM.Timeout)
	v.SetDefault(KeyWorkspace, d.Workspace)
	v.SetDefault(KeySkillsPaths, d.Skills.Paths)
	v.SetDefault(KeySkillsWatch, d.Skills.Watch)
	v.SetDefault(KeyMemoryMaxShortTerm, d.Memory.MaxShortTerm)
	v.SetDefault(KeyMemorySummaryThresh, d.Memory.SummaryThreshold)
	v.SetDefault(KeyMemoryFile, d.Memory.File)
	v.SetDefault(KeyExecTimeout, d.Exec.Timeout)
	v.SetDefault(KeyExecInterpreter, d.Exec.Interpreter)
	v.SetDefault(KeyExecOutputLimit, d.Exec.OutputLimit)
	v.SetDefault(KeyLogLevel, d.Log.Level)
	v.SetDefault(KeyLogDevelopment, d.Log.Development)
	v.SetDefault(KeyUIMarkdown, d.UI.Markdown)
}

// Load resolves the configuration. An explicit path must exist; without one,
// ./agent.{yaml,json,toml} and $XDG_CONFIG_HOME/agent/agent.* are tried and a
// missing file is not an error. Flags bound to v before Load take precedence
// over everything else.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, configDir))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv(FallbackAPIKeyEnv)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.LLM.Provider != "", "%s must not be empty", KeyLLMProvider)
	check(c.LLM.Model != "", "%s must not be empty", KeyLLMModel)
	check(c.LLM.Temperature >= 0 && c.LLM.Temperature <= 2, "%s must be between 0 and 2, got %v", KeyLLMTemperature, c.LLM.Temperature)
	check(c.LLM.MaxTokens >= 0, "%s must not be negative, got %d", KeyLLMMaxTokens, c.LLM.MaxTokens)
	check(c.LLM.MaxRetries >= 0, "%s must not be negative, got %d", KeyLLMMaxRetries, c.LLM.MaxRetries)
	check(c.LLM.Timeout > 0, "%s must be positive, got %s", KeyLLMTimeout, c.LLM.Timeout)
	if c.LLM.Provider == "openai-compatible" {
		check(c.LLM.BaseURL != "", "%s must not be empty for provider %s", KeyLLMBaseURL, c.LLM.Provider)
	}

	check(strings.TrimSpace(c.Workspace) != "", "%s must not be empty", KeyWorkspace)

	check(c.Memory.MaxShortTerm >= 4, "%s must be at least 4, got %d", KeyMemoryMaxShortTerm, c.Memory.MaxShortTerm)
	check(c.Memory.SummaryThreshold >= 2 && c.Memory.SummaryThreshold <= c.Memory.MaxShortTerm,
		"%s must be between 2 and %s (%d), got %d", KeyMemorySummaryThresh, KeyMemoryMaxShortTerm, c.Memory.MaxShortTerm, c.Memory.SummaryThreshold)
	check(c.Memory.File != "", "%s must not be empty", KeyMemoryFile)
	if c.Memory.File != "" {
		check(filepath.IsLocal(c.Memory.File), "%s must be a relative path inside the workspace, got %q", KeyMemoryFile, c.Memory.File)
	}

	check(c.Exec.Timeout > 0, "%s must be positive, got %s", KeyExecTimeout, c.Exec.Timeout)
	check(len(c.Exec.Interpreter) > 0 && c.Exec.Interpreter[0] != "", "%s must name a program", KeyExecInterpreter)
	check(c.Exec.OutputLimit > 0, "%s must be positive, got %d", KeyExecOutputLimit, c.Exec.OutputLimit)

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", KeyLogLevel, err))
	}

	return errors.Join(errs...)
}

// WriteDefault writes the default configuration as YAML. It refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Defaults().document())
	if err != nil {
		return fmt.Errorf("encode default config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write config file: %w", err)
	}
	return f.Close()
}

// document renders the config as nested maps keyed like the config file,
// with durations in their string form.
func (c Config) document() map[string]any {
	return map[string]any{
		"llm": map[string]any{
			"provider":    c.LLM.Provider,
			"base_url":    c.LLM.BaseURL,
			"api_key":     c.LLM.APIKey,
			"model":       c.LLM.Model,
			"temperature": c.LLM.Temperature,
			"max_tokens":  c.LLM.MaxTokens,
			"max_retries": c.LLM.MaxRetries,
			"timeout":     c.LLM.Timeout.String(),
		},
		"workspace": c.Workspace,
		"skills": map[string]any{
			"paths": c.Skills.Paths,
			"watch": c.Skills.Watch,
		},
		"memory": map[string]any{
			"max_short_term":    c.Memory.MaxShortTerm,
			"summary_threshold": c.Memory.SummaryThreshold,
			"file":              c.Memory.File,
		},
		"exec": map[string]any{
			"timeout":      c.Exec.Timeout.String(),
			"interpreter":  c.Exec.Interpreter,
			"output_limit": c.Exec.OutputLimit,
		},
		"log": map[string]any{
			"level":       c.Log.Level,
			"development": c.Log.Development,
		},
		"ui": map[string]any{
			"markdown": c.UI.Markdown,
		},
	}
}
