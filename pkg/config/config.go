// Package config は CLI とサービスの設定を扱います。
//
// 設定は 既定値 < YAML ファイル < 環境変数 < CLI フラグ の順に上書きされます。
// API キーは環境変数からのみ読み込みます。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shouni/gemini-photo-editor/pkg/retry"
	"gopkg.in/yaml.v3"
)

const (
	EnvAPIKey         = "GEMINI_API_KEY"
	EnvAPIKeyFallback = "API_KEY"
	EnvModel          = "PHOTOEDIT_MODEL"
	EnvStrategy       = "PHOTOEDIT_STRATEGY"
	EnvMaxAttempts    = "PHOTOEDIT_MAX_ATTEMPTS"
	EnvBaseDelay      = "PHOTOEDIT_BASE_DELAY"
	EnvQueueDelay     = "PHOTOEDIT_QUEUE_DELAY"
	EnvBatchDelay     = "PHOTOEDIT_BATCH_DELAY"
	EnvOutputDir      = "PHOTOEDIT_OUTPUT_DIR"
	EnvLogLevel       = "PHOTOEDIT_LOG_LEVEL"
	EnvLogFormat      = "PHOTOEDIT_LOG_FORMAT"
)

// Config はアプリケーション全体の設定です。
type Config struct {
	Model         string        `yaml:"model"`
	Strategy      string        `yaml:"strategy"`
	MaxAttempts   int           `yaml:"max_attempts"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	QueueDelay    time.Duration `yaml:"queue_delay"`
	BatchDelay    time.Duration `yaml:"batch_delay"`
	CompressInput bool          `yaml:"compress_input"`
	Quality       int           `yaml:"quality"`
	Concurrency   int           `yaml:"concurrency"`
	OutputDir     string        `yaml:"output_dir"`
	LogLevel      string        `yaml:"log_level"`
	LogFormat     string        `yaml:"log_format"`

	// APIKey はファイルには書かず、環境変数から設定します。
	APIKey string `yaml:"-"`
}

// Default は既定値の設定を返します。
func Default() *Config {
	return &Config{
		Model:       "gemini-2.5-flash-image-preview",
		Strategy:    "retry",
		MaxAttempts: 8,
		BaseDelay:   7500 * time.Millisecond,
		QueueDelay:  3500 * time.Millisecond,
		BatchDelay:  3000 * time.Millisecond,
		Quality:     85,
		Concurrency: 4,
		OutputDir:   "./edited_images",
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// LoadFile は YAML ファイルの内容を cfg に上書きします。ファイルに無い項目は変更しません。
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗しました: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("設定ファイルの解析に失敗しました (%s): %w", path, err)
	}
	return nil
}

// ApplyEnv は環境変数の値を cfg に上書きします。数値や時間として解釈できない値はエラーです。
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg.APIKey = firstNonEmpty(getenv(EnvAPIKey), getenv(EnvAPIKeyFallback))

	setString(&cfg.Model, getenv(EnvModel))
	setString(&cfg.Strategy, getenv(EnvStrategy))
	setString(&cfg.OutputDir, getenv(EnvOutputDir))
	setString(&cfg.LogLevel, getenv(EnvLogLevel))
	setString(&cfg.LogFormat, getenv(EnvLogFormat))

	if v := getenv(EnvMaxAttempts); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvMaxAttempts, err)
		}
		cfg.MaxAttempts = n
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{EnvBaseDelay, &cfg.BaseDelay},
		{EnvQueueDelay, &cfg.QueueDelay},
		{EnvBatchDelay, &cfg.BatchDelay},
	}
	for _, d := range durations {
		v := getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	return nil
}

// Load は既定値・ファイル（path が空なら省略）・環境変数の順に設定を組み立てます。
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnv(cfg, os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は設定値を検証します。問題はすべてまとめて返します。
func (c *Config) Validate() error {
	var errs []error
	switch c.Strategy {
	case "retry", "queue":
	default:
		errs = append(errs, fmt.Errorf("strategy must be retry or queue: %q", c.Strategy))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max_attempts must be at least 1: %d", c.MaxAttempts))
	}
	if c.BaseDelay <= 0 {
		errs = append(errs, fmt.Errorf("base_delay must be positive: %s", c.BaseDelay))
	}
	if c.MaxAttempts >= 1 && c.BaseDelay > 0 {
		if err := (retry.Policy{MaxAttempts: c.MaxAttempts, BaseDelay: c.BaseDelay}).Validate(); err != nil {
			errs = append(errs, fmt.Errorf("max_attempts/base_delay: %w", err))
		}
	}
	if c.QueueDelay < 0 || c.BatchDelay < 0 {
		errs = append(errs, fmt.Errorf("queue_delay and batch_delay must not be negative"))
	}
	if c.Quality < 1 || c.Quality > 100 {
		errs = append(errs, fmt.Errorf("quality must be between 1 and 100: %d", c.Quality))
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		errs = append(errs, fmt.Errorf("output_dir is required"))
	}
	return errors.Join(errs...)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
