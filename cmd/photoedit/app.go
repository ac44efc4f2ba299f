package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/samber/do"
	"github.com/shouni/gemini-photo-editor/pkg/config"
	"github.com/shouni/gemini-photo-editor/pkg/inject"
	"github.com/shouni/gemini-photo-editor/pkg/logging"
	"github.com/spf13/cobra"
)

// globalFlags は全サブコマンド共通のフラグです。
type globalFlags struct {
	configPath  string
	model       string
	strategy    string
	maxAttempts int
	outputDir   string
	compress    bool
	logLevel    string
	logFormat   string
}

func (f *globalFlags) bind(cmd *cobra.Command) {
	defaults := config.Default()
	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "YAML 設定ファイル")
	pf.StringVar(&f.model, "model", defaults.Model, "使用するモデル")
	pf.StringVar(&f.strategy, "strategy", defaults.Strategy, "リクエストの間引き方 (retry|queue)")
	pf.IntVar(&f.maxAttempts, "max-attempts", defaults.MaxAttempts, "レート制限時の最大試行回数")
	pf.StringVarP(&f.outputDir, "output", "o", defaults.OutputDir, "結果の保存先")
	pf.BoolVar(&f.compress, "compress", defaults.CompressInput, "送信前に入力画像を JPEG に再圧縮する")
	pf.StringVar(&f.logLevel, "log-level", defaults.LogLevel, "ログレベル (debug|info|warn|error)")
	pf.StringVar(&f.logFormat, "log-format", defaults.LogFormat, "ログ形式 (text|json)")
}

// load は 既定値 < ファイル < 環境変数 < 明示されたフラグ の順に設定を組み立てます。
func (f *globalFlags) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("model") {
		cfg.Model = f.model
	}
	if changed("strategy") {
		cfg.Strategy = f.strategy
	}
	if changed("max-attempts") {
		cfg.MaxAttempts = f.maxAttempts
	}
	if changed("output") {
		cfg.OutputDir = f.outputDir
	}
	if changed("compress") {
		cfg.CompressInput = f.compress
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if changed("log-format") {
		cfg.LogFormat = f.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定が不正です: %w", err)
	}
	return cfg, nil
}

// app は1回のコマンド実行に必要な依存をまとめたものです。
type app struct {
	cfg      *config.Config
	injector *do.Injector
	status   *logging.Status
}

func newApp(ctx context.Context, cmd *cobra.Command, flags *globalFlags) (context.Context, *app, error) {
	cfg, err := flags.load(cmd)
	if err != nil {
		return ctx, nil, err
	}

	logger, err := logging.New(os.Stderr, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return ctx, nil, err
	}
	slog.SetDefault(logger)
	ctx = logging.NewContext(ctx, logger)

	return ctx, &app{
		cfg:      cfg,
		injector: inject.Setup(ctx, cfg),
		status:   logging.NewStatus(cmd.OutOrStdout(), cmd.ErrOrStderr()),
	}, nil
}

func (a *app) close() {
	if err := a.injector.Shutdown(); err != nil {
		slog.Warn("依存関係の終了処理に失敗しました", "error", err)
	}
}
