package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version vars injected via ldflags at build time
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "photoedit",
		Short:         "Gemini で写真を編集する CLI",
		Long:          "Gemini の画像編集モデルに写真と指示を送り、結果を保存します。レート制限時は指数バックオフで再試行します。",
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags.bind(root)

	root.AddCommand(
		newEditCmd(flags),
		newBatchCmd(flags),
		newEffectsCmd(),
		newHistoryCmd(flags),
	)
	return root
}
