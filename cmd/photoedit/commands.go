package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/samber/do"
	"github.com/samber/lo"
	"github.com/shouni/gemini-photo-editor/pkg/domain"
	"github.com/shouni/gemini-photo-editor/pkg/editor"
	"github.com/shouni/gemini-photo-editor/pkg/retry"
	"github.com/shouni/gemini-photo-editor/pkg/storage"
	"github.com/spf13/cobra"
)

// instructionFlags は指示文とプリセットの指定です。
type instructionFlags struct {
	prompt  string
	effects []string
}

func (f *instructionFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.prompt, "prompt", "p", "", "自由記述の編集指示")
	cmd.Flags().StringSliceVarP(&f.effects, "effect", "e", nil, "プリセット効果 (例: vintage, black-and-white)。複数指定可")
}

// resolve は指示文と履歴用ラベルを返します。プリセットと自由記述の両方がある場合は連結します。
func (f *instructionFlags) resolve() (string, string, error) {
	var effects []domain.EditEffect
	for _, name := range f.effects {
		effect, ok := domain.FindEffect(name)
		if !ok {
			return "", "", fmt.Errorf("unknown effect: %s (photoedit effects で一覧を表示できます)", name)
		}
		effects = append(effects, effect)
	}

	prompt := strings.TrimSpace(f.prompt)
	if prompt != "" {
		effects = append(effects, domain.EditEffect{Type: "CUSTOM", Label: "Custom", Prompt: prompt})
	}
	if len(effects) == 0 {
		return "", "", errors.New("--prompt か --effect のどちらかを指定してください")
	}
	return domain.CombinePrompt(effects), domain.HistoryLabel(effects), nil
}

func newEditCmd(flags *globalFlags) *cobra.Command {
	inst := &instructionFlags{}
	cmd := &cobra.Command{
		Use:   "edit <image|url|gs://...|s3://...>",
		Short: "1枚の画像を編集します",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			instruction, label, err := inst.resolve()
			if err != nil {
				return err
			}
			ctx, a, err := newApp(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			img, err := do.MustInvoke[*editor.Loader](a.injector).LoadImage(ctx, args[0])
			if err != nil {
				return err
			}
			svc := do.MustInvoke[*editor.Service](a.injector)
			session, err := editor.NewSession(svc, domain.EditResult{Data: img.Data, MimeType: img.MimeType})
			if err != nil {
				return err
			}

			a.status.Info(fmt.Sprintf("%s を編集しています: %s", img.Name, label))
			state, editErr := session.Apply(ctx, instruction, label, a.status)
			if retry.IsCancelled(editErr) {
				a.status.Warn("中断しました")
				return nil
			}

			st := do.MustInvoke[*storage.Storage](a.injector)
			var result *domain.EditResult
			if editErr == nil {
				result = &state.Image
			}
			meta, err := st.SaveResult(storage.Metadata{
				Operation:   "edit",
				Model:       a.cfg.Model,
				Source:      args[0],
				Instruction: instruction,
				Label:       label,
				Strategy:    a.cfg.Strategy,
			}, result, editErr)
			if err != nil {
				return err
			}

			if editErr != nil {
				a.status.Error(editErr.Error())
				return editErr
			}
			path, err := st.ImagePath(meta)
			if err != nil {
				return err
			}
			a.status.Success(fmt.Sprintf("保存しました: %s", path))
			return nil
		},
	}
	inst.bind(cmd)
	return cmd
}

func newBatchCmd(flags *globalFlags) *cobra.Command {
	inst := &instructionFlags{}
	cmd := &cobra.Command{
		Use:   "batch <image>...",
		Short: "複数の画像に同じ編集を適用します",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			instruction, label, err := inst.resolve()
			if err != nil {
				return err
			}
			ctx, a, err := newApp(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			batch, err := do.MustInvoke[*editor.Loader](a.injector).LoadBatch(ctx, args, a.cfg.Concurrency, a.status.BatchUpdate)
			if err != nil {
				return err
			}
			svc := do.MustInvoke[*editor.Service](a.injector)
			st := do.MustInvoke[*storage.Storage](a.injector)

			a.status.Info(fmt.Sprintf("%d 枚の画像を処理します (%s, strategy=%s)", batch.Len(), label, svc.Strategy()))
			runErr := svc.RunBatch(ctx, batch, instruction, a.status)

			for _, img := range batch.Snapshot() {
				if img.Status != domain.StatusSuccess && img.Status != domain.StatusError {
					continue
				}
				var imgErr error
				if img.Error != "" {
					imgErr = errors.New(img.Error)
				}
				if _, err := st.SaveResult(storage.Metadata{
					Operation:   "batch",
					Model:       a.cfg.Model,
					Source:      img.Name,
					Instruction: instruction,
					Label:       label,
					Strategy:    a.cfg.Strategy,
				}, img.Edited, imgErr); err != nil {
					return err
				}
			}

			counts := batch.Counts()
			if runErr != nil && !retry.IsCancelled(runErr) {
				a.status.Error(runErr.Error())
				return runErr
			}
			if runErr != nil {
				a.status.Warn(fmt.Sprintf("中断しました (成功 %d, 失敗 %d, 未処理 %d)",
					counts[domain.StatusSuccess], counts[domain.StatusError], counts[domain.StatusIdle]))
				return nil
			}
			a.status.Success(fmt.Sprintf("完了しました (成功 %d, 失敗 %d)", counts[domain.StatusSuccess], counts[domain.StatusError]))
			if counts[domain.StatusError] > 0 {
				return fmt.Errorf("%d 枚の画像で編集に失敗しました", counts[domain.StatusError])
			}
			return nil
		},
	}
	inst.bind(cmd)
	return cmd
}

func newEffectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "effects",
		Short: "プリセット効果の一覧を表示します",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tLABEL")
			for _, e := range domain.AllEffects() {
				name := strings.ReplaceAll(strings.ToLower(string(e.Type)), "_", "-")
				fmt.Fprintf(w, "%s\t%s\n", name, e.Label)
			}
			return w.Flush()
		},
	}
}

func newHistoryCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "保存済みの編集結果を新しい順に表示します",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, a, err := newApp(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			list, err := do.MustInvoke[*storage.Storage](a.injector).List()
			if err != nil {
				return err
			}
			if len(list) == 0 {
				a.status.Info("保存済みの結果はありません")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTIME\tOPERATION\tSOURCE\tLABEL\tRESULT")
			for _, m := range list {
				result := lo.TernaryF(m.Error != nil,
					func() string { return "error: " + m.Error.Kind },
					func() string { return "ok" })
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					m.ID, m.Timestamp.Format("2006-01-02 15:04:05"), m.Operation, m.Source, m.Label, result)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d 件\n", len(list))
			return nil
		},
	}
}
