package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kirillkom/campus-assistant/internal/bootstrap"
	"github.com/kirillkom/campus-assistant/internal/core/usecase"
)

var stageDescriptions = map[string]string{
	usecase.StageLoad:  "파일 읽는 중",
	usecase.StageEmbed: "임베딩 생성 중",
	usecase.StageWrite: "인덱스 저장 중",
}

func (c *cli) newIndexCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Rebuild the vector index from the corpus",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := bootstrap.New(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			builder := app.Indexer
			var bars stageBars
			if !quiet {
				builder = builder.WithProgress(bars.report)
			}
			manifest, err := builder.Build(cmd.Context())
			bars.finish()
			if err != nil {
				return err
			}

			if app.Queue != nil {
				if err := app.Queue.PublishIndexRebuilt(cmd.Context(), manifest); err != nil {
					slog.Warn("index_rebuilt_publish_failed", "error", err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "총 %d 개의 파일 처리 완료!\n", manifest.Documents)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "hide the progress bar")
	return cmd
}

// stageBars shows one progress bar per build stage. The builder serialises
// progress callbacks.
type stageBars struct {
	stage string
	bar   *progressbar.ProgressBar
}

func (s *stageBars) report(p usecase.IndexProgress) {
	if p.Stage != s.stage || s.bar == nil {
		s.finish()
		s.stage = p.Stage
		s.bar = progressbar.NewOptions(max(p.Total, 1),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription(stageDescriptions[p.Stage]),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionClearOnFinish(),
		)
	}
	_ = s.bar.Set(p.Done)
}

func (s *stageBars) finish() {
	if s.bar != nil {
		_ = s.bar.Finish()
		s.bar = nil
	}
}
