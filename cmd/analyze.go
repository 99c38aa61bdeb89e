package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	service "github.com/okian/lutcurate/internal/app"
	"github.com/okian/lutcurate/internal/domain/analysis"
	"github.com/okian/lutcurate/internal/domain/model"
	"github.com/okian/lutcurate/pkg/logger"
)

func newAnalyzeCmd(c *cli) *cobra.Command {
	var (
		opts     analysis.Options
		progress bool
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Extract features for every catalogued LUT",
		Long: `Runs the batch analysis task in the foreground. Interrupting the command
stops the task at its next checkpoint and records the partial counts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bar := newTaskBar(progress)
			var svcOpts []service.Option
			if bar != nil {
				svcOpts = append(svcOpts, service.WithAnalysisProgress(bar.update))
			}
			ctx := cmd.Context()
			return c.withService(ctx, func(svc *service.Service) error {
				task, err := svc.StartAnalysis(ctx, opts)
				if err != nil {
					return err
				}
				task, err = waitOrInterrupt(ctx, c, svc, task.ID)
				bar.finish()
				if err != nil {
					return err
				}
				printTask(cmd.OutOrStdout(), task)
				if task.Status == model.TaskFailed {
					return fmt.Errorf("analysis %s: %s", task.ID, task.ErrorMessage)
				}
				return nil
			}, svcOpts...)
		},
	}
	cmd.Flags().BoolVar(&opts.Force, "force", false, "reanalyze every item and supersede a running task")
	cmd.Flags().BoolVar(&opts.SkipAnalyzed, "skip-analyzed", false, "skip items that already have an analysis record")
	cmd.Flags().BoolVar(&progress, "progress", term.IsTerminal(int(os.Stderr.Fd())), "draw a progress bar on stderr")
	return cmd
}

// waitOrInterrupt waits for the task; when ctx ends first the task is
// interrupted and its final record awaited.
func waitOrInterrupt(ctx context.Context, c *cli, svc *service.Service, id string) (model.AnalysisTask, error) {
	task, err := svc.WaitAnalysis(ctx, id)
	if ctx.Err() == nil {
		return task, err
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	c.log.Info(stopCtx, "interrupting analysis", logger.String("task", id))
	if _, err := svc.InterruptAnalysis(stopCtx, id); err != nil {
		c.log.Warn(stopCtx, "interrupt failed", logger.String("task", id), logger.Error(err))
	}
	return svc.WaitAnalysis(stopCtx, id)
}

func printTask(w io.Writer, t model.AnalysisTask) {
	fmt.Fprintf(w, "task %s %s: processed %d/%d (success %d, failed %d)\n",
		t.ID, t.Status, t.Processed, t.Total, t.Success, t.FailedCount)
	if t.ErrorMessage != "" {
		fmt.Fprintf(w, "  %s\n", t.ErrorMessage)
	}
}

// taskBar renders analysis progress. A nil taskBar is a no-op.
type taskBar struct {
	bar *progressbar.ProgressBar
}

func newTaskBar(enabled bool) *taskBar {
	if !enabled {
		return nil
	}
	return &taskBar{bar: progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("analyzing"),
		progressbar.OptionSetWidth(32),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)}
}

func (b *taskBar) update(t model.AnalysisTask) {
	if t.Total > 0 && b.bar.GetMax() != t.Total {
		b.bar.ChangeMax(t.Total)
	}
	_ = b.bar.Set(t.Processed)
}

func (b *taskBar) finish() {
	if b == nil {
		return
	}
	_ = b.bar.Finish()
}
