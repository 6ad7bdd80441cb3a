package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/muhammadegaa/reely/internal/domain"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a single job in the foreground",
}

var (
	runStart     string
	runEnd       string
	runVertical  bool
	runSubtitles bool
	runProvider  string
)

var runTrimCmd = &cobra.Command{
	Use:   "trim <url>",
	Short: "Download and trim a video, printing the result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, err := domain.ParseTimestamp(runStart)
		if err != nil {
			return err
		}
		end, err := domain.ParseTimestamp(runEnd)
		if err != nil {
			return err
		}

		return runForeground(func(ctx context.Context, a *app) (*domain.Job, error) {
			return a.svc.SubmitTrim(ctx, "cli", domain.TrimRequest{
				URL:            args[0],
				StartTime:      start,
				EndTime:        end,
				VerticalFormat: runVertical,
				AddSubtitles:   runSubtitles,
			})
		})
	},
}

var runHooksCmd = &cobra.Command{
	Use:   "hooks <url>",
	Short: "Detect hook moments in a video, printing them as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runForeground(func(ctx context.Context, a *app) (*domain.Job, error) {
			return a.svc.SubmitHooks(ctx, "cli", domain.HooksRequest{
				URL:        args[0],
				AIProvider: runProvider,
			})
		})
	},
}

func init() {
	runTrimCmd.Flags().StringVar(&runStart, "start", "0", "clip start (seconds, MM:SS, or HH:MM:SS)")
	runTrimCmd.Flags().StringVar(&runEnd, "end", "", "clip end (seconds, MM:SS, or HH:MM:SS)")
	runTrimCmd.MarkFlagRequired("end")
	runTrimCmd.Flags().BoolVar(&runVertical, "vertical", false, "reformat to 9:16 with blurred background")
	runTrimCmd.Flags().BoolVar(&runSubtitles, "subtitles", false, "burn subtitles (requires --vertical)")

	runHooksCmd.Flags().StringVar(&runProvider, "provider", "openai", "AI provider (openai or anthropic)")

	runCmd.AddCommand(runTrimCmd, runHooksCmd)
}

// runForeground submits a job, claims it, and executes it synchronously,
// bypassing the polling worker.
func runForeground(submit func(ctx context.Context, a *app) (*domain.Job, error)) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.LogJSON)
	if err != nil {
		return err
	}
	defer log.Sync()

	a, err := buildApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	job, err := submit(ctx, a)
	if err != nil {
		return err
	}
	// Execute requeues transient failures; in the foreground there is no
	// poller, so retry attempts run right here until a terminal state.
	for {
		if err := a.store.Claim(ctx, job.ID); err != nil {
			return errors.Wrap(err, "claim job")
		}
		execErr := a.orch.Execute(ctx, job.ID)
		if execErr == nil {
			break
		}
		final, getErr := a.svc.Get(context.Background(), job.ID)
		if getErr != nil {
			return execErr
		}
		if final.Status == domain.StatusQueued {
			log.Infow("retrying job", "job_id", job.ID, "attempt", final.Attempts)
			continue
		}
		if final.Error != "" {
			return errors.Newf("job failed: %s", final.Error)
		}
		return execErr
	}

	final, err := a.svc.Get(ctx, job.ID)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(final.Result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}
