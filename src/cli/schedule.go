package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
)

// runScheduled runs job on the cron schedule spec until ctx is done or the
// process receives SIGINT/SIGTERM. A tick that fires while the previous run
// is still going is skipped, so runs never overlap.
func runScheduled(ctx context.Context, spec string, job func(context.Context) error, stderr io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	_, err := c.AddFunc(spec, func() {
		if err := job(ctx); err != nil {
			fmt.Fprintf(stderr, "scheduled run failed: %v\n", err)
			slog.Error("scheduled run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid --schedule %q: %w", spec, err)
	}

	slog.Info("waiting for schedule", "schedule", spec)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
