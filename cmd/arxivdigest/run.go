package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/app"
	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/paper"
	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/state"
)

// errRunFailed makes the process exit non-zero in strict mode. The details
// have already been logged.
var errRunFailed = errors.New("run finished with failures")

func newRunCmd(configPath *string) *cobra.Command {
	var (
		dryRun bool
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch, deduplicate and deliver one digest",
		Long: `Run performs a single fetch and delivery cycle; schedule it externally (cron, CI).
With --dry-run messages are printed instead of posted and no watermark is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var (
				st     app.WatermarkStore
				sender app.Sender
			)
			if dryRun {
				marks, err := newStore(cfg).All(ctx)
				if err != nil {
					log.Printf("WARNING: cannot read state, dry run starts empty: %v", err)
				}
				st = state.NewMemoryStore(marks)
				sender = &printSender{out: cmd.OutOrStdout()}
			}

			report, err := buildPipeline(ctx, cfg, st, sender).Run(ctx)
			if err != nil {
				return fmt.Errorf("run pipeline: %w", err)
			}

			if report.Failed() && (strict || cfg.Strict) {
				return errRunFailed
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print messages to stdout and keep state in memory")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any fetch or delivery failed")
	return cmd
}

// printSender writes messages instead of posting them.
type printSender struct {
	out io.Writer
}

func (s *printSender) Deliver(ctx context.Context, messages []paper.Message) []paper.Delivery {
	results := make([]paper.Delivery, 0, len(messages))
	for _, msg := range messages {
		fmt.Fprintf(s.out, "=== %s ===\n%s\n\n", msg.Destination, msg.Text)
		results = append(results, paper.Delivery{Destination: msg.Destination, Status: paper.DeliveryDelivered})
	}
	return results
}
