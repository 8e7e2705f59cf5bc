package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/scheduler"
)

func newScheduleCmd(configPath *string) *cobra.Command {
	var (
		spec    string
		addr    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run digests on a cron schedule and serve a status endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if spec == "" {
				spec = cfg.Schedule.Cron
			}
			if addr == "" {
				addr = cfg.Schedule.Addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sched, err := scheduler.New(spec, buildPipeline(ctx, cfg, nil, nil), timeout)
			if err != nil {
				return fmt.Errorf("schedule %q: %w", spec, err)
			}
			sched.Start()

			srv := sched.NewServer(addr)
			errCh := make(chan error, 1)
			go func() {
				log.Printf("Status server listening on %s", addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
				log.Println("Shutting down...")
			case err = <-errCh:
				log.Printf("Status server failed: %v", err)
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
			sched.Stop(shutdownCtx)
			return err
		},
	}

	cmd.Flags().StringVar(&spec, "cron", "", "cron expression (default from config)")
	cmd.Flags().StringVar(&addr, "addr", "", "status server address (default from config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "upper bound for a single run")
	return cmd
}
