package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thebtf/kitforge/internal/pipeline"
	"github.com/thebtf/kitforge/internal/watch"
)

var (
	watchInput string
	watchOut   string

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Re-run assignment whenever the input directory changes",
		RunE:  runWatch,
	}
)

func init() {
	watchCmd.Flags().StringVar(&watchInput, "input", "", "directory of feature documents")
	watchCmd.Flags().StringVar(&watchOut, "out", "", "directory for pools and debug artifacts")
	_ = watchCmd.MarkFlagRequired("input")
	_ = watchCmd.MarkFlagRequired("out")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipe := pipeline.New(cfg)
	run := func(ctx context.Context) error {
		_, err := pipe.Run(ctx, watchInput, watchOut)
		return err
	}

	// One pass before watching. An empty input directory is not fatal
	// here, documents may arrive while we watch.
	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Msg("Initial run failed, watching anyway")
	}

	w, err := watch.New(cfg, watchInput, watchOut, run)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down watcher")
	w.Stop()
	w.Wait()
	return nil
}
