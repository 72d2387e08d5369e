package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/thebtf/kitforge/internal/pipeline"
	"github.com/thebtf/kitforge/pkg/models"
)

var (
	assignInput   string
	assignOut     string
	assignLimit   int
	assignSeed    int64
	assignShuffle bool

	assignCmd = &cobra.Command{
		Use:   "assign",
		Short: "Score a batch of feature documents and build role pools",
		RunE:  runAssign,
	}
)

func init() {
	assignCmd.Flags().StringVar(&assignInput, "input", "", "directory of feature documents")
	assignCmd.Flags().StringVar(&assignOut, "out", "", "directory for pools and debug artifacts")
	assignCmd.Flags().IntVar(&assignLimit, "limit", 0, "cap the number of documents per run, 0 takes all")
	assignCmd.Flags().Int64Var(&assignSeed, "seed", 0, "seed for shuffling and prompt subsampling")
	assignCmd.Flags().BoolVar(&assignShuffle, "shuffle", false, "shuffle documents before applying the limit")
	_ = assignCmd.MarkFlagRequired("input")
	_ = assignCmd.MarkFlagRequired("out")
}

func runAssign(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("limit") {
		cfg.Input.Limit = assignLimit
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = assignSeed
	}
	if cmd.Flags().Changed("shuffle") {
		cfg.Input.Shuffle = assignShuffle
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := pipeline.New(cfg).Run(ctx, assignInput, assignOut)
	if err != nil {
		return err
	}
	printSummary(summary)
	return nil
}

// printSummary writes the human-readable batch report to stdout; the
// structured log on stderr carries the same facts for machines.
func printSummary(s pipeline.Summary) {
	fmt.Printf("%s: %d samples from %d documents (%d skipped, %d rule-only)\n",
		s.BatchID, s.Samples, s.Documents, s.Skipped, s.Degraded)
	for _, r := range models.AllRoles {
		fmt.Printf("  %-8s %d\n", r, s.Counts[r])
	}
	if s.Discarded > 0 {
		fmt.Printf("  discarded %d (strict assignment)\n", s.Discarded)
	}
	for _, v := range s.Violations {
		fmt.Printf("  warning: %s\n", v)
	}
	fmt.Printf("pools written to %s\n", s.PoolsPath)
	if s.DebugPath != "" {
		fmt.Printf("debug written to %s\n", s.DebugPath)
	}
}
