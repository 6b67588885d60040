package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/haloverify/verifysvc/internal/tools/common"
	"github.com/haloverify/verifysvc/internal/tools/loadgen"
)

func newLoadgenCommand(rootOpts *rootOptions) *cobra.Command {
	var profile string
	var duration time.Duration
	var rps, concurrency int
	var seed int64
	var ci bool

	cmd := &cobra.Command{
		Use:   "loadgen",
		Short: "Drive synthetic traffic against a running verifysvcd instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := loadgen.Run(cmd.Context(), loadgen.Config{
				BaseURL:     rootOpts.baseURL,
				Profile:     profile,
				Duration:    duration,
				RPS:         rps,
				Concurrency: concurrency,
				Seed:        seed,
			})
			details := []string{fmt.Sprintf("total=%d failures=%d classes=%v", res.TotalRequests, res.Failures, res.StatusClasses)}
			if ci {
				common.PrintCIResult(err == nil && res.Failures == 0, "verifyctl loadgen", details, err)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), details[0])
			}
			if err != nil {
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "mixed", "mixed or create_only")
	cmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "how long to generate load")
	cmd.Flags().IntVar(&rps, "rps", 10, "requests per second per worker")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "number of worker goroutines")
	cmd.Flags().Int64Var(&seed, "seed", 1, "deterministic PRNG seed")
	cmd.Flags().BoolVar(&ci, "ci", false, "print a machine-readable CI result line")
	return cmd
}
