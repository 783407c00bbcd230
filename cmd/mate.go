package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/usibridge/internal/position"
)

func (a *app) newMateCmd() *cobra.Command {
	var (
		engineRef string
		pos       string
		timeoutMs int
	)

	cmd := &cobra.Command{
		Use:   "mate",
		Short: "Run a mate search",
		Long: `Launch an engine and run "go mate" on the given position. Prints the mate
sequence, or whether the engine found no mate, timed out or has no mate
search.

--timeout-ms defaults to search.mate_timeout_ms; 0 searches without a limit.

Examples:
  usibridge mate --engine YaneuraOu -p "sfen 8k/9/9/9/9/9/9/9/K8 b G 1"
  usibridge mate -e YaneuraOu -p "sfen ..." --timeout-ms 10000 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("timeout-ms") {
				timeoutMs = a.cfg.Search.MateTimeoutMs
			}
			p, err := position.Parse(pos)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			h, cleanup, err := a.launch(ctx, engineRef)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := h.MateSearch(ctx, p, time.Duration(timeoutMs)*time.Millisecond); err != nil {
				return err
			}
			return follow(ctx, h, a.formatter(cmd.OutOrStdout()), nil)
		},
	}

	cmd.Flags().StringVarP(&engineRef, "engine", "e", "", "engine URI or name from the engines file")
	cmd.Flags().StringVarP(&pos, "position", "p", "", "USI position context")
	cmd.Flags().IntVar(&timeoutMs, "timeout-ms", 0, "mate search time limit")
	_ = cmd.MarkFlagRequired("engine")
	_ = cmd.MarkFlagRequired("position")
	return cmd
}
