package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/usibridge/internal/clock"
	"github.com/zjrosen/usibridge/internal/log"
	"github.com/zjrosen/usibridge/internal/position"
	"github.com/zjrosen/usibridge/internal/presentation"
	"github.com/zjrosen/usibridge/internal/registry"
	"github.com/zjrosen/usibridge/internal/session"
)

type searchOptions struct {
	engine   string
	position string
	limit    clock.TimeLimit
	analyze  time.Duration
}

func (a *app) newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Ask an engine for its best move",
		Long: `Launch an engine from the engines file, search the given position and
print the search progress followed by the engine's reply.

The position is a USI position context: "startpos", "sfen <sfen> <side>
<hand> <ply>", either optionally followed by "moves ...". Scores are
printed relative to Black.

Clock flags default to search.clock in the config file.

Examples:
  usibridge search --engine YaneuraOu --byoyomi-seconds 5
  usibridge search -e YaneuraOu -p "startpos moves 7g7f 3c3d" --time-seconds 600
  usibridge search -e YaneuraOu --analyze 30s --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit := a.cfg.Search.Clock
			flags := cmd.Flags()
			if flags.Changed("time-seconds") {
				limit.TimeSeconds = opts.limit.TimeSeconds
			}
			if flags.Changed("byoyomi-seconds") {
				limit.ByoyomiSeconds = opts.limit.ByoyomiSeconds
			}
			if flags.Changed("increment-seconds") {
				limit.IncrementSeconds = opts.limit.IncrementSeconds
			}
			if flags.Changed("max-move-ms") {
				limit.MaxMoveMillis = opts.limit.MaxMoveMillis
			}
			opts.limit = limit
			return a.runSearch(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.engine, "engine", "e", "", "engine URI or name from the engines file")
	cmd.Flags().StringVarP(&opts.position, "position", "p", "startpos", "USI position context")
	cmd.Flags().IntVar(&opts.limit.TimeSeconds, "time-seconds", 0, "main time of both sides")
	cmd.Flags().IntVar(&opts.limit.ByoyomiSeconds, "byoyomi-seconds", 0, "byoyomi period")
	cmd.Flags().IntVar(&opts.limit.IncrementSeconds, "increment-seconds", 0, "increment per move (ignored with byoyomi)")
	cmd.Flags().IntVar(&opts.limit.MaxMoveMillis, "max-move-ms", 0, "cap on the time of a single move")
	cmd.Flags().DurationVar(&opts.analyze, "analyze", 0, "run an infinite analysis for this long instead of a timed search")
	_ = cmd.MarkFlagRequired("engine")
	return cmd
}

func (a *app) runSearch(ctx context.Context, cmd *cobra.Command, opts searchOptions) error {
	pos, err := position.Parse(opts.position)
	if err != nil {
		return err
	}
	h, cleanup, err := a.launch(ctx, opts.engine)
	if err != nil {
		return err
	}
	defer cleanup()

	f := a.formatter(cmd.OutOrStdout())
	if opts.analyze > 0 {
		if err := h.Analyze(ctx, pos); err != nil {
			return err
		}
		timer := time.NewTimer(opts.analyze)
		defer timer.Stop()
		return follow(ctx, h, f, timer.C)
	}

	log.Debug(log.CatSession, "Searching", "position", pos.USI(), "limit", fmt.Sprintf("%+v", opts.limit))
	if err := h.Search(ctx, pos, clock.Start(opts.limit)); err != nil {
		return err
	}
	return follow(ctx, h, f, nil)
}

// launch starts the engine named by ref and waits until it is ready. The
// returned cleanup quits the engine.
func (a *app) launch(ctx context.Context, ref string) (*registry.Handle, func(), error) {
	desc, err := a.findEngine(ref)
	if err != nil {
		return nil, nil, err
	}

	reg := a.newRegistry()
	h, err := reg.Launch(ctx, desc)
	if err != nil {
		_ = reg.Close()
		return nil, nil, err
	}
	cleanup := func() {
		if err := reg.Close(); err != nil {
			log.ErrorErr(log.CatRegistry, "Closing registry failed", err)
		}
	}

	readyCtx, cancel := context.WithTimeout(ctx, a.cfg.Launch.Timeout())
	defer cancel()
	if err := h.Ready(readyCtx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("waiting for %s: %w", desc.DisplayName(), err)
	}
	return h, cleanup, nil
}

// follow prints events until the search ends. When until fires the search
// is stopped and follow returns once the engine is idle.
func follow(ctx context.Context, h *registry.Handle, f *presentation.Formatter, until <-chan time.Time) error {
	for {
		select {
		case ev, ok := <-h.Events():
			if !ok {
				return session.ErrChannelClosed
			}
			if e, isErr := ev.(session.Error); isErr && errors.Is(e.Err, session.ErrChannelClosed) {
				return e.Err
			}
			if err := f.FormatEvent(presentation.FromEvent(ev)); err != nil {
				return err
			}
			if terminal(ev) {
				return nil
			}
		case <-until:
			if err := h.Stop(); err != nil {
				return err
			}
			return h.WaitIdle(ctx)
		case <-ctx.Done():
			_ = h.Stop()
			return ctx.Err()
		}
	}
}

// terminal reports whether ev ends a search.
func terminal(ev session.Event) bool {
	switch ev.(type) {
	case session.BestMove, session.Resign, session.Win,
		session.Checkmate, session.MateNotImplemented, session.MateTimeout, session.NoMate:
		return true
	default:
		return false
	}
}
