// Package clock converts game clocks into the time parameters of a USI "go"
// command and keeps the clocks up to date between moves. Everything here is
// pure; callers own the clock state.
package clock

import "github.com/zjrosen/usibridge/internal/usi"

// TimeLimit is the static time control of a game.
type TimeLimit struct {
	TimeSeconds      int `mapstructure:"time_seconds" yaml:"time_seconds"`
	ByoyomiSeconds   int `mapstructure:"byoyomi_seconds" yaml:"byoyomi_seconds"`
	IncrementSeconds int `mapstructure:"increment_seconds" yaml:"increment_seconds"`
	// MaxMoveMillis caps the budget of a single move. Zero disables the cap.
	MaxMoveMillis int `mapstructure:"max_move_ms" yaml:"max_move_ms"`
}

// ByoyomiMillis returns the byoyomi period in milliseconds.
func (l TimeLimit) ByoyomiMillis() int { return l.ByoyomiSeconds * 1000 }

// IncrementMillis returns the per-move increment in milliseconds. Increments
// are ignored when byoyomi is configured.
func (l TimeLimit) IncrementMillis() int {
	if l.ByoyomiSeconds > 0 {
		return 0
	}
	return l.IncrementSeconds * 1000
}

// TimeStates is a snapshot of both clocks. Black and White hold the remaining
// main time in milliseconds.
type TimeStates struct {
	Limit TimeLimit
	Black int
	White int
}

// Start returns the clocks at the beginning of a game.
func Start(limit TimeLimit) TimeStates {
	main := limit.TimeSeconds * 1000
	return TimeStates{Limit: limit, Black: main, White: main}
}

// Remaining returns the main time left for side, never negative.
func (ts TimeStates) Remaining(side usi.Color) int {
	v := ts.White
	if side == usi.Black {
		v = ts.Black
	}
	return max(v, 0)
}

func (ts *TimeStates) set(side usi.Color, v int) {
	if side == usi.Black {
		ts.Black = v
	} else {
		ts.White = v
	}
}

// Budget returns the total time side may spend on its current move: the
// remaining main time plus one byoyomi period or one increment, limited by
// MaxMoveMillis when set.
func Budget(ts TimeStates, side usi.Color) int {
	total := ts.Remaining(side) + ts.Limit.ByoyomiMillis() + ts.Limit.IncrementMillis()
	if limit := ts.Limit.MaxMoveMillis; limit > 0 && total > limit {
		return limit
	}
	return total
}

// Compute returns the time parameters to send with a search for side. Main
// clocks are sent as they stand; byoyomi is never folded into them. When the
// mover's budget exceeds MaxMoveMillis, its main time is sent as zero and the
// cap is sent as byoyomi so the engine cannot plan beyond it.
func Compute(ts TimeStates, side usi.Color) usi.GoTime {
	t := usi.GoTime{
		BTime: ts.Remaining(usi.Black),
		WTime: ts.Remaining(usi.White),
	}
	if b := ts.Limit.ByoyomiMillis(); b > 0 {
		t.Byoyomi = b
	} else {
		inc := ts.Limit.IncrementMillis()
		t.BInc, t.WInc = inc, inc
	}

	limit := ts.Limit.MaxMoveMillis
	if limit <= 0 {
		return t
	}
	total := ts.Remaining(side) + t.Byoyomi + t.BInc
	if total <= limit {
		return t
	}
	if side == usi.Black {
		t.BTime = 0
	} else {
		t.WTime = 0
	}
	t.Byoyomi = limit
	t.BInc, t.WInc = 0, 0
	return t
}

// Consume charges elapsed milliseconds to side after it moved. Time is taken
// from the main clock first; once that is exhausted the rest must fit in one
// byoyomi period. The increment is credited after a move made in time. The
// returned flag is false when side overstepped its time.
func Consume(ts TimeStates, side usi.Color, elapsed int) (TimeStates, bool) {
	elapsed = max(elapsed, 0)
	remaining := ts.Remaining(side) - elapsed
	ok := true
	if remaining < 0 {
		ok = -remaining <= ts.Limit.ByoyomiMillis()
		remaining = 0
	}
	if ok {
		remaining += ts.Limit.IncrementMillis()
	}
	ts.set(side, remaining)
	return ts, ok
}
