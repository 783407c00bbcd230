package clock

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/usibridge/internal/usi"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name string
		ts   TimeStates
		side usi.Color
		want usi.GoTime
	}{
		{
			name: "byoyomi",
			ts:   TimeStates{Limit: TimeLimit{TimeSeconds: 600, ByoyomiSeconds: 30}, Black: 540000, White: 580000},
			side: usi.Black,
			want: usi.GoTime{BTime: 540000, WTime: 580000, Byoyomi: 30000},
		},
		{
			name: "increment",
			ts:   TimeStates{Limit: TimeLimit{TimeSeconds: 300, IncrementSeconds: 5}, Black: 1000, White: 2000},
			side: usi.White,
			want: usi.GoTime{BTime: 1000, WTime: 2000, BInc: 5000, WInc: 5000},
		},
		{
			name: "byoyomi wins over increment",
			ts:   TimeStates{Limit: TimeLimit{ByoyomiSeconds: 10, IncrementSeconds: 5}},
			side: usi.Black,
			want: usi.GoTime{Byoyomi: 10000},
		},
		{
			name: "negative clocks are clamped",
			ts:   TimeStates{Limit: TimeLimit{ByoyomiSeconds: 10}, Black: -5},
			side: usi.Black,
			want: usi.GoTime{Byoyomi: 10000},
		},
		{
			name: "cap replaces mover's main time",
			ts:   TimeStates{Limit: TimeLimit{TimeSeconds: 600, ByoyomiSeconds: 30, MaxMoveMillis: 5000}, Black: 600000, White: 600000},
			side: usi.White,
			want: usi.GoTime{BTime: 600000, WTime: 0, Byoyomi: 5000},
		},
		{
			name: "cap not reached",
			ts:   TimeStates{Limit: TimeLimit{ByoyomiSeconds: 3, MaxMoveMillis: 5000}},
			side: usi.Black,
			want: usi.GoTime{Byoyomi: 3000},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Compute(tt.ts, tt.side))
		})
	}
}

func TestBudget(t *testing.T) {
	ts := TimeStates{Limit: TimeLimit{ByoyomiSeconds: 10}, Black: 5000}
	require.Equal(t, 15000, Budget(ts, usi.Black))
	require.Equal(t, 10000, Budget(ts, usi.White))

	ts.Limit.MaxMoveMillis = 12000
	require.Equal(t, 12000, Budget(ts, usi.Black))
}

func TestConsume(t *testing.T) {
	start := Start(TimeLimit{TimeSeconds: 10, ByoyomiSeconds: 5})
	require.Equal(t, 10000, start.Black)

	ts, ok := Consume(start, usi.Black, 4000)
	require.True(t, ok)
	require.Equal(t, 6000, ts.Black)
	require.Equal(t, 10000, ts.White)

	ts, ok = Consume(ts, usi.Black, 9000)
	require.True(t, ok, "3s over the main clock fits in byoyomi")
	require.Equal(t, 0, ts.Black)

	_, ok = Consume(ts, usi.Black, 5001)
	require.False(t, ok)

	inc := Start(TimeLimit{TimeSeconds: 10, IncrementSeconds: 2})
	inc, ok = Consume(inc, usi.White, 1000)
	require.True(t, ok)
	require.Equal(t, 11000, inc.White)
}

func TestComputeProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ts := TimeStates{
			Limit: TimeLimit{
				ByoyomiSeconds:   rapid.IntRange(0, 60).Draw(t, "byoyomi"),
				IncrementSeconds: rapid.IntRange(0, 30).Draw(t, "inc"),
				MaxMoveMillis:    rapid.IntRange(0, 120000).Draw(t, "cap"),
			},
			Black: rapid.IntRange(-1000, 3600000).Draw(t, "black"),
			White: rapid.IntRange(-1000, 3600000).Draw(t, "white"),
		}
		side := usi.Color(rapid.IntRange(0, 1).Draw(t, "side"))
		got := Compute(ts, side)

		require.GreaterOrEqual(t, got.BTime, 0)
		require.GreaterOrEqual(t, got.WTime, 0)
		require.False(t, got.Byoyomi > 0 && (got.BInc > 0 || got.WInc > 0))

		mover := got.BTime + got.BInc
		if side == usi.White {
			mover = got.WTime + got.WInc
		}
		require.LessOrEqual(t, mover+got.Byoyomi, Budget(ts, side))
		if ts.Limit.MaxMoveMillis > 0 {
			require.LessOrEqual(t, mover+got.Byoyomi, ts.Limit.MaxMoveMillis)
		}
	})
}

func TestConsumeProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ts := Start(TimeLimit{
			TimeSeconds:    rapid.IntRange(0, 600).Draw(t, "main"),
			ByoyomiSeconds: rapid.IntRange(0, 60).Draw(t, "byoyomi"),
		})
		side := usi.Color(rapid.IntRange(0, 1).Draw(t, "side"))
		elapsed := rapid.IntRange(0, 700000).Draw(t, "elapsed")
		before := ts.Remaining(side)

		after, ok := Consume(ts, side, elapsed)

		require.GreaterOrEqual(t, after.Remaining(side), 0)
		require.Equal(t, ts.Remaining(side.Opposite()), after.Remaining(side.Opposite()))
		require.Equal(t, elapsed <= before+ts.Limit.ByoyomiMillis(), ok)
		if elapsed <= before {
			require.Equal(t, before-elapsed, after.Remaining(side))
		}
	})
}
