package usi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendMoves(t *testing.T) {
	require.Equal(t, "startpos", AppendMoves(StartPos))
	require.Equal(t, "startpos moves 7g7f", AppendMoves(StartPos, "7g7f"))
	require.Equal(t, "startpos moves 7g7f 3c3d 2g2f", AppendMoves("startpos moves 7g7f", "3c3d", "2g2f"))

	sfen := "sfen lnsgkgsnl/1r5b1/ppppppppp/9/9/9/PPPPPPPPP/1B5R1/LNSGKGSNL b - 1"
	require.Equal(t, sfen+" moves 7g7f", AppendMoves(sfen, "7g7f"))
}

func TestNextMove(t *testing.T) {
	tests := []struct {
		ctx, base string
		want      string
		ok        bool
	}{
		{"startpos moves 7g7f", "startpos", "7g7f", true},
		{"startpos moves 7g7f 3c3d", "startpos moves 7g7f", "3c3d", true},
		{"startpos moves 7g7f 3c3d", "startpos", "", false},
		{"startpos moves 7g7f", "startpos moves 7g7f", "", false},
		{"startpos moves 7g7f 3c3d", "startpos moves 2g2f", "", false},
		{"startpos moves 7g7f3c3d", "startpos moves 7g7f", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.ctx+"|"+tt.base, func(t *testing.T) {
			got, ok := NextMove(tt.ctx, tt.base)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}
