package usi

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/usibridge/internal/engine"
)

func intp(v int) *int       { return &v }
func int64p(v int64) *int64 { return &v }
func strp(v string) *string { return &v }

func TestParse_Simple(t *testing.T) {
	tests := []struct {
		line string
		want Event
	}{
		{"usiok", USIOK{}},
		{"readyok\r\n", ReadyOK{}},
		{"id name Lesserkai 1.4", IDName{Name: "Lesserkai 1.4"}},
		{"id author  Two  Spaces", IDAuthor{Author: "Two  Spaces"}},
		{"bestmove 7g7f", BestMove{Move: "7g7f"}},
		{"bestmove 7g7f ponder 3c3d", BestMove{Move: "7g7f", Ponder: "3c3d"}},
		{"bestmove resign", BestMove{Move: MoveResign}},
		{"bestmove win", BestMove{Move: MoveWin}},
		{"checkmate notimplemented", CheckmateNotImplemented{}},
		{"checkmate timeout", CheckmateTimeout{}},
		{"checkmate nomate", CheckmateNoMate{}},
		{"checkmate 2b3c+ 4a3b 5b4c", Checkmate{Moves: []string{"2b3c+", "4a3b", "5b4c"}}},
		{"", Unknown{Line: ""}},
		{"bestmove", Unknown{Line: "bestmove"}},
		{"copyprotection ok", Unknown{Line: "copyprotection ok"}},
		{"id version 3", Unknown{Line: "id version 3"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			require.Equal(t, tt.want, Parse(tt.line))
		})
	}
}

func TestParse_OptionDeclarations(t *testing.T) {
	tests := []struct {
		line string
		want engine.Option
	}{
		{
			"option name USI_Hash type spin default 256 min 1 max 1024",
			&engine.SpinOption{Decl: engine.Decl{Name: "USI_Hash"}, Default: intp(256), Min: intp(1), Max: intp(1024)},
		},
		{
			"option name USI_Ponder type check default true",
			&engine.CheckOption{Decl: engine.Decl{Name: "USI_Ponder"}, Default: strp("true")},
		},
		{
			"option name Style type combo default Normal var Normal var Very Aggressive",
			&engine.ComboOption{Decl: engine.Decl{Name: "Style"}, Default: strp("Normal"), Vars: []string{"Normal", "Very Aggressive"}},
		},
		{
			"option name Clear Hash type button",
			&engine.ButtonOption{Decl: engine.Decl{Name: "Clear Hash"}},
		},
		{
			"option name BookFile type string default <empty>",
			&engine.StringOption{Decl: engine.Decl{Name: "BookFile"}, Default: strp(engine.EmptyPlaceholder)},
		},
		{
			"option name EvalDir type filename default eval",
			&engine.StringOption{Decl: engine.Decl{Name: "EvalDir"}, Filename: true, Default: strp("eval")},
		},
		{
			"option name Max Depth type spin",
			&engine.SpinOption{Decl: engine.Decl{Name: "Max Depth"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			ev, ok := Parse(tt.line).(OptionDecl)
			require.True(t, ok, "expected OptionDecl")
			require.Equal(t, tt.want, ev.Option)
		})
	}
}

func TestParse_BadOptionIsUnknown(t *testing.T) {
	for _, line := range []string{
		"option",
		"option name",
		"option name X type slider",
		"option type spin",
	} {
		_, ok := Parse(line).(Unknown)
		require.True(t, ok, line)
	}
}

func TestParse_Info(t *testing.T) {
	got := Parse("info depth 12 seldepth 20 time 1500 nodes 123456789 nps 800000 hashfull 300 multipv 1 score cp -125 lowerbound currmove 7g7f pv 7g7f 3c3d 2g2f")
	require.Equal(t, Info{
		Depth:    intp(12),
		SelDepth: intp(20),
		TimeMs:   intp(1500),
		Nodes:    int64p(123456789),
		NPS:      int64p(800000),
		HashFull: intp(300),
		MultiPV:  intp(1),
		Score:    &Score{Value: -125, Lowerbound: true},
		CurrMove: "7g7f",
		PV:       []string{"7g7f", "3c3d", "2g2f"},
	}, got)
}

func TestParse_InfoScores(t *testing.T) {
	tests := []struct {
		line string
		want *Score
	}{
		{"info score mate 5", &Score{Mate: true, Value: 5}},
		{"info score mate -3 upperbound", &Score{Mate: true, Value: -3, Upperbound: true}},
		{"info score mate +", &Score{Mate: true, Value: 1, Unknown: true}},
		{"info score mate -", &Score{Mate: true, Value: -1, Unknown: true}},
		{"info score cp 0", &Score{}},
		{"info score", nil},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			info, ok := Parse(tt.line).(Info)
			require.True(t, ok)
			require.Equal(t, tt.want, info.Score)
		})
	}
}

func TestParse_InfoPreservesUnknownFields(t *testing.T) {
	info := Parse("info depth 3 cpuload 250 string hello  world").(Info)
	require.Equal(t, intp(3), info.Depth)
	require.Equal(t, []string{"cpuload", "250"}, info.Extra)
	require.Equal(t, "hello world", info.String)
}
