package usi

import "strings"

// StartPos is the context of the initial position.
const StartPos = "startpos"

// AppendMoves extends a position context with moves.
func AppendMoves(ctx string, moves ...string) string {
	if len(moves) == 0 {
		return ctx
	}
	if HasMoves(ctx) {
		return ctx + " " + strings.Join(moves, " ")
	}
	return ctx + " moves " + strings.Join(moves, " ")
}

// HasMoves reports whether ctx already carries a "moves" section.
func HasMoves(ctx string) bool {
	for _, f := range strings.Fields(ctx) {
		if f == "moves" {
			return true
		}
	}
	return false
}

// NextMove returns m when ctx == AppendMoves(base, m) for a single move m.
func NextMove(ctx, base string) (string, bool) {
	rest, ok := strings.CutPrefix(ctx, base)
	if !ok {
		return "", false
	}
	sep := " "
	if !HasMoves(base) {
		sep = " moves "
	}
	move, ok := strings.CutPrefix(rest, sep)
	if !ok || move == "" || strings.ContainsAny(move, " \t") {
		return "", false
	}
	return move, true
}
