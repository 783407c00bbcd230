package usi

import (
	"strconv"
	"strings"
)

// Handshake returns the "usi" command.
func Handshake() string { return "usi" }

// IsReady returns the "isready" command.
func IsReady() string { return "isready" }

// NewGame returns the "usinewgame" command.
func NewGame() string { return "usinewgame" }

// Stop returns the "stop" command.
func Stop() string { return "stop" }

// PonderHit returns the "ponderhit" command.
func PonderHit() string { return "ponderhit" }

// Quit returns the "quit" command.
func Quit() string { return "quit" }

// Position returns "position <ctx>".
func Position(ctx string) string { return "position " + ctx }

// SetOption returns "setoption name <name> value <value>".
func SetOption(name, value string) string {
	return "setoption name " + name + " value " + value
}

// SetButton returns "setoption name <name>", the form used for buttons.
func SetButton(name string) string {
	return "setoption name " + name
}

// Outcome is the result reported by "gameover".
type Outcome string

const (
	Win  Outcome = "win"
	Lose Outcome = "lose"
	Draw Outcome = "draw"
)

// GameOver returns "gameover <outcome>".
func GameOver(outcome Outcome) string { return "gameover " + string(outcome) }

// GoMode selects the kind of search started by "go".
type GoMode int

const (
	GoNormal GoMode = iota
	GoPonder
	GoInfinite
	GoMate
)

// GoTime carries the clock parameters of a "go" command, in milliseconds.
// Byoyomi takes precedence over the increments when both are set.
type GoTime struct {
	BTime   int
	WTime   int
	Byoyomi int
	BInc    int
	WInc    int
}

// GoParams describes one "go" command. MateMillis applies to GoMate only;
// zero means "infinite".
type GoParams struct {
	Mode       GoMode
	Time       GoTime
	MateMillis int
}

// Go renders a "go" command.
func Go(p GoParams) string {
	var b strings.Builder
	b.WriteString("go")
	switch p.Mode {
	case GoInfinite:
		b.WriteString(" infinite")
		return b.String()
	case GoMate:
		b.WriteString(" mate ")
		if p.MateMillis > 0 {
			b.WriteString(strconv.Itoa(p.MateMillis))
		} else {
			b.WriteString("infinite")
		}
		return b.String()
	case GoPonder:
		b.WriteString(" ponder")
	}
	t := p.Time
	writeInt(&b, "btime", t.BTime)
	writeInt(&b, "wtime", t.WTime)
	if t.Byoyomi > 0 || (t.BInc == 0 && t.WInc == 0) {
		writeInt(&b, "byoyomi", t.Byoyomi)
	} else {
		writeInt(&b, "binc", t.BInc)
		writeInt(&b, "winc", t.WInc)
	}
	return b.String()
}

func writeInt(b *strings.Builder, key string, v int) {
	b.WriteByte(' ')
	b.WriteString(key)
	b.WriteByte(' ')
	b.WriteString(strconv.Itoa(v))
}
