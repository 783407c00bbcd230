package usi

import "github.com/zjrosen/usibridge/internal/engine"

// Event is one parsed line of engine output. The set is closed: IDName,
// IDAuthor, OptionDecl, USIOK, ReadyOK, BestMove, Info, Checkmate,
// CheckmateNotImplemented, CheckmateTimeout, CheckmateNoMate and Unknown.
type Event interface {
	isEvent()
}

// IDName is "id name <name>".
type IDName struct{ Name string }

// IDAuthor is "id author <author>".
type IDAuthor struct{ Author string }

// OptionDecl is an "option name ... type ..." declaration. The option's
// Order is left zero; the handshake numbers declarations as they arrive.
type OptionDecl struct{ Option engine.Option }

// USIOK acknowledges the "usi" handshake.
type USIOK struct{}

// ReadyOK acknowledges "isready".
type ReadyOK struct{}

// Reserved best-move tokens.
const (
	MoveResign = "resign"
	MoveWin    = "win"
)

// BestMove is "bestmove <move> [ponder <move>]". Move may be one of the
// reserved tokens MoveResign or MoveWin.
type BestMove struct {
	Move   string
	Ponder string
}

// Score is the evaluation carried by an info line, relative to the side to
// move. For mate scores Value is in plies; when the engine reports an unknown
// distance ("mate +" / "mate -") Unknown is set and Value holds only the sign.
type Score struct {
	Mate       bool
	Value      int
	Unknown    bool
	Lowerbound bool
	Upperbound bool
}

// Info is an "info" line. Absent numeric fields are nil. Sub-fields the parser
// does not know are kept verbatim in Extra.
type Info struct {
	Depth    *int
	SelDepth *int
	TimeMs   *int
	Nodes    *int64
	NPS      *int64
	HashFull *int
	MultiPV  *int
	Score    *Score
	CurrMove string
	PV       []string
	String   string
	Extra    []string
}

// Checkmate is "checkmate <m1> <m2> ...".
type Checkmate struct{ Moves []string }

// CheckmateNotImplemented is "checkmate notimplemented".
type CheckmateNotImplemented struct{}

// CheckmateTimeout is "checkmate timeout".
type CheckmateTimeout struct{}

// CheckmateNoMate is "checkmate nomate".
type CheckmateNoMate struct{}

// Unknown is any line the parser does not recognize.
type Unknown struct{ Line string }

func (IDName) isEvent()                  {}
func (IDAuthor) isEvent()                {}
func (OptionDecl) isEvent()              {}
func (USIOK) isEvent()                   {}
func (ReadyOK) isEvent()                 {}
func (BestMove) isEvent()                {}
func (Info) isEvent()                    {}
func (Checkmate) isEvent()               {}
func (CheckmateNotImplemented) isEvent() {}
func (CheckmateTimeout) isEvent()        {}
func (CheckmateNoMate) isEvent()         {}
func (Unknown) isEvent()                 {}
