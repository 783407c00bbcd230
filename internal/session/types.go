// Package session drives one engine through searches, pondering and mate
// searches over a Conn, reconciling the engine's replies with the positions
// they were requested for.
package session

import (
	"errors"
	"fmt"

	"github.com/zjrosen/usibridge/internal/process"
	"github.com/zjrosen/usibridge/internal/usi"
)

// State is the state of a session's search state machine.
type State int

const (
	Idle State = iota
	Thinking
	Pondering
	MateSearching
	AwaitingStop
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Thinking:
		return "thinking"
	case Pondering:
		return "pondering"
	case MateSearching:
		return "mate-searching"
	case AwaitingStop:
		return "awaiting-stop"
	default:
		return "unknown"
	}
}

// Conn is the transport to one engine process.
type Conn interface {
	Send(line string) error
	Events() <-chan usi.Event
	Close() error
}

// Move is a move decoded by a Position.
type Move interface {
	USI() string
}

// Position is the caller's game state. The session never inspects it beyond
// this interface: USI gives the position context sent to the engine and
// identifies the search; ParseMove and DoMove decode engine moves.
type Position interface {
	USI() string
	SideToMove() usi.Color
	ParseMove(usi string) (Move, bool)
	DoMove(m Move) bool
	Clone() Position
}

var (
	// ErrBusy is returned when a command is not allowed in the current state.
	ErrBusy = errors.New("session is busy")
	// ErrClosed is returned after Quit.
	ErrClosed = errors.New("session is closed")
	// ErrChannelClosed is reported once when the engine goes away without
	// Quit; the session is unusable afterwards.
	ErrChannelClosed = process.ErrChannelClosed
)

// ProtocolViolation reports an engine reply that cannot be applied to the
// position it was requested for.
type ProtocolViolation struct {
	Position string
	Move     string
	Reason   string
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation: %s %q (position %s)", e.Reason, e.Move, e.Position)
}

// SearchInfo is the latest search progress for a position. Score and Mate
// are relative to Black: positive favours Black.
type SearchInfo struct {
	Position string
	Depth    *int
	Score    *int
	Mate     *int
	PV       []Move
}

func (i SearchInfo) clone() SearchInfo {
	i.PV = append([]Move(nil), i.PV...)
	return i
}

// Event is delivered on a session's Events channel. The set is closed:
// BestMove, Resign, Win, Info, Checkmate, MateNotImplemented, MateTimeout,
// NoMate and Error.
type Event interface {
	isEvent()
}

// BestMove is the engine's chosen move for Position. Info is attached when
// the move heads the last principal variation; its PV then starts after the
// move.
type BestMove struct {
	Position string
	Move     Move
	Info     *SearchInfo
}

// Resign is reported when the engine resigns, and after an undecodable best
// move.
type Resign struct{ Position string }

// Win is reported when the engine declares a win.
type Win struct{ Position string }

// Info is throttled search progress.
type Info struct{ SearchInfo }

// Checkmate is a mate sequence found by a mate search.
type Checkmate struct {
	Position string
	Moves    []Move
}

// MateNotImplemented is reported when the engine has no mate search.
type MateNotImplemented struct{ Position string }

// MateTimeout is reported when the mate search ran out of time.
type MateTimeout struct{ Position string }

// NoMate is reported when there is no mate, and after an invalid mate reply.
type NoMate struct{ Position string }

// Error reports a ProtocolViolation or ErrChannelClosed.
type Error struct{ Err error }

func (BestMove) isEvent()           {}
func (Resign) isEvent()             {}
func (Win) isEvent()                {}
func (Info) isEvent()               {}
func (Checkmate) isEvent()          {}
func (MateNotImplemented) isEvent() {}
func (MateTimeout) isEvent()        {}
func (NoMate) isEvent()             {}
func (Error) isEvent()              {}
