// Package position is a syntactic USI position context: a start position
// (startpos or an SFEN) plus the moves played from it. It checks move
// notation and tracks the side to move but does not know the rules of
// shogi, so it cannot reject an illegal move that is well formed.
package position

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/zjrosen/usibridge/internal/session"
	"github.com/zjrosen/usibridge/internal/usi"
)

var moveRe = regexp.MustCompile(`^(?:[1-9][a-i][1-9][a-i]\+?|[PLNSGBR]\*[1-9][a-i])$`)

var handRe = regexp.MustCompile(`^(?:-|(?:[0-9]*[PLNSGBRplnsgbr])+)$`)

// Move is a move in USI notation.
type Move string

// USI returns the move's notation.
func (m Move) USI() string { return string(m) }

// IsDrop reports whether the move drops a piece from the hand.
func (m Move) IsDrop() bool { return len(m) == 4 && m[1] == '*' }

// IsPromotion reports whether the move promotes.
func (m Move) IsPromotion() bool { return strings.HasSuffix(string(m), "+") }

// ParseMove checks s against USI move notation. A move must change square.
func ParseMove(s string) (Move, error) {
	if !moveRe.MatchString(s) {
		return "", fmt.Errorf("invalid move %q", s)
	}
	if s[1] != '*' && s[0:2] == s[2:4] {
		return "", fmt.Errorf("null move %q", s)
	}
	return Move(s), nil
}

// Position is a start position and the moves played from it.
type Position struct {
	base      string
	startSide usi.Color
	moves     []Move
}

var _ session.Position = (*Position)(nil)

// Start returns the standard initial position.
func Start() *Position {
	return &Position{base: usi.StartPos, startSide: usi.Black}
}

// Parse reads a position context: "startpos [moves ...]" or
// "sfen <board> <side> <hands> <ply> [moves ...]". A leading "position"
// keyword is accepted.
func Parse(ctx string) (*Position, error) {
	fields := strings.Fields(ctx)
	if len(fields) > 0 && fields[0] == "position" {
		fields = fields[1:]
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty position")
	}

	var p *Position
	var rest []string
	switch fields[0] {
	case usi.StartPos:
		p = Start()
		rest = fields[1:]
	case "sfen":
		if len(fields) < 5 {
			return nil, fmt.Errorf("sfen needs board, side, hands and ply: %q", ctx)
		}
		side, err := parseSFEN(fields[1:5])
		if err != nil {
			return nil, err
		}
		p = &Position{base: strings.Join(fields[0:5], " "), startSide: side}
		rest = fields[5:]
	default:
		return nil, fmt.Errorf("position must start with startpos or sfen: %q", ctx)
	}

	if len(rest) == 0 {
		return p, nil
	}
	if rest[0] != "moves" {
		return nil, fmt.Errorf("unexpected %q after start position", rest[0])
	}
	for _, raw := range rest[1:] {
		m, err := ParseMove(raw)
		if err != nil {
			return nil, err
		}
		p.moves = append(p.moves, m)
	}
	return p, nil
}

func parseSFEN(f []string) (usi.Color, error) {
	if err := checkBoard(f[0]); err != nil {
		return 0, err
	}
	var side usi.Color
	switch f[1] {
	case "b":
		side = usi.Black
	case "w":
		side = usi.White
	default:
		return 0, fmt.Errorf("sfen side must be b or w, got %q", f[1])
	}
	if !handRe.MatchString(f[2]) {
		return 0, fmt.Errorf("invalid sfen hands %q", f[2])
	}
	if n, err := strconv.Atoi(f[3]); err != nil || n < 1 {
		return 0, fmt.Errorf("invalid sfen ply %q", f[3])
	}
	return side, nil
}

func checkBoard(board string) error {
	ranks := strings.Split(board, "/")
	if len(ranks) != 9 {
		return fmt.Errorf("sfen board needs 9 ranks, got %d", len(ranks))
	}
	for i, rank := range ranks {
		files := 0
		promoted := false
		for _, c := range rank {
			switch {
			case c >= '1' && c <= '9':
				if promoted {
					return fmt.Errorf("sfen rank %d: '+' before a digit", i+1)
				}
				files += int(c - '0')
			case c == '+':
				if promoted {
					return fmt.Errorf("sfen rank %d: repeated '+'", i+1)
				}
				promoted = true
				continue
			case strings.ContainsRune("PLNSGBRKplnsgbrk", c):
				files++
			default:
				return fmt.Errorf("sfen rank %d: unexpected %q", i+1, c)
			}
			promoted = false
		}
		if promoted || files != 9 {
			return fmt.Errorf("sfen rank %d covers %d files", i+1, files)
		}
	}
	return nil
}

// USI returns the position context sent with "position".
func (p *Position) USI() string {
	moves := make([]string, len(p.moves))
	for i, m := range p.moves {
		moves[i] = m.USI()
	}
	return usi.AppendMoves(p.base, moves...)
}

// SideToMove returns the side whose turn it is.
func (p *Position) SideToMove() usi.Color {
	if len(p.moves)%2 == 1 {
		return p.startSide.Opposite()
	}
	return p.startSide
}

// Moves returns the moves played from the start position.
func (p *Position) Moves() []Move {
	return append([]Move(nil), p.moves...)
}

// ParseMove decodes a move for this position.
func (p *Position) ParseMove(s string) (session.Move, bool) {
	m, err := ParseMove(s)
	if err != nil {
		return nil, false
	}
	return m, true
}

// DoMove plays m. It returns false for moves not decoded by ParseMove.
func (p *Position) DoMove(m session.Move) bool {
	move, ok := m.(Move)
	if !ok {
		var err error
		if move, err = ParseMove(m.USI()); err != nil {
			return false
		}
	}
	p.moves = append(p.moves, move)
	return true
}

// Clone returns an independent copy.
func (p *Position) Clone() session.Position {
	return p.Copy()
}

// Copy is Clone with the concrete type.
func (p *Position) Copy() *Position {
	c := *p
	c.moves = append([]Move(nil), p.moves...)
	return &c
}
