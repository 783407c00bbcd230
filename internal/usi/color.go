package usi

// Color identifies a side. Black moves first.
type Color int

const (
	Black Color = iota
	White
)

// Opposite returns the other side.
func (c Color) Opposite() Color {
	if c == Black {
		return White
	}
	return Black
}

// Sign is +1 for Black and -1 for White. Engine scores are relative to the
// side to move; multiplying by Sign makes them Black-relative.
func (c Color) Sign() int {
	if c == Black {
		return 1
	}
	return -1
}

func (c Color) String() string {
	if c == Black {
		return "black"
	}
	return "white"
}
