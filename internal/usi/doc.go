// Package usi implements the USI wire format: parsing engine output lines
// into typed events and building the commands sent to an engine.
//
// Position contexts are the argument of the "position" command, for example
// "startpos moves 7g7f 3c3d" or "sfen <sfen> moves 7g7f". They double as the
// identity of a search: two searches are for the same position exactly when
// their contexts are equal strings.
package usi
