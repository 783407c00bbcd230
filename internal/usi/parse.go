package usi

import (
	"strconv"
	"strings"

	"github.com/zjrosen/usibridge/internal/engine"
)

// Parse decodes one line of engine output. Lines that are empty or not
// understood come back as Unknown; Parse never fails.
func Parse(line string) Event {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Unknown{Line: line}
	}
	switch fields[0] {
	case "id":
		return parseID(line, fields)
	case "option":
		return parseOption(line, fields[1:])
	case "usiok":
		return USIOK{}
	case "readyok":
		return ReadyOK{}
	case "bestmove":
		return parseBestMove(line, fields[1:])
	case "info":
		return parseInfo(fields[1:])
	case "checkmate":
		return parseCheckmate(line, fields[1:])
	}
	return Unknown{Line: line}
}

func parseID(line string, fields []string) Event {
	if len(fields) < 2 {
		return Unknown{Line: line}
	}
	value := restAfter(line, 2)
	switch fields[1] {
	case "name":
		return IDName{Name: value}
	case "author":
		return IDAuthor{Author: value}
	}
	return Unknown{Line: line}
}

// restAfter returns the raw text following the first n fields of line, so
// that values containing runs of spaces survive.
func restAfter(line string, n int) string {
	s := strings.TrimLeft(line, " \t")
	for i := 0; i < n; i++ {
		idx := strings.IndexAny(s, " \t")
		if idx < 0 {
			return ""
		}
		s = strings.TrimLeft(s[idx:], " \t")
	}
	return s
}

var optionKeywords = map[string]bool{
	"type":    true,
	"default": true,
	"min":     true,
	"max":     true,
	"var":     true,
}

// parseOption decodes "name <name> type <type> [default x] [min n] [max n]
// [var v]*". Names and values may contain spaces; they run until the next
// keyword.
func parseOption(line string, fields []string) Event {
	if len(fields) < 2 || fields[0] != "name" {
		return Unknown{Line: line}
	}

	var (
		name, typ string
		def       *string
		minRaw    *string
		maxRaw    *string
		vars      []string
	)
	i := 1
	collect := func() string {
		start := i
		for i < len(fields) && !optionKeywords[fields[i]] {
			i++
		}
		return strings.Join(fields[start:i], " ")
	}
	// Names may contain keywords other than "type".
	start := i
	for i < len(fields) && fields[i] != "type" {
		i++
	}
	name = strings.Join(fields[start:i], " ")
	for i < len(fields) {
		key := fields[i]
		i++
		value := collect()
		switch key {
		case "type":
			typ = value
		case "default":
			def = &value
		case "min":
			minRaw = &value
		case "max":
			maxRaw = &value
		case "var":
			vars = append(vars, value)
		}
	}
	if name == "" {
		return Unknown{Line: line}
	}

	t, err := engine.ParseType(typ)
	if err != nil {
		return Unknown{Line: line}
	}
	decl := engine.Decl{Name: name}
	switch t {
	case engine.TypeCheck:
		return OptionDecl{Option: &engine.CheckOption{Decl: decl, Default: def}}
	case engine.TypeSpin:
		return OptionDecl{Option: &engine.SpinOption{
			Decl:    decl,
			Default: atoiPtr(def),
			Min:     atoiPtr(minRaw),
			Max:     atoiPtr(maxRaw),
		}}
	case engine.TypeCombo:
		return OptionDecl{Option: &engine.ComboOption{Decl: decl, Default: def, Vars: vars}}
	case engine.TypeButton:
		return OptionDecl{Option: &engine.ButtonOption{Decl: decl}}
	case engine.TypeString, engine.TypeFilename:
		return OptionDecl{Option: &engine.StringOption{Decl: decl, Filename: t == engine.TypeFilename, Default: def}}
	}
	return Unknown{Line: line}
}

func atoiPtr(s *string) *int {
	if s == nil {
		return nil
	}
	n, err := strconv.Atoi(*s)
	if err != nil {
		return nil
	}
	return &n
}

func parseBestMove(line string, fields []string) Event {
	if len(fields) == 0 {
		return Unknown{Line: line}
	}
	bm := BestMove{Move: fields[0]}
	if len(fields) >= 3 && fields[1] == "ponder" {
		bm.Ponder = fields[2]
	}
	return bm
}

func parseCheckmate(line string, fields []string) Event {
	if len(fields) == 0 {
		return Unknown{Line: line}
	}
	switch fields[0] {
	case "notimplemented":
		return CheckmateNotImplemented{}
	case "timeout":
		return CheckmateTimeout{}
	case "nomate":
		return CheckmateNoMate{}
	}
	return Checkmate{Moves: append([]string(nil), fields...)}
}

// parseInfo decodes the sub-fields of an info line. "pv" and "string"
// consume the rest of the line.
func parseInfo(fields []string) Info {
	var info Info
	intAt := func(i int) (*int, bool) {
		if i >= len(fields) {
			return nil, false
		}
		n, err := strconv.Atoi(fields[i])
		if err != nil {
			return nil, false
		}
		return &n, true
	}
	int64At := func(i int) (*int64, bool) {
		if i >= len(fields) {
			return nil, false
		}
		n, err := strconv.ParseInt(fields[i], 10, 64)
		if err != nil {
			return nil, false
		}
		return &n, true
	}

	for i := 0; i < len(fields); {
		key := fields[i]
		switch key {
		case "depth", "seldepth", "time", "hashfull", "multipv":
			n, ok := intAt(i + 1)
			if !ok {
				info.Extra = append(info.Extra, key)
				i++
				continue
			}
			switch key {
			case "depth":
				info.Depth = n
			case "seldepth":
				info.SelDepth = n
			case "time":
				info.TimeMs = n
			case "hashfull":
				info.HashFull = n
			case "multipv":
				info.MultiPV = n
			}
			i += 2
		case "nodes", "nps":
			n, ok := int64At(i + 1)
			if !ok {
				info.Extra = append(info.Extra, key)
				i++
				continue
			}
			if key == "nodes" {
				info.Nodes = n
			} else {
				info.NPS = n
			}
			i += 2
		case "currmove":
			if i+1 < len(fields) {
				info.CurrMove = fields[i+1]
			}
			i += 2
		case "score":
			score, next := parseScore(fields, i+1)
			if score != nil {
				info.Score = score
			} else {
				info.Extra = append(info.Extra, fields[i:next]...)
			}
			i = next
		case "pv":
			info.PV = append([]string(nil), fields[i+1:]...)
			i = len(fields)
		case "string":
			info.String = strings.Join(fields[i+1:], " ")
			i = len(fields)
		default:
			info.Extra = append(info.Extra, key)
			i++
		}
	}
	return info
}

// parseScore reads "cp <n>" or "mate <n|+|->" starting at i, followed by an
// optional bound flag. It returns the index of the first unread field.
func parseScore(fields []string, i int) (*Score, int) {
	if i+1 >= len(fields) {
		return nil, len(fields)
	}
	kind, raw := fields[i], fields[i+1]
	next := i + 2
	var score Score
	switch kind {
	case "cp":
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, next
		}
		score.Value = n
	case "mate":
		score.Mate = true
		switch raw {
		case "+":
			score.Value, score.Unknown = 1, true
		case "-":
			score.Value, score.Unknown = -1, true
		default:
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, next
			}
			score.Value = n
		}
	default:
		return nil, i + 1
	}
	if next < len(fields) {
		switch fields[next] {
		case "lowerbound":
			score.Lowerbound = true
			next++
		case "upperbound":
			score.Upperbound = true
			next++
		}
	}
	return &score, next
}
