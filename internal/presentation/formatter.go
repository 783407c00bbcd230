package presentation

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
)

// Formatter handles output formatting. In JSON mode lists are written as
// indented arrays and events as one object per line.
type Formatter struct {
	writer io.Writer
	json   bool
}

// NewFormatter creates a new text formatter
func NewFormatter(writer io.Writer) *Formatter {
	return &Formatter{writer: writer}
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(writer io.Writer) *Formatter {
	return &Formatter{writer: writer, json: true}
}

// FormatEngines formats a list of engines
func (f *Formatter) FormatEngines(engines []EngineDTO) error {
	if f.json {
		return f.indented(engines)
	}
	rows := [][]string{{"NAME", "LABELS", "PONDER", "URI", "PATH"}}
	for _, e := range engines {
		rows = append(rows, []string{e.Name, strings.Join(e.Labels, ","), strconv.FormatBool(e.Ponder), e.URI, e.Path})
	}
	return f.table(rows)
}

// FormatDiffs formats option differences between two engines
func (f *Formatter) FormatDiffs(diffs []OptionDiffDTO) error {
	if f.json {
		return f.indented(diffs)
	}
	rows := [][]string{{"OPTION", "LEFT", "RIGHT", "MERGEABLE"}}
	for _, d := range diffs {
		rows = append(rows, []string{d.Name, orDash(d.Left), orDash(d.Right), strconv.FormatBool(d.Mergeable)})
	}
	return f.table(rows)
}

// FormatEvent formats one session event
func (f *Formatter) FormatEvent(ev EventDTO) error {
	if f.json {
		return json.NewEncoder(f.writer).Encode(ev)
	}
	_, err := fmt.Fprintln(f.writer, EventLine(ev))
	return err
}

// EventLine renders an event in a USI-like single line.
func EventLine(ev EventDTO) string {
	var b strings.Builder
	switch ev.Type {
	case EventInfo:
		b.WriteString("info")
		writeInfo(&b, ev)
	case EventBestMove:
		b.WriteString("bestmove ")
		b.WriteString(ev.Move)
		if ev.Ponder != "" {
			b.WriteString(" ponder ")
			b.WriteString(ev.Ponder)
		}
	case EventCheckmate:
		b.WriteString("checkmate")
		for _, m := range ev.PV {
			b.WriteString(" ")
			b.WriteString(m)
		}
	case EventMateNotImplemented:
		b.WriteString("checkmate notimplemented")
	case EventMateTimeout:
		b.WriteString("checkmate timeout")
	case EventNoMate:
		b.WriteString("checkmate nomate")
	case EventError:
		b.WriteString("error: ")
		b.WriteString(ev.Error)
	default:
		b.WriteString(ev.Type)
	}
	return b.String()
}

func writeInfo(b *strings.Builder, ev EventDTO) {
	if ev.Depth != nil {
		b.WriteString(" depth ")
		b.WriteString(strconv.Itoa(*ev.Depth))
	}
	switch {
	case ev.Mate != nil:
		b.WriteString(" score mate ")
		b.WriteString(strconv.Itoa(*ev.Mate))
	case ev.Score != nil:
		b.WriteString(" score cp ")
		b.WriteString(strconv.Itoa(*ev.Score))
	}
	if len(ev.PV) > 0 {
		b.WriteString(" pv ")
		b.WriteString(strings.Join(ev.PV, " "))
	}
}

// table writes rows as left-aligned columns separated by two spaces. Widths
// are display cells so that full-width engine names line up.
func (f *Formatter) table(rows [][]string) error {
	var widths []int
	for _, row := range rows {
		for i, cell := range row {
			if i == len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}
	var b strings.Builder
	for _, row := range rows {
		for i, cell := range row {
			if i == len(row)-1 {
				b.WriteString(cell)
				break
			}
			b.WriteString(runewidth.FillRight(cell, widths[i]+2))
		}
		b.WriteByte('\n')
	}
	_, err := io.WriteString(f.writer, b.String())
	return err
}

func (f *Formatter) indented(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func orDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
