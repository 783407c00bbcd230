package presentation

import (
	"errors"

	"github.com/zjrosen/usibridge/internal/engine"
	"github.com/zjrosen/usibridge/internal/session"
)

// EngineDTO represents a configured engine for presentation
type EngineDTO struct {
	URI               string   `json:"uri"`
	Name              string   `json:"name"`
	Author            string   `json:"author,omitempty"`
	Path              string   `json:"path"`
	Labels            []string `json:"labels"`
	Ponder            bool     `json:"ponder"`
	EnableEarlyPonder bool     `json:"enable_early_ponder"`
	Options           int      `json:"options"`
}

// FromDescriptor converts a descriptor to a DTO.
func FromDescriptor(d *engine.Descriptor) EngineDTO {
	labels := []string{}
	for _, l := range []engine.Label{engine.LabelGame, engine.LabelResearch, engine.LabelMate} {
		if d.Labels.Has(l) {
			labels = append(labels, string(l))
		}
	}
	return EngineDTO{
		URI:               d.URI,
		Name:              d.DisplayName(),
		Author:            d.Author,
		Path:              d.Path,
		Labels:            labels,
		Ponder:            d.PonderEnabled(),
		EnableEarlyPonder: d.EnableEarlyPonder,
		Options:           len(d.Options),
	}
}

// OptionDiffDTO is one differing option between two engines
type OptionDiffDTO struct {
	Name      string  `json:"name"`
	Left      *string `json:"left"`
	Right     *string `json:"right"`
	Mergeable bool    `json:"mergeable"`
}

// FromOptionDiffs converts option diffs to DTOs.
func FromOptionDiffs(diffs []engine.OptionDiff) []OptionDiffDTO {
	out := make([]OptionDiffDTO, len(diffs))
	for i, d := range diffs {
		out[i] = OptionDiffDTO{Name: d.Name, Left: d.Left, Right: d.Right, Mergeable: d.Mergeable}
	}
	return out
}

// Event types as they appear in EventDTO.Type.
const (
	EventBestMove           = "bestmove"
	EventResign             = "resign"
	EventWin                = "win"
	EventInfo               = "info"
	EventCheckmate          = "checkmate"
	EventMateNotImplemented = "mate_not_implemented"
	EventMateTimeout        = "mate_timeout"
	EventNoMate             = "nomate"
	EventError              = "error"
)

// EventDTO represents a session event for presentation
type EventDTO struct {
	Type     string   `json:"type"`
	Position string   `json:"position,omitempty"`
	Move     string   `json:"move,omitempty"`
	Ponder   string   `json:"ponder,omitempty"`
	Depth    *int     `json:"depth,omitempty"`
	Score    *int     `json:"score,omitempty"`
	Mate     *int     `json:"mate,omitempty"`
	PV       []string `json:"pv,omitempty"`
	Error    string   `json:"error,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

// FromEvent converts a session event to a DTO.
func FromEvent(ev session.Event) EventDTO {
	switch e := ev.(type) {
	case session.BestMove:
		dto := EventDTO{Type: EventBestMove, Position: e.Position, Move: e.Move.USI()}
		if e.Info != nil {
			if len(e.Info.PV) > 0 {
				dto.Ponder = e.Info.PV[0].USI()
			}
			dto.Depth, dto.Score, dto.Mate = e.Info.Depth, e.Info.Score, e.Info.Mate
		}
		return dto
	case session.Resign:
		return EventDTO{Type: EventResign, Position: e.Position}
	case session.Win:
		return EventDTO{Type: EventWin, Position: e.Position}
	case session.Info:
		return EventDTO{
			Type:     EventInfo,
			Position: e.Position,
			Depth:    e.Depth,
			Score:    e.Score,
			Mate:     e.Mate,
			PV:       moveStrings(e.PV),
		}
	case session.Checkmate:
		return EventDTO{Type: EventCheckmate, Position: e.Position, PV: moveStrings(e.Moves)}
	case session.MateNotImplemented:
		return EventDTO{Type: EventMateNotImplemented, Position: e.Position}
	case session.MateTimeout:
		return EventDTO{Type: EventMateTimeout, Position: e.Position}
	case session.NoMate:
		return EventDTO{Type: EventNoMate, Position: e.Position}
	case session.Error:
		dto := EventDTO{Type: EventError}
		if e.Err != nil {
			dto.Error = e.Err.Error()
		}
		var pv *session.ProtocolViolation
		if errors.As(e.Err, &pv) {
			dto.Position, dto.Move, dto.Reason = pv.Position, pv.Move, pv.Reason
		}
		return dto
	default:
		return EventDTO{Type: "unknown"}
	}
}

func moveStrings(moves []session.Move) []string {
	if len(moves) == 0 {
		return nil
	}
	out := make([]string, len(moves))
	for i, m := range moves {
		out[i] = m.USI()
	}
	return out
}
