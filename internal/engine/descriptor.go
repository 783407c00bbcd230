package engine

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// URIPrefix identifies engine URIs.
const URIPrefix = "es://usi-engine/"

// IssueURI returns a fresh, unique engine URI.
func IssueURI() string {
	return URIPrefix + uuid.NewString()
}

// IsEngineURI reports whether s is an engine URI.
func IsEngineURI(s string) bool {
	return strings.HasPrefix(s, URIPrefix) && len(s) > len(URIPrefix)
}

// Label is a capability tag used to filter engines by purpose.
type Label string

const (
	LabelGame     Label = "game"
	LabelResearch Label = "research"
	LabelMate     Label = "mate"
)

// Labels records which purposes an engine is offered for.
type Labels struct {
	Game     bool `yaml:"game"`
	Research bool `yaml:"research"`
	Mate     bool `yaml:"mate"`
}

// DefaultLabels enables every purpose.
func DefaultLabels() Labels {
	return Labels{Game: true, Research: true, Mate: true}
}

// Has reports whether label is enabled.
func (l Labels) Has(label Label) bool {
	switch label {
	case LabelGame:
		return l.Game
	case LabelResearch:
		return l.Research
	case LabelMate:
		return l.Mate
	default:
		return false
	}
}

// Descriptor describes one configured engine. A descriptor handed to a
// launch is treated as immutable; callers change settings by updating a copy
// and relaunching.
type Descriptor struct {
	URI               string  `yaml:"uri"`
	Name              string  `yaml:"name"`
	DefaultName       string  `yaml:"default_name"`
	Author            string  `yaml:"author"`
	Path              string  `yaml:"path"`
	Options           Options `yaml:"options"`
	Labels            Labels  `yaml:"labels"`
	EnableEarlyPonder bool    `yaml:"enable_early_ponder"`
}

// UnmarshalYAML decodes a descriptor; labels missing from the document
// default to enabled.
func (d *Descriptor) UnmarshalYAML(node *yaml.Node) error {
	type plain Descriptor
	p := plain{Labels: DefaultLabels()}
	var labels map[Label]bool
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == "labels" {
			if err := node.Content[i+1].Decode(&labels); err != nil {
				return err
			}
		}
	}
	if err := node.Decode(&p); err != nil {
		return err
	}
	p.Labels = DefaultLabels()
	for label, on := range labels {
		switch label {
		case LabelGame:
			p.Labels.Game = on
		case LabelResearch:
			p.Labels.Research = on
		case LabelMate:
			p.Labels.Mate = on
		}
	}
	*d = Descriptor(p)
	return nil
}

// NewDescriptor returns an empty descriptor with a fresh URI and all labels.
func NewDescriptor() *Descriptor {
	return &Descriptor{
		URI:     IssueURI(),
		Options: Options{},
		Labels:  DefaultLabels(),
	}
}

// DisplayName returns Name, falling back to DefaultName.
func (d *Descriptor) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.DefaultName
}

// Clone deep-copies the descriptor.
func (d *Descriptor) Clone() *Descriptor {
	c := *d
	c.Options = d.Options.Clone()
	return &c
}

// Duplicate copies src under a fresh URI and a "Copy of" name.
func Duplicate(src *Descriptor) *Descriptor {
	c := src.Clone()
	c.URI = IssueURI()
	c.Name = fmt.Sprintf("Copy of %s", src.DisplayName())
	return c
}

// PonderEnabled reports whether the USI_Ponder option resolves to true.
func (d *Descriptor) PonderEnabled() bool {
	v, ok := CurrentValue(d.Options[OptionPonder])
	return ok && v == "true"
}
