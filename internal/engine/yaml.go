package engine

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// optionDoc is the YAML shape of a single option. Scalars are kept as nodes so
// that each variant can interpret them by its own type.
type optionDoc struct {
	Type    string     `yaml:"type"`
	Order   int        `yaml:"order,omitempty"`
	Default *yaml.Node `yaml:"default,omitempty"`
	Min     *int       `yaml:"min,omitempty"`
	Max     *int       `yaml:"max,omitempty"`
	Vars    []string   `yaml:"vars,omitempty"`
	Value   *yaml.Node `yaml:"value,omitempty"`
}

// UnmarshalYAML decodes a name → option mapping, rejecting unknown types and
// values that do not fit their declared type.
func (o *Options) UnmarshalYAML(node *yaml.Node) error {
	var docs map[string]optionDoc
	if err := node.Decode(&docs); err != nil {
		return err
	}
	out := make(Options, len(docs))
	for name, doc := range docs {
		opt, err := doc.toOption(name)
		if err != nil {
			return err
		}
		out[name] = opt
	}
	*o = out
	return nil
}

// MarshalYAML encodes options with typed scalars.
func (o Options) MarshalYAML() (any, error) {
	docs := make(map[string]optionDoc, len(o))
	for name, opt := range o {
		docs[name] = fromOption(opt)
	}
	return docs, nil
}

func (doc optionDoc) toOption(name string) (Option, error) {
	t, err := ParseType(doc.Type)
	if err != nil {
		return nil, &ValidationError{Option: name, Reason: err.Error()}
	}
	decl := Decl{Name: name, Order: doc.Order}
	str := func(n *yaml.Node) *string {
		if n == nil {
			return nil
		}
		v := n.Value
		return &v
	}
	num := func(field string, n *yaml.Node) (*int, error) {
		if n == nil {
			return nil, nil
		}
		v, err := strconv.Atoi(n.Value)
		if err != nil {
			return nil, &ValidationError{Option: name, Reason: fmt.Sprintf("type=spin %s=%q is not an integer", field, n.Value)}
		}
		return &v, nil
	}

	switch t {
	case TypeCheck:
		return &CheckOption{Decl: decl, Default: str(doc.Default), Value: str(doc.Value)}, nil
	case TypeSpin:
		def, err := num("default", doc.Default)
		if err != nil {
			return nil, err
		}
		val, err := num("value", doc.Value)
		if err != nil {
			return nil, err
		}
		return &SpinOption{Decl: decl, Default: def, Min: doc.Min, Max: doc.Max, Value: val}, nil
	case TypeCombo:
		return &ComboOption{Decl: decl, Default: str(doc.Default), Vars: doc.Vars, Value: str(doc.Value)}, nil
	case TypeButton:
		return &ButtonOption{Decl: decl}, nil
	case TypeString, TypeFilename:
		return &StringOption{Decl: decl, Filename: t == TypeFilename, Default: str(doc.Default), Value: str(doc.Value)}, nil
	}
	return nil, &ValidationError{Option: name, Reason: fmt.Sprintf("unknown option type %q", doc.Type)}
}

func fromOption(option Option) optionDoc {
	doc := optionDoc{Type: string(option.Type()), Order: option.Declared().Order}
	strNode := func(p *string) *yaml.Node {
		if p == nil {
			return nil
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: *p}
	}
	intNode := func(p *int) *yaml.Node {
		if p == nil {
			return nil
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(*p)}
	}
	switch o := option.(type) {
	case *CheckOption:
		doc.Default, doc.Value = strNode(o.Default), strNode(o.Value)
	case *SpinOption:
		doc.Default, doc.Value = intNode(o.Default), intNode(o.Value)
		doc.Min, doc.Max = o.Min, o.Max
	case *ComboOption:
		doc.Default, doc.Value = strNode(o.Default), strNode(o.Value)
		doc.Vars = o.Vars
	case *ButtonOption:
	case *StringOption:
		doc.Default, doc.Value = strNode(o.Default), strNode(o.Value)
	}
	return doc
}

// CLIOption is the compact option form used by the command-line tools.
type CLIOption struct {
	Type  Type   `yaml:"type"`
	Value string `yaml:"value"`
}

// CLIEngine is the compact engine form: only resolvable values are kept and
// schema metadata is dropped.
type CLIEngine struct {
	Name              string               `yaml:"name"`
	Path              string               `yaml:"path"`
	Options           map[string]CLIOption `yaml:"options"`
	EnableEarlyPonder bool                 `yaml:"enable_early_ponder"`
}

// ExportCLI converts a descriptor to its compact form.
func ExportCLI(d *Descriptor) CLIEngine {
	out := CLIEngine{
		Name:              d.Name,
		Path:              d.Path,
		Options:           make(map[string]CLIOption),
		EnableEarlyPonder: d.EnableEarlyPonder,
	}
	for _, opt := range d.Options.Sorted() {
		v, ok := CurrentValue(opt)
		if !ok {
			continue
		}
		out.Options[opt.Declared().Name] = CLIOption{Type: opt.Type(), Value: v}
	}
	return out
}

// ImportCLI rebuilds a descriptor from its compact form. An empty uri issues
// a fresh one. Combo options get their value as the only allowed var since the
// original vars are not carried.
func ImportCLI(cli CLIEngine, uri string) (*Descriptor, error) {
	if uri == "" {
		uri = IssueURI()
	}
	d := &Descriptor{
		URI:               uri,
		Name:              cli.Name,
		DefaultName:       cli.Name,
		Path:              cli.Path,
		Options:           make(Options, len(cli.Options)),
		EnableEarlyPonder: cli.EnableEarlyPonder,
	}
	for name, o := range cli.Options {
		decl := Decl{Name: name}
		var opt Option
		switch o.Type {
		case TypeCheck:
			opt = &CheckOption{Decl: decl}
		case TypeSpin:
			opt = &SpinOption{Decl: decl}
		case TypeCombo:
			opt = &ComboOption{Decl: decl, Vars: []string{o.Value}}
		case TypeString, TypeFilename:
			opt = &StringOption{Decl: decl, Filename: o.Type == TypeFilename}
		default:
			return nil, &ValidationError{Option: name, Reason: fmt.Sprintf("unsupported option type %q", o.Type)}
		}
		valued, err := WithValue(opt, o.Value)
		if err != nil {
			return nil, err
		}
		d.Options[name] = valued
	}
	return d, nil
}
