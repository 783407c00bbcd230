// Package engine models USI engine descriptors and their option schema:
// typed options, validation, current-value resolution, and the diff/merge
// operations used when reusing a tuned configuration against a freshly
// queried schema.
package engine

import (
	"fmt"
	"sort"
	"strconv"
)

// Type is the declared type of a USI engine option.
type Type string

const (
	TypeCheck    Type = "check"
	TypeSpin     Type = "spin"
	TypeCombo    Type = "combo"
	TypeButton   Type = "button"
	TypeString   Type = "string"
	TypeFilename Type = "filename"
)

// ParseType maps a protocol type token to a Type. Tokens outside the closed
// set are rejected.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeCheck, TypeSpin, TypeCombo, TypeButton, TypeString, TypeFilename:
		return t, nil
	default:
		return "", fmt.Errorf("unknown option type %q", s)
	}
}

// EmptyPlaceholder is the default some engines declare for string options to
// mean "empty string".
const EmptyPlaceholder = "<empty>"

// Reserved and well-known option names.
const (
	OptionPonder          = "USI_Ponder"
	OptionHash            = "USI_Hash"
	OptionMultiPV         = "USI_MultiPV"
	OptionThreads         = "Threads"
	OptionNumberOfThreads = "NumberOfThreads"
	OptionMultiPVAlt      = "MultiPV"
)

// Decl holds the fields shared by every option variant.
type Decl struct {
	Name  string
	Order int
}

// Declared returns the shared declaration fields.
func (d Decl) Declared() Decl { return d }

// Option is one of CheckOption, SpinOption, ComboOption, ButtonOption or
// StringOption. The set is closed; consumers switch on the concrete type.
type Option interface {
	Declared() Decl
	Type() Type
	isOption()
}

// CheckOption is a boolean option carried as the tokens "true"/"false".
type CheckOption struct {
	Decl
	Default *string
	Value   *string
}

// SpinOption is an integer option with optional bounds.
type SpinOption struct {
	Decl
	Default *int
	Min     *int
	Max     *int
	Value   *int
}

// ComboOption selects one of Vars.
type ComboOption struct {
	Decl
	Default *string
	Vars    []string
	Value   *string
}

// ButtonOption has no value; setting it triggers an engine action.
type ButtonOption struct {
	Decl
}

// StringOption is a free-form string. Filename marks the "filename" type,
// which behaves like a string everywhere else.
type StringOption struct {
	Decl
	Filename bool
	Default  *string
	Value    *string
}

func (CheckOption) Type() Type  { return TypeCheck }
func (SpinOption) Type() Type   { return TypeSpin }
func (ComboOption) Type() Type  { return TypeCombo }
func (ButtonOption) Type() Type { return TypeButton }

func (o StringOption) Type() Type {
	if o.Filename {
		return TypeFilename
	}
	return TypeString
}

func (*CheckOption) isOption()  {}
func (*SpinOption) isOption()   {}
func (*ComboOption) isOption()  {}
func (*ButtonOption) isOption() {}
func (*StringOption) isOption() {}

// CurrentValue returns the value the engine should run with: the explicit
// value if set, else the default. A string option whose default is the
// <empty> placeholder resolves to "". Buttons never resolve.
func CurrentValue(option Option) (string, bool) {
	switch o := option.(type) {
	case nil:
		return "", false
	case *CheckOption:
		return firstString(o.Value, o.Default)
	case *SpinOption:
		if o.Value != nil {
			return strconv.Itoa(*o.Value), true
		}
		if o.Default != nil {
			return strconv.Itoa(*o.Default), true
		}
		return "", false
	case *ComboOption:
		return firstString(o.Value, o.Default)
	case *ButtonOption:
		return "", false
	case *StringOption:
		if o.Value != nil {
			return *o.Value, true
		}
		if o.Default != nil && *o.Default == EmptyPlaceholder {
			return "", true
		}
		return firstString(nil, o.Default)
	default:
		panic(fmt.Sprintf("engine: unhandled option type %T", option))
	}
}

func firstString(value, def *string) (string, bool) {
	if value != nil {
		return *value, true
	}
	if def != nil {
		return *def, true
	}
	return "", false
}

// WithValue returns a copy of option with its value parsed from raw. The
// result is not bounds-checked; run ValidateOption on it.
func WithValue(option Option, raw string) (Option, error) {
	name := option.Declared().Name
	switch o := CloneOption(option).(type) {
	case *CheckOption:
		if raw != "true" && raw != "false" {
			return nil, &ValidationError{Option: name, Reason: fmt.Sprintf("check value must be true or false, got %q", raw)}
		}
		o.Value = &raw
		return o, nil
	case *SpinOption:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, &ValidationError{Option: name, Reason: fmt.Sprintf("spin value must be an integer, got %q", raw)}
		}
		o.Value = &n
		return o, nil
	case *ComboOption:
		o.Value = &raw
		return o, nil
	case *ButtonOption:
		return nil, &ValidationError{Option: name, Reason: "button options carry no value"}
	case *StringOption:
		o.Value = &raw
		return o, nil
	default:
		panic(fmt.Sprintf("engine: unhandled option type %T", option))
	}
}

// CloneOption deep-copies an option.
func CloneOption(option Option) Option {
	switch o := option.(type) {
	case nil:
		return nil
	case *CheckOption:
		c := *o
		c.Default, c.Value = clonePtr(o.Default), clonePtr(o.Value)
		return &c
	case *SpinOption:
		c := *o
		c.Default, c.Min, c.Max, c.Value = clonePtr(o.Default), clonePtr(o.Min), clonePtr(o.Max), clonePtr(o.Value)
		return &c
	case *ComboOption:
		c := *o
		c.Default, c.Value = clonePtr(o.Default), clonePtr(o.Value)
		c.Vars = append([]string(nil), o.Vars...)
		return &c
	case *ButtonOption:
		c := *o
		return &c
	case *StringOption:
		c := *o
		c.Default, c.Value = clonePtr(o.Default), clonePtr(o.Value)
		return &c
	default:
		panic(fmt.Sprintf("engine: unhandled option type %T", option))
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Options maps option names to options.
type Options map[string]Option

// Sorted returns the options in declaration order, ties broken by name.
func (o Options) Sorted() []Option {
	list := make([]Option, 0, len(o))
	for _, opt := range o {
		list = append(list, opt)
	}
	sortByOrder(list)
	return list
}

// Clone deep-copies every option.
func (o Options) Clone() Options {
	if o == nil {
		return nil
	}
	c := make(Options, len(o))
	for name, opt := range o {
		c[name] = CloneOption(opt)
	}
	return c
}

func sortByOrder(list []Option) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].Declared(), list[j].Declared()
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.Name < b.Name
	})
}
