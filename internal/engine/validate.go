package engine

import (
	"fmt"
	"slices"
)

// ValidationError reports a malformed engine configuration. Option is empty
// for descriptor-level problems.
type ValidationError struct {
	Option string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Option == "" {
		return "invalid engine: " + e.Reason
	}
	return fmt.Sprintf("invalid engine option %q: %s", e.Option, e.Reason)
}

// Validate checks the descriptor before launch.
func Validate(d *Descriptor) error {
	if d == nil {
		return &ValidationError{Reason: "descriptor is nil"}
	}
	if !IsEngineURI(d.URI) {
		return &ValidationError{Reason: fmt.Sprintf("invalid engine URI %q", d.URI)}
	}
	if d.Name == "" && d.DefaultName == "" {
		return &ValidationError{Reason: "engine name is required"}
	}
	if d.Path == "" {
		return &ValidationError{Reason: "engine path is required"}
	}
	for _, opt := range d.Options.Sorted() {
		if err := ValidateOption(opt); err != nil {
			return err
		}
	}
	for key, opt := range d.Options {
		if opt.Declared().Name != key {
			return &ValidationError{Option: key, Reason: fmt.Sprintf("declared under mismatched name %q", opt.Declared().Name)}
		}
	}
	return nil
}

// ValidateOption checks an option's value against its type and bounds.
func ValidateOption(option Option) error {
	name := option.Declared().Name
	fail := func(format string, args ...any) error {
		return &ValidationError{Option: name, Reason: fmt.Sprintf(format, args...)}
	}
	switch o := option.(type) {
	case *CheckOption:
		if o.Value != nil && *o.Value != "true" && *o.Value != "false" {
			return fail("type=check value=%q", *o.Value)
		}
	case *SpinOption:
		if o.Value == nil {
			return nil
		}
		if o.Min != nil && *o.Value < *o.Min {
			return fail("type=spin value=%d below min=%d", *o.Value, *o.Min)
		}
		if o.Max != nil && *o.Value > *o.Max {
			return fail("type=spin value=%d above max=%d", *o.Value, *o.Max)
		}
	case *ComboOption:
		if o.Value != nil && len(o.Vars) > 0 && !slices.Contains(o.Vars, *o.Value) {
			return fail("type=combo value=%q not in %v", *o.Value, o.Vars)
		}
	case *ButtonOption, *StringOption:
	default:
		return fail("unsupported option type %T", option)
	}
	return nil
}
