package engine

// OptionDiff describes one option whose current value differs between two
// configurations. A nil side means the option is absent there or has no
// resolvable value.
type OptionDiff struct {
	Name      string
	Left      *string
	Right     *string
	Mergeable bool
}

// Merge applies source's identity and tuned values onto target. Option values
// are copied only where target declares an option of the same name and the
// same non-button type; schema metadata such as bounds and vars stays as
// declared by target.
func Merge(target, source *Descriptor) {
	target.URI = source.URI
	target.Name = source.Name
	target.Labels = source.Labels
	target.EnableEarlyPonder = source.EnableEarlyPonder
	if target.Options == nil {
		return
	}
	for name, src := range source.Options {
		dst, ok := target.Options[name]
		if !ok || dst.Type() != src.Type() {
			continue
		}
		copyValue(dst, src)
	}
}

// copyValue copies the value field between options of the same type.
func copyValue(dst, src Option) {
	switch d := dst.(type) {
	case *CheckOption:
		d.Value = clonePtr(src.(*CheckOption).Value)
	case *SpinOption:
		d.Value = clonePtr(src.(*SpinOption).Value)
	case *ComboOption:
		d.Value = clonePtr(src.(*ComboOption).Value)
	case *StringOption:
		d.Value = clonePtr(src.(*StringOption).Value)
	case *ButtonOption:
	}
}

// Diff compares the current option values of left and right. Options that
// resolve to the same value on both sides are omitted. When both sides declare
// a non-button option the diff is mergeable iff the types match; when only one
// side does, the diff is never mergeable. Left options come first in
// declaration order, followed by options that only right declares.
func Diff(left, right *Descriptor) []OptionDiff {
	var result []OptionDiff
	appendDiff := func(name string, l, r Option) {
		lHas, rHas := valued(l), valued(r)
		switch {
		case lHas && rHas:
			lv, lok := CurrentValue(l)
			rv, rok := CurrentValue(r)
			if lok == rok && lv == rv {
				return
			}
			result = append(result, OptionDiff{
				Name:      name,
				Left:      valuePtr(lv, lok),
				Right:     valuePtr(rv, rok),
				Mergeable: l.Type() == r.Type(),
			})
		case lHas:
			if lv, ok := CurrentValue(l); ok {
				result = append(result, OptionDiff{Name: name, Left: &lv})
			}
		case rHas:
			if rv, ok := CurrentValue(r); ok {
				result = append(result, OptionDiff{Name: name, Right: &rv})
			}
		}
	}

	for _, l := range left.Options.Sorted() {
		name := l.Declared().Name
		appendDiff(name, l, right.Options[name])
	}
	for _, r := range right.Options.Sorted() {
		name := r.Declared().Name
		if _, ok := left.Options[name]; !ok {
			appendDiff(name, nil, r)
		}
	}
	return result
}

// valued reports whether the option exists and can carry a value.
func valued(o Option) bool {
	if o == nil {
		return false
	}
	_, isButton := o.(*ButtonOption)
	return !isButton
}

func valuePtr(v string, ok bool) *string {
	if !ok {
		return nil
	}
	return &v
}
