package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func descriptorWith(opts ...Option) *Descriptor {
	d := validDescriptor()
	for _, o := range opts {
		d.Options[o.Declared().Name] = o
	}
	return d
}

func TestDiff_Basic(t *testing.T) {
	left := descriptorWith(
		&SpinOption{Decl: Decl{Name: OptionHash, Order: 1}, Default: ptr(256)},
		&CheckOption{Decl: Decl{Name: OptionPonder, Order: 2}, Default: ptr("true")},
		&StringOption{Decl: Decl{Name: "Book", Order: 3}, Default: ptr("a.db")},
		&ButtonOption{Decl: Decl{Name: "Clear", Order: 4}},
	)
	right := descriptorWith(
		&SpinOption{Decl: Decl{Name: OptionHash, Order: 1}, Default: ptr(256), Value: ptr(1024)},
		&CheckOption{Decl: Decl{Name: OptionPonder, Order: 2}, Value: ptr("true")},
		&ComboOption{Decl: Decl{Name: "Book", Order: 3}, Vars: []string{"b.db"}, Value: ptr("b.db")},
		&StringOption{Decl: Decl{Name: "EvalDir", Order: 5}, Default: ptr("eval")},
	)

	diffs := Diff(left, right)
	require.Equal(t, []OptionDiff{
		{Name: OptionHash, Left: ptr("256"), Right: ptr("1024"), Mergeable: true},
		{Name: "Book", Left: ptr("a.db"), Right: ptr("b.db"), Mergeable: false},
		{Name: "EvalDir", Right: ptr("eval")},
	}, diffs)
}

func TestDiff_SkipsUnresolvedOneSided(t *testing.T) {
	left := descriptorWith(&SpinOption{Decl: Decl{Name: "Depth"}})
	right := validDescriptor()
	require.Empty(t, Diff(left, right))
}

func TestMerge(t *testing.T) {
	target := descriptorWith(
		&SpinOption{Decl: Decl{Name: OptionHash}, Min: ptr(1), Max: ptr(4096), Default: ptr(256)},
		&StringOption{Decl: Decl{Name: "Book"}},
	)
	target.Name = "Fresh"
	source := descriptorWith(
		&SpinOption{Decl: Decl{Name: OptionHash}, Max: ptr(1024), Value: ptr(2048)},
		&ComboOption{Decl: Decl{Name: "Book"}, Value: ptr("x")},
	)
	source.Name = "Tuned"
	source.Labels = Labels{Game: true}
	source.EnableEarlyPonder = true

	Merge(target, source)

	require.Equal(t, source.URI, target.URI)
	require.Equal(t, "Tuned", target.Name)
	require.Equal(t, Labels{Game: true}, target.Labels)
	require.True(t, target.EnableEarlyPonder)
	hash := target.Options[OptionHash].(*SpinOption)
	require.Equal(t, 2048, *hash.Value)
	require.Equal(t, 4096, *hash.Max, "schema bounds come from the target")
	require.Nil(t, target.Options["Book"].(*StringOption).Value, "type mismatch is not merged")
}

var optionNames = []string{"A", "B", "C", "D"}

func genOption(name string) *rapid.Generator[Option] {
	return rapid.Custom(func(t *rapid.T) Option {
		decl := Decl{Name: name, Order: rapid.IntRange(0, 3).Draw(t, "order")}
		maybeStr := func(label string) *string {
			if rapid.Bool().Draw(t, label+"?") {
				return ptr(rapid.SampledFrom([]string{"x", "y", "true", "false"}).Draw(t, label))
			}
			return nil
		}
		maybeInt := func(label string) *int {
			if rapid.Bool().Draw(t, label+"?") {
				return ptr(rapid.IntRange(0, 3).Draw(t, label))
			}
			return nil
		}
		switch rapid.IntRange(0, 4).Draw(t, "kind") {
		case 0:
			return &CheckOption{Decl: decl, Default: maybeStr("default"), Value: maybeStr("value")}
		case 1:
			return &SpinOption{Decl: decl, Default: maybeInt("default"), Value: maybeInt("value")}
		case 2:
			return &ComboOption{Decl: decl, Default: maybeStr("default"), Value: maybeStr("value")}
		case 3:
			return &ButtonOption{Decl: decl}
		default:
			return &StringOption{Decl: decl, Default: maybeStr("default"), Value: maybeStr("value")}
		}
	})
}

func genDescriptor(label string) *rapid.Generator[*Descriptor] {
	return rapid.Custom(func(t *rapid.T) *Descriptor {
		d := validDescriptor()
		for _, name := range optionNames {
			if rapid.Bool().Draw(t, fmt.Sprintf("%s.has%s", label, name)) {
				d.Options[name] = genOption(name).Draw(t, label+"."+name)
			}
		}
		return d
	})
}

func TestDiff_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		left := genDescriptor("left").Draw(t, "left")
		right := genDescriptor("right").Draw(t, "right")

		seen := map[string]bool{}
		for _, d := range Diff(left, right) {
			require.False(t, seen[d.Name], "option %s reported twice", d.Name)
			seen[d.Name] = true

			if d.Left != nil && d.Right != nil {
				require.NotEqual(t, *d.Left, *d.Right)
			}
			l, r := left.Options[d.Name], right.Options[d.Name]
			bothValued := valued(l) && valued(r)
			require.Equal(t, bothValued && l.Type() == r.Type(), d.Mergeable)
		}

		require.Empty(t, Diff(left, left), "a descriptor never differs from itself")
	})
}

func TestMerge_Idempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		target := genDescriptor("target").Draw(t, "target")
		source := genDescriptor("source").Draw(t, "source")

		once := target.Clone()
		Merge(once, source)
		twice := once.Clone()
		Merge(twice, source)

		require.Equal(t, once, twice)
	})
}
