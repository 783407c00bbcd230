package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestCurrentValue(t *testing.T) {
	tests := []struct {
		name   string
		option Option
		want   string
		ok     bool
	}{
		{"nil", nil, "", false},
		{"button", &ButtonOption{Decl: Decl{Name: "Clear"}}, "", false},
		{"check value wins", &CheckOption{Default: ptr("false"), Value: ptr("true")}, "true", true},
		{"check default", &CheckOption{Default: ptr("false")}, "false", true},
		{"spin value", &SpinOption{Default: ptr(256), Value: ptr(1024)}, "1024", true},
		{"spin default", &SpinOption{Default: ptr(256)}, "256", true},
		{"spin unset", &SpinOption{}, "", false},
		{"combo default", &ComboOption{Default: ptr("Normal"), Vars: []string{"Normal", "Fast"}}, "Normal", true},
		{"string empty placeholder", &StringOption{Default: ptr(EmptyPlaceholder)}, "", true},
		{"string value over placeholder", &StringOption{Default: ptr(EmptyPlaceholder), Value: ptr("book.db")}, "book.db", true},
		{"filename default", &StringOption{Filename: true, Default: ptr("eval/nn.bin")}, "eval/nn.bin", true},
		{"string unset", &StringOption{}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CurrentValue(tt.option)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseType(t *testing.T) {
	for _, s := range []string{"check", "spin", "combo", "button", "string", "filename"} {
		typ, err := ParseType(s)
		require.NoError(t, err)
		require.Equal(t, Type(s), typ)
	}
	_, err := ParseType("slider")
	require.Error(t, err)
}

func TestWithValue(t *testing.T) {
	spin := &SpinOption{Decl: Decl{Name: OptionHash}, Default: ptr(256)}

	got, err := WithValue(spin, "512")
	require.NoError(t, err)
	require.Equal(t, 512, *got.(*SpinOption).Value)
	require.Nil(t, spin.Value, "original must not be modified")

	_, err = WithValue(spin, "lots")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, OptionHash, verr.Option)

	_, err = WithValue(&CheckOption{Decl: Decl{Name: OptionPonder}}, "yes")
	require.ErrorAs(t, err, &verr)

	_, err = WithValue(&ButtonOption{Decl: Decl{Name: "Clear Hash"}}, "x")
	require.ErrorAs(t, err, &verr)
}

func TestCloneOption_IsDeep(t *testing.T) {
	combo := &ComboOption{Decl: Decl{Name: "Style"}, Vars: []string{"a", "b"}, Value: ptr("a")}
	c := CloneOption(combo).(*ComboOption)
	*c.Value = "b"
	c.Vars[0] = "z"
	require.Equal(t, "a", *combo.Value)
	require.Equal(t, "a", combo.Vars[0])
}

func TestOptions_SortedByOrderThenName(t *testing.T) {
	opts := Options{
		"B": &ButtonOption{Decl: Decl{Name: "B", Order: 2}},
		"A": &ButtonOption{Decl: Decl{Name: "A", Order: 2}},
		"C": &ButtonOption{Decl: Decl{Name: "C", Order: 1}},
	}
	var names []string
	for _, o := range opts.Sorted() {
		names = append(names, o.Declared().Name)
	}
	require.Equal(t, []string{"C", "A", "B"}, names)
}

func TestDescriptor_PonderEnabled(t *testing.T) {
	d := NewDescriptor()
	require.False(t, d.PonderEnabled())

	d.Options[OptionPonder] = &CheckOption{Decl: Decl{Name: OptionPonder}, Default: ptr("true")}
	require.True(t, d.PonderEnabled())

	d.Options[OptionPonder].(*CheckOption).Value = ptr("false")
	require.False(t, d.PonderEnabled())
}

func TestDuplicate(t *testing.T) {
	src := NewDescriptor()
	src.Name = "Lesserkai"
	src.Options[OptionHash] = &SpinOption{Decl: Decl{Name: OptionHash}, Value: ptr(64)}

	dup := Duplicate(src)
	require.NotEqual(t, src.URI, dup.URI)
	require.True(t, IsEngineURI(dup.URI))
	require.Equal(t, "Copy of Lesserkai", dup.Name)

	*dup.Options[OptionHash].(*SpinOption).Value = 128
	require.Equal(t, 64, *src.Options[OptionHash].(*SpinOption).Value)
}
