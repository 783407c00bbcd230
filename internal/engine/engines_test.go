package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const enginesYAML = `
engines:
  es://usi-engine/one:
    name: Alpha
    default_name: Alpha 1.0
    author: someone
    path: /opt/alpha
    labels:
      mate: false
    options:
      USI_Hash:
        type: spin
        order: 1
        default: 256
        min: 1
        max: 1024
        value: 512
      USI_Ponder:
        type: check
        order: 2
        default: true
      Style:
        type: combo
        order: 3
        default: Normal
        vars: [Normal, Aggressive]
      Clear Hash:
        type: button
        order: 4
      EvalDir:
        type: filename
        order: 5
        default: eval
  es://usi-engine/two:
    name: Beta
    path: /opt/beta
  not-an-engine:
    name: Ignored
    path: /opt/ignored
`

func TestParseEngines(t *testing.T) {
	engines, err := ParseEngines([]byte(enginesYAML))
	require.NoError(t, err)
	require.Equal(t, 2, engines.Len())
	require.False(t, engines.Has("not-an-engine"))

	alpha := engines.Get("es://usi-engine/one")
	require.NotNil(t, alpha)
	require.Equal(t, "es://usi-engine/one", alpha.URI)
	require.Equal(t, Labels{Game: true, Research: true, Mate: false}, alpha.Labels)
	require.Len(t, alpha.Options, 5)
	require.True(t, alpha.PonderEnabled())
	require.NoError(t, Validate(alpha))

	hash := alpha.Options[OptionHash].(*SpinOption)
	require.Equal(t, 512, *hash.Value)
	require.Equal(t, 1024, *hash.Max)
	require.Equal(t, TypeFilename, alpha.Options["EvalDir"].Type())

	beta := engines.Get("es://usi-engine/two")
	require.Equal(t, DefaultLabels(), beta.Labels)
	require.NotNil(t, beta.Options)
}

func TestParseEngines_RejectsUnknownType(t *testing.T) {
	_, err := ParseEngines([]byte(`
engines:
  es://usi-engine/x:
    name: X
    path: /x
    options:
      Weird:
        type: slider
`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "Weird", verr.Option)
}

func TestEngines_MarshalRoundTripKeepsValues(t *testing.T) {
	engines, err := ParseEngines([]byte(enginesYAML))
	require.NoError(t, err)

	data, err := engines.Marshal()
	require.NoError(t, err)
	again, err := ParseEngines(data)
	require.NoError(t, err)

	require.Empty(t, Diff(engines.Get("es://usi-engine/one"), again.Get("es://usi-engine/one")))
	require.Equal(t, engines.Get("es://usi-engine/one").Labels, again.Get("es://usi-engine/one").Labels)
}

func TestEngines_ListFindFilter(t *testing.T) {
	engines, err := ParseEngines([]byte(enginesYAML))
	require.NoError(t, err)

	list := engines.List()
	require.Equal(t, "Alpha", list[0].Name)
	require.Equal(t, "Beta", list[1].Name)

	d, ok := engines.Find("Beta")
	require.True(t, ok)
	require.Equal(t, "es://usi-engine/two", d.URI)
	_, ok = engines.Find("Gamma")
	require.False(t, ok)

	mate := engines.FilterByLabel(LabelMate)
	require.Equal(t, 1, mate.Len())
	require.True(t, mate.Has("es://usi-engine/two"))

	require.True(t, engines.Remove("es://usi-engine/two"))
	require.False(t, engines.Remove("es://usi-engine/two"))
	require.False(t, engines.Update(&Descriptor{URI: "es://usi-engine/two"}))
}

func TestCLIExportImport(t *testing.T) {
	engines, err := ParseEngines([]byte(enginesYAML))
	require.NoError(t, err)
	alpha := engines.Get("es://usi-engine/one")

	cli := ExportCLI(alpha)
	require.NotContains(t, cli.Options, "Clear Hash")
	require.Equal(t, CLIOption{Type: TypeSpin, Value: "512"}, cli.Options[OptionHash])

	back, err := ImportCLI(cli, "")
	require.NoError(t, err)
	require.True(t, IsEngineURI(back.URI))
	require.NoError(t, Validate(back))
	require.Empty(t, Diff(alpha, back))
}

func TestImportCLI_BadValue(t *testing.T) {
	_, err := ImportCLI(CLIEngine{
		Name:    "X",
		Path:    "/x",
		Options: map[string]CLIOption{OptionHash: {Type: TypeSpin, Value: "big"}},
	}, "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}
