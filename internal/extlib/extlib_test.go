package extlib

import (
	"bytes"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rudyjantz/ptsgo/internal/constraint"
	"github.com/rudyjantz/ptsgo/internal/idspace"
)

func lastConstraint(cg *constraint.Graph) constraint.Constraint {
	return cg.Constraints[len(cg.Constraints)-1]
}

func TestApplyCopySummaryLinksDstFromSrc(t *testing.T) {
	cg := constraint.New()
	dst := cg.Space.New(1)
	src := cg.Space.New(1)

	tbl := NewTable()
	ok := tbl.Apply(cg, "copy", []idspace.ObjectId{dst, src}, nil)

	require.True(t, ok)
	require.Len(t, cg.Constraints, 1)
	c := lastConstraint(cg)
	assert.Equal(t, constraint.Copy, c.Kind)
	assert.Equal(t, dst, c.Dst)
	assert.Equal(t, src, c.Src)
}

func TestApplyAppendSummaryCopiesFromBothOperands(t *testing.T) {
	cg := constraint.New()
	s := cg.Space.New(1)
	v := cg.Space.New(1)
	result := cg.Space.New(1)

	tbl := NewTable()
	ok := tbl.Apply(cg, "append", []idspace.ObjectId{s, v}, []idspace.ObjectId{result})

	require.True(t, ok)
	require.Len(t, cg.Constraints, 2)
	assert.Equal(t, constraint.Copy, cg.Constraints[0].Kind)
	assert.Equal(t, result, cg.Constraints[0].Dst)
	assert.Equal(t, s, cg.Constraints[0].Src)
	assert.Equal(t, result, cg.Constraints[1].Dst)
	assert.Equal(t, v, cg.Constraints[1].Src)
}

func TestApplyNewReaderSummaryWidensResultToUniversalSet(t *testing.T) {
	cg := constraint.New()
	s := cg.Space.New(1)
	r := cg.Space.New(1)

	tbl := NewTable()
	ok := tbl.Apply(cg, "strings.NewReader", []idspace.ObjectId{s}, []idspace.ObjectId{r})

	require.True(t, ok)
	require.Len(t, cg.Constraints, 1)
	c := lastConstraint(cg)
	assert.Equal(t, constraint.AddrOf, c.Kind)
	assert.Equal(t, r, c.Dst)
	assert.Equal(t, idspace.UniversalSet, c.Src)
}

func TestApplyReadAllSummaryOnlyWidensErrorResult(t *testing.T) {
	cg := constraint.New()
	reader := cg.Space.New(1)
	bs := cg.Space.New(1)
	err := cg.Space.New(1)

	tbl := NewTable()
	ok := tbl.Apply(cg, "io.ReadAll", []idspace.ObjectId{reader}, []idspace.ObjectId{bs, err})

	require.True(t, ok)
	require.Len(t, cg.Constraints, 1)
	c := lastConstraint(cg)
	assert.Equal(t, err, c.Dst)
	assert.Equal(t, idspace.UniversalSet, c.Src)
}

func TestReflectSummariesWidenOnlyResultsNotArgs(t *testing.T) {
	cg := constraint.New()
	v := cg.Space.New(1)
	result := cg.Space.New(1)

	tbl := NewTable()
	ok := tbl.Apply(cg, "reflect.ValueOf", []idspace.ObjectId{v}, []idspace.ObjectId{result})

	require.True(t, ok)
	require.Len(t, cg.Constraints, 1)
	c := lastConstraint(cg)
	assert.Equal(t, result, c.Dst)
	assert.Equal(t, idspace.UniversalSet, c.Src)
}

func TestApplyReportsFalseForUnregisteredName(t *testing.T) {
	cg := constraint.New()
	tbl := NewTable()
	ok := tbl.Apply(cg, "some.Unmodeled", nil, nil)
	assert.False(t, ok)
	assert.Empty(t, cg.Constraints)
}

func TestExternalUnmodeledWidensEveryArgAndResult(t *testing.T) {
	cg := constraint.New()
	arg := cg.Space.New(1)
	result := cg.Space.New(1)

	ExternalUnmodeled(cg, []idspace.ObjectId{arg, 0}, []idspace.ObjectId{result})

	require.Len(t, cg.Constraints, 2)
	for _, c := range cg.Constraints {
		assert.Equal(t, constraint.AddrOf, c.Kind)
		assert.Equal(t, idspace.UniversalSet, c.Src)
	}
}

func TestLoadYAMLAndRegisterYAMLWiresCustomSummary(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	yamlDoc := `
summaries:
  mylib.Clone:
    copy_args_to_result: [0]
    result_index: 0
`
	require.NoError(t, v.ReadConfig(bytes.NewBufferString(yamlDoc)))

	cfg, err := LoadYAML(v)
	require.NoError(t, err)
	require.Contains(t, cfg.Summaries, "mylib.Clone")

	tbl := NewTable()
	tbl.RegisterYAML(cfg)

	cg := constraint.New()
	src := cg.Space.New(1)
	result := cg.Space.New(1)
	ok := tbl.Apply(cg, "mylib.Clone", []idspace.ObjectId{src}, []idspace.ObjectId{result})

	require.True(t, ok)
	require.Len(t, cg.Constraints, 1)
	c := lastConstraint(cg)
	assert.Equal(t, constraint.Copy, c.Kind)
	assert.Equal(t, result, c.Dst)
	assert.Equal(t, src, c.Src)
}

func TestRegisterYAMLUniversalFlagsWidenArgsAndResults(t *testing.T) {
	cfg := &YAMLConfig{Summaries: map[string]YAMLSummary{
		"mylib.Taint": {UniversalArgs: true, UniversalResults: true},
	}}
	tbl := NewTable()
	tbl.RegisterYAML(cfg)

	cg := constraint.New()
	arg := cg.Space.New(1)
	result := cg.Space.New(1)
	ok := tbl.Apply(cg, "mylib.Taint", []idspace.ObjectId{arg}, []idspace.ObjectId{result})

	require.True(t, ok)
	require.Len(t, cg.Constraints, 2)
	for _, c := range cg.Constraints {
		assert.Equal(t, idspace.UniversalSet, c.Src)
	}
}
