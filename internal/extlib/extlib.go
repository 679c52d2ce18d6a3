// Package extlib implements the external-library effect model (spec §6/§7):
// ExtLibInfo answers, for an external function with no IR body, either a
// built-in Summary — a set of primitive constraints expressed over the
// call's own argument and result ids — or nothing, in which case the
// caller falls back to ExternalUnmodeled's conservative UniversalSet
// widening (the ExternalUnmodeled recovery path of §7, exercised by S6).
//
// Grounded on the teacher's pointer/reflect.go and its findIntrinsic
// dispatch in gen.go: there every modeled external gets a dedicated Go
// function registered by name and invoked during genFunc when a callee
// has no body. Here a Summary plays the same role but writes directly to
// a constraint.Graph rather than installing a typed constraint with its
// own solve method, since every effect a library summary can express is
// already one of the five constraint.Kinds.
package extlib

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/rudyjantz/ptsgo/internal/constraint"
	"github.com/rudyjantz/ptsgo/internal/idspace"
)

// Summary is the effect of one external function call. args and results
// are the call site's own ids, since an external function has no
// constraint graph of its own to splice in.
type Summary func(cg *constraint.Graph, args, results []idspace.ObjectId)

// Table is a name -> Summary registry, seeded with a small built-in set
// of memcpy-alike stdlib functions and extensible via Register or
// LoadYAML (the user-extensible summary format of SPEC_FULL.md §2.6).
type Table struct {
	summaries map[string]Summary
}

// NewTable returns a Table seeded with the built-in summaries.
func NewTable() *Table {
	t := &Table{summaries: make(map[string]Summary)}
	t.Register("copy", summaryCopy)
	t.Register("append", summaryAppend)
	t.Register("strings.NewReader", summaryNewReader)
	t.Register("io.ReadAll", summaryReadAll)
	t.Register("reflect.TypeOf", summaryUniversalResults)
	t.Register("reflect.ValueOf", summaryUniversalResults)
	t.Register("(reflect.Value).Interface", summaryUniversalResults)
	return t
}

// Register adds or replaces the summary for name.
func (t *Table) Register(name string, s Summary) { t.summaries[name] = s }

// Lookup returns name's summary, if any.
func (t *Table) Lookup(name string) (Summary, bool) {
	s, ok := t.summaries[name]
	return s, ok
}

// Apply emits name's effect at a call site if a summary is registered,
// reporting whether one was found. A caller getting false back should
// fall through to ExternalUnmodeled rather than silently dropping the
// call's effect.
func (t *Table) Apply(cg *constraint.Graph, name string, args, results []idspace.ObjectId) bool {
	s, ok := t.Lookup(name)
	if !ok {
		return false
	}
	s(cg, args, results)
	return true
}

// copy(dst, src []T) int: dst's pts set gains whatever src points to.
func summaryCopy(cg *constraint.Graph, args, results []idspace.ObjectId) {
	if len(args) < 2 {
		return
	}
	cg.AddCopy(args[0], args[1], 1)
}

// append(s []T, vs ...T) []T: the result aliases both the original slice
// and the appended values, since append may or may not reallocate.
func summaryAppend(cg *constraint.Graph, args, results []idspace.ObjectId) {
	if len(results) < 1 || len(args) < 1 || results[0] == 0 {
		return
	}
	cg.AddCopy(results[0], args[0], 1)
	for _, v := range args[1:] {
		cg.AddCopy(results[0], v, 1)
	}
}

// strings.NewReader(s string) *Reader: the returned *Reader has no
// distinguishable identity in this model (no allocation-site object is
// available here), so its points-to set is conservatively widened rather
// than left untracked.
func summaryNewReader(cg *constraint.Graph, args, results []idspace.ObjectId) {
	for _, r := range results {
		if r != 0 {
			cg.AddAddrOf(r, idspace.UniversalSet)
		}
	}
}

// io.ReadAll(r Reader) ([]byte, error): the []byte result carries no
// outgoing pointers; the error result is an interface value whose dynamic
// type is unconstrained.
func summaryReadAll(cg *constraint.Graph, args, results []idspace.ObjectId) {
	if len(results) >= 2 && results[1] != 0 {
		cg.AddAddrOf(results[1], idspace.UniversalSet)
	}
}

// summaryUniversalResults backs the three reflect intrinsics named in
// SPEC_FULL.md §3: reflection is treated conservatively via the
// ExternalUnmodeled recovery path rather than given the teacher's fuller
// tagged-object treatment (see DESIGN.md's Open Question resolution).
func summaryUniversalResults(cg *constraint.Graph, args, results []idspace.ObjectId) {
	ExternalUnmodeled(cg, nil, results)
}

// ExternalUnmodeled is the §7 recovery path for a call to an external
// function with no summary at all: every pointer-like argument and every
// result conservatively gains UniversalSet in its own points-to set (S6),
// so any later alias query against it answers MayAlias.
func ExternalUnmodeled(cg *constraint.Graph, args, results []idspace.ObjectId) {
	for _, v := range results {
		if v != 0 {
			cg.AddAddrOf(v, idspace.UniversalSet)
		}
	}
	for _, v := range args {
		if v != 0 {
			cg.AddAddrOf(v, idspace.UniversalSet)
		}
	}
}

// YAMLSummary is the declarative shape a user-authored summary takes in
// the extension file. A YAML entry cannot run arbitrary Go code, so it is
// restricted to the same primitive effects the built-in summaries above
// are assembled from.
type YAMLSummary struct {
	// CopyArgsToResult, if set, copies every listed argument index's pts
	// set into ResultIndex (default 0), mirroring summaryCopy/summaryAppend.
	CopyArgsToResult []int `mapstructure:"copy_args_to_result"`
	ResultIndex      int   `mapstructure:"result_index"`
	UniversalResults bool  `mapstructure:"universal_results"`
	UniversalArgs    bool  `mapstructure:"universal_args"`
}

// YAMLConfig is the top-level shape of the extension file: a map from
// qualified function name to its summary.
type YAMLConfig struct {
	Summaries map[string]YAMLSummary `mapstructure:"summaries"`
}

// LoadYAML reads the "summaries" key out of v (a viper instance already
// pointed at a YAML file via SetConfigFile/AddConfigPath, per the
// do-spec/debug-fcn/debug-glbl config surface cmd/ptsgo binds) and returns
// the parsed extension config.
func LoadYAML(v *viper.Viper) (*YAMLConfig, error) {
	var cfg YAMLConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("extlib: parsing summary config: %w", err)
	}
	return &cfg, nil
}

// RegisterYAML installs every summary in cfg into t, replacing any
// built-in of the same name.
func (t *Table) RegisterYAML(cfg *YAMLConfig) {
	for name, ys := range cfg.Summaries {
		ys := ys
		t.Register(name, func(cg *constraint.Graph, args, results []idspace.ObjectId) {
			applyYAMLSummary(cg, ys, args, results)
		})
	}
}

func applyYAMLSummary(cg *constraint.Graph, ys YAMLSummary, args, results []idspace.ObjectId) {
	if len(ys.CopyArgsToResult) > 0 && ys.ResultIndex < len(results) {
		dst := results[ys.ResultIndex]
		if dst != 0 {
			for _, i := range ys.CopyArgsToResult {
				if i < 0 || i >= len(args) || args[i] == 0 {
					continue
				}
				cg.AddCopy(dst, args[i], 1)
			}
		}
	}
	if ys.UniversalResults {
		ExternalUnmodeled(cg, nil, results)
	}
	if ys.UniversalArgs {
		ExternalUnmodeled(cg, nil, args)
	}
}
