// Package filter implements the suffix-group filter table: the declarative,
// user-editable mapping from dataset kind to named (datatype, suffix,
// extension) filter units that decide which files belong to a cohort.
package filter

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/cohortkit/cohortkit/pkg/bids"
	"github.com/cohortkit/cohortkit/pkg/errors"
)

//go:embed defaults.yaml
var defaultTable []byte

// SuffixGroup is one named filter unit. Datatype, Suffix and Ext are
// required; the remaining entities default to wildcards.
type SuffixGroup struct {
	Datatype string `yaml:"datatype"`
	Suffix   string `yaml:"suffix"`
	Ext      string `yaml:"ext"`
	Task     string `yaml:"task,omitempty"`
	Run      string `yaml:"run,omitempty"`
	Desc     string `yaml:"desc,omitempty"`

	// compiled on load
	pattern *Pattern
}

// Pattern returns the compiled filename pattern for this group.
func (g *SuffixGroup) Pattern() *Pattern { return g.pattern }

// Table maps dataset kind -> group name -> suffix group. Group names are
// namespaced per kind: the same name can mean different things for raw and
// for a derivative kind.
type Table map[bids.Kind]map[string]*SuffixGroup

// Load reads a filter table from a YAML or JSON file and validates it.
func Load(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeFilterInvalid, "cannot read filter file").
			WithContext("path", path)
	}
	return Parse(data)
}

// Default returns the built-in filter table.
func Default() Table {
	t, err := Parse(defaultTable)
	if err != nil {
		// the embedded table is validated by tests; a parse failure here
		// is a build defect
		panic(err)
	}
	return t
}

// Parse decodes and validates a filter table. yaml.v3 accepts JSON input,
// so filter files in either format work.
func Parse(data []byte) (Table, error) {
	var raw map[string]map[string]*SuffixGroup
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, errors.CodeFilterInvalid, "malformed filter table")
	}

	table := make(Table, len(raw))
	for kindName, groups := range raw {
		kind := bids.Kind(kindName)
		spec, err := bids.Spec(kind)
		if err != nil {
			return nil, err
		}
		table[kind] = groups
		for name, group := range groups {
			if group == nil {
				return nil, errors.New(errors.CodeFilterInvalid,
					fmt.Sprintf("suffix group %q in %q must be a mapping", name, kindName))
			}
			if err := group.validate(kindName, name); err != nil {
				return nil, err
			}
			if err := group.compile(spec); err != nil {
				return nil, errors.Wrap(err, errors.CodeFilterInvalid, "bad glob").
					WithContext("kind", kindName).
					WithContext("group", name)
			}
		}
	}
	return table, nil
}

func (g *SuffixGroup) validate(kind, name string) error {
	required := map[string]string{
		"datatype": g.Datatype,
		"suffix":   g.Suffix,
		"ext":      g.Ext,
	}
	for _, key := range []string{"datatype", "suffix", "ext"} {
		if required[key] == "" {
			return errors.FilterMissingKey(kind, name, key)
		}
	}
	return nil
}

// compile builds the filename pattern once. Shape follows the source
// layout convention: entity segments in order, suffix and extension last.
// Space is matched separately against the filename's space- entity so the
// requested-space set can vary per run without recompiling.
func (g *SuffixGroup) compile(spec bids.KindSpec) error {
	task := orStar(g.Task)
	run := orStar(g.Run)

	glob := fmt.Sprintf("*%s*%s", task, run)
	if spec.SpaceFilterable {
		glob = fmt.Sprintf("%s*%s", glob, orStar(g.Desc))
	}
	glob = fmt.Sprintf("%s*_%s.%s", glob, g.Suffix, g.Ext)

	p, err := CompileGlob(glob)
	if err != nil {
		return err
	}
	g.pattern = p
	return nil
}

func orStar(s string) string {
	if s == "" {
		return "*"
	}
	return s
}

// ForDatatype returns the groups registered for (kind, datatype), keyed by
// name. A kind or datatype with nothing registered yields an empty map.
func (t Table) ForDatatype(kind bids.Kind, datatype string) map[string]*SuffixGroup {
	groups := make(map[string]*SuffixGroup)
	for name, g := range t[kind] {
		if g.Datatype == datatype {
			groups[name] = g
		}
	}
	return groups
}

// GroupNames returns the names in ForDatatype order, sorted for
// deterministic selection.
func GroupNames(groups map[string]*SuffixGroup) []string {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every requested (kind, datatype) pair has at least
// one registered suffix group. "Registered but no files matched" is a
// selection-time outcome, not a configuration error; an empty registration
// is fatal before any I/O starts. All missing pairs are reported together
// so the filter file can be fixed in one pass.
func (t Table) Validate(kinds []bids.Kind, datatypes []string) error {
	var merr errors.MultiError
	for _, kind := range kinds {
		for _, datatype := range datatypes {
			if len(t.ForDatatype(kind, datatype)) == 0 {
				merr.Add(errors.New(errors.CodeNoSuffixGroups,
					"no suffix groups registered").
					WithContext("kind", string(kind)).
					WithContext("datatype", datatype))
			}
		}
	}
	return merr.Combined()
}
