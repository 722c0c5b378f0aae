// Package cohort implements the cohort selector: it composes the filter
// dimensions of a request (datasets, participants, kinds, datatypes,
// spaces) into the exact ordered set of source files belonging to the
// cohort.
package cohort

import (
	"path/filepath"
	"sort"

	"github.com/cohortkit/cohortkit/pkg/bids"
	"github.com/cohortkit/cohortkit/pkg/filter"
	"github.com/cohortkit/cohortkit/pkg/layout"
	"github.com/cohortkit/cohortkit/pkg/listing"
)

// Descriptor identifies one source dataset and the resolved roots of its
// kinds. Built during indexing; read-only to the selector.
type Descriptor struct {
	ID string

	// KindRoots maps each available kind to its fixed root path for the
	// duration of a run. Raw is always present when the dataset is.
	KindRoots map[bids.Kind]string
}

// Request is the declarative cohort ask. Immutable for one invocation.
type Request struct {
	Datasets []string

	// Participants maps dataset -> subject IDs. A dataset with no entry
	// means "all participants known to that dataset".
	Participants map[string][]string

	// Sessions optionally restricts (dataset, subject) pairs to listed
	// sessions. Empty means "all sessions found on disk".
	Sessions map[string]map[string][]string

	Kinds     []bids.Kind
	Datatypes []string

	// Spaces restricts space-filterable kinds to these acquisition
	// spaces. Files without a space entity (and non-filterable kinds)
	// are never restricted.
	Spaces []string

	Table filter.Table
}

// Validate checks the request against the filter table before any I/O.
func (r *Request) Validate() error {
	for _, kind := range r.Kinds {
		if _, err := bids.Spec(kind); err != nil {
			return err
		}
	}
	return r.Table.Validate(r.Kinds, r.Datatypes)
}

// Entry is one concrete file selected into the cohort, with the sidecar
// paths that travel with it. Produced by the selector, consumed once by
// the materializer.
type Entry struct {
	SourcePath  string
	RelPath     string // sub/[ses/]datatype/file, relative to the kind root
	Dataset     string
	Kind        bids.Kind
	Participant string
	Session     string // bids.NoSession when the dataset has no sessions
	Datatype    string
	Sidecars    []string // absolute source paths
}

// Visit is one (dataset, participant, session) key the selector examined.
// The manifest reports one row per visit, including visits that yielded
// zero entries.
type Visit struct {
	Dataset     string
	Participant string
	Session     string
}

// Selection is the full result of one selector run.
type Selection struct {
	Entries []Entry
	Visits  []Visit
}

// BuildDescriptors resolves per-kind roots for the listed datasets under a
// local store root. Raw lives at <root>/<id>; a derivative kind lives
// either nested under <raw>/derivatives or as a sibling <id>-<kind>
// dataset. Listing hints gate which derivative kinds are looked for.
func BuildDescriptors(storeRoot string, rows []listing.DatasetRow, kinds []bids.Kind, resolver *layout.Resolver) []Descriptor {
	descriptors := make([]Descriptor, 0, len(rows))
	for _, row := range rows {
		d := Descriptor{
			ID:        row.ID,
			KindRoots: make(map[bids.Kind]string),
		}
		rawRoot := filepath.Join(storeRoot, row.ID)
		d.KindRoots[bids.KindRaw] = rawRoot

		var nested map[bids.Kind]string
		if info, err := resolver.Resolve(rawRoot); err == nil {
			nested = info.NestedDerivatives
		}

		for _, kind := range kinds {
			if kind == bids.KindRaw || !row.Kinds[kind] {
				continue
			}
			if dir, ok := nested[kind]; ok {
				d.KindRoots[kind] = dir
				continue
			}
			d.KindRoots[kind] = filepath.Join(storeRoot, row.ID+"-"+string(kind))
		}
		descriptors = append(descriptors, d)
	}
	sort.Slice(descriptors, func(i, j int) bool { return descriptors[i].ID < descriptors[j].ID })
	return descriptors
}
