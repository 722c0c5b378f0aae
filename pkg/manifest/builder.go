// Package manifest aggregates materialization outcomes into the flat
// availability table: one row per (dataset, participant, session), one
// boolean column per requested dataset kind. The table is the sole input
// to the external dashboard tooling.
package manifest

import (
	"sort"
	"sync"

	"github.com/cohortkit/cohortkit/pkg/bids"
	"github.com/cohortkit/cohortkit/pkg/cohort"
	"github.com/cohortkit/cohortkit/pkg/materialize"
)

// Record is one availability row.
type Record struct {
	Dataset     string
	Participant string
	Session     string // bids.NoSession for sessionless datasets

	// Available flags one entry per requested kind: true iff at least one
	// successful outcome exists for that kind in this row's group. Zero
	// selected entries means false, not unknown - absence was a
	// deliberate selection-time decision.
	Available map[bids.Kind]bool

	// Versions carries the self-declared pipeline version per derivative
	// kind, "" when the derivative did not declare one.
	Versions map[bids.Kind]string
}

type key struct {
	dataset, participant, session string
}

// Builder accumulates rows as outcomes arrive. Safe for concurrent
// observation; Build finalizes once at the end of a run.
type Builder struct {
	mu       sync.Mutex
	kinds    []bids.Kind
	seeded   map[key]struct{}
	success  map[key]map[bids.Kind]bool
	versions map[string]map[bids.Kind]string // per dataset
}

// NewBuilder creates a builder reporting on the requested kinds.
func NewBuilder(kinds []bids.Kind) *Builder {
	sorted := append([]bids.Kind(nil), kinds...)
	bids.SortKinds(sorted)
	return &Builder{
		kinds:    sorted,
		seeded:   make(map[key]struct{}),
		success:  make(map[key]map[bids.Kind]bool),
		versions: make(map[string]map[bids.Kind]string),
	}
}

// Seed registers the visits the selector examined, so rows exist even for
// groups that produced zero entries.
func (b *Builder) Seed(visits []cohort.Visit) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, v := range visits {
		b.seeded[key{v.Dataset, v.Participant, v.Session}] = struct{}{}
	}
}

// Observe records one materialization outcome.
func (b *Builder) Observe(outcome materialize.Outcome) {
	if !outcome.OK() {
		return
	}
	e := outcome.Entry
	b.Mark(e.Dataset, e.Participant, e.Session, e.Kind)
}

// Mark records a successful outcome for a key.
func (b *Builder) Mark(dataset, participant, session string, kind bids.Kind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := key{dataset, participant, session}
	if b.success[k] == nil {
		b.success[k] = make(map[bids.Kind]bool)
	}
	b.success[k][kind] = true
}

// SetVersion records the declared pipeline version of a derivative kind.
func (b *Builder) SetVersion(dataset string, kind bids.Kind, version string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.versions[dataset] == nil {
		b.versions[dataset] = make(map[bids.Kind]string)
	}
	b.versions[dataset][kind] = version
}

// Build finalizes the table, sorted by (dataset, participant, session).
// Session-averaged successes (recorded under the sessionless sentinel)
// propagate to every session row of the same participant.
func (b *Builder) Build() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	keys := make(map[key]struct{}, len(b.seeded))
	for k := range b.seeded {
		keys[k] = struct{}{}
	}
	for k := range b.success {
		if _, sessioned := keys[key{k.dataset, k.participant, k.session}]; !sessioned {
			if k.session == bids.NoSession && b.hasSessionedRows(keys, k) {
				continue
			}
			keys[k] = struct{}{}
		}
	}

	records := make([]Record, 0, len(keys))
	for k := range keys {
		rec := Record{
			Dataset:     k.dataset,
			Participant: k.participant,
			Session:     k.session,
			Available:   make(map[bids.Kind]bool, len(b.kinds)),
			Versions:    make(map[bids.Kind]string),
		}
		averaged := b.success[key{k.dataset, k.participant, bids.NoSession}]
		for _, kind := range b.kinds {
			rec.Available[kind] = b.success[k][kind] || averaged[kind]
			if spec, err := bids.Spec(kind); err == nil && spec.Derivative {
				rec.Versions[kind] = b.versions[k.dataset][kind]
			}
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		a, c := records[i], records[j]
		if a.Dataset != c.Dataset {
			return a.Dataset < c.Dataset
		}
		if a.Participant != c.Participant {
			return a.Participant < c.Participant
		}
		return a.Session < c.Session
	})
	return records
}

// Kinds returns the reported kinds in manifest column order.
func (b *Builder) Kinds() []bids.Kind {
	return append([]bids.Kind(nil), b.kinds...)
}

func (b *Builder) hasSessionedRows(keys map[key]struct{}, k key) bool {
	for existing := range keys {
		if existing.dataset == k.dataset && existing.participant == k.participant &&
			existing.session != bids.NoSession {
			return true
		}
	}
	return false
}
