package materialize

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cohortkit/cohortkit/pkg/bids"
	"github.com/cohortkit/cohortkit/pkg/cohort"
	"github.com/cohortkit/cohortkit/pkg/errors"
)

// Materializer owns the output tree. Work is split one unit per dataset:
// a dataset's underlying store does not interleave safely, so files within
// one dataset are copied sequentially while datasets run concurrently up
// to the worker limit.
type Materializer struct {
	OutputRoot string
	Workers    int
	RunID      string
	Datatypes  []string
	Logger     *log.Logger

	// OnDatasetDone, when set, is called after each dataset unit
	// finishes. Used for progress reporting.
	OnDatasetDone func(dataset string)
}

// New creates a materializer with a fresh run identifier.
func New(outputRoot string, workers int) *Materializer {
	if workers <= 0 {
		workers = 4
	}
	return &Materializer{
		OutputRoot: outputRoot,
		Workers:    workers,
		RunID:      uuid.NewString(),
		Logger:     log.New(os.Stderr, "", log.LstdFlags),
	}
}

// Materialize places every entry into the output tree and returns exactly
// one outcome per entry, in entry order. Per-dataset failures never abort
// sibling datasets; only fatal I/O (unwritable root, disk full) stops
// scheduling new units, and completed units are left intact.
func (m *Materializer) Materialize(ctx context.Context, entries []cohort.Entry) ([]Outcome, error) {
	if err := m.checkOutputRoot(); err != nil {
		return nil, err
	}

	byDataset := make(map[string][]cohort.Entry)
	var order []string
	for _, e := range entries {
		if _, seen := byDataset[e.Dataset]; !seen {
			order = append(order, e.Dataset)
		}
		byDataset[e.Dataset] = append(byDataset[e.Dataset], e)
	}
	sort.Strings(order)

	sink := make(chan Outcome, len(entries))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.Workers)

	for _, dataset := range order {
		dataset := dataset
		g.Go(func() error {
			err := m.materializeDataset(ctx, dataset, byDataset[dataset], sink)
			if m.OnDatasetDone != nil {
				m.OnDatasetDone(dataset)
			}
			return err
		})
	}

	err := g.Wait()
	close(sink)

	outcomes := make([]Outcome, 0, len(entries))
	for o := range sink {
		outcomes = append(outcomes, o)
	}
	sortOutcomes(outcomes)

	if err != nil && !errors.IsFatal(err) && ctx.Err() == nil {
		// non-fatal unit errors are carried in the outcomes
		err = nil
	}
	return outcomes, err
}

// materializeDataset is one unit of work: sequential per-file copies, then
// the study metadata files.
func (m *Materializer) materializeDataset(ctx context.Context, dataset string, entries []cohort.Entry, sink chan<- Outcome) error {
	participants := make(map[string]struct{})
	kindRoots := make(map[bids.Kind]string)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.CodeContextCanceled, "materialization canceled")
		}

		outcome := m.placeEntry(entry)
		sink <- outcome

		if outcome.OK() {
			participants[entry.Participant] = struct{}{}
			kindRoots[entry.Kind] = sourceKindRoot(entry)
		}
		if errors.IsFatal(outcome.Err) {
			return outcome.Err
		}
	}

	if len(participants) > 0 {
		m.writeStudyMetadata(dataset, participants, kindRoots)
	}
	return nil
}

func (m *Materializer) placeEntry(entry cohort.Entry) Outcome {
	root := kindTargetDir(m.OutputRoot, entry.Dataset, entry.Kind, sourceKindRoot(entry))
	dest := filepath.Join(root, entry.RelPath)
	outcome := Outcome{Entry: entry, Dest: dest}

	linked, existed, err := placeFile(entry.SourcePath, dest)
	if err != nil {
		outcome.Err = err
		// sidecars are not attempted when the primary fails
		return outcome
	}
	outcome.Linked = linked
	outcome.Existed = existed

	for _, sidecar := range entry.Sidecars {
		scDest := filepath.Join(filepath.Dir(dest), filepath.Base(sidecar))
		if _, _, scErr := placeFile(sidecar, scDest); scErr != nil {
			m.Logger.Printf("%s: sidecar failed: %v", entry.Dataset, scErr)
			continue
		}
		outcome.SidecarDests = append(outcome.SidecarDests, scDest)
	}
	return outcome
}

func (m *Materializer) writeStudyMetadata(dataset string, participants map[string]struct{}, kindRoots map[bids.Kind]string) {
	subs := make([]string, 0, len(participants))
	for sub := range participants {
		subs = append(subs, sub)
	}
	sort.Strings(subs)

	kinds := make([]bids.Kind, 0, len(kindRoots))
	for kind := range kindRoots {
		kinds = append(kinds, kind)
	}
	bids.SortKinds(kinds)

	for _, kind := range kinds {
		srcRoot := kindRoots[kind]
		target := kindTargetDir(m.OutputRoot, dataset, kind, srcRoot)
		if err := os.MkdirAll(target, 0o755); err != nil {
			m.Logger.Printf("%s: cannot create %s: %v", dataset, target, err)
			continue
		}
		copyTopFiles(srcRoot, target, m.Datatypes)
		if err := writeDescription(target, fmt.Sprintf("cohort subset of %s (%s)", dataset, kind), m.RunID); err != nil {
			m.Logger.Printf("%s: description: %v", dataset, err)
		}
		if err := trimParticipants(target, subs); err != nil {
			m.Logger.Printf("%s: participants table: %v", dataset, err)
		}
	}
}

// checkOutputRoot verifies the output root is creatable and writable
// before any unit is scheduled.
func (m *Materializer) checkOutputRoot() error {
	if err := os.MkdirAll(m.OutputRoot, 0o755); err != nil {
		return errors.Wrap(err, errors.CodeOutputUnwritable, "output root not writable").
			WithContext("root", m.OutputRoot)
	}
	probe, err := os.CreateTemp(m.OutputRoot, ".cohortkit-*")
	if err != nil {
		return errors.Wrap(err, errors.CodeOutputUnwritable, "output root not writable").
			WithContext("root", m.OutputRoot)
	}
	probe.Close()
	os.Remove(probe.Name())
	return nil
}

// sourceKindRoot recovers the kind root from an entry's paths.
func sourceKindRoot(entry cohort.Entry) string {
	root := entry.SourcePath
	for i := 0; i < countSeparators(entry.RelPath)+1; i++ {
		root = filepath.Dir(root)
	}
	return root
}

func countSeparators(path string) int {
	n := 0
	for _, r := range path {
		if r == filepath.Separator {
			n++
		}
	}
	return n
}

func sortOutcomes(outcomes []Outcome) {
	sort.Slice(outcomes, func(i, j int) bool {
		a, b := outcomes[i].Entry, outcomes[j].Entry
		if a.Dataset != b.Dataset {
			return a.Dataset < b.Dataset
		}
		if a.Kind != b.Kind {
			if (a.Kind == bids.KindRaw) != (b.Kind == bids.KindRaw) {
				return a.Kind == bids.KindRaw
			}
			return a.Kind < b.Kind
		}
		if a.Participant != b.Participant {
			return a.Participant < b.Participant
		}
		if a.Session != b.Session {
			return a.Session < b.Session
		}
		return a.RelPath < b.RelPath
	})
}
