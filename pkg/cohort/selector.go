package cohort

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/cohortkit/cohortkit/pkg/bids"
	"github.com/cohortkit/cohortkit/pkg/errors"
	"github.com/cohortkit/cohortkit/pkg/fetch"
	"github.com/cohortkit/cohortkit/pkg/filter"
	"github.com/cohortkit/cohortkit/pkg/layout"
)

// Selector enumerates the files satisfying every filter dimension of a
// request. It is a synchronous, read-only computation: two runs against
// unchanged source data produce identical ordered entry lists.
type Selector struct {
	resolver *layout.Resolver
	fetcher  fetch.Fetcher
	logger   *log.Logger
}

// NewSelector creates a selector. The filter table travels inside the
// request, so one selector can serve many independent runs.
func NewSelector(resolver *layout.Resolver, fetcher fetch.Fetcher, logger *log.Logger) *Selector {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &Selector{resolver: resolver, fetcher: fetcher, logger: logger}
}

// Select produces the selection for one request. The only fatal errors are
// configuration errors and context cancellation; everything that can be
// missing on disk degrades to zero entries and a manifest row.
func (s *Selector) Select(ctx context.Context, req *Request, descriptors []Descriptor) (*Selection, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	byID := make(map[string]Descriptor, len(descriptors))
	for _, d := range descriptors {
		byID[d.ID] = d
	}

	wanted := append([]string(nil), req.Datasets...)
	sort.Strings(wanted)

	kinds := append([]bids.Kind(nil), req.Kinds...)
	bids.SortKinds(kinds)

	datatypes := append([]string(nil), req.Datatypes...)
	sort.Strings(datatypes)

	out := &Selection{}
	for _, id := range wanted {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.CodeContextCanceled, "selection canceled")
		}
		d, known := byID[id]
		if !known {
			s.logger.Printf("dataset %s not in listing, skipping", id)
			continue
		}
		s.selectDataset(ctx, req, d, kinds, datatypes, out)
	}
	return out, nil
}

func (s *Selector) selectDataset(ctx context.Context, req *Request, d Descriptor, kinds []bids.Kind, datatypes []string, out *Selection) {
	participants := req.Participants[d.ID]
	if participants == nil {
		// no explicit set: all participants known to the raw dataset
		subs, err := layout.ListParticipants(d.KindRoots[bids.KindRaw])
		if err != nil {
			s.logger.Printf("%s: raw layout unavailable: %v", d.ID, err)
			return
		}
		participants = subs
	} else {
		participants = append([]string(nil), participants...)
		sort.Strings(participants)
	}

	for _, sub := range participants {
		sessions := s.sessionsFor(req, d, sub)
		for _, ses := range sessions {
			out.Visits = append(out.Visits, Visit{Dataset: d.ID, Participant: sub, Session: ses})
		}

		for _, kind := range kinds {
			root, available := d.KindRoots[kind]
			if !available {
				continue
			}
			if _, err := s.resolver.Resolve(root); err != nil {
				// whole kind missing on disk: zero entries, manifest
				// marks it false
				continue
			}

			if err := s.fetcher.EnsurePresent(ctx, d.ID, kind, sub); err != nil {
				switch {
				case errors.IsCode(err, errors.CodeRetrievalFailure):
					s.logger.Printf("%s/%s: failed to fetch %s: %v", d.ID, kind, sub, err)
				case !errors.IsRecoverable(err):
					// an unclassified fetch fault still only degrades
					// this participant, but it is worth a log line
					s.logger.Printf("%s/%s: %s unavailable: %v", d.ID, kind, sub, err)
				}
				continue
			}
			if !layout.HasParticipant(root, sub) {
				continue
			}

			// the kind's own tree decides its session shape; the
			// requested sessions only restrict it
			kindSessions := s.resolver.Sessions(root, sub)
			for _, ses := range kindSessions {
				// a sessionless kind tree under a sessioned dataset holds
				// session-averaged outputs; scan it regardless
				if ses != bids.NoSession && !sessionRequested(sessions, ses) {
					continue
				}
				s.selectVisit(req, d, kind, root, sub, ses, datatypes, out)
			}
		}
	}
}

// sessionsFor returns the manifest-facing sessions of one participant:
// from the request when listed, otherwise probed from the raw tree.
func (s *Selector) sessionsFor(req *Request, d Descriptor, sub string) []string {
	if listed := req.Sessions[d.ID][sub]; len(listed) > 0 {
		sessions := append([]string(nil), listed...)
		sort.Strings(sessions)
		return sessions
	}
	return s.resolver.Sessions(d.KindRoots[bids.KindRaw], sub)
}

func (s *Selector) selectVisit(req *Request, d Descriptor, kind bids.Kind, root, sub, ses string, datatypes []string, out *Selection) {
	spec, err := bids.Spec(kind)
	if err != nil {
		return
	}

	for _, datatype := range datatypes {
		dir := layout.DataDir(root, sub, ses, datatype)
		names, ok := listFiles(dir)
		if !ok {
			continue
		}

		groups := req.Table.ForDatatype(kind, datatype)
		selected := make(map[string]struct{})
		var picked []string
		sidecars := make(map[string]string)

		for _, groupName := range filter.GroupNames(groups) {
			g := groups[groupName]
			for _, name := range names {
				if !g.Pattern().Match(name) {
					continue
				}
				if skipBySpace(spec, req.Spaces, name) {
					continue
				}
				if _, dup := selected[name]; dup {
					continue
				}
				selected[name] = struct{}{}
				picked = append(picked, name)

				if sc := bids.SidecarName(name); sc != "" && contains(names, sc) {
					sidecars[name] = filepath.Join(dir, sc)
				}
			}
		}

		sort.Strings(picked)
		for _, name := range picked {
			entry := Entry{
				SourcePath:  filepath.Join(dir, name),
				RelPath:     relPath(sub, ses, datatype, name),
				Dataset:     d.ID,
				Kind:        kind,
				Participant: sub,
				Session:     ses,
				Datatype:    datatype,
			}
			if sc, ok := sidecars[name]; ok {
				entry.Sidecars = append(entry.Sidecars, sc)
			}
			out.Entries = append(out.Entries, entry)
		}
	}
}

// skipBySpace applies acquisition-space filtering. Only space-filterable
// kinds are restricted, and only files that actually carry a space entity:
// space-less derivative files (confound tables, transforms) always pass.
func skipBySpace(spec bids.KindSpec, spaces []string, name string) bool {
	if !spec.SpaceFilterable || len(spaces) == 0 {
		return false
	}
	space := bids.Space(name)
	if space == "" {
		return false
	}
	for _, want := range spaces {
		if space == want {
			return false
		}
	}
	return true
}

func sessionRequested(sessions []string, ses string) bool {
	for _, s := range sessions {
		if s == ses {
			return true
		}
	}
	return false
}

func relPath(sub, ses, datatype, name string) string {
	if ses == "" || ses == bids.NoSession {
		return filepath.Join(sub, datatype, name)
	}
	return filepath.Join(sub, ses, datatype, name)
}

func listFiles(dir string) ([]string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, false
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, true
}

func contains(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}
