// Package layout resolves the structural shape of a dataset on disk:
// whether participants use session subfolders, and where derivative trees
// live relative to the raw root.
package layout

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cohortkit/cohortkit/pkg/bids"
	"github.com/cohortkit/cohortkit/pkg/errors"
)

// sampleLimit caps how many participant folders Resolve probes for the
// dataset-wide shape hint. The hint is advisory only; per-participant
// probes remain authoritative because mixed layouts exist in the wild.
const sampleLimit = 5

// Info describes the resolved shape of one dataset root.
type Info struct {
	Root string

	// HasSessions is the sampled dataset-wide hint. Individual
	// participants may disagree; use Resolver.Sessions for the
	// authoritative per-participant answer.
	HasSessions bool

	// NestedDerivatives lists derivative kinds found under
	// <root>/derivatives, keyed to their directory. Kinds absent here are
	// expected as sibling sideloaded datasets.
	NestedDerivatives map[bids.Kind]string
}

// Resolver probes dataset roots and memoizes the results. Safe for
// concurrent use.
type Resolver struct {
	mu       sync.Mutex
	infos    map[string]*Info
	sessions map[string][]string // root + "\x00" + participant
}

// NewResolver creates an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{
		infos:    make(map[string]*Info),
		sessions: make(map[string][]string),
	}
}

// Resolve determines the shape of the dataset rooted at root. A missing
// root yields a LayoutNotFound error; callers treat that as "this dataset
// kind is entirely unavailable" and continue.
func (r *Resolver) Resolve(root string) (*Info, error) {
	r.mu.Lock()
	if info, ok := r.infos[root]; ok {
		r.mu.Unlock()
		return info, nil
	}
	r.mu.Unlock()

	if _, err := os.Stat(root); err != nil {
		return nil, errors.LayoutNotFound(root)
	}

	info := &Info{
		Root:              root,
		NestedDerivatives: make(map[bids.Kind]string),
	}

	participants, err := ListParticipants(root)
	if err != nil {
		return nil, err
	}
	sampled := participants
	if len(sampled) > sampleLimit {
		sampled = sampled[:sampleLimit]
	}
	for _, sub := range sampled {
		if hasSessionDir(filepath.Join(root, sub)) {
			info.HasSessions = true
			break
		}
	}

	// derivative trees nested under the raw root
	derivDir := filepath.Join(root, "derivatives")
	if entries, err := os.ReadDir(derivDir); err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			// directories are named <kind> or <kind>-<version>
			name := strings.SplitN(e.Name(), "-", 2)[0]
			kind := bids.Kind(strings.ToLower(name))
			if _, err := bids.Spec(kind); err != nil || kind == bids.KindRaw {
				continue
			}
			if _, seen := info.NestedDerivatives[kind]; !seen {
				info.NestedDerivatives[kind] = filepath.Join(derivDir, e.Name())
			}
		}
	}

	r.mu.Lock()
	r.infos[root] = info
	r.mu.Unlock()
	return info, nil
}

// Sessions returns the session folders of one participant under root,
// sorted, or [bids.NoSession] when the participant has no session level.
// Probed per participant and memoized; a sessionless participant in an
// otherwise sessioned dataset is answered correctly.
func (r *Resolver) Sessions(root, participant string) []string {
	key := root + "\x00" + participant
	r.mu.Lock()
	if cached, ok := r.sessions[key]; ok {
		r.mu.Unlock()
		return cached
	}
	r.mu.Unlock()

	var sessions []string
	entries, err := os.ReadDir(filepath.Join(root, participant))
	if err == nil {
		for _, e := range entries {
			if e.IsDir() && bids.IsSessionDir(e.Name()) {
				sessions = append(sessions, e.Name())
			}
		}
	}
	if len(sessions) == 0 {
		sessions = []string{bids.NoSession}
	}
	sort.Strings(sessions)

	r.mu.Lock()
	r.sessions[key] = sessions
	r.mu.Unlock()
	return sessions
}

// HasParticipant reports whether a participant folder exists under root.
func HasParticipant(root, participant string) bool {
	fi, err := os.Stat(filepath.Join(root, participant))
	return err == nil && fi.IsDir()
}

// ListParticipants returns the sorted participant folder names under root.
func ListParticipants(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.LayoutNotFound(root)
	}
	var subs []string
	for _, e := range entries {
		if e.IsDir() && bids.IsSubjectDir(e.Name()) {
			subs = append(subs, e.Name())
		}
	}
	sort.Strings(subs)
	return subs, nil
}

// DataDir returns the directory holding one datatype's files for a
// participant, honoring the session level when present.
func DataDir(root, participant, session, datatype string) string {
	if session == "" || session == bids.NoSession {
		return filepath.Join(root, participant, datatype)
	}
	return filepath.Join(root, participant, session, datatype)
}

func hasSessionDir(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() && bids.IsSessionDir(e.Name()) {
			return true
		}
	}
	return false
}
