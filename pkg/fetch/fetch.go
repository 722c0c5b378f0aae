// Package fetch defines the boundary to the content-retrieval layer. The
// selector calls it once per (dataset, kind, participant) before scanning
// that participant's files; a failure means "unavailable for this kind",
// never a fatal fault.
package fetch

import (
	"context"
	"path/filepath"

	"github.com/cohortkit/cohortkit/pkg/bids"
	"github.com/cohortkit/cohortkit/pkg/errors"
	"github.com/cohortkit/cohortkit/pkg/layout"
)

// Fetcher ensures a participant's content is present on local disk.
type Fetcher interface {
	EnsurePresent(ctx context.Context, dataset string, kind bids.Kind, participant string) error
}

// Local is the Fetcher for datasets already fully present on disk: it only
// verifies that the participant folder exists under the kind's root.
type Local struct {
	// Roots maps dataset -> kind -> resolved root path.
	Roots map[string]map[bids.Kind]string
}

// EnsurePresent implements Fetcher.
func (l *Local) EnsurePresent(ctx context.Context, dataset string, kind bids.Kind, participant string) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.CodeContextCanceled, "fetch canceled")
	}
	root, ok := l.Roots[dataset][kind]
	if !ok {
		return errors.LayoutNotFound(filepath.Join(dataset, string(kind)))
	}
	if !layout.HasParticipant(root, participant) {
		return errors.ParticipantNotPresent(dataset, string(kind), participant)
	}
	return nil
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, dataset string, kind bids.Kind, participant string) error

// EnsurePresent implements Fetcher.
func (f FetcherFunc) EnsurePresent(ctx context.Context, dataset string, kind bids.Kind, participant string) error {
	return f(ctx, dataset, kind, participant)
}
