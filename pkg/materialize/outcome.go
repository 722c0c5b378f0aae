// Package materialize places selected cohort files into the normalized
// output tree and reports exactly one outcome per attempted entry.
package materialize

import (
	"github.com/cohortkit/cohortkit/pkg/cohort"
	"github.com/cohortkit/cohortkit/pkg/errors"
)

// Outcome is the result of attempting to place one selection entry.
type Outcome struct {
	Entry cohort.Entry
	Dest  string

	// Err is nil on success. Typed failures: CodeSourceMissing,
	// CodeDestinationConflict, CodeCopyFailed.
	Err error

	// Linked reports that the destination is a hard link rather than a
	// byte copy. Transparent to callers; kept for the run summary.
	Linked bool

	// Existed reports an idempotent no-op: the destination already held
	// identical content.
	Existed bool

	// SidecarDests lists materialized sidecar destinations.
	SidecarDests []string
}

// OK reports a successful outcome.
func (o Outcome) OK() bool { return o.Err == nil }

// Conflict reports a destination-content mismatch.
func (o Outcome) Conflict() bool {
	return errors.IsCode(o.Err, errors.CodeDestinationConflict)
}
