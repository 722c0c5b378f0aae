// Package bids models the naming conventions shared by the source datasets:
// dataset kinds, filename entities, and sidecar pairing.
package bids

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cohortkit/cohortkit/pkg/errors"
)

// Kind identifies one category of dataset content: raw acquisition data or
// one named pipeline output.
type Kind string

const (
	KindRaw      Kind = "raw"
	KindFMRIPrep Kind = "fmriprep"
	KindMRIQC    Kind = "mriqc"
)

// KindSpec is the capability record for a dataset kind. Selection and
// materialization branch on these flags, never on the kind name itself.
type KindSpec struct {
	Kind Kind

	// SpaceFilterable kinds carry a space- entity on their outputs and are
	// subject to acquisition-space filtering. Raw and mriqc outputs are not.
	SpaceFilterable bool

	// Derivative kinds live under study-<id>/derivatives/<label> in the
	// output tree; the raw kind is the study root itself.
	Derivative bool
}

var kindSpecs = map[Kind]KindSpec{
	KindRaw:      {Kind: KindRaw},
	KindMRIQC:    {Kind: KindMRIQC, Derivative: true},
	KindFMRIPrep: {Kind: KindFMRIPrep, SpaceFilterable: true, Derivative: true},
}

// Spec returns the capability record for a kind.
func Spec(k Kind) (KindSpec, error) {
	spec, ok := kindSpecs[k]
	if !ok {
		return KindSpec{}, errors.New(errors.CodeUnknownKind,
			fmt.Sprintf("dataset kind %q is not supported", k)).
			WithContext("supported", SupportedKinds())
	}
	return spec, nil
}

// SupportedKinds lists the known kinds in stable order.
func SupportedKinds() []string {
	names := make([]string, 0, len(kindSpecs))
	for k := range kindSpecs {
		names = append(names, string(k))
	}
	sort.Strings(names)
	return names
}

// ParseKinds validates a list of kind names.
func ParseKinds(names []string) ([]Kind, error) {
	kinds := make([]Kind, 0, len(names))
	for _, name := range names {
		k := Kind(strings.ToLower(strings.TrimSpace(name)))
		if _, err := Spec(k); err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// SortKinds orders kinds with raw first, then derivatives alphabetically,
// so selection output is deterministic across runs.
func SortKinds(kinds []Kind) {
	sort.Slice(kinds, func(i, j int) bool {
		if (kinds[i] == KindRaw) != (kinds[j] == KindRaw) {
			return kinds[i] == KindRaw
		}
		return kinds[i] < kinds[j]
	})
}
