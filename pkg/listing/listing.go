// Package listing reads and writes the tabular inputs of a cohort run: the
// dataset listing and the participant listing. Both are tab-separated with
// a header row; unknown columns are preserved but ignored.
package listing

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/cohortkit/cohortkit/pkg/bids"
	"github.com/cohortkit/cohortkit/pkg/errors"
	"github.com/cohortkit/cohortkit/pkg/layout"
)

// DatasetRow is one row of the dataset listing.
type DatasetRow struct {
	ID string

	// Kinds holds the per-kind availability hints from the listing
	// columns (fmriprep, mriqc). Raw is always available.
	Kinds map[bids.Kind]bool

	// Extra keeps untyped descriptive columns. The core ignores them.
	Extra map[string]string
}

// ParticipantRow is one row of the participant listing.
type ParticipantRow struct {
	DatasetID string
	SubjectID string
	SessionID string // bids.NoSession for sessionless rows
}

// LoadDatasets reads a dataset listing TSV. The DatasetID column is
// required; per-kind columns are optional and default to available.
func LoadDatasets(path string) ([]DatasetRow, error) {
	header, records, err := readTSV(path)
	if err != nil {
		return nil, err
	}

	idCol := columnIndex(header, "DatasetID")
	if idCol < 0 {
		return nil, errors.New(errors.CodeListingInvalid,
			fmt.Sprintf("column 'DatasetID' not found in %s", path)).
			WithContext("columns", header)
	}

	kindCols := map[bids.Kind]int{
		bids.KindFMRIPrep: columnIndex(header, "fmriprep"),
		bids.KindMRIQC:    columnIndex(header, "mriqc"),
	}

	rows := make([]DatasetRow, 0, len(records))
	for n, rec := range records {
		if idCol >= len(rec) {
			return nil, errors.New(errors.CodeListingInvalid, "row is missing the DatasetID cell").
				WithContext("path", path).
				WithContext("line", n+2)
		}
		row := DatasetRow{
			ID:    strings.TrimSpace(rec[idCol]),
			Kinds: map[bids.Kind]bool{bids.KindRaw: true},
			Extra: make(map[string]string),
		}
		if row.ID == "" {
			continue
		}
		for kind, col := range kindCols {
			if col < 0 || col >= len(rec) {
				// no hint: assume present, layout resolution has the
				// final say
				row.Kinds[kind] = true
				continue
			}
			row.Kinds[kind] = truthy(rec[col])
		}
		for i, name := range header {
			if i != idCol && i < len(rec) {
				row.Extra[name] = rec[i]
			}
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, nil
}

// LoadParticipants reads a participant listing TSV. DatasetID and
// SubjectID are required.
func LoadParticipants(path string) ([]ParticipantRow, error) {
	header, records, err := readTSV(path)
	if err != nil {
		return nil, err
	}

	for _, required := range []string{"DatasetID", "SubjectID"} {
		if columnIndex(header, required) < 0 {
			return nil, errors.New(errors.CodeListingInvalid,
				fmt.Sprintf("column %q not found in %s", required, path)).
				WithContext("columns", header)
		}
	}

	idCol := columnIndex(header, "DatasetID")
	subCol := columnIndex(header, "SubjectID")
	sesCol := columnIndex(header, "SessionID")

	rows := make([]ParticipantRow, 0, len(records))
	for n, rec := range records {
		if idCol >= len(rec) || subCol >= len(rec) {
			return nil, errors.New(errors.CodeListingInvalid, "row is missing a required cell").
				WithContext("path", path).
				WithContext("line", n+2)
		}
		row := ParticipantRow{
			DatasetID: strings.TrimSpace(rec[idCol]),
			SubjectID: strings.TrimSpace(rec[subCol]),
			SessionID: bids.NoSession,
		}
		if sesCol >= 0 && sesCol < len(rec) {
			if ses := strings.TrimSpace(rec[sesCol]); ses != "" {
				row.SessionID = ses
			}
		}
		if row.DatasetID == "" || row.SubjectID == "" {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ParticipantsFor returns the sorted, deduplicated subject IDs listed for
// one dataset. Nil means the dataset has no explicit participant set.
func ParticipantsFor(rows []ParticipantRow, datasetID string) []string {
	seen := make(map[string]struct{})
	var subs []string
	for _, row := range rows {
		if row.DatasetID != datasetID {
			continue
		}
		if _, dup := seen[row.SubjectID]; dup {
			continue
		}
		seen[row.SubjectID] = struct{}{}
		subs = append(subs, row.SubjectID)
	}
	sort.Strings(subs)
	return subs
}

// SessionsFor returns the sessions listed for one (dataset, subject) pair,
// sorted. Empty when the pair is not listed.
func SessionsFor(rows []ParticipantRow, datasetID, subjectID string) []string {
	seen := make(map[string]struct{})
	var sessions []string
	for _, row := range rows {
		if row.DatasetID != datasetID || row.SubjectID != subjectID {
			continue
		}
		if _, dup := seen[row.SessionID]; dup {
			continue
		}
		seen[row.SessionID] = struct{}{}
		sessions = append(sessions, row.SessionID)
	}
	sort.Strings(sessions)
	return sessions
}

// Generate walks installed dataset roots and produces a participant
// listing covering every participant and session found.
func Generate(resolver *layout.Resolver, roots map[string]string) ([]ParticipantRow, error) {
	ids := make([]string, 0, len(roots))
	for id := range roots {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var rows []ParticipantRow
	for _, id := range ids {
		subs, err := layout.ListParticipants(roots[id])
		if err != nil {
			return nil, err
		}
		for _, sub := range subs {
			for _, ses := range resolver.Sessions(roots[id], sub) {
				rows = append(rows, ParticipantRow{
					DatasetID: id,
					SubjectID: sub,
					SessionID: ses,
				})
			}
		}
	}
	return rows, nil
}

// WriteParticipants writes a participant listing TSV.
func WriteParticipants(path string, rows []ParticipantRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '\t'
	if err := w.Write([]string{"DatasetID", "SubjectID", "SessionID"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := w.Write([]string{row.DatasetID, row.SubjectID, row.SessionID}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func readTSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeListingInvalid, "cannot read listing").
			WithContext("path", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeListingInvalid, "malformed listing").
			WithContext("path", path)
	}
	if len(records) == 0 {
		return nil, nil, errors.New(errors.CodeListingInvalid, "empty listing").
			WithContext("path", path)
	}

	header := records[0]
	for i, name := range header {
		// some exported listings carry padded header names
		header[i] = strings.TrimSpace(name)
	}
	return header, records[1:], nil
}

func columnIndex(header []string, name string) int {
	for i, col := range header {
		if strings.EqualFold(col, name) {
			return i
		}
	}
	return -1
}

func truthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "false", "0", "n/a", "nan", "no":
		return false
	default:
		return true
	}
}
