package listing

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/cohortkit/cohortkit/pkg/bids"
	"github.com/cohortkit/cohortkit/pkg/errors"
	"github.com/cohortkit/cohortkit/pkg/layout"
)

func writeListing(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "listing.tsv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDatasets(t *testing.T) {
	path := writeListing(t,
		"DatasetID\tPortalURI\tfmriprep\tmriqc\n"+
			"ds002\thttps://example.org/ds002\tyes\tn/a\n"+
			"ds001\thttps://example.org/ds001\ttrue\t1\n")

	rows, err := LoadDatasets(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	// rows come back sorted by ID
	if rows[0].ID != "ds001" || rows[1].ID != "ds002" {
		t.Errorf("order = %s, %s", rows[0].ID, rows[1].ID)
	}
	if !rows[0].Kinds[bids.KindRaw] || !rows[0].Kinds[bids.KindFMRIPrep] || !rows[0].Kinds[bids.KindMRIQC] {
		t.Errorf("ds001 kinds = %v", rows[0].Kinds)
	}
	if rows[1].Kinds[bids.KindMRIQC] {
		t.Error("n/a hint must read as unavailable")
	}
	if rows[1].Extra["PortalURI"] != "https://example.org/ds002" {
		t.Errorf("extra columns not preserved: %v", rows[1].Extra)
	}
}

func TestLoadDatasetsRequiresIDColumn(t *testing.T) {
	path := writeListing(t, "name\tfmriprep\nds001\ttrue\n")
	_, err := LoadDatasets(path)
	if !errors.IsCode(err, errors.CodeListingInvalid) {
		t.Fatalf("expected CodeListingInvalid, got %v", err)
	}
}

func TestLoadDatasetsRaggedRow(t *testing.T) {
	// spreadsheet exports drop trailing tabs, so a row can be shorter
	// than the header
	path := writeListing(t, "DatasetID\tfmriprep\tmriqc\nds000001\n")
	rows, err := LoadDatasets(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	for _, kind := range []bids.Kind{bids.KindRaw, bids.KindFMRIPrep, bids.KindMRIQC} {
		if !rows[0].Kinds[kind] {
			t.Errorf("missing hint cell for %s should fall back to available", kind)
		}
	}
}

func TestLoadDatasetsRaggedIDCell(t *testing.T) {
	path := writeListing(t, "name\tportal\tDatasetID\nsome dataset\thttps://example.org\n")
	_, err := LoadDatasets(path)
	if !errors.IsCode(err, errors.CodeListingInvalid) {
		t.Fatalf("expected CodeListingInvalid, got %v", err)
	}
}

func TestLoadParticipantsRaggedRow(t *testing.T) {
	path := writeListing(t,
		"DatasetID\tSubjectID\tSessionID\n"+
			"ds001\tsub-01\tses-1\n"+
			"ds001\n")
	_, err := LoadParticipants(path)
	if !errors.IsCode(err, errors.CodeListingInvalid) {
		t.Fatalf("expected CodeListingInvalid, got %v", err)
	}
}

func TestLoadDatasetsDefaultsWithoutHintColumns(t *testing.T) {
	path := writeListing(t, "DatasetID\nds001\n")
	rows, err := LoadDatasets(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, kind := range []bids.Kind{bids.KindRaw, bids.KindFMRIPrep, bids.KindMRIQC} {
		if !rows[0].Kinds[kind] {
			t.Errorf("%s should default to available", kind)
		}
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{"yes", true},
		{" 21.0.1 ", true}, // version strings count as present
		{"", false},
		{"false", false},
		{"0", false},
		{"n/a", false},
		{"NaN", false},
		{"no", false},
	}
	for _, tt := range tests {
		if got := truthy(tt.value); got != tt.want {
			t.Errorf("truthy(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestLoadParticipants(t *testing.T) {
	path := writeListing(t,
		"DatasetID\tSubjectID\tSessionID\n"+
			"ds001\tsub-01\tses-1\n"+
			"ds001\tsub-01\tses-2\n"+
			"ds001\tsub-02\t\n"+
			"ds002\tsub-01\tses-1\n"+
			"\t\t\n")

	rows, err := LoadParticipants(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows (blank dropped), got %d", len(rows))
	}
	if rows[2].SessionID != bids.NoSession {
		t.Errorf("empty session should read as %q, got %q", bids.NoSession, rows[2].SessionID)
	}

	if got := ParticipantsFor(rows, "ds001"); !reflect.DeepEqual(got, []string{"sub-01", "sub-02"}) {
		t.Errorf("ParticipantsFor = %v", got)
	}
	if got := SessionsFor(rows, "ds001", "sub-01"); !reflect.DeepEqual(got, []string{"ses-1", "ses-2"}) {
		t.Errorf("SessionsFor = %v", got)
	}
	if got := SessionsFor(rows, "ds002", "sub-02"); got != nil {
		t.Errorf("unlisted pair should yield nil, got %v", got)
	}
}

func TestLoadParticipantsRequiresColumns(t *testing.T) {
	path := writeListing(t, "DatasetID\tsubject\nds001\tsub-01\n")
	_, err := LoadParticipants(path)
	if !errors.IsCode(err, errors.CodeListingInvalid) {
		t.Fatalf("expected CodeListingInvalid, got %v", err)
	}
}

func TestGenerateAndWriteRoundTrip(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{
		"sub-01/ses-1/anat",
		"sub-01/ses-2/anat",
		"sub-02/ses-1/anat",
	} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := Generate(layout.NewResolver(), map[string]string{"ds001": root})
	if err != nil {
		t.Fatal(err)
	}
	want := []ParticipantRow{
		{DatasetID: "ds001", SubjectID: "sub-01", SessionID: "ses-1"},
		{DatasetID: "ds001", SubjectID: "sub-01", SessionID: "ses-2"},
		{DatasetID: "ds001", SubjectID: "sub-02", SessionID: "ses-1"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("generated = %+v", rows)
	}

	path := filepath.Join(t.TempDir(), "participants.tsv")
	if err := WriteParticipants(path, rows); err != nil {
		t.Fatal(err)
	}
	back, err := LoadParticipants(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(back, rows) {
		t.Errorf("round trip mismatch: %+v", back)
	}
}
