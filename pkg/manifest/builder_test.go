package manifest

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/cohortkit/cohortkit/pkg/bids"
	"github.com/cohortkit/cohortkit/pkg/cohort"
	"github.com/cohortkit/cohortkit/pkg/materialize"
)

func outcomeFor(dataset, participant, session string, kind bids.Kind) materialize.Outcome {
	return materialize.Outcome{Entry: cohort.Entry{
		Dataset:     dataset,
		Participant: participant,
		Session:     session,
		Kind:        kind,
	}}
}

func TestBuilderFlagsPerKind(t *testing.T) {
	b := NewBuilder([]bids.Kind{bids.KindRaw, bids.KindMRIQC})
	b.Seed([]cohort.Visit{
		{Dataset: "ds01", Participant: "sub-01", Session: bids.NoSession},
		{Dataset: "ds01", Participant: "sub-02", Session: bids.NoSession},
	})
	b.Observe(outcomeFor("ds01", "sub-01", bids.NoSession, bids.KindRaw))
	b.Observe(outcomeFor("ds01", "sub-01", bids.NoSession, bids.KindMRIQC))
	b.Observe(outcomeFor("ds01", "sub-02", bids.NoSession, bids.KindRaw))

	records := b.Build()
	if len(records) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(records))
	}
	if !records[0].Available[bids.KindRaw] || !records[0].Available[bids.KindMRIQC] {
		t.Errorf("sub-01 flags = %v", records[0].Available)
	}
	if !records[1].Available[bids.KindRaw] || records[1].Available[bids.KindMRIQC] {
		t.Errorf("sub-02 flags = %v", records[1].Available)
	}
}

func TestBuilderSeededRowsSurviveZeroOutcomes(t *testing.T) {
	b := NewBuilder([]bids.Kind{bids.KindRaw})
	b.Seed([]cohort.Visit{{Dataset: "ds01", Participant: "sub-03", Session: "ses-1"}})

	records := b.Build()
	if len(records) != 1 {
		t.Fatalf("expected 1 row, got %d", len(records))
	}
	if records[0].Available[bids.KindRaw] {
		t.Error("row without outcomes must report false")
	}
}

func TestBuilderFailedOutcomeIgnored(t *testing.T) {
	b := NewBuilder([]bids.Kind{bids.KindRaw})
	b.Seed([]cohort.Visit{{Dataset: "ds01", Participant: "sub-01", Session: bids.NoSession}})
	failed := outcomeFor("ds01", "sub-01", bids.NoSession, bids.KindRaw)
	failed.Err = os.ErrNotExist
	b.Observe(failed)

	records := b.Build()
	if records[0].Available[bids.KindRaw] {
		t.Error("failed outcome must not flip the flag")
	}
}

func TestSessionAveragedPropagation(t *testing.T) {
	b := NewBuilder([]bids.Kind{bids.KindRaw, bids.KindMRIQC})
	b.Seed([]cohort.Visit{
		{Dataset: "ds01", Participant: "sub-01", Session: "ses-1"},
		{Dataset: "ds01", Participant: "sub-01", Session: "ses-2"},
	})
	b.Observe(outcomeFor("ds01", "sub-01", "ses-1", bids.KindRaw))
	b.Observe(outcomeFor("ds01", "sub-01", "ses-2", bids.KindRaw))
	// the derivative tree is session-averaged
	b.Observe(outcomeFor("ds01", "sub-01", bids.NoSession, bids.KindMRIQC))

	records := b.Build()
	if len(records) != 2 {
		t.Fatalf("expected 2 session rows, no extra n/a row, got %d: %+v", len(records), records)
	}
	for _, rec := range records {
		if !rec.Available[bids.KindMRIQC] {
			t.Errorf("%s/%s: averaged success should propagate", rec.Participant, rec.Session)
		}
	}
}

func TestBuilderVersions(t *testing.T) {
	b := NewBuilder([]bids.Kind{bids.KindRaw, bids.KindFMRIPrep})
	b.Seed([]cohort.Visit{{Dataset: "ds01", Participant: "sub-01", Session: bids.NoSession}})
	b.SetVersion("ds01", bids.KindFMRIPrep, "23.1.4")

	rec := b.Build()[0]
	if rec.Versions[bids.KindFMRIPrep] != "23.1.4" {
		t.Errorf("version = %q", rec.Versions[bids.KindFMRIPrep])
	}
	if _, ok := rec.Versions[bids.KindRaw]; ok {
		t.Error("raw must not carry a version column")
	}
}

func TestBuildSortsRows(t *testing.T) {
	b := NewBuilder([]bids.Kind{bids.KindRaw})
	b.Seed([]cohort.Visit{
		{Dataset: "ds02", Participant: "sub-01", Session: bids.NoSession},
		{Dataset: "ds01", Participant: "sub-02", Session: "ses-2"},
		{Dataset: "ds01", Participant: "sub-02", Session: "ses-1"},
		{Dataset: "ds01", Participant: "sub-01", Session: bids.NoSession},
	})

	var got [][3]string
	for _, rec := range b.Build() {
		got = append(got, [3]string{rec.Dataset, rec.Participant, rec.Session})
	}
	want := [][3]string{
		{"ds01", "sub-01", bids.NoSession},
		{"ds01", "sub-02", "ses-1"},
		{"ds01", "sub-02", "ses-2"},
		{"ds02", "sub-01", bids.NoSession},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestWriteTSV(t *testing.T) {
	kinds := []bids.Kind{bids.KindRaw, bids.KindMRIQC}
	records := []Record{{
		Dataset:     "ds01",
		Participant: "sub-01",
		Session:     "ses-1",
		Available:   map[bids.Kind]bool{bids.KindRaw: true, bids.KindMRIQC: false},
		Versions:    map[bids.Kind]string{},
	}}

	path := filepath.Join(t.TempDir(), "availability.tsv")
	if err := WriteTSV(path, records, kinds); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %v", lines)
	}
	if lines[0] != "DatasetID\tSubjectID\tSessionID\traw\tmriqc\tmriqc_version" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "ds01\tsub-01\tses-1\ttrue\tfalse\tn/a" {
		t.Errorf("row = %q", lines[1])
	}
}

func TestWriteStudies(t *testing.T) {
	records := []Record{
		{Dataset: "ds01", Participant: "sub-01", Session: "ses-1"},
		{Dataset: "ds01", Participant: "sub-01", Session: "ses-2"},
		{Dataset: "ds01", Participant: "sub-02", Session: "ses-1"},
		{Dataset: "ds02", Participant: "sub-01", Session: bids.NoSession},
	}

	path := filepath.Join(t.TempDir(), "studies.tsv")
	if err := WriteStudies(path, records); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "study_ID\tn_participants\tn_sessions\nds01\t2\t3\nds02\t1\t1\n"
	if string(data) != want {
		t.Errorf("studies table = %q, want %q", string(data), want)
	}
}
