package bids

import "testing"

func TestEntity(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{"sub-01_task-rest_bold.nii.gz", "sub", "01"},
		{"sub-01_task-rest_bold.nii.gz", "task", "rest"},
		{"sub-01_task-rest_bold.nii.gz", "ses", ""},
		{"sub-01_ses-2_T1w.nii.gz", "ses", "2"},
		{"sub-01_space-MNI152NLin2009cAsym_desc-preproc_T1w.nii.gz", "space", "MNI152NLin2009cAsym"},
		{"sub-01_desc-confounds_timeseries.tsv", "space", ""},
		{"/data/ds01/sub-01/anat/sub-01_T1w.nii.gz", "sub", "01"},
	}

	for _, tt := range tests {
		got := Entity(tt.name, tt.key)
		if got != tt.expected {
			t.Errorf("Entity(%q, %q) = %q, want %q", tt.name, tt.key, got, tt.expected)
		}
	}
}

func TestStem(t *testing.T) {
	tests := []struct {
		name     string
		expected string
	}{
		{"sub-01_bold.nii.gz", "sub-01_bold"},
		{"sub-01_bold.nii", "sub-01_bold"},
		{"sub-01_events.tsv", "sub-01_events"},
		{"README", "README"},
	}

	for _, tt := range tests {
		if got := Stem(tt.name); got != tt.expected {
			t.Errorf("Stem(%q) = %q, want %q", tt.name, got, tt.expected)
		}
	}
}

func TestSidecarName(t *testing.T) {
	if got := SidecarName("sub-01_bold.nii.gz"); got != "sub-01_bold.json" {
		t.Errorf("SidecarName = %q, want sub-01_bold.json", got)
	}
	if got := SidecarName("sub-01_bold.json"); got != "" {
		t.Errorf("sidecar of a sidecar should be empty, got %q", got)
	}
}

func TestParseKinds(t *testing.T) {
	kinds, err := ParseKinds([]string{"raw", "MRIQC", " fmriprep "})
	if err != nil {
		t.Fatalf("ParseKinds: %v", err)
	}
	if len(kinds) != 3 {
		t.Fatalf("expected 3 kinds, got %d", len(kinds))
	}

	if _, err := ParseKinds([]string{"freesurfer"}); err == nil {
		t.Error("expected error for unsupported kind")
	}
}

func TestSpecCapabilities(t *testing.T) {
	raw, _ := Spec(KindRaw)
	if raw.SpaceFilterable || raw.Derivative {
		t.Error("raw must be neither space-filterable nor a derivative")
	}
	mriqc, _ := Spec(KindMRIQC)
	if mriqc.SpaceFilterable {
		t.Error("mriqc outputs carry no space entity")
	}
	if !mriqc.Derivative {
		t.Error("mriqc is a derivative kind")
	}
	fmriprep, _ := Spec(KindFMRIPrep)
	if !fmriprep.SpaceFilterable {
		t.Error("fmriprep outputs are space-filterable")
	}
}

func TestSortKinds(t *testing.T) {
	kinds := []Kind{KindMRIQC, KindRaw, KindFMRIPrep}
	SortKinds(kinds)
	if kinds[0] != KindRaw || kinds[1] != KindFMRIPrep || kinds[2] != KindMRIQC {
		t.Errorf("unexpected order: %v", kinds)
	}
}
