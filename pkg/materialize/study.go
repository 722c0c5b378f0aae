package materialize

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cohortkit/cohortkit/pkg/bids"
	"github.com/cohortkit/cohortkit/pkg/errors"
)

// Version is stamped into generated provenance records.
const Version = "0.1.0"

// DatasetDescription is the minimal per-study metadata record required by
// the output convention.
type DatasetDescription struct {
	Name        string      `json:"Name"`
	BIDSVersion string      `json:"BIDSVersion"`
	DatasetType string      `json:"DatasetType"`
	GeneratedBy []Generator `json:"GeneratedBy"`
}

// Generator identifies the tool that produced a tree.
type Generator struct {
	Name    string `json:"Name"`
	Version string `json:"Version,omitempty"`
	RunID   string `json:"RunID,omitempty"`
	CodeURL string `json:"CodeURL,omitempty"`
}

// writeDescription writes dataset_description.json into dir unless the
// source tree already provided one that was copied over.
func writeDescription(dir, name, runID string) error {
	path := filepath.Join(dir, "dataset_description.json")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	desc := DatasetDescription{
		Name:        name,
		BIDSVersion: "1.8.0",
		DatasetType: "derivative",
		GeneratedBy: []Generator{{
			Name:    "cohortkit",
			Version: Version,
			RunID:   runID,
			CodeURL: "https://github.com/cohortkit/cohortkit",
		}},
	}
	data, err := json.MarshalIndent(desc, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// PipelineVersion reads the version a derivative tree declares about
// itself, "" when undeclared.
func PipelineVersion(root string) string {
	data, err := os.ReadFile(filepath.Join(root, "dataset_description.json"))
	if err != nil {
		return ""
	}
	var desc struct {
		GeneratedBy []struct {
			Version string `json:"Version"`
		} `json:"GeneratedBy"`
	}
	if err := json.Unmarshal(data, &desc); err != nil || len(desc.GeneratedBy) == 0 {
		return ""
	}
	return desc.GeneratedBy[0].Version
}

// copyTopFiles copies the dataset-level companion files that must travel
// with any subset of a dataset: the description, participant table,
// README, and the datatype-wide sidecars the requested datatypes rely on.
func copyTopFiles(srcRoot, targetDir string, datatypes []string) {
	patterns := []string{"dataset_description.json", "participants.*", "README*"}
	for _, datatype := range datatypes {
		switch datatype {
		case "func":
			patterns = append(patterns, "*task-*_events.tsv", "*task-*_events.json", "*task-*_bold.json")
		case "anat":
			patterns = append(patterns, "*T1w.json")
		}
	}
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(srcRoot, pattern))
		if err != nil {
			continue
		}
		for _, src := range matches {
			dst := filepath.Join(targetDir, filepath.Base(src))
			if _, err := os.Stat(dst); err == nil {
				continue
			}
			_ = copyFile(src, dst)
		}
	}
}

// trimParticipants rewrites the study's participants.tsv keeping only the
// cohort's participant subset.
func trimParticipants(dir string, keep []string) error {
	path := filepath.Join(dir, "participants.tsv")
	f, err := os.Open(path)
	if err != nil {
		// nothing to trim
		return nil
	}
	r := csv.NewReader(f)
	r.Comma = '\t'
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	f.Close()
	if err != nil {
		// never ship the untrimmed table: replace it with a minimal one
		// holding only the cohort subset
		minimal := [][]string{{"participant_id"}}
		for _, sub := range keep {
			minimal = append(minimal, []string{sub})
		}
		if wErr := writeRecords(path, minimal); wErr != nil {
			return wErr
		}
		return errors.Wrap(err, errors.CodeListingInvalid, "unparseable participants table replaced").
			WithContext("path", path)
	}
	if len(records) == 0 {
		return nil
	}

	idCol := 0
	for i, name := range records[0] {
		if name == "participant_id" {
			idCol = i
			break
		}
	}

	keepSet := make(map[string]struct{}, len(keep))
	for _, sub := range keep {
		keepSet[sub] = struct{}{}
	}

	trimmed := [][]string{records[0]}
	for _, rec := range records[1:] {
		if idCol < len(rec) {
			if _, ok := keepSet[rec[idCol]]; ok {
				trimmed = append(trimmed, rec)
			}
		}
	}

	return writeRecords(path, trimmed)
}

func writeRecords(path string, records [][]string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()
	w := csv.NewWriter(out)
	w.Comma = '\t'
	if err := w.WriteAll(records); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// studyDir maps a dataset into the output tree.
func studyDir(outputRoot, dataset string) string {
	return filepath.Join(outputRoot, "study-"+dataset)
}

// kindTargetDir maps a dataset kind into the output tree: the study root
// for raw, derivatives/<kind>[-<version>] for derivative kinds.
func kindTargetDir(outputRoot, dataset string, kind bids.Kind, sourceRoot string) string {
	study := studyDir(outputRoot, dataset)
	if kind == bids.KindRaw {
		return study
	}
	label := string(kind)
	if v := PipelineVersion(sourceRoot); v != "" {
		label += "-" + v
	}
	return filepath.Join(study, "derivatives", label)
}
