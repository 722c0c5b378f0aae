package manifest

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/cohortkit/cohortkit/pkg/bids"
)

func header(kinds []bids.Kind) []string {
	cols := []string{"DatasetID", "SubjectID", "SessionID"}
	for _, kind := range kinds {
		cols = append(cols, string(kind))
	}
	for _, kind := range kinds {
		if spec, err := bids.Spec(kind); err == nil && spec.Derivative {
			cols = append(cols, string(kind)+"_version")
		}
	}
	return cols
}

func row(rec Record, kinds []bids.Kind) []string {
	cells := []string{rec.Dataset, rec.Participant, rec.Session}
	for _, kind := range kinds {
		cells = append(cells, strconv.FormatBool(rec.Available[kind]))
	}
	for _, kind := range kinds {
		if spec, err := bids.Spec(kind); err == nil && spec.Derivative {
			v := rec.Versions[kind]
			if v == "" {
				v = "n/a"
			}
			cells = append(cells, v)
		}
	}
	return cells
}

// WriteTSV serializes the availability table as a tab-separated file.
func WriteTSV(path string, records []Record, kinds []bids.Kind) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '\t'
	if err := w.Write(header(kinds)); err != nil {
		return err
	}
	for _, rec := range records {
		if err := w.Write(row(rec, kinds)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// WriteXLSX serializes the availability table as a spreadsheet for the
// external dashboard tooling.
func WriteXLSX(path string, records []Record, kinds []bids.Kind) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "availability"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	write := func(rowNum int, cells []string) error {
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(cells))
		for i, c := range cells {
			values[i] = c
		}
		return f.SetSheetRow(sheet, cell, &values)
	}

	if err := write(1, header(kinds)); err != nil {
		return err
	}
	for i, rec := range records {
		if err := write(i+2, row(rec, kinds)); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

// WriteStudies writes the per-study summary table next to the manifest:
// one row per dataset with participant and session counts.
func WriteStudies(path string, records []Record) error {
	type counts struct {
		participants map[string]struct{}
		sessions     int
	}
	studies := make(map[string]*counts)
	var order []string
	for _, rec := range records {
		c, ok := studies[rec.Dataset]
		if !ok {
			c = &counts{participants: make(map[string]struct{})}
			studies[rec.Dataset] = c
			order = append(order, rec.Dataset)
		}
		c.participants[rec.Participant] = struct{}{}
		c.sessions++
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '\t'
	if err := w.Write([]string{"study_ID", "n_participants", "n_sessions"}); err != nil {
		return err
	}
	for _, id := range order {
		c := studies[id]
		err := w.Write([]string{
			id,
			fmt.Sprintf("%d", len(c.participants)),
			fmt.Sprintf("%d", c.sessions),
		})
		if err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
