// cohortkit - reproducible cohort assembly across versioned imaging datasets.
// Selects, fetches, and reorganizes a participant subset into an
// analysis-ready tree with an availability manifest.
package main

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cohortkit/cohortkit/pkg/config"
	"github.com/cohortkit/cohortkit/pkg/errors"
	"github.com/cohortkit/cohortkit/pkg/materialize"
)

var (
	version = materialize.Version
	commit  = "dev"
)

// CLI flags
var (
	outputDir          string
	sourcedataDir      string
	participantListing string
	filterFile         string
	kindFlags          []string
	datatypeFlags      []string
	spaceFlags         []string
	workers            int
	xlsxManifest       bool
	verbose            bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var cErr *errors.CohortError
		if verbose && stderrors.As(err, &cErr) {
			fmt.Fprint(os.Stderr, cErr.FormatStack())
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cohortkit",
	Short: "cohortkit - assemble cohorts from versioned imaging datasets",
	Long: `cohortkit selects files across raw and derivative imaging datasets,
copies or links them into a normalized cohort tree, and writes an
availability manifest of what was and wasn't found.

Datasets are given as IDs or as a dataset listing TSV; participants as a
participant listing TSV (omit to include every known participant).`,
	Version: fmt.Sprintf("%s (%s)", version, commit),
}

func init() {
	cfg := config.Global().Get()

	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", cfg.Output.Dir, "cohort output directory")
	rootCmd.PersistentFlags().StringVar(&sourcedataDir, "sourcedata", "", "local dataset store (default <output>/sourcedata)")
	rootCmd.PersistentFlags().StringVarP(&participantListing, "participants", "p", "", "participant listing TSV")
	rootCmd.PersistentFlags().StringVar(&filterFile, "filter-file", cfg.Cohort.FilterFile, "suffix-group filter table (YAML or JSON, empty = built-in)")
	rootCmd.PersistentFlags().StringSliceVarP(&kindFlags, "kind", "k", cfg.Cohort.Kinds, "dataset kinds (raw, fmriprep, mriqc)")
	rootCmd.PersistentFlags().StringSliceVarP(&datatypeFlags, "datatype", "d", cfg.Cohort.Datatypes, "datatypes (anat, func, dwi)")
	rootCmd.PersistentFlags().StringSliceVar(&spaceFlags, "space", cfg.Cohort.Spaces, "acquisition spaces (derivative outputs only)")
	rootCmd.PersistentFlags().IntVarP(&workers, "jobs", "j", cfg.Output.Workers, "parallel dataset workers during materialization")
	rootCmd.PersistentFlags().BoolVar(&xlsxManifest, "xlsx", cfg.Output.XLSX, "also write the manifest as a spreadsheet")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(selectCmd)
	rootCmd.AddCommand(listingCmd)
	rootCmd.AddCommand(configCmd)
}
