package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cohortkit/cohortkit/pkg/bids"
	"github.com/cohortkit/cohortkit/pkg/cohort"
	"github.com/cohortkit/cohortkit/pkg/config"
	"github.com/cohortkit/cohortkit/pkg/errors"
	"github.com/cohortkit/cohortkit/pkg/fetch"
	"github.com/cohortkit/cohortkit/pkg/filter"
	"github.com/cohortkit/cohortkit/pkg/layout"
	"github.com/cohortkit/cohortkit/pkg/listing"
	"github.com/cohortkit/cohortkit/pkg/manifest"
	"github.com/cohortkit/cohortkit/pkg/materialize"
	"github.com/cohortkit/cohortkit/pkg/tui"
)

var createCmd = &cobra.Command{
	Use:   "create <dataset|dataset-listing.tsv> [dataset...]",
	Short: "Select, materialize, and write the availability manifest",
	Long: `Assemble a cohort: select the files matching every filter dimension,
link or copy them into the output tree, and write the manifest.

Examples:
  cohortkit create ds000001 ds000002 -k raw,mriqc -d anat
  cohortkit create listings/datasets.tsv -p listings/participants.tsv \
      -k raw,fmriprep -d anat,func --space MNI152NLin2009cAsym`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCreate,
}

var selectCmd = &cobra.Command{
	Use:   "select <dataset|dataset-listing.tsv> [dataset...]",
	Short: "Dry run: list the files a create would materialize",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSelect,
}

var listingCmd = &cobra.Command{
	Use:   "listing <dataset> [dataset...]",
	Short: "Generate a participant listing from installed datasets",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runListing,
}

var saveConfig bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&saveConfig, "save", false, "write the effective configuration to the user config file")
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, stopping...")
		cancel()
	}()
	return ctx, cancel
}

func newLogger() *log.Logger {
	if verbose {
		return log.New(os.Stderr, "", log.LstdFlags)
	}
	return log.New(io.Discard, "", 0)
}

func storeRoot() string {
	if sourcedataDir != "" {
		return sourcedataDir
	}
	return filepath.Join(outputDir, "sourcedata")
}

// buildRequest assembles the request and descriptors from flags and
// listings. Configuration errors abort here, before any selection I/O.
func buildRequest(args []string, resolver *layout.Resolver) (*cohort.Request, []cohort.Descriptor, error) {
	kinds, err := bids.ParseKinds(kindFlags)
	if err != nil {
		return nil, nil, err
	}

	table := filter.Default()
	if filterFile != "" {
		if table, err = filter.Load(filterFile); err != nil {
			return nil, nil, err
		}
	}

	datasetRows, err := loadDatasetArgs(args)
	if err != nil {
		return nil, nil, err
	}

	req := &cohort.Request{
		Participants: make(map[string][]string),
		Sessions:     make(map[string]map[string][]string),
		Kinds:        kinds,
		Datatypes:    datatypeFlags,
		Spaces:       spaceFlags,
		Table:        table,
	}
	for _, row := range datasetRows {
		req.Datasets = append(req.Datasets, row.ID)
	}

	if participantListing != "" {
		rows, err := listing.LoadParticipants(participantListing)
		if err != nil {
			return nil, nil, err
		}
		for _, id := range req.Datasets {
			if subs := listing.ParticipantsFor(rows, id); len(subs) > 0 {
				req.Participants[id] = subs
				req.Sessions[id] = make(map[string][]string)
				for _, sub := range subs {
					req.Sessions[id][sub] = listing.SessionsFor(rows, id, sub)
				}
			}
		}
	}

	if err := req.Validate(); err != nil {
		return nil, nil, err
	}

	descriptors := cohort.BuildDescriptors(storeRoot(), datasetRows, kinds, resolver)
	return req, descriptors, nil
}

// loadDatasetArgs accepts either dataset IDs or a single path to a
// dataset listing TSV.
func loadDatasetArgs(args []string) ([]listing.DatasetRow, error) {
	if len(args) == 1 {
		if _, err := os.Stat(args[0]); err == nil {
			return listing.LoadDatasets(args[0])
		}
	}
	rows := make([]listing.DatasetRow, 0, len(args))
	for _, id := range args {
		rows = append(rows, listing.DatasetRow{
			ID: id,
			Kinds: map[bids.Kind]bool{
				bids.KindRaw:      true,
				bids.KindFMRIPrep: true,
				bids.KindMRIQC:    true,
			},
		})
	}
	return rows, nil
}

func localFetcher(descriptors []cohort.Descriptor) fetch.Fetcher {
	roots := make(map[string]map[bids.Kind]string, len(descriptors))
	for _, d := range descriptors {
		roots[d.ID] = d.KindRoots
	}
	return &fetch.Local{Roots: roots}
}

func runCreate(cmd *cobra.Command, args []string) error {
	start := time.Now()
	ctx, cancel := signalContext()
	defer cancel()

	tui.PrintHeader(version)

	resolver := layout.NewResolver()
	req, descriptors, err := buildRequest(args, resolver)
	if err != nil {
		return err
	}

	selector := cohort.NewSelector(resolver, localFetcher(descriptors), newLogger())
	selection, err := selector.Select(ctx, req, descriptors)
	if err != nil {
		return err
	}
	fmt.Printf("\n  Selected %d files across %d datasets\n",
		len(selection.Entries), len(req.Datasets))

	bar := tui.ShowProgress(int64(len(req.Datasets)), "materializing")
	m := materialize.New(outputDir, workers)
	m.Datatypes = req.Datatypes
	m.Logger = newLogger()
	m.OnDatasetDone = func(string) { _ = bar.Add(1) }

	outcomes, err := m.Materialize(ctx, selection.Entries)
	_ = bar.Finish()
	if err != nil {
		return err
	}

	builder := manifest.NewBuilder(req.Kinds)
	builder.Seed(selection.Visits)
	for _, o := range outcomes {
		builder.Observe(o)
	}
	for _, d := range descriptors {
		for kind, root := range d.KindRoots {
			if kind == bids.KindRaw {
				continue
			}
			if v := materialize.PipelineVersion(root); v != "" {
				builder.SetVersion(d.ID, kind, v)
			}
		}
	}
	records := builder.Build()

	manifestPath := filepath.Join(outputDir, "availability.tsv")
	if err := manifest.WriteTSV(manifestPath, records, builder.Kinds()); err != nil {
		return errors.Wrapf(err, errors.CodeOutputUnwritable, "cannot write manifest %s", manifestPath)
	}
	if xlsxManifest {
		xlsxPath := filepath.Join(outputDir, "availability.xlsx")
		if err := manifest.WriteXLSX(xlsxPath, records, builder.Kinds()); err != nil {
			return errors.Wrapf(err, errors.CodeOutputUnwritable, "cannot write manifest spreadsheet %s", xlsxPath)
		}
	}
	if err := manifest.WriteStudies(filepath.Join(outputDir, "studies.tsv"), records); err != nil {
		return errors.Wrap(err, errors.CodeOutputUnwritable, "cannot write studies table")
	}

	tui.PrintFailures(outcomes)
	tui.PrintSummary(outcomes, records, time.Since(start))
	return nil
}

func runSelect(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	resolver := layout.NewResolver()
	req, descriptors, err := buildRequest(args, resolver)
	if err != nil {
		return err
	}

	selector := cohort.NewSelector(resolver, localFetcher(descriptors), newLogger())
	selection, err := selector.Select(ctx, req, descriptors)
	if err != nil {
		return err
	}

	for _, e := range selection.Entries {
		fmt.Printf("%s\t%s\t%s\t%s\t%s\n", e.Dataset, e.Kind, e.Participant, e.Session, e.RelPath)
		for _, sidecar := range e.Sidecars {
			fmt.Printf("%s\t%s\t%s\t%s\t%s (sidecar)\n", e.Dataset, e.Kind, e.Participant, e.Session,
				filepath.Base(sidecar))
		}
	}
	fmt.Fprintf(os.Stderr, "%d files\n", len(selection.Entries))
	return nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	mgr := config.Global()

	data, err := yaml.Marshal(mgr.Get())
	if err != nil {
		return err
	}
	fmt.Print(string(data))

	for _, path := range mgr.GetPaths() {
		fmt.Fprintf(os.Stderr, "loaded %s\n", path)
	}

	if saveConfig {
		if err := mgr.Save(); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "saved user configuration")
	}
	return nil
}

func runListing(cmd *cobra.Command, args []string) error {
	resolver := layout.NewResolver()

	roots := make(map[string]string, len(args))
	for _, id := range args {
		roots[id] = filepath.Join(storeRoot(), id)
	}

	rows, err := listing.Generate(resolver, roots)
	if err != nil {
		return err
	}

	codeDir := filepath.Join(outputDir, "code")
	if err := os.MkdirAll(codeDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(codeDir, "participants.tsv")
	if err := listing.WriteParticipants(path, rows); err != nil {
		return err
	}
	fmt.Printf("Wrote %d rows to %s\n", len(rows), path)
	return nil
}
