package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"location-dedupe/internal/config"
	"location-dedupe/internal/logging"
	"location-dedupe/internal/match"
	"location-dedupe/internal/merge"
	"location-dedupe/internal/models"
	"location-dedupe/internal/report"
	"location-dedupe/internal/repository"
	"location-dedupe/internal/service"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// datastore is what a run needs: a snapshot reader and transactional merges.
type datastore interface {
	service.LocationReader
	merge.Store
}

type options struct {
	configDir string
	execute   bool
	format    string
	out       string
	mergeLog  string
	maxPasses int
	input     string
	tenants   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Find and merge duplicate retail location records",
		Long: `Scans every location, groups records that describe the same place and writes
a review report. Nothing is changed unless --execute is given, in which case
safe groups are merged into their survivor one transaction per pair.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configDir, "config", "./configs", "directory holding app.env")
	f.BoolVar(&opts.execute, "execute", false, "merge safe groups (default is a dry run)")
	f.StringVar(&opts.format, "format", "md", "report format: md, json or yaml")
	f.StringVarP(&opts.out, "out", "o", "", "write the report to this file instead of stdout")
	f.StringVar(&opts.mergeLog, "merge-log", "", "append one line per attempted merge to this file")
	f.IntVar(&opts.maxPasses, "max-passes", 0, "override MAX_PASSES for execute mode")
	f.StringVar(&opts.input, "input", "", "read locations from a CSV file instead of the database")
	f.StringVar(&opts.tenants, "tenants", "", "tenants CSV to pair with --input")

	return cmd
}

func run(ctx context.Context, opts *options) error {
	cfg, err := config.LoadConfig(opts.configDir)
	if err != nil {
		return err
	}
	logging.Setup(cfg.LogLevel, cfg.LogPretty)

	format, err := report.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	maxPasses := cfg.MaxPasses
	if opts.maxPasses > 0 {
		maxPasses = opts.maxPasses
	}

	out, closeOut, err := openOutput(opts.out, os.Stdout, os.O_TRUNC)
	if err != nil {
		return err
	}
	defer closeOut()

	var mergeLog io.Writer
	if opts.mergeLog != "" {
		w, closeLog, err := openOutput(opts.mergeLog, nil, os.O_APPEND)
		if err != nil {
			return err
		}
		defer closeLog()
		mergeLog = w
	}

	store, closeStore, err := openStore(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer closeStore()

	exec, err := merge.NewExecutor(store,
		merge.WithFields(cfg.Fields()),
		merge.WithWorkers(cfg.MergeWorkers),
		merge.WithTenantPolicy(cfg.TenantPolicy()),
	)
	if err != nil {
		return err
	}
	svc := service.NewDedupeService(store, match.NewEngine(cfg.Rules()), exec, maxPasses)

	rep, err := svc.Run(ctx, service.RunOptions{Execute: opts.execute})
	if err != nil {
		return err
	}

	if err := report.Write(out, rep, format); err != nil {
		log.Error().Err(err).Msg("cannot write report")
	}
	if mergeLog != nil {
		writeMergeLog(mergeLog, rep)
	}
	printSummary(os.Stderr, rep, opts.input != "")
	return nil
}

func openOutput(path string, fallback io.Writer, flag int) (io.Writer, func(), error) {
	if path == "" {
		return fallback, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|flag, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	return f, func() {
		if err := f.Close(); err != nil {
			log.Error().Err(err).Str("path", path).Msg("cannot close file")
		}
	}, nil
}

func openStore(ctx context.Context, cfg config.Config, opts *options) (datastore, func(), error) {
	if opts.input == "" {
		pool, err := repository.Connect(ctx, cfg.DBSource, cfg.ConnectAttempts)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewRepository(pool), pool.Close, nil
	}

	locations, err := readCSV(opts.input, repository.ReadLocationsCSV)
	if err != nil {
		return nil, nil, err
	}
	var tenants []models.Tenant
	if opts.tenants != "" {
		if tenants, err = readCSV(opts.tenants, repository.ReadTenantsCSV); err != nil {
			return nil, nil, err
		}
	}
	log.Info().Str("file", opts.input).Int("locations", len(locations)).Int("tenants", len(tenants)).
		Msg("using in-memory datastore, merges are not persisted")
	return repository.NewMemory(locations, tenants), func() {}, nil
}

func readCSV[T any](path string, parse func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer f.Close()

	rows, err := parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

func writeMergeLog(w io.Writer, rep *report.Report) {
	for _, e := range rep.Executions {
		line := e.LogLine
		if !e.Merged {
			line += " FAILED: " + e.Error
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			log.Error().Err(err).Msg("cannot write merge log")
			return
		}
	}
}

func printSummary(w io.Writer, rep *report.Report, inMemory bool) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(w, "\n%s\n", cyan("=== Dedupe "+string(rep.Mode)+" ==="))
	fmt.Fprintf(w, "%s %s\n", gray("Run:"), rep.RunID)
	fmt.Fprintf(w, "%s %d\n", gray("Records scanned:"), rep.TotalRecords)
	fmt.Fprintf(w, "%s %s\n", gray("Safe to merge:"), green(rep.Summary.SafeToMerge))
	fmt.Fprintf(w, "%s %s\n", gray("Integrity issues:"), yellow(rep.Summary.IntegrityIssues))
	fmt.Fprintf(w, "%s %d\n", gray("Name collisions:"), rep.Summary.Collisions)

	if rep.Mode != report.Execute {
		fmt.Fprintf(w, "\n%s\n", yellow("Dry run: nothing was changed. Re-run with --execute to merge."))
		return
	}
	fmt.Fprintf(w, "%s %d\n", gray("Passes:"), rep.Passes)
	fmt.Fprintf(w, "%s %s\n", gray("Merged:"), green(rep.Summary.Merged))
	if rep.Summary.Failed > 0 {
		fmt.Fprintf(w, "%s %s\n", gray("Failed:"), red(rep.Summary.Failed))
	}
	if inMemory {
		fmt.Fprintf(w, "%s\n", gray("Merges ran against the CSV snapshot and were not persisted."))
	}
}
