package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"monotributo-control/cmd/control/config"
	"monotributo-control/internal/reconciler"
	"monotributo-control/internal/reporter"
	"monotributo-control/pkg/logger"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:     "run",
	Aliases: []string{"control"},
	Short:   "Run the category control over the downloaded invoices",
	Long: `Run loads every "Mis Comprobantes" export found under the MC downloads
directory (<mc-dir>/**/extraido/*.csv) and every RCEL document under the RCEL
downloads directory (<rcel-dir>/**/*.json), joins them by invoice key, prorates
each invoice over the control period and classifies each client.

Invoices without an RCEL document are counted as billed in full on their
emission date. Problems with single files or rows are collected and reported;
they never stop the run.

Examples:
  # Control the calendar year, console summary
  control run --from 2025-01-01 --to 2025-12-31

  # Write the workbook report
  control run --from 2025-01-01 --to 2025-12-31 --output-format xlsx

  # Consolidated invoice table as CSV, explicit inputs
  control run --from 2025-01-01 --to 2025-06-30 --output-format csv \
    --export-files "a.csv,b.csv" --metadata-files "1.json" --output-file consolidado.csv

  # Per-client summary as JSON with progress on stderr
  control run --from 01/01/2025 --to 30/06/2025 --output-format json --progress`,

	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(runCmd)

	// Input flags
	runCmd.Flags().String(config.KeyMCDir, config.DefaultMCDir, "directory holding the Mis Comprobantes downloads")
	runCmd.Flags().String(config.KeyRCELDir, config.DefaultRCELDir, "directory holding the RCEL invoice documents")
	runCmd.Flags().StringSlice(config.KeyExportFiles, nil, "explicit export CSV files (overrides --mc-dir discovery)")
	runCmd.Flags().StringSlice(config.KeyMetadataFiles, nil, "explicit RCEL JSON files (overrides --rcel-dir discovery)")
	runCmd.Flags().String(config.KeyEncoding, "utf-8", "export encoding: utf-8, latin1")
	runCmd.Flags().Int(config.KeyWorkers, 4, "number of files loaded in parallel")

	// Control flags
	runCmd.Flags().String(config.KeyFrom, "", "control period start (YYYY-MM-DD or DD/MM/YYYY)")
	runCmd.Flags().String(config.KeyTo, "", "control period end (YYYY-MM-DD or DD/MM/YYYY)")
	runCmd.Flags().String(config.KeyCategories, config.DefaultCategories, "category table (.xlsx, .yaml or .csv)")
	runCmd.Flags().String(config.KeyCreditNotes, "as_reported", "credit note totals: as_reported, negate")

	// Output flags
	runCmd.Flags().StringP(config.KeyOutputFormat, "f", "console", "output format: console, json, csv, xlsx")
	runCmd.Flags().StringP(config.KeyOutputFile, "o", "", "output file path (default: stdout; xlsx defaults to the report workbook name)")
	runCmd.Flags().String(config.KeyCSVTable, "records", "table written by the csv format: records, summary")
	runCmd.Flags().Bool(config.KeyIncludeRecords, false, "include every invoice in console and json reports")
	runCmd.Flags().Int(config.KeyMaxProblems, 20, "problems listed in the console report (0 for all)")
	runCmd.Flags().Bool(config.KeyProgress, false, "show progress on stderr")

	for _, key := range []string{
		config.KeyMCDir, config.KeyRCELDir, config.KeyExportFiles, config.KeyMetadataFiles,
		config.KeyEncoding, config.KeyWorkers, config.KeyFrom, config.KeyTo, config.KeyCategories,
		config.KeyCreditNotes, config.KeyOutputFormat, config.KeyOutputFile, config.KeyCSVTable,
		config.KeyIncludeRecords, config.KeyMaxProblems, config.KeyProgress,
	} {
		viper.BindPFlag(key, runCmd.Flags().Lookup(key))
	}
}

func runControl(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	return executeControl(ctx, viper.GetViper(), afero.NewOsFs(), cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// executeControl runs one control with the settings in v and writes the
// report to out, or to the configured output file.
func executeControl(ctx context.Context, v *viper.Viper, fs afero.Fs, out, errOut io.Writer) error {
	log := logger.GetGlobalLogger().WithComponent("cli")

	serviceConfig, err := config.CreateServiceConfig(v)
	if err != nil {
		return err
	}
	request, err := config.CreateRunRequest(v)
	if err != nil {
		return err
	}
	reportConfig, err := config.CreateReportConfig(v)
	if err != nil {
		return err
	}

	service, err := reconciler.NewControlService(fs, serviceConfig)
	if err != nil {
		return err
	}
	orchestrator, err := reconciler.NewOrchestrator(service)
	if err != nil {
		return err
	}
	if v.GetBool(config.KeyProgress) {
		orchestrator.AddProgressCallback(progressPrinter(errOut))
	}

	log.WithFields(logger.Fields{
		"mc_dir":   request.MCDir,
		"rcel_dir": request.RCELDir,
		"period":   request.Period.String(),
		"format":   reportConfig.Format,
	}).Debug("Starting control")

	result, err := orchestrator.Process(ctx, request)
	if v.GetBool(config.KeyProgress) {
		fmt.Fprintln(errOut)
	}
	if err != nil {
		return err
	}

	generator, err := reporter.NewSafeReportGenerator(reportConfig, fs, log)
	if err != nil {
		return err
	}

	outputFile := config.OutputFile(v, reportConfig.Format)
	if outputFile == "" {
		return generator.GenerateReportSafely(result, out)
	}

	written, err := generator.WriteReportFile(result, outputFile)
	if err != nil {
		return err
	}
	if written != outputFile {
		fmt.Fprintf(errOut, "Could not write %s; report saved as %s\n", outputFile, written)
	} else {
		fmt.Fprintf(errOut, "Report written to %s\n", written)
	}
	if result.HasErrors() {
		fmt.Fprintf(errOut, "%d problems were found; see the report for details\n", result.Summary.Errors)
	}
	return nil
}

// progressPrinter rewrites one status line per update
func progressPrinter(w io.Writer) reconciler.ProgressCallback {
	var mu sync.Mutex
	return func(p *reconciler.RunProgress) {
		mu.Lock()
		defer mu.Unlock()
		if p.TotalFiles > 0 && p.FilesLoaded < p.TotalFiles {
			fmt.Fprintf(w, "\r[%d/%d] %s: %d/%d files (%.1f%% complete)   ",
				p.CompletedSteps, p.TotalSteps, p.CurrentStep, p.FilesLoaded, p.TotalFiles, p.PercentComplete)
			return
		}
		fmt.Fprintf(w, "\r[%d/%d] %s (%.1f%% complete)                ",
			p.CompletedSteps, p.TotalSteps, p.CurrentStep, p.PercentComplete)
	}
}
