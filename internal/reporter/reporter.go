// Package reporter renders the results of a control run.
//
// Supported output formats:
//   - Console: human-readable summary for terminal display
//   - JSON: structured data for programmatic consumption
//   - CSV: the consolidated invoice table or the per-client summary
//   - XLSX: a workbook with the consolidated table, the summary and the problems
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatXLSX})
//	err = generator.GenerateReport(result, file)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"monotributo-control/internal/models"
	"monotributo-control/internal/reconciler"
	"monotributo-control/pkg/errors"
)

// DefaultReportFile is the workbook name the control has always produced
const DefaultReportFile = "Reporte Recategorizaciones de Monotributistas.xlsx"

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
	FormatXLSX    OutputFormat = "xlsx"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV, FormatXLSX:
		return true
	default:
		return false
	}
}

// IsBinary reports whether the format must be written to a file
func (f OutputFormat) IsBinary() bool {
	return f == FormatXLSX
}

// CSVTable selects which table a CSV report holds
type CSVTable string

const (
	TableRecords CSVTable = "records"
	TableSummary CSVTable = "summary"
)

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Detail level options
	IncludeRecords         bool `json:"include_records"`
	IncludeProblems        bool `json:"include_problems"`
	IncludeProcessingStats bool `json:"include_processing_stats"`
	MaxProblems            int  `json:"max_problems"`

	// Console formatting options
	TableMaxWidth int `json:"table_max_width"`

	// CSV options
	CSVDelimiter rune     `json:"csv_delimiter"`
	CSVHeaders   bool     `json:"csv_headers"`
	CSVTable     CSVTable `json:"csv_table"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:                 FormatConsole,
		IncludeRecords:         false,
		IncludeProblems:        true,
		IncludeProcessingStats: true,
		MaxProblems:            20,
		TableMaxWidth:          120,
		CSVDelimiter:           ';',
		CSVHeaders:             true,
		CSVTable:               TableRecords,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.TableMaxWidth < 50 {
		return fmt.Errorf("table max width must be at least 50 characters, got %d", c.TableMaxWidth)
	}
	if c.MaxProblems < 0 {
		return fmt.Errorf("max problems cannot be negative, got %d", c.MaxProblems)
	}
	if c.Format == FormatCSV {
		if c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n' {
			return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
		}
		if c.CSVTable != TableRecords && c.CSVTable != TableSummary {
			return fmt.Errorf("invalid CSV table '%s': use records or summary", c.CSVTable)
		}
	}
	return nil
}

// ReportGenerator generates control reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &ReportGenerator{config: config}, nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

// GenerateReport writes a report of result to writer
func (rg *ReportGenerator) GenerateReport(result *reconciler.RunResult, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("run result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	case FormatXLSX:
		return rg.generateWorkbook(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// generateConsoleReport generates a human-readable console report
func (rg *ReportGenerator) generateConsoleReport(result *reconciler.RunResult, writer io.Writer) error {
	summary := result.Summary
	if summary == nil {
		summary = &reconciler.RunSummary{}
	}

	fmt.Fprintf(writer, "MONOTRIBUTO CONTROL REPORT\n")
	fmt.Fprintf(writer, "Run:            %s\n", result.RunID)
	fmt.Fprintf(writer, "Control period: %s (%d days)\n", result.Period.String(), result.Period.Days())
	fmt.Fprintf(writer, "Generated:      %s\n\n", result.StartedAt.Format(time.RFC3339))

	fmt.Fprintf(writer, "=== INPUTS ===\n")
	fmt.Fprintf(writer, "Export files:   %d (%d failed)\n", summary.ExportFiles, summary.ExportFilesFailed)
	fmt.Fprintf(writer, "Metadata files: %d (%d failed)\n\n", summary.MetadataFiles, summary.MetadataFilesFailed)

	fmt.Fprintf(writer, "=== JOIN ===\n")
	fmt.Fprintf(writer, "Invoices:  %d\n", summary.Records)
	fmt.Fprintf(writer, "Matched:   %d (%.1f%%)\n", summary.Matched, percentage(summary.Matched, summary.Records))
	fmt.Fprintf(writer, "Unmatched: %d (%.1f%%)\n", summary.Unmatched, percentage(summary.Unmatched, summary.Records))
	if summary.MatchedWithoutPeriod > 0 {
		fmt.Fprintf(writer, "Matched without Desde/Hasta: %d\n", summary.MatchedWithoutPeriod)
	}
	if summary.Unmatchable > 0 {
		fmt.Fprintf(writer, "Malformed keys: %d\n", summary.Unmatchable)
	}
	if summary.DuplicateKeys > 0 {
		fmt.Fprintf(writer, "Duplicate metadata keys: %d\n", summary.DuplicateKeys)
	}
	fmt.Fprintf(writer, "Unused metadata documents: %d\n\n", summary.UnusedMetadata)

	fmt.Fprintf(writer, "=== PRORATION ===\n")
	fmt.Fprintf(writer, "Total billed:      %s\n", summary.TotalBilled.StringFixed(2))
	fmt.Fprintf(writer, "Total apportioned: %s\n", summary.TotalApportioned.StringFixed(2))
	fmt.Fprintf(writer, "Partially in period: %d, outside period: %d\n", summary.PartialPeriod, summary.OutsidePeriod)
	if summary.CreditNotes > 0 {
		fmt.Fprintf(writer, "Credit notes: %d (policy %s)\n", summary.CreditNotes, summary.CreditPolicy)
	}
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== CATEGORIES ===\n")
	if err := rg.printAggregates(result.Aggregates, writer); err != nil {
		return err
	}
	fmt.Fprintf(writer, "Unmatched invoices: %d\n\n", result.Unmatched)

	if rg.config.IncludeRecords && len(result.Records) > 0 {
		fmt.Fprintf(writer, "=== INVOICES ===\n")
		if err := rg.printRecords(result.Records, writer); err != nil {
			return err
		}
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeProblems && len(result.Problems) > 0 {
		fmt.Fprintf(writer, "=== PROBLEMS (%d errors, %d warnings) ===\n", summary.Errors, summary.Warnings)
		fmt.Fprintf(writer, "%s\n\n", errors.FormatProblemsForUser(result.Problems, rg.config.MaxProblems))
	}

	if rg.config.IncludeProcessingStats && result.Stats != nil {
		fmt.Fprintf(writer, "=== PROCESSING STATS ===\n")
		fmt.Fprintf(writer, "Discovery:   %v\n", result.Stats.DiscoveryTime)
		fmt.Fprintf(writer, "Loading:     %v\n", result.Stats.LoadingTime)
		fmt.Fprintf(writer, "Join:        %v\n", result.Stats.JoinTime)
		fmt.Fprintf(writer, "Proration:   %v\n", result.Stats.ProrationTime)
		fmt.Fprintf(writer, "Aggregation: %v\n", result.Stats.AggregationTime)
		fmt.Fprintf(writer, "Total:       %v\n", result.Stats.TotalTime)
	}

	return nil
}

func (rg *ReportGenerator) printAggregates(aggregates []*models.ClientAggregate, writer io.Writer) error {
	if len(aggregates) == 0 {
		fmt.Fprintf(writer, "No invoices in the control period\n")
		return nil
	}

	nameWidth := rg.config.TableMaxWidth - 70
	tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CUIT\tClient\tKind\tApportioned\tInvoices\tUnmatched\tCategory\t")
	for _, agg := range aggregates {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%s\t\n",
			agg.ClientCUIT,
			truncate(agg.ClientName, nameWidth),
			agg.Kind,
			agg.Apportioned.StringFixed(2),
			agg.Records,
			agg.Unmatched,
			categoryLabel(agg))
	}
	return tw.Flush()
}

func (rg *ReportGenerator) printRecords(records []*models.ConsolidatedRecord, writer io.Writer) error {
	tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Key\tEmitted\tBilling\tEffective\tDays\tTotal\tApportioned\tMatched")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s..%s\t%s..%s\t%d/%d\t%s\t%s\t%s\n",
			recordKey(r),
			models.FormatDate(r.EmissionDate),
			models.FormatDate(r.BillingStart), models.FormatDate(r.BillingEnd),
			models.FormatDate(r.EffectiveStart), models.FormatDate(r.EffectiveEnd),
			r.EffectiveDays, r.BillingDays,
			r.Total.StringFixed(2),
			r.Apportioned.StringFixed(2),
			yesNo(r.Matched))
	}
	return tw.Flush()
}

// generateJSONReport generates a structured JSON report
func (rg *ReportGenerator) generateJSONReport(result *reconciler.RunResult, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rg.filterResultForOutput(result))
}

// filterResultForOutput keeps the sections the configuration asks for
func (rg *ReportGenerator) filterResultForOutput(result *reconciler.RunResult) map[string]interface{} {
	out := map[string]interface{}{
		"run_id":     result.RunID,
		"started_at": result.StartedAt.Format(time.RFC3339),
		"period": map[string]interface{}{
			"from": models.FormatDate(result.Period.Start),
			"to":   models.FormatDate(result.Period.End),
			"days": result.Period.Days(),
		},
		"summary":    result.Summary,
		"aggregates": nonNilAggregates(result.Aggregates),
		"unmatched":  result.Unmatched,
	}
	if rg.config.IncludeRecords {
		records := result.Records
		if records == nil {
			records = []*models.ConsolidatedRecord{}
		}
		out["records"] = records
	}
	if rg.config.IncludeProblems {
		out["problems"] = errors.NewErrorSummary(result.Problems)
	}
	if rg.config.IncludeProcessingStats && result.Stats != nil {
		out["processing_stats"] = result.Stats
	}
	return out
}

// generateCSVReport writes one table as CSV
func (rg *ReportGenerator) generateCSVReport(result *reconciler.RunResult, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	var header []string
	var rows [][]string
	switch rg.config.CSVTable {
	case TableSummary:
		header = summaryHeader
		for _, agg := range result.Aggregates {
			rows = append(rows, summaryRow(agg))
		}
	default:
		header = recordHeader
		for _, r := range result.Records {
			rows = append(rows, recordRow(r))
		}
	}

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(header); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}
	for _, row := range rows {
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

var recordHeader = []string{
	"Clave", "CUIT", "Cliente", "Tipo Export", "Fecha de Emisión", "Tipo de Comprobante", "Punto de Venta",
	"Número Desde", "Número Hasta", "Cód. Autorización", "Nro. Doc. Contraparte", "Denominación Contraparte",
	"Moneda", "Tipo Cambio", "Imp. Neto Gravado Total", "Imp. Neto No Gravado", "Imp. Op. Exentas",
	"Otros Tributos", "Total IVA", "Imp. Total", "Con Metadata", "Desde", "Hasta", "Desde Efectivo",
	"Hasta Efectivo", "Días Facturados", "Días Efectivos", "Monto Prorrateado", "Archivo", "Archivo Metadata",
}

func recordRow(r *models.ConsolidatedRecord) []string {
	return []string{
		recordKey(r),
		strconv.FormatInt(r.OwnerCUIT, 10),
		r.ClientName,
		string(r.Kind),
		models.FormatDate(r.EmissionDate),
		strconv.Itoa(r.DocumentType),
		strconv.Itoa(r.PointOfSale),
		strconv.FormatInt(r.NumberFrom, 10),
		strconv.FormatInt(r.NumberTo, 10),
		r.AuthorizationCode,
		r.CounterpartyDoc,
		r.CounterpartyName,
		r.Currency,
		r.ExchangeRate.String(),
		r.Taxes.NetTaxed.StringFixed(2),
		r.Taxes.NetUntaxed.StringFixed(2),
		r.Taxes.Exempt.StringFixed(2),
		r.Taxes.OtherTaxes.StringFixed(2),
		r.Taxes.TotalVAT.StringFixed(2),
		r.Total.StringFixed(2),
		yesNo(r.Matched),
		models.FormatDate(r.BillingStart),
		models.FormatDate(r.BillingEnd),
		models.FormatDate(r.EffectiveStart),
		models.FormatDate(r.EffectiveEnd),
		strconv.Itoa(r.BillingDays),
		strconv.Itoa(r.EffectiveDays),
		r.Apportioned.StringFixed(2),
		r.SourceFile,
		r.MetadataFile,
	}
}

var summaryHeader = []string{
	"CUIT", "Cliente", "Tipo Export", "Monto Prorrateado", "Comprobantes", "Sin Metadata", "Categoría",
}

func summaryRow(agg *models.ClientAggregate) []string {
	return []string{
		strconv.FormatInt(agg.ClientCUIT, 10),
		agg.ClientName,
		string(agg.Kind),
		agg.Apportioned.StringFixed(2),
		strconv.Itoa(agg.Records),
		strconv.Itoa(agg.Unmatched),
		categoryLabel(agg),
	}
}

func recordKey(r *models.ConsolidatedRecord) string {
	if !r.KeyValid {
		return "(invalid)"
	}
	return r.Key.String()
}

func categoryLabel(agg *models.ClientAggregate) string {
	if !agg.Classified {
		return "EXCEDE"
	}
	return agg.Category
}

func nonNilAggregates(aggregates []*models.ClientAggregate) []*models.ClientAggregate {
	if aggregates == nil {
		return []*models.ClientAggregate{}
	}
	return aggregates
}

func yesNo(b bool) string {
	if b {
		return "SI"
	}
	return "NO"
}

func truncate(s string, width int) string {
	if width <= 3 {
		width = 3
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-3]) + "..."
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// ParseOutputFormat parses a format name from configuration
func ParseOutputFormat(s string) (OutputFormat, error) {
	f := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return FormatConsole, nil
	}
	if !f.IsValid() {
		return "", fmt.Errorf("invalid output format '%s': use console, json, csv or xlsx", s)
	}
	return f, nil
}
