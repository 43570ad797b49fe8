package reporter

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"monotributo-control/internal/models"
	"monotributo-control/internal/reconciler"
	"monotributo-control/pkg/errors"
)

// Workbook sheet names
const (
	SheetSummary  = "Resumen"
	SheetRecords  = "Consolidado"
	SheetProblems = "Problemas"
)

var problemHeader = []string{"Severidad", "Categoría", "Código", "Mensaje", "Sugerencia", "Archivo", "Línea"}

// generateWorkbook writes the summary, the consolidated table and the
// problems as three sheets of one workbook. Amounts are written as numbers
// so the sheet can be summed; the JSON and CSV reports keep exact decimals.
func (rg *ReportGenerator) generateWorkbook(result *reconciler.RunResult, writer io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetSummary); err != nil {
		return fmt.Errorf("failed to name summary sheet: %w", err)
	}
	for _, name := range []string{SheetRecords, SheetProblems} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	if err := writeRows(f, SheetSummary, summarySheet(result)); err != nil {
		return err
	}
	if err := writeRows(f, SheetRecords, recordsSheet(result.Records)); err != nil {
		return err
	}
	if err := writeRows(f, SheetProblems, problemsSheet(result.Problems)); err != nil {
		return err
	}
	f.SetActiveSheet(0)

	if err := f.Write(writer); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func header(names []string) []interface{} {
	row := make([]interface{}, len(names))
	for i, name := range names {
		row[i] = name
	}
	return row
}

func summarySheet(result *reconciler.RunResult) [][]interface{} {
	rows := [][]interface{}{header(summaryHeader)}
	for _, agg := range result.Aggregates {
		rows = append(rows, []interface{}{
			agg.ClientCUIT,
			agg.ClientName,
			string(agg.Kind),
			agg.Apportioned.InexactFloat64(),
			agg.Records,
			agg.Unmatched,
			categoryLabel(agg),
		})
	}

	rows = append(rows,
		nil,
		[]interface{}{"Comprobantes sin metadata", result.Unmatched},
		[]interface{}{"Período de control", models.FormatDate(result.Period.Start), models.FormatDate(result.Period.End)},
		[]interface{}{"Ejecución", result.RunID},
	)
	return rows
}

func recordsSheet(records []*models.ConsolidatedRecord) [][]interface{} {
	rows := [][]interface{}{header(recordHeader)}
	for _, r := range records {
		rows = append(rows, []interface{}{
			recordKey(r),
			r.OwnerCUIT,
			r.ClientName,
			string(r.Kind),
			models.FormatDate(r.EmissionDate),
			r.DocumentType,
			r.PointOfSale,
			r.NumberFrom,
			r.NumberTo,
			r.AuthorizationCode,
			r.CounterpartyDoc,
			r.CounterpartyName,
			r.Currency,
			r.ExchangeRate.InexactFloat64(),
			r.Taxes.NetTaxed.InexactFloat64(),
			r.Taxes.NetUntaxed.InexactFloat64(),
			r.Taxes.Exempt.InexactFloat64(),
			r.Taxes.OtherTaxes.InexactFloat64(),
			r.Taxes.TotalVAT.InexactFloat64(),
			r.Total.InexactFloat64(),
			yesNo(r.Matched),
			models.FormatDate(r.BillingStart),
			models.FormatDate(r.BillingEnd),
			models.FormatDate(r.EffectiveStart),
			models.FormatDate(r.EffectiveEnd),
			r.BillingDays,
			r.EffectiveDays,
			r.Apportioned.InexactFloat64(),
			r.SourceFile,
			r.MetadataFile,
		})
	}
	return rows
}

func problemsSheet(problems []*errors.ControlError) [][]interface{} {
	rows := [][]interface{}{header(problemHeader)}
	for _, p := range problems {
		file, _ := p.Context["file"].(string)
		if file == "" {
			file, _ = p.Context["file_path"].(string)
		}
		line := ""
		if n, ok := p.Context["line"].(int); ok && n > 0 {
			line = fmt.Sprint(n)
		}
		rows = append(rows, []interface{}{
			string(p.Severity),
			string(p.Category),
			string(p.Code),
			p.Message,
			p.Suggestion,
			file,
			line,
		})
	}
	return rows
}
