package parsers

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"

	"monotributo-control/internal/models"
	"monotributo-control/pkg/errors"
	"monotributo-control/pkg/logger"
)

// InvoiceParser reads Mis Comprobantes export files
type InvoiceParser struct {
	*BaseParser
	columns InvoiceColumns
	unifier *SchemaUnifier
	logger  logger.Logger
}

// NewInvoiceParser creates an InvoiceParser reading from fs
func NewInvoiceParser(fs afero.Fs, config *LoaderConfig) (*InvoiceParser, error) {
	if config == nil {
		config = DefaultLoaderConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "loader", config.Encoding, err)
	}

	return &InvoiceParser{
		BaseParser: NewBaseParser(fs, config.Encoding, config.Delimiter),
		columns:    config.Columns,
		unifier:    NewSchemaUnifier(config.Columns),
		logger:     logger.GetGlobalLogger().WithComponent("invoice_parser"),
	}, nil
}

// ParseFile reads one export. A file-level failure (bad name, unreadable,
// unknown schema) returns no records and a problem; row failures drop the
// row and are listed in the stats.
func (ip *InvoiceParser) ParseFile(ctx context.Context, filePath string) ([]*models.InvoiceRecord, *ParseStats, error) {
	stats := NewParseStats(filePath)

	name, err := ParseExportFilename(filePath)
	if err != nil {
		return nil, stats, filenameProblem(filePath, err)
	}

	file, reader, err := ip.OpenFile(filePath)
	if err != nil {
		return nil, stats, err
	}
	defer file.Close()

	parseCtx := NewParseContext(ctx, filePath)
	if err := ip.ReadHeaders(reader, parseCtx, ip.columns.Required()); err != nil {
		return nil, stats, err
	}

	view, problem := ip.unifier.DetectView(parseCtx)
	if problem != nil {
		return nil, stats, problem
	}
	stats.AddProblem(ip.unifier.CheckKind(view, name.Kind, filePath))

	var records []*models.InvoiceRecord
	for {
		row, err := ip.ReadRecord(reader, parseCtx)
		if err != nil {
			if err == io.EOF {
				break
			}
			if ce, ok := errors.AsControlError(err); ok && ce.Code == errors.CodeCancelled {
				return nil, stats, ce
			}
			stats.AddProblem(errors.WrapIfNeeded(err, errors.CategoryParse, errors.CodeInvalidFormat, err.Error()))
			continue
		}
		stats.RecordsParsed++

		record, problem := ip.parseRow(row, parseCtx)
		if problem != nil {
			stats.AddProblem(problem)
			continue
		}

		record.OwnerCUIT = name.CUIT
		record.ClientName = name.ClientName
		record.Kind = name.Kind
		record.SourceFile = filePath
		ip.unifier.Apply(ip.BaseParser, view, row, parseCtx, record)

		if err := record.Validate(); err != nil {
			stats.AddProblem(errors.ParseError(errors.CodeInvalidData, filePath, parseCtx.LineNumber, "record", record.String(), err))
			continue
		}

		records = append(records, record)
		stats.RecordsValid++
	}

	stats.TotalLines = parseCtx.LineNumber
	if stats.RecordsParsed == 0 {
		stats.AddProblem(errors.FileError(errors.CodeFileEmpty, filePath, nil).WithSeverity(errors.SeverityWarning))
	}

	ip.logger.WithFields(logger.Fields{
		"file":     filePath,
		"kind":     name.Kind,
		"view":     view.String(),
		"records":  stats.RecordsValid,
		"problems": len(stats.Problems),
	}).Debug("Export parsed")

	return records, stats, nil
}

func (ip *InvoiceParser) parseRow(row []string, parseCtx *ParseContext) (*models.InvoiceRecord, *errors.ControlError) {
	record := &models.InvoiceRecord{Line: parseCtx.LineNumber}
	c := ip.columns
	field := func(column string) string {
		return ip.GetFieldValue(row, parseCtx, column)
	}
	rowProblem := func(code errors.ErrorCode, column, value string, err error) *errors.ControlError {
		return errors.ParseError(code, parseCtx.File, parseCtx.LineNumber, column, value, err)
	}

	date, err := models.ParseDate(field(c.EmissionDate))
	if err != nil {
		return nil, rowProblem(errors.CodeInvalidData, c.EmissionDate, field(c.EmissionDate), err)
	}
	record.EmissionDate = date

	docType, err := parseCode(field(c.DocumentType))
	if err != nil {
		return nil, rowProblem(errors.CodeInvalidData, c.DocumentType, field(c.DocumentType), err)
	}
	record.DocumentType = int(docType)

	pos, err := parseCode(field(c.PointOfSale))
	if err != nil {
		return nil, rowProblem(errors.CodeInvalidData, c.PointOfSale, field(c.PointOfSale), err)
	}
	record.PointOfSale = int(pos)

	record.NumberFrom, err = parseCode(field(c.NumberFrom))
	if err != nil {
		return nil, rowProblem(errors.CodeInvalidData, c.NumberFrom, field(c.NumberFrom), err)
	}
	if raw := field(c.NumberTo); raw != "" {
		record.NumberTo, err = parseCode(raw)
		if err != nil {
			return nil, rowProblem(errors.CodeInvalidData, c.NumberTo, raw, err)
		}
	} else {
		record.NumberTo = record.NumberFrom
	}

	record.Total, err = models.ParseAmount(field(c.Total))
	if err != nil {
		return nil, rowProblem(errors.CodeInvalidData, c.Total, field(c.Total), err)
	}

	optional := []struct {
		column string
		target *decimal.Decimal
	}{
		{c.ExchangeRate, &record.ExchangeRate},
		{c.NetTaxed, &record.Taxes.NetTaxed},
		{c.NetUntaxed, &record.Taxes.NetUntaxed},
		{c.Exempt, &record.Taxes.Exempt},
		{c.OtherTaxes, &record.Taxes.OtherTaxes},
		{c.TotalVAT, &record.Taxes.TotalVAT},
	}
	for _, o := range optional {
		raw := field(o.column)
		if raw == "" {
			continue
		}
		value, err := models.ParseAmount(raw)
		if err != nil {
			return nil, rowProblem(errors.CodeInvalidData, o.column, raw, err)
		}
		*o.target = value
	}

	record.AuthorizationCode = field(c.AuthorizationCode)
	record.Currency = field(c.Currency)

	return record, nil
}

// parseCode parses an integer identity field. Exports sometimes write
// "11 - Factura C" for the type, so only the leading number is read.
func parseCode(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }); i > 0 {
		s = s[:i]
	}
	return strconv.ParseInt(s, 10, 64)
}

func filenameProblem(filePath string, err error) *errors.ControlError {
	problem := errors.ParseError(errors.CodeInvalidFilename, filePath, 0, "filename", "", err)
	if fe, ok := err.(*FilenameError); ok {
		problem.WithContext("reason", string(fe.Reason))
		if fe.Token != "" {
			problem.WithContext("value", fe.Token)
		}
	}
	return problem
}
