// Package parsers loads the two input sources of a control run.
//
// Mis Comprobantes exports are semicolon separated CSV files whose owner and
// client are encoded in the file name. RCEL metadata documents are one JSON
// object per invoice whose owner comes from the file name and client from
// the parent directory.
//
// Parser Types:
//   - InvoiceParser: one export CSV into unified InvoiceRecords
//   - MetadataParser: one RCEL JSON into an InvoiceMetadata
//   - Loader: many files of either kind on a bounded worker pool
//
// Every problem found while reading is returned as a *errors.ControlError;
// a bad row or a bad file never stops the rest of the run.
package parsers

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/afero"

	"monotributo-control/pkg/errors"
	"monotributo-control/pkg/logger"
)

// BaseParser provides the CSV plumbing shared by export parsers
type BaseParser struct {
	fs        afero.Fs
	encoding  Encoding
	delimiter rune
	logger    logger.Logger
}

// NewBaseParser creates a BaseParser reading from fs
func NewBaseParser(fs afero.Fs, encoding Encoding, delimiter rune) *BaseParser {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if delimiter == 0 {
		delimiter = ';'
	}
	return &BaseParser{
		fs:        fs,
		encoding:  encoding,
		delimiter: delimiter,
		logger:    logger.GetGlobalLogger().WithComponent("base_parser"),
	}
}

// ParseContext holds state while reading one file
type ParseContext struct {
	File       string
	LineNumber int
	Headers    []string
	headerMap  map[string]int
	ctx        context.Context
}

// NewParseContext creates a new parsing context for file
func NewParseContext(ctx context.Context, file string) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{
		File:      file,
		headerMap: make(map[string]int),
		ctx:       ctx,
	}
}

// IsCancelled checks if the parsing context has been cancelled
func (pc *ParseContext) IsCancelled() bool {
	return pc.ctx.Err() != nil
}

// GetColumnIndex returns the index of a column by name, or -1 if not found.
// Names are compared with accents, case and punctuation removed.
func (pc *ParseContext) GetColumnIndex(name string) int {
	if index, exists := pc.headerMap[foldHeader(name)]; exists {
		return index
	}
	return -1
}

// HasColumn reports whether the header contains the column
func (pc *ParseContext) HasColumn(name string) bool {
	return pc.GetColumnIndex(name) != -1
}

// OpenFile opens a CSV file through the configured decoder
func (bp *BaseParser) OpenFile(filePath string) (io.Closer, *csv.Reader, error) {
	file, err := bp.fs.Open(filePath)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return nil, nil, errors.FileError(errors.CodeFileNotFound, filePath, err)
		case os.IsPermission(err):
			return nil, nil, errors.FileError(errors.CodeFilePermission, filePath, err)
		default:
			return nil, nil, errors.FileError(errors.CodeFileCorrupted, filePath, err)
		}
	}

	reader := csv.NewReader(NewDecodingReader(file, bp.encoding))
	reader.Comma = bp.delimiter
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	return file, reader, nil
}

// ReadHeaders reads the header row and checks the required columns
func (bp *BaseParser) ReadHeaders(reader *csv.Reader, parseCtx *ParseContext, required []string) error {
	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return errors.FileError(errors.CodeFileEmpty, parseCtx.File, nil)
		}
		return errors.ParseError(errors.CodeInvalidFormat, parseCtx.File, 1, "headers", "", err)
	}

	parseCtx.LineNumber++
	parseCtx.Headers = make([]string, len(headers))
	for i, header := range headers {
		parseCtx.Headers[i] = strings.TrimSpace(header)
		key := foldHeader(header)
		if _, seen := parseCtx.headerMap[key]; !seen {
			parseCtx.headerMap[key] = i
		}
	}

	var missing []string
	for _, name := range required {
		if !parseCtx.HasColumn(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		bp.logger.WithFields(logger.Fields{
			"file":    parseCtx.File,
			"missing": missing,
		}).Debug("Required columns are missing")
		return errors.ParseError(errors.CodeMissingColumn, parseCtx.File, parseCtx.LineNumber,
			strings.Join(missing, ", "), "", nil)
	}

	return nil
}

// ReadRecord reads the next non-empty record. It returns io.EOF at the end.
func (bp *BaseParser) ReadRecord(reader *csv.Reader, parseCtx *ParseContext) ([]string, error) {
	for {
		if parseCtx.IsCancelled() {
			return nil, errors.InternalError(errors.CodeCancelled, "reading "+parseCtx.File, parseCtx.ctx.Err())
		}

		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				return nil, err
			}
			parseCtx.LineNumber++
			return nil, errors.ParseError(errors.CodeInvalidFormat, parseCtx.File, parseCtx.LineNumber, "record", "", err)
		}
		parseCtx.LineNumber++

		if isEmptyRecord(record) {
			continue
		}
		return record, nil
	}
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// GetFieldValue returns a trimmed field by column name. Missing columns and
// short rows yield an empty string.
func (bp *BaseParser) GetFieldValue(record []string, parseCtx *ParseContext, column string) string {
	index := parseCtx.GetColumnIndex(column)
	if index == -1 || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

// ParseStats holds statistics about reading one file
type ParseStats struct {
	File          string
	TotalLines    int
	RecordsParsed int
	RecordsValid  int
	Problems      []*errors.ControlError
}

// NewParseStats creates a new ParseStats instance
func NewParseStats(file string) *ParseStats {
	return &ParseStats{File: file}
}

// AddProblem records a row-level problem
func (ps *ParseStats) AddProblem(err *errors.ControlError) {
	if err != nil {
		ps.Problems = append(ps.Problems, err)
	}
}

// HasProblems returns true if there were any row-level problems
func (ps *ParseStats) HasProblems() bool {
	return len(ps.Problems) > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records (%d valid), %d problems",
		ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, len(ps.Problems))
}
