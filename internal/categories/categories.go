// Package categories loads the monotributo category table.
//
// The table is a list of (upper bound, label) rows. It may be kept as a
// spreadsheet (first sheet, first two columns), a YAML document or a
// semicolon or comma separated CSV file. A header row is allowed in the
// spreadsheet and CSV forms and is skipped when its bound is not a number.
package categories

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"monotributo-control/internal/models"
	"monotributo-control/pkg/errors"
	"monotributo-control/pkg/logger"
)

// Format names a table file format
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
)

// DetectFormat picks the format from the file extension
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported category table extension %q: use .xlsx, .yaml or .csv", filepath.Ext(path))
	}
}

// Loader reads category tables from a filesystem
type Loader struct {
	fs     afero.Fs
	logger logger.Logger
}

// NewLoader creates a Loader reading from fs
func NewLoader(fs afero.Fs) *Loader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Loader{
		fs:     fs,
		logger: logger.GetGlobalLogger().WithComponent("categories"),
	}
}

// Load reads and validates a category table. Every failure is a
// configuration error: a run cannot classify without the table.
func (l *Loader) Load(path string) (*models.CategoryTable, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "categories", "", nil)
	}

	format, err := DetectFormat(path)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "categories", path, err)
	}

	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigurationError(errors.CodeMissingConfig, "categories", path, err).
				WithSuggestion("point --categories at an existing table file")
		}
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "categories", path, err)
	}

	var brackets []models.CategoryBracket
	switch format {
	case FormatXLSX:
		brackets, err = ParseXLSX(bytes.NewReader(data))
	case FormatYAML:
		brackets, err = ParseYAML(data)
	case FormatCSV:
		brackets, err = ParseCSV(bytes.NewReader(data))
	}
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "categories", path, err)
	}

	table, err := models.NewCategoryTable(brackets)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "categories", path, err)
	}

	l.logger.WithFields(logger.Fields{
		"file":     path,
		"format":   format,
		"brackets": table.Len(),
		"max":      table.Max().StringFixed(2),
	}).Debug("Category table loaded")

	return table, nil
}

// ParseXLSX reads brackets from the first sheet of a workbook
func ParseXLSX(r io.Reader) ([]models.CategoryBracket, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	return bracketsFromRows(rows)
}

// ParseCSV reads brackets from CSV rows of bound and label. The separator
// is ';' when the first line contains one, ',' otherwise.
func ParseCSV(r io.Reader) ([]models.CategoryBracket, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	firstLine, _, _ := bytes.Cut(data, []byte("\n"))
	if bytes.ContainsRune(firstLine, ';') {
		reader.Comma = ';'
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	return bracketsFromRows(rows)
}

type yamlTable struct {
	Categories []yamlBracket `yaml:"categories"`
}

type yamlBracket struct {
	UpperBound string `yaml:"upper_bound"`
	Label      string `yaml:"label"`
}

// ParseYAML reads brackets from a document with a top-level "categories"
// list of {upper_bound, label} entries.
func ParseYAML(data []byte) ([]models.CategoryBracket, error) {
	var doc yamlTable
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	brackets := make([]models.CategoryBracket, 0, len(doc.Categories))
	for i, entry := range doc.Categories {
		bound, err := models.ParseAmount(entry.UpperBound)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i+1, err)
		}
		brackets = append(brackets, models.CategoryBracket{UpperBound: bound, Label: entry.Label})
	}
	return brackets, nil
}

// EncodeYAML writes brackets in the layout ParseYAML reads
func EncodeYAML(brackets []models.CategoryBracket) ([]byte, error) {
	doc := yamlTable{Categories: make([]yamlBracket, 0, len(brackets))}
	for _, b := range brackets {
		doc.Categories = append(doc.Categories, yamlBracket{UpperBound: b.UpperBound.StringFixed(2), Label: b.Label})
	}
	return yaml.Marshal(&doc)
}

func bracketsFromRows(rows [][]string) ([]models.CategoryBracket, error) {
	var brackets []models.CategoryBracket
	for i, row := range rows {
		if len(row) < 2 || (strings.TrimSpace(row[0]) == "" && strings.TrimSpace(row[1]) == "") {
			continue
		}
		bound, err := models.ParseAmount(row[0])
		if err != nil {
			if i == 0 {
				continue
			}
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		brackets = append(brackets, models.CategoryBracket{UpperBound: bound, Label: strings.TrimSpace(row[1])})
	}
	return brackets, nil
}
