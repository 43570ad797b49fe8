package parsers

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"monotributo-control/internal/models"
)

// FilenameReason names why a filename did not follow its grammar
type FilenameReason string

const (
	ReasonTooFewTokens FilenameReason = "too_few_tokens"
	ReasonInvalidCUIT  FilenameReason = "invalid_cuit"
	ReasonUnknownKind  FilenameReason = "unknown_kind"
	ReasonInvalidDate  FilenameReason = "invalid_date"
	ReasonBadExtension FilenameReason = "bad_extension"
)

// FilenameError is the failure side of the filename grammar
type FilenameError struct {
	Name   string
	Reason FilenameReason
	Token  string
	Err    error
}

func (e *FilenameError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("%s: %s (token %q)", e.Name, e.Reason, e.Token)
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Reason)
}

func (e *FilenameError) Unwrap() error {
	return e.Err
}

const exportDateLayout = "02012006"

// ExportFilename holds the identity fields encoded in a Mis Comprobantes
// export name: <seq> - <KIND> - <fromDDMMYYYY> - <toDDMMYYYY> - <CUIT> - <Client>.csv
type ExportFilename struct {
	Sequence   string
	Kind       models.ExportKind
	From       time.Time
	To         time.Time
	CUIT       int64
	ClientName string
}

// ParseExportFilename parses the base name of an export file. Client names
// containing hyphens are rejoined from the sixth token onward.
func ParseExportFilename(path string) (ExportFilename, error) {
	name := filepath.Base(path)
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		return ExportFilename{}, &FilenameError{Name: name, Reason: ReasonBadExtension}
	}
	stem := strings.TrimSuffix(name, filepath.Ext(name))

	tokens := strings.Split(stem, "-")
	for i := range tokens {
		tokens[i] = strings.TrimSpace(tokens[i])
	}
	if len(tokens) < 6 {
		return ExportFilename{}, &FilenameError{Name: name, Reason: ReasonTooFewTokens}
	}

	cuit, err := parseCUIT(tokens[4])
	if err != nil {
		return ExportFilename{}, &FilenameError{Name: name, Reason: ReasonInvalidCUIT, Token: tokens[4], Err: err}
	}

	kind, err := models.ParseExportKind(tokens[1])
	if err != nil {
		return ExportFilename{}, &FilenameError{Name: name, Reason: ReasonUnknownKind, Token: tokens[1], Err: err}
	}

	from, err := time.Parse(exportDateLayout, tokens[2])
	if err != nil {
		return ExportFilename{}, &FilenameError{Name: name, Reason: ReasonInvalidDate, Token: tokens[2], Err: err}
	}
	to, err := time.Parse(exportDateLayout, tokens[3])
	if err != nil {
		return ExportFilename{}, &FilenameError{Name: name, Reason: ReasonInvalidDate, Token: tokens[3], Err: err}
	}

	return ExportFilename{
		Sequence:   tokens[0],
		Kind:       kind,
		From:       from,
		To:         to,
		CUIT:       cuit,
		ClientName: NormalizeText(strings.Join(tokens[5:], "-")),
	}, nil
}

// MetadataFilename holds the identity fields of an RCEL JSON path:
// <dir>/<CUIT>_<Client>/<CUIT>-<type>-<pos>-<number>.json. Type, point of
// sale and number are nil when the name does not carry them.
type MetadataFilename struct {
	CUIT         int64
	ClientName   string
	DocumentType *int64
	PointOfSale  *int64
	Number       *int64
}

// ParseMetadataFilename parses the CUIT from the file name and the client
// name from the parent directory, split on its first underscore.
func ParseMetadataFilename(path string) (MetadataFilename, error) {
	name := filepath.Base(path)
	if !strings.EqualFold(filepath.Ext(name), ".json") {
		return MetadataFilename{}, &FilenameError{Name: name, Reason: ReasonBadExtension}
	}
	stem := strings.TrimSuffix(name, filepath.Ext(name))

	tokens := strings.Split(stem, "-")
	for i := range tokens {
		tokens[i] = strings.TrimSpace(tokens[i])
	}

	cuit, err := parseCUIT(tokens[0])
	if err != nil {
		return MetadataFilename{}, &FilenameError{Name: name, Reason: ReasonInvalidCUIT, Token: tokens[0], Err: err}
	}

	result := MetadataFilename{
		CUIT:       cuit,
		ClientName: clientFromDir(filepath.Base(filepath.Dir(path))),
	}

	optional := []**int64{&result.DocumentType, &result.PointOfSale, &result.Number}
	for i, target := range optional {
		if i+1 >= len(tokens) {
			break
		}
		if v, err := strconv.ParseInt(tokens[i+1], 10, 64); err == nil {
			*target = &v
		}
	}

	return result, nil
}

func clientFromDir(dir string) string {
	if dir == "." || dir == string(filepath.Separator) {
		return ""
	}
	if _, client, found := strings.Cut(dir, "_"); found {
		return NormalizeText(client)
	}
	return NormalizeText(dir)
}

func parseCUIT(token string) (int64, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, fmt.Errorf("empty CUIT")
	}
	cuit, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return 0, err
	}
	if cuit <= 0 {
		return 0, fmt.Errorf("CUIT must be positive")
	}
	return cuit, nil
}
