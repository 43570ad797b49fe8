package parsers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"monotributo-control/internal/models"
	"monotributo-control/pkg/errors"
	"monotributo-control/pkg/logger"
)

// MetadataParser reads RCEL invoice metadata documents
type MetadataParser struct {
	fs     afero.Fs
	keys   MetadataKeys
	logger logger.Logger
}

// NewMetadataParser creates a MetadataParser reading from fs
func NewMetadataParser(fs afero.Fs, config *LoaderConfig) (*MetadataParser, error) {
	if config == nil {
		config = DefaultLoaderConfig()
	}
	if err := config.MetadataKeys.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "metadata_keys", config.MetadataKeys, err)
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}

	return &MetadataParser{
		fs:     fs,
		keys:   config.MetadataKeys,
		logger: logger.GetGlobalLogger().WithComponent("metadata_parser"),
	}, nil
}

// ParseFile reads one JSON document. Key components come from the body and
// fall back to the file name tokens; Desde and Hasta are optional but must
// parse and be ordered when present.
func (mp *MetadataParser) ParseFile(ctx context.Context, filePath string) (*models.InvoiceMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.InternalError(errors.CodeCancelled, "reading "+filePath, err)
	}

	name, err := ParseMetadataFilename(filePath)
	if err != nil {
		return nil, filenameProblem(filePath, err)
	}

	data, err := afero.ReadFile(mp.fs, filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, filePath, err)
		}
		return nil, errors.FileError(errors.CodeFileCorrupted, filePath, err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.FileError(errors.CodeFileEmpty, filePath, nil)
	}

	var doc map[string]interface{}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&doc); err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, filePath, 1, "document", "", err)
	}

	meta := &models.InvoiceMetadata{
		OwnerCUIT:  name.CUIT,
		ClientName: name.ClientName,
		SourceFile: filePath,
	}

	docType, err := mp.intField(doc, mp.keys.DocumentType, name.DocumentType)
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidData, filePath, 0, mp.keys.DocumentType[0], "", err)
	}
	meta.DocumentType = int(docType)

	pos, err := mp.intField(doc, mp.keys.PointOfSale, name.PointOfSale)
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidData, filePath, 0, mp.keys.PointOfSale[0], "", err)
	}
	meta.PointOfSale = int(pos)

	meta.InvoiceNumber, _ = lookup(doc, mp.keys.Number)
	meta.Number, err = mp.intField(doc, mp.keys.Number, name.Number)
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidData, filePath, 0, mp.keys.Number[0], meta.InvoiceNumber, err)
	}

	if raw, ok := lookup(doc, mp.keys.From); ok && raw != "" {
		meta.BillingStart, err = models.ParseDate(raw)
		if err != nil {
			return nil, errors.ParseError(errors.CodeInvalidData, filePath, 0, mp.keys.From[0], raw, err)
		}
	}
	if raw, ok := lookup(doc, mp.keys.To); ok && raw != "" {
		meta.BillingEnd, err = models.ParseDate(raw)
		if err != nil {
			return nil, errors.ParseError(errors.CodeInvalidData, filePath, 0, mp.keys.To[0], raw, err)
		}
	}

	if err := meta.Validate(); err != nil {
		return nil, errors.ParseError(errors.CodeInvalidData, filePath, 0, "Desde/Hasta",
			models.FormatDate(meta.BillingStart)+" > "+models.FormatDate(meta.BillingEnd), err)
	}

	mp.logger.WithFields(logger.Fields{
		"file":       filePath,
		"type":       meta.DocumentType,
		"pos":        meta.PointOfSale,
		"number":     meta.Number,
		"has_period": meta.HasBillingPeriod(),
	}).Debug("Metadata parsed")

	return meta, nil
}

// intField reads an integer from the first present key, falling back to
// the value taken from the file name.
func (mp *MetadataParser) intField(doc map[string]interface{}, keys []string, fallback *int64) (int64, error) {
	raw, ok := lookup(doc, keys)
	if !ok || raw == "" {
		if fallback != nil {
			return *fallback, nil
		}
		return 0, fmt.Errorf("none of the keys %v is present", keys)
	}
	return parseInvoiceNumber(raw)
}

// parseInvoiceNumber accepts "15", "15.0" and the printed "00002-00000015"
// form, where the last segment is the number.
func parseInvoiceNumber(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if i := strings.LastIndex(raw, "-"); i > 0 {
		raw = raw[i+1:]
	}
	raw = strings.TrimSuffix(raw, ".0")
	return strconv.ParseInt(raw, 10, 64)
}

// lookup returns the first key present in doc as a string. Keys match
// exactly first, then accent and case insensitively.
func lookup(doc map[string]interface{}, keys []string) (string, bool) {
	for _, key := range keys {
		if v, ok := doc[key]; ok && v != nil {
			return stringify(v), true
		}
	}
	folded := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		folded[foldHeader(k)] = v
	}
	for _, key := range keys {
		if v, ok := folded[foldHeader(key)]; ok && v != nil {
			return stringify(v), true
		}
	}
	return "", false
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
