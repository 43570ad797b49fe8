package matcher

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"monotributo-control/internal/models"
)

// Field widths of a composite key
const (
	TypeWidth   = 3
	POSWidth    = 5
	NumberWidth = 8
)

var (
	// ErrKeyOverflow means a component does not fit its zero-padded width
	ErrKeyOverflow = errors.New("key component exceeds its field width")
	// ErrKeyFormat means a string is not a composite key
	ErrKeyFormat = errors.New("malformed composite key")
)

var limits = [...]int64{999, 99999, 99999999}

// KeyParts are the four components of a composite key
type KeyParts struct {
	CUIT         int64 `json:"cuit"`
	DocumentType int   `json:"document_type"`
	PointOfSale  int   `json:"point_of_sale"`
	Number       int64 `json:"number"`
}

// BuildKey formats CUIT-TTT-PPPPP-NNNNNNNN. Components are never
// truncated: a negative value or one wider than its field is ErrKeyOverflow.
func BuildKey(cuit int64, documentType, pointOfSale int, number int64) (models.CompositeKey, error) {
	if cuit <= 0 {
		return "", fmt.Errorf("%w: CUIT %d", ErrKeyOverflow, cuit)
	}
	values := [...]int64{int64(documentType), int64(pointOfSale), number}
	names := [...]string{"document type", "point of sale", "number"}
	for i, v := range values {
		if v < 0 || v > limits[i] {
			return "", fmt.Errorf("%w: %s %d", ErrKeyOverflow, names[i], v)
		}
	}

	return models.CompositeKey(fmt.Sprintf("%d-%0*d-%0*d-%0*d",
		cuit, TypeWidth, documentType, POSWidth, pointOfSale, NumberWidth, number)), nil
}

// Build formats the key of the parts
func (p KeyParts) Build() (models.CompositeKey, error) {
	return BuildKey(p.CUIT, p.DocumentType, p.PointOfSale, p.Number)
}

// ParseKey splits a composite key back into its components. The padded
// fields must have exactly their width.
func ParseKey(s string) (KeyParts, error) {
	tokens := strings.Split(strings.TrimSpace(s), "-")
	if len(tokens) != 4 {
		return KeyParts{}, fmt.Errorf("%w: %q has %d parts", ErrKeyFormat, s, len(tokens))
	}

	widths := [...]int{TypeWidth, POSWidth, NumberWidth}
	for i, w := range widths {
		if len(tokens[i+1]) != w {
			return KeyParts{}, fmt.Errorf("%w: %q is not %d digits", ErrKeyFormat, tokens[i+1], w)
		}
	}

	var parts KeyParts
	var err error
	if parts.CUIT, err = parseDigits(tokens[0]); err != nil || parts.CUIT == 0 {
		return KeyParts{}, fmt.Errorf("%w: CUIT %q", ErrKeyFormat, tokens[0])
	}
	docType, err := parseDigits(tokens[1])
	if err != nil {
		return KeyParts{}, fmt.Errorf("%w: document type %q", ErrKeyFormat, tokens[1])
	}
	pos, err := parseDigits(tokens[2])
	if err != nil {
		return KeyParts{}, fmt.Errorf("%w: point of sale %q", ErrKeyFormat, tokens[2])
	}
	if parts.Number, err = parseDigits(tokens[3]); err != nil {
		return KeyParts{}, fmt.Errorf("%w: number %q", ErrKeyFormat, tokens[3])
	}
	parts.DocumentType = int(docType)
	parts.PointOfSale = int(pos)

	return parts, nil
}

func parseDigits(s string) (int64, error) {
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("non-digit %q", r)
		}
	}
	return strconv.ParseInt(s, 10, 64)
}

// RecordKey builds the key of an export row from its owner and identity
func RecordKey(r *models.InvoiceRecord) (models.CompositeKey, error) {
	return BuildKey(r.OwnerCUIT, r.DocumentType, r.PointOfSale, r.NumberFrom)
}

// MetadataKey builds the key of a metadata document
func MetadataKey(m *models.InvoiceMetadata) (models.CompositeKey, error) {
	return BuildKey(m.OwnerCUIT, m.DocumentType, m.PointOfSale, m.Number)
}
