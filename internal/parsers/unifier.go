package parsers

import (
	"monotributo-control/internal/models"
	"monotributo-control/pkg/errors"
)

// View is the column set of an export: who the counter-party is
type View int

const (
	// ViewUnknown means the header matched neither column set
	ViewUnknown View = iota
	// ViewEmitted has receptor columns: the counter-party is the buyer
	ViewEmitted
	// ViewReceived has emisor columns: the counter-party is the seller
	ViewReceived
)

// String returns the name of the view
func (v View) String() string {
	switch v {
	case ViewEmitted:
		return "emitted"
	case ViewReceived:
		return "received"
	default:
		return "unknown"
	}
}

// Kind returns the export kind the view corresponds to
func (v View) Kind() models.ExportKind {
	switch v {
	case ViewEmitted:
		return models.ExportKindEmitted
	case ViewReceived:
		return models.ExportKindReceived
	default:
		return ""
	}
}

// SchemaUnifier maps both export variants onto one counter-party schema
type SchemaUnifier struct {
	columns InvoiceColumns
}

// NewSchemaUnifier creates a unifier for the given column names
func NewSchemaUnifier(columns InvoiceColumns) *SchemaUnifier {
	return &SchemaUnifier{columns: columns}
}

// DetectView decides the view from the header. Exactly one of the receptor
// name and emisor name columns must be present.
func (u *SchemaUnifier) DetectView(parseCtx *ParseContext) (View, *errors.ControlError) {
	hasReceiver := parseCtx.HasColumn(u.columns.ReceiverName)
	hasIssuer := parseCtx.HasColumn(u.columns.IssuerName)

	switch {
	case hasReceiver && !hasIssuer:
		return ViewEmitted, nil
	case hasIssuer && !hasReceiver:
		return ViewReceived, nil
	default:
		return ViewUnknown, errors.ParseError(errors.CodeUnknownSchema, parseCtx.File, parseCtx.LineNumber, "headers", "", nil)
	}
}

// CounterpartyColumns returns the document and name columns for the view
func (u *SchemaUnifier) CounterpartyColumns(view View) (doc, name string) {
	if view == ViewReceived {
		return u.columns.IssuerDoc, u.columns.IssuerName
	}
	return u.columns.ReceiverDoc, u.columns.ReceiverName
}

// Apply fills the counter-party fields of record from a raw row
func (u *SchemaUnifier) Apply(bp *BaseParser, view View, row []string, parseCtx *ParseContext, record *models.InvoiceRecord) {
	docColumn, nameColumn := u.CounterpartyColumns(view)
	record.CounterpartyDoc = bp.GetFieldValue(row, parseCtx, docColumn)
	record.CounterpartyName = NormalizeText(bp.GetFieldValue(row, parseCtx, nameColumn))
}

// CheckKind reports a mismatch between the filename kind and the view.
// The filename kind governs; the mismatch is only a warning.
func (u *SchemaUnifier) CheckKind(view View, kind models.ExportKind, file string) *errors.ControlError {
	if view.Kind() == kind {
		return nil
	}
	return errors.ReconciliationError(errors.CodeKindMismatch,
		file+" is named "+kind.String()+" but has "+view.String()+" columns", nil).
		WithContext("file", file)
}
