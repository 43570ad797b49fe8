package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ExportKind identifies which "Mis Comprobantes" export a CSV came from
type ExportKind string

const (
	// ExportKindEmitted is the emitted-invoices export (MCE)
	ExportKindEmitted ExportKind = "MCE"
	// ExportKindReceived is the received-invoices export (MCR)
	ExportKindReceived ExportKind = "MCR"
)

// String returns the string representation of ExportKind
func (k ExportKind) String() string {
	return string(k)
}

// IsValid checks if the export kind is known
func (k ExportKind) IsValid() bool {
	return k == ExportKindEmitted || k == ExportKindReceived
}

// Label returns the human name of the export kind
func (k ExportKind) Label() string {
	switch k {
	case ExportKindEmitted:
		return "emitted"
	case ExportKindReceived:
		return "received"
	default:
		return "unknown"
	}
}

// Order gives emitted exports precedence over received ones when sorting
func (k ExportKind) Order() int {
	switch k {
	case ExportKindEmitted:
		return 0
	case ExportKindReceived:
		return 1
	default:
		return 2
	}
}

// ParseExportKind parses the kind token of an export filename
func ParseExportKind(s string) (ExportKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MCE", "EMITTED", "EMITIDOS":
		return ExportKindEmitted, nil
	case "MCR", "RECEIVED", "RECIBIDOS":
		return ExportKindReceived, nil
	default:
		return "", fmt.Errorf("invalid export kind '%s': must be MCE or MCR", s)
	}
}

// TaxBreakdown holds the amount columns of an export row that are carried
// to the report but do not take part in the computation.
type TaxBreakdown struct {
	NetTaxed   decimal.Decimal `json:"net_taxed"`
	NetUntaxed decimal.Decimal `json:"net_untaxed"`
	Exempt     decimal.Decimal `json:"exempt"`
	OtherTaxes decimal.Decimal `json:"other_taxes"`
	TotalVAT   decimal.Decimal `json:"total_vat"`
}

// InvoiceRecord is one row of a "Mis Comprobantes" export after schema
// unification. Owner and client come from the filename, not the content.
type InvoiceRecord struct {
	EmissionDate      time.Time       `json:"emission_date"`
	DocumentType      int             `json:"document_type"`
	PointOfSale       int             `json:"point_of_sale"`
	NumberFrom        int64           `json:"number_from"`
	NumberTo          int64           `json:"number_to"`
	AuthorizationCode string          `json:"authorization_code"`
	ExchangeRate      decimal.Decimal `json:"exchange_rate"`
	Currency          string          `json:"currency"`
	Taxes             TaxBreakdown    `json:"taxes"`
	Total             decimal.Decimal `json:"total"`
	CounterpartyDoc   string          `json:"counterparty_doc"`
	CounterpartyName  string          `json:"counterparty_name"`
	OwnerCUIT         int64           `json:"owner_cuit"`
	ClientName        string          `json:"client_name"`
	Kind              ExportKind      `json:"kind"`
	SourceFile        string          `json:"source_file"`
	Line              int             `json:"line"`
}

// Validate performs basic validation on the InvoiceRecord
func (r *InvoiceRecord) Validate() error {
	if r.EmissionDate.IsZero() {
		return fmt.Errorf("emission date cannot be zero")
	}
	if r.OwnerCUIT <= 0 {
		return fmt.Errorf("owner CUIT must be positive")
	}
	if !r.Kind.IsValid() {
		return fmt.Errorf("invalid export kind: %s", r.Kind)
	}
	if r.NumberTo != 0 && r.NumberTo < r.NumberFrom {
		return fmt.Errorf("number to %d is lower than number from %d", r.NumberTo, r.NumberFrom)
	}
	return nil
}

// String returns a string representation of the InvoiceRecord
func (r *InvoiceRecord) String() string {
	return fmt.Sprintf("Invoice{CUIT: %d, Type: %d, POS: %d, Number: %d, Date: %s, Total: %s}",
		r.OwnerCUIT, r.DocumentType, r.PointOfSale, r.NumberFrom, FormatDate(r.EmissionDate), r.Total.String())
}

// InvoiceMetadata is one RCEL JSON document describing a single invoice.
// BillingStart and BillingEnd are zero when the document omits them.
type InvoiceMetadata struct {
	OwnerCUIT     int64     `json:"owner_cuit"`
	DocumentType  int       `json:"document_type"`
	PointOfSale   int       `json:"point_of_sale"`
	Number        int64     `json:"number"`
	InvoiceNumber string    `json:"invoice_number,omitempty"`
	BillingStart  time.Time `json:"billing_start"`
	BillingEnd    time.Time `json:"billing_end"`
	ClientName    string    `json:"client_name"`
	SourceFile    string    `json:"source_file"`
}

// HasBillingPeriod reports whether both Desde and Hasta were present
func (m *InvoiceMetadata) HasBillingPeriod() bool {
	return !m.BillingStart.IsZero() && !m.BillingEnd.IsZero()
}

// Validate performs basic validation on the InvoiceMetadata
func (m *InvoiceMetadata) Validate() error {
	if m.OwnerCUIT <= 0 {
		return fmt.Errorf("owner CUIT must be positive")
	}
	if m.HasBillingPeriod() && m.BillingStart.After(m.BillingEnd) {
		return fmt.Errorf("billing start %s is after billing end %s",
			FormatDate(m.BillingStart), FormatDate(m.BillingEnd))
	}
	return nil
}

// CompositeKey identifies an invoice across both sources: CUIT-TTT-PPPPP-NNNNNNNN
type CompositeKey string

// String returns the key text
func (k CompositeKey) String() string {
	return string(k)
}

// ConsolidatedRecord is an InvoiceRecord after the join and the proration
type ConsolidatedRecord struct {
	InvoiceRecord

	Key            CompositeKey    `json:"key"`
	KeyValid       bool            `json:"key_valid"`
	Matched        bool            `json:"matched"`
	MetadataFile   string          `json:"metadata_file,omitempty"`
	BillingStart   time.Time       `json:"billing_start"`
	BillingEnd     time.Time       `json:"billing_end"`
	EffectiveStart time.Time       `json:"effective_start"`
	EffectiveEnd   time.Time       `json:"effective_end"`
	BillingDays    int             `json:"billing_days"`
	EffectiveDays  int             `json:"effective_days"`
	Apportioned    decimal.Decimal `json:"apportioned"`
}

// MarshalJSON writes dates as YYYY-MM-DD and amounts as strings
func (c ConsolidatedRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		Key               string          `json:"key"`
		KeyValid          bool            `json:"key_valid"`
		OwnerCUIT         int64           `json:"owner_cuit"`
		ClientName        string          `json:"client_name"`
		Kind              ExportKind      `json:"kind"`
		EmissionDate      string          `json:"emission_date"`
		DocumentType      int             `json:"document_type"`
		PointOfSale       int             `json:"point_of_sale"`
		NumberFrom        int64           `json:"number_from"`
		NumberTo          int64           `json:"number_to"`
		AuthorizationCode string          `json:"authorization_code"`
		Currency          string          `json:"currency"`
		ExchangeRate      decimal.Decimal `json:"exchange_rate"`
		Taxes             TaxBreakdown    `json:"taxes"`
		Total             decimal.Decimal `json:"total"`
		CounterpartyDoc   string          `json:"counterparty_doc"`
		CounterpartyName  string          `json:"counterparty_name"`
		Matched           bool            `json:"matched"`
		BillingStart      string          `json:"billing_start"`
		BillingEnd        string          `json:"billing_end"`
		EffectiveStart    string          `json:"effective_start"`
		EffectiveEnd      string          `json:"effective_end"`
		BillingDays       int             `json:"billing_days"`
		EffectiveDays     int             `json:"effective_days"`
		Apportioned       decimal.Decimal `json:"apportioned"`
		SourceFile        string          `json:"source_file"`
		MetadataFile      string          `json:"metadata_file,omitempty"`
	}{
		Key:               c.Key.String(),
		KeyValid:          c.KeyValid,
		OwnerCUIT:         c.OwnerCUIT,
		ClientName:        c.ClientName,
		Kind:              c.Kind,
		EmissionDate:      FormatDate(c.EmissionDate),
		DocumentType:      c.DocumentType,
		PointOfSale:       c.PointOfSale,
		NumberFrom:        c.NumberFrom,
		NumberTo:          c.NumberTo,
		AuthorizationCode: c.AuthorizationCode,
		Currency:          c.Currency,
		ExchangeRate:      c.ExchangeRate,
		Taxes:             c.Taxes,
		Total:             c.Total,
		CounterpartyDoc:   c.CounterpartyDoc,
		CounterpartyName:  c.CounterpartyName,
		Matched:           c.Matched,
		BillingStart:      FormatDate(c.BillingStart),
		BillingEnd:        FormatDate(c.BillingEnd),
		EffectiveStart:    FormatDate(c.EffectiveStart),
		EffectiveEnd:      FormatDate(c.EffectiveEnd),
		BillingDays:       c.BillingDays,
		EffectiveDays:     c.EffectiveDays,
		Apportioned:       c.Apportioned,
		SourceFile:        c.SourceFile,
		MetadataFile:      c.MetadataFile,
	})
}

// ClientAggregate is one (client, export kind) row of the summary table
type ClientAggregate struct {
	ClientCUIT  int64           `json:"client_cuit"`
	ClientName  string          `json:"client_name"`
	Kind        ExportKind      `json:"kind"`
	Apportioned decimal.Decimal `json:"apportioned"`
	Records     int             `json:"records"`
	Unmatched   int             `json:"unmatched"`
	Category    string          `json:"category"`
	Classified  bool            `json:"classified"`
}

// String returns a string representation of the ClientAggregate
func (a *ClientAggregate) String() string {
	category := a.Category
	if !a.Classified {
		category = "unclassified"
	}
	return fmt.Sprintf("Aggregate{Client: %d %s, Kind: %s, Sum: %s, Records: %d, Category: %s}",
		a.ClientCUIT, a.ClientName, a.Kind, a.Apportioned.StringFixed(2), a.Records, category)
}
