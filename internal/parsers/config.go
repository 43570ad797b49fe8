package parsers

import (
	"fmt"
	"strings"
)

// InvoiceColumns names the columns of a Mis Comprobantes export. Lookups
// are accent and case insensitive.
type InvoiceColumns struct {
	EmissionDate      string `json:"emission_date" mapstructure:"emission_date"`
	DocumentType      string `json:"document_type" mapstructure:"document_type"`
	PointOfSale       string `json:"point_of_sale" mapstructure:"point_of_sale"`
	NumberFrom        string `json:"number_from" mapstructure:"number_from"`
	NumberTo          string `json:"number_to" mapstructure:"number_to"`
	AuthorizationCode string `json:"authorization_code" mapstructure:"authorization_code"`
	ExchangeRate      string `json:"exchange_rate" mapstructure:"exchange_rate"`
	Currency          string `json:"currency" mapstructure:"currency"`
	NetTaxed          string `json:"net_taxed" mapstructure:"net_taxed"`
	NetUntaxed        string `json:"net_untaxed" mapstructure:"net_untaxed"`
	Exempt            string `json:"exempt" mapstructure:"exempt"`
	OtherTaxes        string `json:"other_taxes" mapstructure:"other_taxes"`
	TotalVAT          string `json:"total_vat" mapstructure:"total_vat"`
	Total             string `json:"total" mapstructure:"total"`
	ReceiverDoc       string `json:"receiver_doc" mapstructure:"receiver_doc"`
	ReceiverName      string `json:"receiver_name" mapstructure:"receiver_name"`
	IssuerDoc         string `json:"issuer_doc" mapstructure:"issuer_doc"`
	IssuerName        string `json:"issuer_name" mapstructure:"issuer_name"`
}

// DefaultInvoiceColumns returns the headers written by the AFIP export
func DefaultInvoiceColumns() InvoiceColumns {
	return InvoiceColumns{
		EmissionDate:      "Fecha de Emisión",
		DocumentType:      "Tipo de Comprobante",
		PointOfSale:       "Punto de Venta",
		NumberFrom:        "Número Desde",
		NumberTo:          "Número Hasta",
		AuthorizationCode: "Cód. Autorización",
		ExchangeRate:      "Tipo Cambio",
		Currency:          "Moneda",
		NetTaxed:          "Imp. Neto Gravado Total",
		NetUntaxed:        "Imp. Neto No Gravado",
		Exempt:            "Imp. Op. Exentas",
		OtherTaxes:        "Otros Tributos",
		TotalVAT:          "Total IVA",
		Total:             "Imp. Total",
		ReceiverDoc:       "Nro. Doc. Receptor",
		ReceiverName:      "Denominación Receptor",
		IssuerDoc:         "Nro. Doc. Emisor",
		IssuerName:        "Denominación Emisor",
	}
}

// Required returns the columns every export must carry regardless of view
func (c InvoiceColumns) Required() []string {
	return []string{c.EmissionDate, c.DocumentType, c.PointOfSale, c.NumberFrom, c.Total}
}

// Validate checks that no column name is blank
func (c InvoiceColumns) Validate() error {
	named := map[string]string{
		"emission_date": c.EmissionDate,
		"document_type": c.DocumentType,
		"point_of_sale": c.PointOfSale,
		"number_from":   c.NumberFrom,
		"total":         c.Total,
		"receiver_name": c.ReceiverName,
		"issuer_name":   c.IssuerName,
	}
	for field, column := range named {
		if strings.TrimSpace(column) == "" {
			return fmt.Errorf("column for %s cannot be empty", field)
		}
	}
	if foldHeader(c.ReceiverName) == foldHeader(c.IssuerName) {
		return fmt.Errorf("receiver and issuer name columns must differ")
	}
	return nil
}

// MetadataKeys lists, per field, the JSON keys an RCEL document may use.
// The first key present wins.
type MetadataKeys struct {
	DocumentType []string `json:"document_type" mapstructure:"document_type"`
	PointOfSale  []string `json:"point_of_sale" mapstructure:"point_of_sale"`
	Number       []string `json:"number" mapstructure:"number"`
	From         []string `json:"from" mapstructure:"from"`
	To           []string `json:"to" mapstructure:"to"`
}

// DefaultMetadataKeys returns the key spellings seen in RCEL documents
func DefaultMetadataKeys() MetadataKeys {
	return MetadataKeys{
		DocumentType: []string{"Tipo de Comprobante", "TIPO_COMPROBANTE", "TIPO_FACTURA", "tipo_comprobante"},
		PointOfSale:  []string{"Punto de Venta", "PUNTO_VENTA", "PUNTO_DE_VENTA", "punto_venta"},
		Number:       []string{"Número", "NUMERO", "NUMERO_FACTURA", "Número Desde", "numero"},
		From:         []string{"Desde", "DESDE", "FECHA_DESDE", "desde"},
		To:           []string{"Hasta", "HASTA", "FECHA_HASTA", "hasta"},
	}
}

// Validate checks that every field has at least one key
func (k MetadataKeys) Validate() error {
	if len(k.DocumentType) == 0 || len(k.PointOfSale) == 0 || len(k.Number) == 0 {
		return fmt.Errorf("metadata keys for document type, point of sale and number are required")
	}
	if len(k.From) == 0 || len(k.To) == 0 {
		return fmt.Errorf("metadata keys for the billing period are required")
	}
	return nil
}

// LoaderConfig configures how input files are read
type LoaderConfig struct {
	Encoding     Encoding       `json:"encoding"`
	Delimiter    rune           `json:"delimiter"`
	Workers      int            `json:"workers"`
	Columns      InvoiceColumns `json:"columns"`
	MetadataKeys MetadataKeys   `json:"metadata_keys"`
}

// DefaultLoaderConfig returns the settings matching the AFIP exports
func DefaultLoaderConfig() *LoaderConfig {
	return &LoaderConfig{
		Encoding:     EncodingUTF8,
		Delimiter:    ';',
		Workers:      4,
		Columns:      DefaultInvoiceColumns(),
		MetadataKeys: DefaultMetadataKeys(),
	}
}

// Validate checks if the loader configuration is valid
func (c *LoaderConfig) Validate() error {
	if _, err := ParseEncoding(string(c.Encoding)); err != nil {
		return err
	}
	if c.Delimiter == 0 || c.Delimiter == '\n' || c.Delimiter == '"' {
		return fmt.Errorf("invalid delimiter %q", c.Delimiter)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if err := c.Columns.Validate(); err != nil {
		return err
	}
	return c.MetadataKeys.Validate()
}
