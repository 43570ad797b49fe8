// Package sample writes reproducible download trees for trying the control
// without real AFIP data.
package sample

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"

	"monotributo-control/internal/categories"
	"monotributo-control/internal/models"
)

const (
	invoiceType    = 11
	creditNoteType = 13

	exportHeader = "Fecha de Emisión;Tipo de Comprobante;Punto de Venta;Número Desde;Número Hasta;Cód. Autorización;" +
		"Tipo Doc. Receptor;Nro. Doc. Receptor;Denominación Receptor;Tipo Cambio;Moneda;Imp. Neto Gravado Total;" +
		"Imp. Neto No Gravado;Imp. Op. Exentas;Otros Tributos;Total IVA;Imp. Total"
)

var clientNames = []string{
	"ESTUDIO NORTE", "PANADERIA LA ESPIGA", "TALLER SAN MARTIN", "CONSULTORA DELTA",
	"LIBRERIA CENTRAL", "KIOSCO EL PASO", "DISEÑO AUSTRAL", "FERRETERIA SUR",
}

var receiverNames = []string{
	"DISTRIBUIDORA OESTE SRL", "COOPERATIVA RIO", "MUNICIPALIDAD DE TIGRE", "LOGISTICA PAMPA SA",
}

// Generator builds sample clients with emitted invoices. The same seed
// always yields the same dataset.
type Generator struct {
	Clients           int
	InvoicesPerClient int
	StartDate         time.Time
	EndDate           time.Time
	MinAmount         decimal.Decimal
	MaxAmount         decimal.Decimal
	MetadataRatio     float64
	CreditNoteRatio   float64
	Seed              int64
}

// NewGenerator returns a generator covering one calendar year
func NewGenerator(seed int64) *Generator {
	return &Generator{
		Clients:           3,
		InvoicesPerClient: 12,
		StartDate:         models.Date(2025, time.January, 1),
		EndDate:           models.Date(2025, time.December, 31),
		MinAmount:         decimal.NewFromInt(50000),
		MaxAmount:         decimal.NewFromInt(1500000),
		MetadataRatio:     0.7,
		CreditNoteRatio:   0.1,
		Seed:              seed,
	}
}

// Validate checks the generator settings
func (g *Generator) Validate() error {
	if g.Clients <= 0 || g.Clients > len(clientNames) {
		return fmt.Errorf("clients must be between 1 and %d", len(clientNames))
	}
	if g.InvoicesPerClient <= 0 {
		return fmt.Errorf("invoices per client must be positive")
	}
	if !g.EndDate.After(g.StartDate) {
		return fmt.Errorf("end date must be after start date")
	}
	if g.MinAmount.LessThanOrEqual(decimal.Zero) || g.MaxAmount.LessThan(g.MinAmount) {
		return fmt.Errorf("amount range must be positive and ordered")
	}
	if g.MetadataRatio < 0 || g.MetadataRatio > 1 || g.CreditNoteRatio < 0 || g.CreditNoteRatio > 1 {
		return fmt.Errorf("ratios must be between 0 and 1")
	}
	return nil
}

// Invoice is one generated document
type Invoice struct {
	DocumentType int
	PointOfSale  int
	Number       int64
	EmissionDate time.Time
	Total        decimal.Decimal
	ReceiverCUIT int64
	ReceiverName string
	// Billing is nil when no RCEL document is written for the invoice
	Billing      *BillingPeriod
}

// BillingPeriod is the service period an RCEL document declares
type BillingPeriod struct {
	From time.Time
	To   time.Time
}

// Client is one monotributista with the invoices they emitted
type Client struct {
	CUIT     int64
	Name     string
	Invoices []Invoice
}

// Dataset is a generated set of clients
type Dataset struct {
	From    time.Time
	To      time.Time
	Clients []Client
}

// Generate builds the dataset
func (g *Generator) Generate() (*Dataset, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(g.Seed))
	days := int(g.EndDate.Sub(g.StartDate).Hours()/24) + 1
	amountRange := g.MaxAmount.Sub(g.MinAmount)

	ds := &Dataset{From: g.StartDate, To: g.EndDate}
	for c := 0; c < g.Clients; c++ {
		client := Client{
			CUIT: 20000000000 + rng.Int63n(9999999)*10 + int64(c),
			Name: clientNames[c],
		}
		pos := 1 + rng.Intn(5)

		for i := 0; i < g.InvoicesPerClient; i++ {
			emitted := g.StartDate.AddDate(0, 0, rng.Intn(days))
			amount := decimal.NewFromFloat(rng.Float64()).Mul(amountRange).Add(g.MinAmount).Round(2)

			inv := Invoice{
				DocumentType: invoiceType,
				PointOfSale:  pos,
				Number:       int64(i + 1),
				EmissionDate: emitted,
				Total:        amount,
				ReceiverCUIT: 30700000000 + rng.Int63n(999999)*10,
				ReceiverName: receiverNames[rng.Intn(len(receiverNames))],
			}

			switch {
			case rng.Float64() < g.CreditNoteRatio:
				inv.DocumentType = creditNoteType
				inv.Total = amount.Div(decimal.NewFromInt(4)).Round(2)
			case rng.Float64() < g.MetadataRatio:
				window := billingMonth(emitted)
				inv.Billing = &window
			}
			client.Invoices = append(client.Invoices, inv)
		}
		ds.Clients = append(ds.Clients, client)
	}
	return ds, nil
}

// billingMonth returns the calendar month before the emission date, the
// usual arrangement for monthly service invoices.
func billingMonth(emitted time.Time) BillingPeriod {
	first := models.Date(emitted.Year(), emitted.Month(), 1).AddDate(0, -1, 0)
	return BillingPeriod{From: first, To: first.AddDate(0, 1, -1)}
}

// DefaultBrackets returns a small category table sized for the default
// amount range.
func DefaultBrackets() []models.CategoryBracket {
	return []models.CategoryBracket{
		{UpperBound: decimal.NewFromInt(6000000), Label: "A"},
		{UpperBound: decimal.NewFromInt(9000000), Label: "B"},
		{UpperBound: decimal.NewFromInt(12000000), Label: "C"},
		{UpperBound: decimal.NewFromInt(16000000), Label: "D"},
	}
}

// Layout is where a dataset was written
type Layout struct {
	MCDir          string
	RCELDir        string
	CategoriesFile string
	Exports        int
	Documents      int
}

// Write stores ds under root as an MC downloads tree, an RCEL downloads
// tree and a category table.
func Write(fs afero.Fs, root string, ds *Dataset, brackets []models.CategoryBracket) (*Layout, error) {
	layout := &Layout{
		MCDir:          filepath.Join(root, "descargas_mis_comprobantes"),
		RCELDir:        filepath.Join(root, "descargas_rcel"),
		CategoriesFile: filepath.Join(root, "categorias.yaml"),
	}

	for _, client := range ds.Clients {
		folder := fmt.Sprintf("%d_%s", client.CUIT, client.Name)

		exportPath := filepath.Join(layout.MCDir, folder, "extraido", fmt.Sprintf("1 - MCE - %s - %s - %d - %s.csv",
			ds.From.Format("02012006"), ds.To.Format("02012006"), client.CUIT, client.Name))
		if err := writeFile(fs, exportPath, exportCSV(client)); err != nil {
			return nil, err
		}
		layout.Exports++

		for _, inv := range client.Invoices {
			if inv.Billing == nil {
				continue
			}
			data, err := metadataJSON(inv)
			if err != nil {
				return nil, err
			}
			name := fmt.Sprintf("%d-%d-%d-%d.json", client.CUIT, inv.DocumentType, inv.PointOfSale, inv.Number)
			if err := writeFile(fs, filepath.Join(layout.RCELDir, folder, name), data); err != nil {
				return nil, err
			}
			layout.Documents++
		}
	}

	table, err := categories.EncodeYAML(brackets)
	if err != nil {
		return nil, fmt.Errorf("failed to encode category table: %w", err)
	}
	if err := writeFile(fs, layout.CategoriesFile, table); err != nil {
		return nil, err
	}
	return layout, nil
}

func writeFile(fs afero.Fs, path string, data []byte) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func exportCSV(client Client) []byte {
	var b strings.Builder
	b.WriteString(exportHeader)
	b.WriteByte('\n')
	for i, inv := range client.Invoices {
		fmt.Fprintf(&b, "%s;%d;%d;%d;%d;%d;80;%d;%s;1,00;$;0,00;0,00;0,00;0,00;0,00;%s\n",
			inv.EmissionDate.Format(models.DateLayout), inv.DocumentType, inv.PointOfSale, inv.Number, inv.Number,
			75000000000000+int64(i), inv.ReceiverCUIT, inv.ReceiverName, FormatAmount(inv.Total))
	}
	return []byte(b.String())
}

func metadataJSON(inv Invoice) ([]byte, error) {
	return json.MarshalIndent(map[string]interface{}{
		"TIPO_COMPROBANTE": inv.DocumentType,
		"PUNTO_VENTA":      inv.PointOfSale,
		"NUMERO":           inv.Number,
		"DESDE":            inv.Billing.From.Format("02/01/2006"),
		"HASTA":            inv.Billing.To.Format("02/01/2006"),
	}, "", "  ")
}

// FormatAmount writes an amount the way the AFIP export does: dots between
// thousands and a decimal comma.
func FormatAmount(d decimal.Decimal) string {
	fixed := d.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	if d.IsNegative() {
		b.WriteByte('-')
	}
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	b.WriteByte(',')
	b.WriteString(frac)
	return b.String()
}
