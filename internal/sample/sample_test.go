package sample

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"

	"monotributo-control/internal/categories"
	"monotributo-control/internal/models"
	"monotributo-control/internal/parsers"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "0,00"},
		{"12.5", "12,50"},
		{"999.99", "999,99"},
		{"1000", "1.000,00"},
		{"3100", "3.100,00"},
		{"1234567.891", "1.234.567,89"},
		{"-2500", "-2.500,00"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := FormatAmount(decimal.RequireFromString(tt.in))
			if got != tt.want {
				t.Errorf("FormatAmount(%s) = %q, want %q", tt.in, got, tt.want)
			}
			back, err := models.ParseAmount(got)
			if err != nil || !back.Equal(decimal.RequireFromString(tt.in).Round(2)) {
				t.Errorf("ParseAmount(%q) = %s, %v", got, back, err)
			}
		})
	}
}

func TestGenerator_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(g *Generator)
	}{
		{"no clients", func(g *Generator) { g.Clients = 0 }},
		{"too many clients", func(g *Generator) { g.Clients = len(clientNames) + 1 }},
		{"no invoices", func(g *Generator) { g.InvoicesPerClient = 0 }},
		{"reversed dates", func(g *Generator) { g.EndDate = g.StartDate.AddDate(0, 0, -1) }},
		{"reversed amounts", func(g *Generator) { g.MaxAmount = decimal.NewFromInt(1) }},
		{"bad ratio", func(g *Generator) { g.MetadataRatio = 1.5 }},
	}

	if err := NewGenerator(1).Validate(); err != nil {
		t.Fatalf("default generator should be valid: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGenerator(1)
			tt.modify(g)
			if _, err := g.Generate(); err == nil {
				t.Error("expected error but got none")
			}
		})
	}
}

func TestGenerator_Reproducible(t *testing.T) {
	first, err := NewGenerator(42).Generate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _ := NewGenerator(42).Generate()
	other, _ := NewGenerator(43).Generate()

	if len(first.Clients) != 3 {
		t.Fatalf("expected 3 clients, got %d", len(first.Clients))
	}
	for i := range first.Clients {
		if string(exportCSV(first.Clients[i])) != string(exportCSV(second.Clients[i])) {
			t.Errorf("client %d differs between runs with the same seed", i)
		}
	}
	if string(exportCSV(first.Clients[0])) == string(exportCSV(other.Clients[0])) {
		t.Error("different seeds produced the same export")
	}

	for _, client := range first.Clients {
		if len(client.Invoices) != 12 {
			t.Errorf("%s: expected 12 invoices, got %d", client.Name, len(client.Invoices))
		}
		for _, inv := range client.Invoices {
			if inv.EmissionDate.Before(first.From) || inv.EmissionDate.After(first.To) {
				t.Errorf("%s #%d emitted outside the range: %s", client.Name, inv.Number, inv.EmissionDate)
			}
			if inv.DocumentType == creditNoteType && inv.Billing != nil {
				t.Errorf("%s #%d: credit notes carry no RCEL document", client.Name, inv.Number)
			}
			if inv.Billing != nil && inv.Billing.To.Before(inv.Billing.From) {
				t.Errorf("%s #%d: reversed billing period", client.Name, inv.Number)
			}
		}
	}
}

func TestBillingMonth(t *testing.T) {
	got := billingMonth(models.Date(2025, time.March, 15))
	if models.FormatDate(got.From) != "2025-02-01" || models.FormatDate(got.To) != "2025-02-28" {
		t.Errorf("unexpected window %s..%s", models.FormatDate(got.From), models.FormatDate(got.To))
	}

	got = billingMonth(models.Date(2025, time.January, 3))
	if models.FormatDate(got.From) != "2024-12-01" || models.FormatDate(got.To) != "2024-12-31" {
		t.Errorf("unexpected window across the year %s..%s", models.FormatDate(got.From), models.FormatDate(got.To))
	}
}

func TestWrite(t *testing.T) {
	g := NewGenerator(7)
	g.MetadataRatio = 1
	g.CreditNoteRatio = 0
	ds, err := g.Generate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	brackets := []models.CategoryBracket{
		{UpperBound: decimal.NewFromInt(5000000), Label: "A"},
		{UpperBound: decimal.NewFromInt(20000000), Label: "B"},
	}
	fs := afero.NewMemMapFs()
	layout, err := Write(fs, "/demo", ds, brackets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if layout.Exports != 3 || layout.Documents != 36 {
		t.Errorf("expected 3 exports and 36 documents, got %d and %d", layout.Exports, layout.Documents)
	}

	exports, _ := afero.Glob(fs, filepath.Join(layout.MCDir, "*", "extraido", "*.csv"))
	if len(exports) != 3 {
		t.Fatalf("expected 3 exports on disk, got %v", exports)
	}
	for _, path := range exports {
		name, err := parsers.ParseExportFilename(path)
		if err != nil {
			t.Errorf("export name not parseable: %v", err)
			continue
		}
		if name.Kind != models.ExportKindEmitted || !name.From.Equal(ds.From) || !name.To.Equal(ds.To) {
			t.Errorf("unexpected export name fields %+v", name)
		}
		data, _ := afero.ReadFile(fs, path)
		if lines := strings.Count(string(data), "\n"); lines != 13 {
			t.Errorf("%s: expected header and 12 rows, got %d lines", path, lines)
		}
	}

	docs, _ := afero.Glob(fs, filepath.Join(layout.RCELDir, "*", "*.json"))
	if len(docs) != 36 {
		t.Fatalf("expected 36 documents on disk, got %d", len(docs))
	}
	meta, err := parsers.ParseMetadataFilename(docs[0])
	if err != nil || meta.Number == nil || meta.ClientName == "" {
		t.Errorf("document name not parseable: %+v, %v", meta, err)
	}
	var doc map[string]interface{}
	data, _ := afero.ReadFile(fs, docs[0])
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("invalid document: %v", err)
	}
	for _, key := range []string{"TIPO_COMPROBANTE", "PUNTO_VENTA", "NUMERO", "DESDE", "HASTA"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("document missing %s", key)
		}
	}

	table, err := categories.NewLoader(fs).Load(layout.CategoriesFile)
	if err != nil {
		t.Fatalf("category table not loadable: %v", err)
	}
	if table.Len() != 2 {
		t.Errorf("expected 2 brackets, got %d", table.Len())
	}
}
