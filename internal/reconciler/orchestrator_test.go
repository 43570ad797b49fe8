package reconciler

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"

	"monotributo-control/internal/models"
	"monotributo-control/pkg/errors"
)

const emittedHeader = "Fecha de Emisión;Tipo de Comprobante;Punto de Venta;Número Desde;Número Hasta;Cód. Autorización;" +
	"Tipo Doc. Receptor;Nro. Doc. Receptor;Denominación Receptor;Tipo Cambio;Moneda;Imp. Neto Gravado Total;" +
	"Imp. Neto No Gravado;Imp. Op. Exentas;Otros Tributos;Total IVA;Imp. Total"

const receivedHeader = "Fecha de Emisión;Tipo de Comprobante;Punto de Venta;Número Desde;Número Hasta;Cód. Autorización;" +
	"Tipo Doc. Emisor;Nro. Doc. Emisor;Denominación Emisor;Tipo Cambio;Moneda;Imp. Neto Gravado Total;" +
	"Imp. Neto No Gravado;Imp. Op. Exentas;Otros Tributos;Total IVA;Imp. Total"

const categoriesYAML = "categories:\n" +
	"  - upper_bound: \"1000\"\n    label: A\n" +
	"  - upper_bound: \"5000\"\n    label: B\n"

// controlFixture writes one client with an emitted and a received export
// and three metadata documents, one of them matching no export row.
func controlFixture(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"/mc/20374730429_ACME SA/extraido/1 - MCE - 01012025 - 30062025 - 20374730429 - ACME SA.csv": emittedHeader + "\n" +
			"2025-01-15;11;2;15;15;1;80;30712345678;CLIENTE UNO;1,00;$;0,00;0,00;0,00;0,00;0,00;3.100,00\n" +
			"2025-02-10;11;2;16;16;2;80;30712345678;CLIENTE UNO;1,00;$;0,00;0,00;0,00;0,00;0,00;1000,00\n" +
			"2025-03-01;11;2;17;17;3;80;30712345678;CLIENTE UNO;950,00;DOL;0,00;0,00;0,00;0,00;0,00;500,00\n",
		"/mc/20374730429_ACME SA/extraido/2 - MCR - 01012025 - 31072025 - 20374730429 - ACME SA.csv": receivedHeader + "\n" +
			"2025-07-05;11;3;1;1;4;80;30700000001;PROVEEDOR SA;1,00;$;0,00;0,00;0,00;0,00;0,00;200,00\n",
		"/mc/20374730429_ACME SA/notas.txt": "ignored",
		"/rcel/20374730429_ACME SA/20374730429-11-2-15.json": `{"TIPO_COMPROBANTE": 11, "PUNTO_VENTA": 2, "NUMERO": 15, "DESDE": "15/12/2024", "HASTA": "14/01/2025"}`,
		"/rcel/20374730429_ACME SA/20374730429-11-2-17.json": `{"TIPO_COMPROBANTE": 11, "PUNTO_VENTA": 2, "NUMERO": 17}`,
		"/rcel/20374730429_ACME SA/20374730429-11-2-99.json": `{"TIPO_COMPROBANTE": 11, "PUNTO_VENTA": 2, "NUMERO": 99, "DESDE": "01/01/2025", "HASTA": "31/01/2025"}`,
		"/cfg/categorias.yaml": categoriesYAML,
	}
	for path, content := range files {
		if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
	}
	return fs
}

func firstHalf2025(t *testing.T) models.ControlPeriod {
	t.Helper()
	period, err := models.NewControlPeriod(models.Date(2025, 1, 1), models.Date(2025, 6, 30))
	if err != nil {
		t.Fatalf("failed to build period: %v", err)
	}
	return period
}

func newRequest(t *testing.T) *RunRequest {
	return &RunRequest{
		MCDir:          "/mc",
		RCELDir:        "/rcel",
		Period:         firstHalf2025(t),
		CategoriesFile: "/cfg/categorias.yaml",
	}
}

func newService(t *testing.T, fs afero.Fs) *ControlService {
	t.Helper()
	service, err := NewControlService(fs, DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service
}

func TestOrchestrator_Process(t *testing.T) {
	service := newService(t, controlFixture(t))
	orchestrator, err := NewOrchestrator(service)
	if err != nil {
		t.Fatalf("failed to create orchestrator: %v", err)
	}

	result, err := orchestrator.Process(context.Background(), newRequest(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.RunID == "" {
		t.Error("expected a run id")
	}
	if len(result.Records) != 4 {
		t.Fatalf("expected 4 consolidated records, got %d", len(result.Records))
	}

	tests := []struct {
		number      int64
		matched     bool
		billing     int
		effective   int
		apportioned string
	}{
		{15, true, 31, 14, "1400"},
		{16, false, 1, 1, "1000"},
		{17, true, 1, 1, "500"},
		{1, false, 1, 0, "0"},
	}
	for i, tt := range tests {
		r := result.Records[i]
		if r.NumberFrom != tt.number {
			t.Fatalf("record %d: expected number %d, got %d", i, tt.number, r.NumberFrom)
		}
		if r.Matched != tt.matched {
			t.Errorf("record %d: expected matched=%v", i, tt.matched)
		}
		if r.BillingDays != tt.billing || r.EffectiveDays != tt.effective {
			t.Errorf("record %d: expected %d/%d days, got %d/%d", i, tt.effective, tt.billing, r.EffectiveDays, r.BillingDays)
		}
		if !r.Apportioned.Equal(decimal.RequireFromString(tt.apportioned)) {
			t.Errorf("record %d: expected apportioned %s, got %s", i, tt.apportioned, r.Apportioned)
		}
	}

	if len(result.Aggregates) != 2 {
		t.Fatalf("expected 2 aggregates, got %d", len(result.Aggregates))
	}
	emitted, received := result.Aggregates[0], result.Aggregates[1]
	if emitted.Kind != models.ExportKindEmitted || !emitted.Apportioned.Equal(decimal.NewFromInt(2900)) || emitted.Category != "B" {
		t.Errorf("unexpected emitted aggregate %s", emitted)
	}
	if received.Kind != models.ExportKindReceived || !received.Apportioned.IsZero() || received.Category != "A" {
		t.Errorf("unexpected received aggregate %s", received)
	}

	want := RunSummary{
		ExportFiles:          2,
		MetadataFiles:        3,
		Records:              4,
		Matched:              2,
		Unmatched:            2,
		MatchedWithoutPeriod: 1,
		UnusedMetadata:       1,
		OutsidePeriod:        1,
		PartialPeriod:        1,
		CreditPolicy:         "as_reported",
		Clients:              1,
		Aggregates:           2,
		Warnings:             1,
	}
	got := *result.Summary
	if !got.TotalBilled.Equal(decimal.NewFromInt(4800)) || !got.TotalApportioned.Equal(decimal.NewFromInt(2900)) {
		t.Errorf("unexpected totals %s / %s", got.TotalBilled, got.TotalApportioned)
	}
	if got.ByCategory["A"] != 1 || got.ByCategory["B"] != 1 {
		t.Errorf("unexpected category counts %v", got.ByCategory)
	}
	got.TotalBilled, got.TotalApportioned, got.ByCategory = want.TotalBilled, want.TotalApportioned, want.ByCategory
	if !reflect.DeepEqual(got, want) {
		t.Errorf("unexpected summary\n got: %+v\nwant: %+v", got, want)
	}

	if len(result.Problems) != 1 || result.Problems[0].Code != errors.CodeForeignCurrency {
		t.Errorf("expected one foreign currency warning, got %v", result.Problems)
	}
	if result.Unmatched != 2 {
		t.Errorf("expected 2 unmatched, got %d", result.Unmatched)
	}
	if result.HasErrors() {
		t.Error("expected no error-severity problems")
	}
}

func TestOrchestrator_Progress(t *testing.T) {
	service := newService(t, controlFixture(t))
	orchestrator, err := NewOrchestrator(service)
	if err != nil {
		t.Fatalf("failed to create orchestrator: %v", err)
	}

	var mu sync.Mutex
	var seen []string
	maxFiles := 0
	orchestrator.AddProgressCallback(func(p *RunProgress) {
		mu.Lock()
		defer mu.Unlock()
		if len(seen) == 0 || seen[len(seen)-1] != p.CurrentStep {
			seen = append(seen, p.CurrentStep)
		}
		if p.FilesLoaded > maxFiles {
			maxFiles = p.FilesLoaded
		}
	})

	if _, err := orchestrator.Process(context.Background(), newRequest(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantSteps := append(append([]string{}, steps...), StepDone)
	if len(seen) != len(wantSteps) {
		t.Fatalf("expected steps %v, got %v", wantSteps, seen)
	}
	for i := range wantSteps {
		if seen[i] != wantSteps[i] {
			t.Errorf("step %d: expected %q, got %q", i, wantSteps[i], seen[i])
		}
	}
	if maxFiles != 5 {
		t.Errorf("expected 5 loaded files, got %d", maxFiles)
	}

	final := orchestrator.GetProgress()
	if final.CurrentStep != StepDone || final.PercentComplete != 100 || final.TotalFiles != 5 {
		t.Errorf("unexpected final progress %+v", final)
	}
}

func TestOrchestrator_Idempotent(t *testing.T) {
	service := newService(t, controlFixture(t))

	encode := func(result *RunResult) string {
		data, err := json.Marshal(struct {
			Records    []*models.ConsolidatedRecord
			Aggregates []*models.ClientAggregate
			Problems   []*errors.ControlError
			Summary    *RunSummary
		}{result.Records, result.Aggregates, result.Problems, result.Summary})
		if err != nil {
			t.Fatalf("failed to encode result: %v", err)
		}
		return string(data)
	}

	first, err := service.Run(context.Background(), newRequest(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := service.Run(context.Background(), newRequest(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if encode(first) != encode(second) {
		t.Error("two runs over the same inputs differ")
	}
	if first.RunID == second.RunID {
		t.Error("expected a fresh run id per run")
	}
}

func TestOrchestrator_WithoutMetadata(t *testing.T) {
	service := newService(t, controlFixture(t))
	req := newRequest(t)
	req.RCELDir = ""

	result, err := service.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Summary.Matched != 0 || result.Summary.Unmatched != 4 {
		t.Errorf("expected every record unmatched, got %+v", result.Summary)
	}
}

func TestOrchestrator_MissingRCELDirIsAProblem(t *testing.T) {
	service := newService(t, controlFixture(t))
	req := newRequest(t)
	req.RCELDir = "/nowhere"

	result, err := service.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.HasErrors() {
		t.Error("expected the unreadable directory to be reported")
	}
	if result.Problems[0].Category != errors.CategoryFile {
		t.Errorf("expected a file problem first, got %s", result.Problems[0].Category)
	}
}

func TestOrchestrator_FatalErrors(t *testing.T) {
	tests := []struct {
		name     string
		modify   func(*RunRequest)
		exitCode int
	}{
		{"missing period", func(r *RunRequest) { r.Period = models.ControlPeriod{} }, 4},
		{"missing categories", func(r *RunRequest) { r.CategoriesFile = "" }, 4},
		{"unreadable categories", func(r *RunRequest) { r.CategoriesFile = "/cfg/none.yaml" }, 4},
		{"missing mc dir", func(r *RunRequest) { r.MCDir = "" }, 4},
		{"mc dir does not exist", func(r *RunRequest) { r.MCDir = "/nowhere" }, 2},
		{"no exports found", func(r *RunRequest) { r.MCDir = "/rcel" }, 2},
	}

	service := newService(t, controlFixture(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest(t)
			tt.modify(req)

			_, err := service.Run(context.Background(), req)
			if err == nil {
				t.Fatal("expected an error")
			}
			ce, ok := errors.AsControlError(err)
			if !ok {
				t.Fatalf("expected ControlError, got %T: %v", err, err)
			}
			if ce.GetExitCode() != tt.exitCode {
				t.Errorf("expected exit code %d, got %d (%v)", tt.exitCode, ce.GetExitCode(), err)
			}
		})
	}
}

func TestOrchestrator_Cancelled(t *testing.T) {
	service := newService(t, controlFixture(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := service.Run(ctx, newRequest(t))
	ce, ok := errors.AsControlError(err)
	if !ok || ce.Code != errors.CodeCancelled {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestNewOrchestrator_RequiresService(t *testing.T) {
	if _, err := NewOrchestrator(nil); err == nil {
		t.Error("expected an error for a nil service")
	}
}
