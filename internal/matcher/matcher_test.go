package matcher

import (
	"testing"

	"github.com/shopspring/decimal"

	"monotributo-control/internal/models"
	"monotributo-control/pkg/errors"
)

const owner int64 = 20374730429

func record(number int64, emitted string, kind models.ExportKind, file string) *models.InvoiceRecord {
	date, _ := models.ParseDate(emitted)
	return &models.InvoiceRecord{
		EmissionDate: date,
		DocumentType: 11,
		PointOfSale:  2,
		NumberFrom:   number,
		NumberTo:     number,
		Total:        decimal.NewFromInt(100),
		OwnerCUIT:    owner,
		ClientName:   "ACME",
		Kind:         kind,
		SourceFile:   file,
		Line:         int(number) + 1,
	}
}

func metadata(number int64, from, to, file string) *models.InvoiceMetadata {
	m := &models.InvoiceMetadata{
		OwnerCUIT:    owner,
		DocumentType: 11,
		PointOfSale:  2,
		Number:       number,
		SourceFile:   file,
	}
	if from != "" {
		m.BillingStart, _ = models.ParseDate(from)
	}
	if to != "" {
		m.BillingEnd, _ = models.ParseDate(to)
	}
	return m
}

func countCode(problems []*errors.ControlError, code errors.ErrorCode) int {
	n := 0
	for _, p := range problems {
		if p.Code == code {
			n++
		}
	}
	return n
}

func TestReconcile_LeftJoin(t *testing.T) {
	records := []*models.InvoiceRecord{
		record(1, "2025-01-10", models.ExportKindEmitted, "a.csv"),
		record(2, "2025-02-10", models.ExportKindEmitted, "a.csv"),
		record(3, "2025-03-10", models.ExportKindEmitted, "a.csv"),
	}
	meta := []*models.InvoiceMetadata{
		metadata(1, "2024-12-15", "2025-01-15", "1.json"),
		metadata(3, "", "", "3.json"),
		metadata(9, "2025-01-01", "2025-01-31", "9.json"),
	}

	engine := NewEngine()
	if _, err := engine.Reconcile(records); err == nil {
		t.Fatal("expected error before metadata is loaded")
	}
	engine.LoadMetadata(meta)
	result, err := engine.Reconcile(records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Records) != len(records) {
		t.Fatalf("expected every record exactly once, got %d", len(result.Records))
	}

	matched := result.Records[0]
	if !matched.Matched || matched.MetadataFile != "1.json" {
		t.Errorf("expected record 1 matched to 1.json, got %+v", matched)
	}
	if !matched.BillingStart.Equal(models.Date(2024, 12, 15)) || !matched.BillingEnd.Equal(models.Date(2025, 1, 15)) {
		t.Errorf("expected billing period from metadata, got %v..%v", matched.BillingStart, matched.BillingEnd)
	}
	if matched.Key != "20374730429-011-00002-00000001" {
		t.Errorf("unexpected key %s", matched.Key)
	}

	unmatched := result.Records[1]
	if unmatched.Matched {
		t.Error("expected record 2 unmatched")
	}
	if !unmatched.BillingStart.Equal(unmatched.EmissionDate) || !unmatched.BillingEnd.Equal(unmatched.EmissionDate) {
		t.Errorf("expected emission date period, got %v..%v", unmatched.BillingStart, unmatched.BillingEnd)
	}

	noPeriod := result.Records[2]
	if !noPeriod.Matched {
		t.Error("expected record 3 to stay matched without a period")
	}
	if !noPeriod.BillingStart.Equal(models.Date(2025, 3, 10)) || !noPeriod.BillingEnd.Equal(models.Date(2025, 3, 10)) {
		t.Errorf("expected emission date period, got %v..%v", noPeriod.BillingStart, noPeriod.BillingEnd)
	}

	want := Summary{
		TotalRecords:         3,
		Matched:              2,
		Unmatched:            1,
		MatchedWithoutPeriod: 1,
		MetadataDocuments:    3,
		UnusedMetadata:       1,
	}
	if result.Summary != want {
		t.Errorf("expected summary %+v, got %+v", want, result.Summary)
	}
	if len(result.UnusedMetadata) != 1 || result.UnusedMetadata[0].SourceFile != "9.json" {
		t.Errorf("expected 9.json unused, got %v", result.UnusedMetadata)
	}
	if len(result.Problems) != 0 {
		t.Errorf("expected no problems, got %v", result.Problems)
	}
}

func TestReconcile_DuplicateMetadata(t *testing.T) {
	records := []*models.InvoiceRecord{record(1, "2025-01-10", models.ExportKindEmitted, "a.csv")}
	meta := []*models.InvoiceMetadata{
		metadata(1, "2025-01-01", "2025-01-31", "first.json"),
		metadata(1, "2025-02-01", "2025-02-28", "second.json"),
		metadata(1, "2025-03-01", "2025-03-31", "third.json"),
	}

	index := NewMetadataIndex(meta)
	result := Reconcile(records, index)

	if len(result.Records) != 1 {
		t.Fatalf("expected no row multiplication, got %d rows", len(result.Records))
	}
	if result.Records[0].MetadataFile != "first.json" {
		t.Errorf("expected the first document to win, got %s", result.Records[0].MetadataFile)
	}
	if countCode(result.Problems, errors.CodeDuplicateKey) != 1 {
		t.Fatalf("expected one duplicate_key warning, got %v", result.Problems)
	}

	groups := index.Duplicates()
	if len(groups) != 1 || len(groups[0].Files) != 3 || groups[0].Files[0] != "first.json" {
		t.Errorf("unexpected duplicate groups %+v", groups)
	}
	if result.Summary.DuplicateKeys != 1 {
		t.Errorf("expected 1 duplicate key in summary, got %d", result.Summary.DuplicateKeys)
	}
	for _, p := range result.Problems {
		if !p.IsWarning() {
			t.Errorf("expected warnings only, got %v", p)
		}
	}
}

func TestReconcile_MalformedKeys(t *testing.T) {
	bad := record(1, "2025-01-10", models.ExportKindEmitted, "a.csv")
	bad.NumberFrom = 123456789
	bad.NumberTo = 123456789

	badMeta := metadata(1, "", "", "bad.json")
	badMeta.PointOfSale = 123456

	result := Reconcile([]*models.InvoiceRecord{bad}, NewMetadataIndex([]*models.InvoiceMetadata{badMeta}))

	if len(result.Records) != 1 {
		t.Fatalf("expected the record to be kept, got %d", len(result.Records))
	}
	r := result.Records[0]
	if r.KeyValid || r.Matched || r.Key != "" {
		t.Errorf("expected an unmatchable record, got %+v", r)
	}
	if result.Summary.Unmatchable != 1 || result.Summary.Unmatched != 1 {
		t.Errorf("unexpected summary %+v", result.Summary)
	}
	if countCode(result.Problems, errors.CodeMalformedKey) != 2 {
		t.Errorf("expected two malformed_key problems, got %v", result.Problems)
	}
}

func TestReconcile_DuplicateRecords(t *testing.T) {
	records := []*models.InvoiceRecord{
		record(1, "2025-01-10", models.ExportKindEmitted, "jan.csv"),
		record(1, "2025-01-10", models.ExportKindEmitted, "q1.csv"),
		record(1, "2025-01-10", models.ExportKindReceived, "mcr.csv"),
	}

	result := Reconcile(records, nil)
	if len(result.Records) != 3 {
		t.Fatalf("expected every row kept, got %d", len(result.Records))
	}
	if countCode(result.Problems, errors.CodeDuplicateRow) != 1 {
		t.Fatalf("expected one duplicate_invoice warning, got %v", result.Problems)
	}

	groups := DetectDuplicateRecords(result.Records)
	if len(groups) != 1 || groups[0].Kind != models.ExportKindEmitted || len(groups[0].Records) != 2 {
		t.Errorf("unexpected groups %+v", groups)
	}
}

func TestReconcile_Deterministic(t *testing.T) {
	records := []*models.InvoiceRecord{
		record(3, "2025-03-10", models.ExportKindEmitted, "a.csv"),
		record(1, "2025-01-10", models.ExportKindEmitted, "a.csv"),
		record(2, "2025-02-10", models.ExportKindReceived, "b.csv"),
	}
	meta := []*models.InvoiceMetadata{metadata(1, "2025-01-01", "2025-01-31", "1.json")}

	first := Reconcile(records, NewMetadataIndex(meta))
	second := Reconcile(records, NewMetadataIndex(meta))

	for i := range first.Records {
		a, b := first.Records[i], second.Records[i]
		if a.Key != b.Key || a.Matched != b.Matched || !a.BillingStart.Equal(b.BillingStart) {
			t.Errorf("row %d differs between runs: %+v vs %+v", i, a, b)
		}
	}
	if first.Records[0].NumberFrom != 3 {
		t.Error("expected output to follow input order")
	}
}
