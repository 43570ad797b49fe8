package proration

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"monotributo-control/internal/models"
)

func period2025(t *testing.T) models.ControlPeriod {
	t.Helper()
	p, err := models.NewControlPeriod(models.Date(2025, 1, 1), models.Date(2025, 12, 31))
	if err != nil {
		t.Fatalf("failed to build period: %v", err)
	}
	return p
}

func TestComputeWindow(t *testing.T) {
	period := period2025(t)

	tests := []struct {
		name          string
		start, end    time.Time
		wantBilling   int
		wantEffective int
		wantEffStart  time.Time
		wantEffEnd    time.Time
	}{
		{
			name:          "inside the period",
			start:         models.Date(2025, 3, 1),
			end:           models.Date(2025, 3, 31),
			wantBilling:   31,
			wantEffective: 31,
			wantEffStart:  models.Date(2025, 3, 1),
			wantEffEnd:    models.Date(2025, 3, 31),
		},
		{
			name:          "straddles the start",
			start:         models.Date(2024, 12, 15),
			end:           models.Date(2025, 1, 15),
			wantBilling:   32,
			wantEffective: 15,
			wantEffStart:  models.Date(2025, 1, 1),
			wantEffEnd:    models.Date(2025, 1, 15),
		},
		{
			name:          "straddles the end",
			start:         models.Date(2025, 12, 20),
			end:           models.Date(2026, 1, 19),
			wantBilling:   31,
			wantEffective: 12,
			wantEffStart:  models.Date(2025, 12, 20),
			wantEffEnd:    models.Date(2025, 12, 31),
		},
		{
			name:          "single day",
			start:         models.Date(2025, 6, 1),
			end:           models.Date(2025, 6, 1),
			wantBilling:   1,
			wantEffective: 1,
			wantEffStart:  models.Date(2025, 6, 1),
			wantEffEnd:    models.Date(2025, 6, 1),
		},
		{
			name:          "before the period",
			start:         models.Date(2024, 11, 1),
			end:           models.Date(2024, 11, 30),
			wantBilling:   30,
			wantEffective: 0,
			wantEffStart:  models.Date(2025, 1, 1),
			wantEffEnd:    models.Date(2025, 1, 1),
		},
		{
			name:          "day before the period",
			start:         models.Date(2024, 12, 31),
			end:           models.Date(2024, 12, 31),
			wantBilling:   1,
			wantEffective: 0,
			wantEffStart:  models.Date(2025, 1, 1),
			wantEffEnd:    models.Date(2025, 1, 1),
		},
		{
			name:          "after the period",
			start:         models.Date(2026, 2, 1),
			end:           models.Date(2026, 2, 28),
			wantBilling:   28,
			wantEffective: 0,
			wantEffStart:  models.Date(2026, 2, 1),
			wantEffEnd:    models.Date(2026, 2, 1),
		},
		{
			name:          "covers the whole period",
			start:         models.Date(2024, 7, 1),
			end:           models.Date(2026, 6, 30),
			wantBilling:   730,
			wantEffective: 365,
			wantEffStart:  models.Date(2025, 1, 1),
			wantEffEnd:    models.Date(2025, 12, 31),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ComputeWindow(tt.start, tt.end, period)
			if w.BillingDays != tt.wantBilling {
				t.Errorf("expected billing days %d, got %d", tt.wantBilling, w.BillingDays)
			}
			if w.EffectiveDays != tt.wantEffective {
				t.Errorf("expected effective days %d, got %d", tt.wantEffective, w.EffectiveDays)
			}
			if !w.EffectiveStart.Equal(tt.wantEffStart) {
				t.Errorf("expected effective start %v, got %v", tt.wantEffStart, w.EffectiveStart)
			}
			if !w.EffectiveEnd.Equal(tt.wantEffEnd) {
				t.Errorf("expected effective end %v, got %v", tt.wantEffEnd, w.EffectiveEnd)
			}
			if w.Overlaps() != (tt.wantEffective > 0) {
				t.Errorf("unexpected Overlaps() = %v", w.Overlaps())
			}
		})
	}
}

func TestComputeWindow_Properties(t *testing.T) {
	period := period2025(t)
	base := models.Date(2024, 10, 1)

	for offset := 0; offset < 500; offset += 7 {
		for length := 0; length < 120; length += 11 {
			start := base.AddDate(0, 0, offset)
			end := start.AddDate(0, 0, length)
			w := ComputeWindow(start, end, period)

			if w.BillingDays < 1 {
				t.Fatalf("billing days below 1 for %v..%v", start, end)
			}
			if w.EffectiveDays < 0 || w.EffectiveDays > w.BillingDays {
				t.Fatalf("effective days %d out of [0, %d] for %v..%v", w.EffectiveDays, w.BillingDays, start, end)
			}
			if w.EffectiveEnd.Before(w.EffectiveStart) {
				t.Fatalf("effective end before start for %v..%v", start, end)
			}

			total := decimal.NewFromInt(1000)
			got := Apportion(total, w)
			want := total.Mul(decimal.NewFromInt(int64(w.EffectiveDays))).Div(decimal.NewFromInt(int64(w.BillingDays)))
			if !got.Equal(want) {
				t.Fatalf("apportioned %s, expected %s", got, want)
			}
			if got.GreaterThan(total) {
				t.Fatalf("apportioned %s exceeds total", got)
			}
		}
	}
}

func TestApportion_Scenarios(t *testing.T) {
	period := period2025(t)

	tests := []struct {
		name       string
		start, end time.Time
		total      decimal.Decimal
		want       decimal.Decimal
	}{
		{
			name:  "billing inside the period keeps the total",
			start: models.Date(2025, 4, 1),
			end:   models.Date(2025, 4, 30),
			total: decimal.RequireFromString("12345.67"),
			want:  decimal.RequireFromString("12345.67"),
		},
		{
			name:  "unmatched invoice emitted inside the period",
			start: models.Date(2025, 5, 10),
			end:   models.Date(2025, 5, 10),
			total: decimal.NewFromInt(800),
			want:  decimal.NewFromInt(800),
		},
		{
			name:  "unmatched invoice emitted outside the period",
			start: models.Date(2024, 5, 10),
			end:   models.Date(2024, 5, 10),
			total: decimal.NewFromInt(800),
			want:  decimal.Zero,
		},
		{
			name:  "billing straddling the period start",
			start: models.Date(2024, 12, 15),
			end:   models.Date(2025, 1, 15),
			total: decimal.NewFromInt(3100),
			want:  decimal.RequireFromString("1453.125"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Apportion(tt.total, ComputeWindow(tt.start, tt.end, period))
			if !got.Equal(tt.want) {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestCreditNotePolicy(t *testing.T) {
	total := decimal.NewFromInt(500)

	tests := []struct {
		name    string
		policy  CreditNotePolicy
		docType int
		total   decimal.Decimal
		want    decimal.Decimal
	}{
		{"as reported credit note", CreditNotesAsReported, 13, total, total},
		{"negate credit note", CreditNotesNegate, 13, total, total.Neg()},
		{"negate already negative", CreditNotesNegate, 3, total.Neg(), total.Neg()},
		{"negate invoice untouched", CreditNotesNegate, 11, total, total},
		{"negate electronic credit note", CreditNotesNegate, 213, total, total.Neg()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.SignedTotal(tt.docType, tt.total); !got.Equal(tt.want) {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestParseCreditNotePolicy(t *testing.T) {
	tests := []struct {
		input   string
		want    CreditNotePolicy
		wantErr bool
	}{
		{"", CreditNotesAsReported, false},
		{"as_reported", CreditNotesAsReported, false},
		{" NEGATE ", CreditNotesNegate, false},
		{"flip", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCreditNotePolicy(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCreditNotePolicy() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestProrater_Apply(t *testing.T) {
	records := []*models.ConsolidatedRecord{
		{
			InvoiceRecord: models.InvoiceRecord{DocumentType: 11, Total: decimal.NewFromInt(3100)},
			BillingStart:  models.Date(2024, 12, 15),
			BillingEnd:    models.Date(2025, 1, 15),
		},
		{
			InvoiceRecord: models.InvoiceRecord{DocumentType: 11, Total: decimal.NewFromInt(200)},
			BillingStart:  models.Date(2025, 2, 1),
			BillingEnd:    models.Date(2025, 2, 1),
		},
		{
			InvoiceRecord: models.InvoiceRecord{DocumentType: 13, Total: decimal.NewFromInt(100)},
			BillingStart:  models.Date(2025, 3, 1),
			BillingEnd:    models.Date(2025, 3, 1),
		},
		{
			InvoiceRecord: models.InvoiceRecord{DocumentType: 11, Total: decimal.NewFromInt(999)},
			BillingStart:  models.Date(2026, 3, 1),
			BillingEnd:    models.Date(2026, 3, 1),
		},
	}

	stats := NewProrater(period2025(t), CreditNotesNegate).Apply(records)

	if stats.Records != 4 || stats.Full != 2 || stats.Partial != 1 || stats.Outside != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.CreditNotes != 1 {
		t.Errorf("expected 1 credit note, got %d", stats.CreditNotes)
	}
	if !records[0].Apportioned.Equal(decimal.RequireFromString("1453.125")) {
		t.Errorf("expected 1453.125, got %s", records[0].Apportioned)
	}
	if records[0].BillingDays != 32 || records[0].EffectiveDays != 15 {
		t.Errorf("expected 32/15 days, got %d/%d", records[0].BillingDays, records[0].EffectiveDays)
	}
	if !records[2].Apportioned.Equal(decimal.NewFromInt(-100)) {
		t.Errorf("expected negated credit note, got %s", records[2].Apportioned)
	}
	if !records[2].Total.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected reported total untouched, got %s", records[2].Total)
	}
	if !records[3].Apportioned.IsZero() {
		t.Errorf("expected zero outside the period, got %s", records[3].Apportioned)
	}
	want := decimal.RequireFromString("1553.125")
	if !stats.Apportioned.Equal(want) {
		t.Errorf("expected apportioned sum %s, got %s", want, stats.Apportioned)
	}
}
