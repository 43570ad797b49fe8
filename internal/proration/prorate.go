package proration

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"monotributo-control/internal/models"
	"monotributo-control/pkg/logger"
)

// CreditNotePolicy decides the sign of credit-note totals
type CreditNotePolicy string

const (
	// CreditNotesAsReported keeps totals exactly as exported
	CreditNotesAsReported CreditNotePolicy = "as_reported"
	// CreditNotesNegate forces credit-note totals negative
	CreditNotesNegate CreditNotePolicy = "negate"
)

// creditNoteTypes are the AFIP document types of credit notes (A, B, C, M,
// and the electronic credit invoice variants).
var creditNoteTypes = map[int]bool{
	3:   true,
	8:   true,
	13:  true,
	53:  true,
	203: true,
	208: true,
	213: true,
}

// IsCreditNote reports whether the document type is a credit note
func IsCreditNote(documentType int) bool {
	return creditNoteTypes[documentType]
}

// ParseCreditNotePolicy parses a policy name from configuration
func ParseCreditNotePolicy(s string) (CreditNotePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(CreditNotesAsReported):
		return CreditNotesAsReported, nil
	case string(CreditNotesNegate):
		return CreditNotesNegate, nil
	default:
		return "", fmt.Errorf("invalid credit note policy '%s': must be as_reported or negate", s)
	}
}

// SignedTotal applies the policy to a record total
func (p CreditNotePolicy) SignedTotal(documentType int, total decimal.Decimal) decimal.Decimal {
	if p == CreditNotesNegate && IsCreditNote(documentType) {
		return total.Abs().Neg()
	}
	return total
}

// Apportion returns total * effective_days / billing_days. A window with
// no overlap apportions nothing.
func Apportion(total decimal.Decimal, w Window) decimal.Decimal {
	if w.EffectiveDays <= 0 || w.BillingDays <= 0 {
		return decimal.Zero
	}
	return total.Mul(decimal.NewFromInt(int64(w.EffectiveDays))).
		Div(decimal.NewFromInt(int64(w.BillingDays)))
}

// Prorater applies windows and apportioned amounts to joined records
type Prorater struct {
	period models.ControlPeriod
	policy CreditNotePolicy
	logger logger.Logger
}

// Stats counts how records fell against the control period
type Stats struct {
	Records      int             `json:"records"`
	Full         int             `json:"full"`
	Partial      int             `json:"partial"`
	Outside      int             `json:"outside"`
	CreditNotes  int             `json:"credit_notes"`
	Total        decimal.Decimal `json:"total"`
	Apportioned  decimal.Decimal `json:"apportioned"`
	CreditPolicy string          `json:"credit_policy"`
}

// NewProrater creates a Prorater for the control period
func NewProrater(period models.ControlPeriod, policy CreditNotePolicy) *Prorater {
	if policy == "" {
		policy = CreditNotesAsReported
	}
	return &Prorater{
		period: period,
		policy: policy,
		logger: logger.GetGlobalLogger().WithComponent("prorater"),
	}
}

// Apply fills the window and apportioned fields of every record in place
func (p *Prorater) Apply(records []*models.ConsolidatedRecord) Stats {
	stats := Stats{
		Total:        decimal.Zero,
		Apportioned:  decimal.Zero,
		CreditPolicy: string(p.policy),
	}

	for _, r := range records {
		w := ComputeWindow(r.BillingStart, r.BillingEnd, p.period)
		r.EffectiveStart = w.EffectiveStart
		r.EffectiveEnd = w.EffectiveEnd
		r.BillingDays = w.BillingDays
		r.EffectiveDays = w.EffectiveDays

		if IsCreditNote(r.DocumentType) {
			stats.CreditNotes++
		}
		total := p.policy.SignedTotal(r.DocumentType, r.Total)
		r.Apportioned = Apportion(total, w)

		switch {
		case w.EffectiveDays == 0:
			stats.Outside++
		case w.EffectiveDays == w.BillingDays:
			stats.Full++
		default:
			stats.Partial++
		}
		stats.Records++
		stats.Total = stats.Total.Add(total)
		stats.Apportioned = stats.Apportioned.Add(r.Apportioned)
	}

	p.logger.WithFields(logger.Fields{
		"period":       p.period.String(),
		"records":      stats.Records,
		"full":         stats.Full,
		"partial":      stats.Partial,
		"outside":      stats.Outside,
		"credit_notes": stats.CreditNotes,
		"policy":       stats.CreditPolicy,
	}).Debug("Records prorated")

	return stats
}
