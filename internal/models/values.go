package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the layout used when writing dates
const DateLayout = "2006-01-02"

var dateLayouts = []string{
	DateLayout,
	"02/01/2006",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04:05",
}

// ParseDate parses a calendar date in ISO or Argentine (DD/MM/YYYY) form.
// The result is midnight UTC so day arithmetic is exact.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return Day(t), nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// Day truncates t to its calendar date at midnight UTC
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Date builds a calendar date
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of whole days from a to b (b - a)
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// FormatDate formats a date as YYYY-MM-DD; zero dates format as ""
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// ParseAmount parses an amount as written in the exports: comma decimal
// separator with optional dot thousands ("1.234,56"). Values without a comma
// are read as plain decimals.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	clean := strings.ReplaceAll(s, "$", "")
	clean = strings.ReplaceAll(clean, " ", "")
	if strings.Contains(clean, ",") {
		clean = strings.ReplaceAll(clean, ".", "")
		clean = strings.Replace(clean, ",", ".", 1)
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount format '%s': %w", s, err)
	}
	return d, nil
}

// ControlPeriod is the global date range billing is prorated against
type ControlPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewControlPeriod validates and builds a control period
func NewControlPeriod(start, end time.Time) (ControlPeriod, error) {
	if start.IsZero() || end.IsZero() {
		return ControlPeriod{}, fmt.Errorf("control period needs both a start and an end date")
	}
	start, end = Day(start), Day(end)
	if start.After(end) {
		return ControlPeriod{}, fmt.Errorf("control period start %s is after its end %s",
			FormatDate(start), FormatDate(end))
	}
	return ControlPeriod{Start: start, End: end}, nil
}

// Contains reports whether the date falls inside the period, bounds included
func (p ControlPeriod) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(p.Start) && !d.After(p.End)
}

// Days returns the inclusive length of the period in days
func (p ControlPeriod) Days() int {
	return DaysBetween(p.Start, p.End) + 1
}

// String returns the period as "start..end"
func (p ControlPeriod) String() string {
	return FormatDate(p.Start) + ".." + FormatDate(p.End)
}

// CategoryBracket is one row of the category table: aggregates up to and
// including UpperBound fall in Label.
type CategoryBracket struct {
	UpperBound decimal.Decimal `json:"upper_bound" yaml:"upper_bound"`
	Label      string          `json:"label" yaml:"label"`
}

// CategoryTable is an immutable, ascending list of brackets
type CategoryTable struct {
	brackets []CategoryBracket
}

// NewCategoryTable validates the brackets and sorts them by upper bound
func NewCategoryTable(brackets []CategoryBracket) (*CategoryTable, error) {
	if len(brackets) == 0 {
		return nil, fmt.Errorf("category table is empty")
	}

	sorted := make([]CategoryBracket, len(brackets))
	copy(sorted, brackets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UpperBound.LessThan(sorted[j].UpperBound)
	})

	for i, b := range sorted {
		if strings.TrimSpace(b.Label) == "" {
			return nil, fmt.Errorf("bracket with upper bound %s has no label", b.UpperBound.String())
		}
		if b.UpperBound.IsNegative() {
			return nil, fmt.Errorf("bracket %s has a negative upper bound", b.Label)
		}
		if i > 0 && sorted[i-1].UpperBound.Equal(b.UpperBound) {
			return nil, fmt.Errorf("brackets %s and %s share upper bound %s",
				sorted[i-1].Label, b.Label, b.UpperBound.String())
		}
		sorted[i].Label = strings.TrimSpace(b.Label)
	}

	return &CategoryTable{brackets: sorted}, nil
}

// Classify returns the label of the first bracket whose upper bound is
// greater than or equal to x. ok is false when x exceeds every bracket.
func (t *CategoryTable) Classify(x decimal.Decimal) (label string, ok bool) {
	i := sort.Search(len(t.brackets), func(i int) bool {
		return t.brackets[i].UpperBound.GreaterThanOrEqual(x)
	})
	if i == len(t.brackets) {
		return "", false
	}
	return t.brackets[i].Label, true
}

// Brackets returns a copy of the brackets in ascending order
func (t *CategoryTable) Brackets() []CategoryBracket {
	out := make([]CategoryBracket, len(t.brackets))
	copy(out, t.brackets)
	return out
}

// Len returns the number of brackets
func (t *CategoryTable) Len() int {
	return len(t.brackets)
}

// Max returns the highest upper bound in the table
func (t *CategoryTable) Max() decimal.Decimal {
	return t.brackets[len(t.brackets)-1].UpperBound
}
