// Package matcher joins Mis Comprobantes export rows with RCEL metadata.
//
// Both sources identify an invoice by the composite key
// CUIT-TTT-PPPPP-NNNNNNNN built from the owner CUIT, the document type,
// the point of sale and the first invoice number. The join is a left outer
// join: every export row comes out exactly once, matched or not.
//
// Example usage:
//
//	engine := matcher.NewEngine()
//	engine.LoadMetadata(metadata)
//	result, err := engine.Reconcile(records)
package matcher

import (
	"fmt"

	"monotributo-control/internal/models"
	"monotributo-control/pkg/errors"
)

// Engine holds the metadata index a run joins against
type Engine struct {
	Index *MetadataIndex
}

// Result is the outcome of a join
type Result struct {
	Records        []*models.ConsolidatedRecord
	UnusedMetadata []*models.InvoiceMetadata
	Problems       []*errors.ControlError
	Summary        Summary
}

// Summary counts the rows of a join
type Summary struct {
	TotalRecords         int `json:"total_records"`
	Matched              int `json:"matched"`
	Unmatched            int `json:"unmatched"`
	MatchedWithoutPeriod int `json:"matched_without_period"`
	Unmatchable          int `json:"unmatchable"`
	MetadataDocuments    int `json:"metadata_documents"`
	UnusedMetadata       int `json:"unused_metadata"`
	DuplicateKeys        int `json:"duplicate_keys"`
}

// NewEngine creates an engine with no metadata loaded
func NewEngine() *Engine {
	return &Engine{}
}

// LoadMetadata indexes the metadata documents
func (e *Engine) LoadMetadata(metadata []*models.InvoiceMetadata) {
	e.Index = NewMetadataIndex(metadata)
}

// Reconcile joins records against the loaded metadata
func (e *Engine) Reconcile(records []*models.InvoiceRecord) (*Result, error) {
	if e.Index == nil {
		return nil, fmt.Errorf("metadata must be loaded before reconciliation")
	}
	return Reconcile(records, e.Index), nil
}

// Reconcile performs the left outer join. Output order follows records.
//
// A matched document with both Desde and Hasta supplies the billing period.
// Otherwise the period is the emission date alone; a matched document
// without a complete period still counts as matched.
func Reconcile(records []*models.InvoiceRecord, index *MetadataIndex) *Result {
	if index == nil {
		index = NewMetadataIndex(nil)
	}

	result := &Result{
		Records: make([]*models.ConsolidatedRecord, 0, len(records)),
	}
	result.Problems = append(result.Problems, index.Problems()...)
	used := make(map[models.CompositeKey]bool, index.Len())

	for _, r := range records {
		if r == nil {
			continue
		}
		c := &models.ConsolidatedRecord{
			InvoiceRecord: *r,
			BillingStart:  models.Day(r.EmissionDate),
			BillingEnd:    models.Day(r.EmissionDate),
		}

		key, err := RecordKey(r)
		if err != nil {
			result.Summary.Unmatchable++
			result.Problems = append(result.Problems,
				errors.ReconciliationError(errors.CodeMalformedKey, r.String(), err).
					WithContext("file", r.SourceFile).
					WithContext("line", r.Line))
		} else {
			c.Key = key
			c.KeyValid = true
			if m, ok := index.Lookup(key); ok {
				used[key] = true
				c.Matched = true
				c.MetadataFile = m.SourceFile
				if m.HasBillingPeriod() {
					c.BillingStart = m.BillingStart
					c.BillingEnd = m.BillingEnd
				} else {
					result.Summary.MatchedWithoutPeriod++
				}
			}
		}

		if c.Matched {
			result.Summary.Matched++
		} else {
			result.Summary.Unmatched++
		}
		result.Records = append(result.Records, c)
	}

	for _, key := range index.Keys() {
		if !used[key] {
			m, _ := index.Lookup(key)
			result.UnusedMetadata = append(result.UnusedMetadata, m)
		}
	}

	duplicates := DetectDuplicateRecords(result.Records)
	for _, group := range duplicates {
		result.Problems = append(result.Problems, group.Problem())
	}

	result.Summary.TotalRecords = len(result.Records)
	result.Summary.MetadataDocuments = index.Len()
	result.Summary.UnusedMetadata = len(result.UnusedMetadata)
	result.Summary.DuplicateKeys = len(index.Duplicates())

	return result
}
