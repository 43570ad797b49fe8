// Package aggregator sums apportioned billing per client and export kind
// and classifies each sum against the category table.
package aggregator

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"monotributo-control/internal/models"
	"monotributo-control/pkg/errors"
	"monotributo-control/pkg/logger"
)

// Aggregator groups consolidated records and classifies the groups
type Aggregator struct {
	table  *models.CategoryTable
	logger logger.Logger
}

// Result is the summary table of a run
type Result struct {
	Aggregates []*models.ClientAggregate
	Unmatched  int
	Problems   []*errors.ControlError
	Summary    Summary
}

// Summary counts the rows of the summary table
type Summary struct {
	Clients      int             `json:"clients"`
	Aggregates   int             `json:"aggregates"`
	Classified   int             `json:"classified"`
	Unclassified int             `json:"unclassified"`
	Unmatched    int             `json:"unmatched"`
	Apportioned  decimal.Decimal `json:"apportioned"`
	ByCategory   map[string]int  `json:"by_category"`
}

// NewAggregator creates an Aggregator classifying against table
func NewAggregator(table *models.CategoryTable) (*Aggregator, error) {
	if table == nil || table.Len() == 0 {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "categories", nil,
			fmt.Errorf("category table is empty"))
	}
	return &Aggregator{
		table:  table,
		logger: logger.GetGlobalLogger().WithComponent("aggregator"),
	}, nil
}

type groupKey struct {
	cuit int64
	name string
	kind models.ExportKind
}

// Group sums records by (client CUIT, client name, export kind). Emitted
// and received exports of one client are separate rows. Output is sorted
// by client CUIT, then name, then kind with MCE first.
func Group(records []*models.ConsolidatedRecord) []*models.ClientAggregate {
	groups := make(map[groupKey]*models.ClientAggregate)
	for _, r := range records {
		k := groupKey{cuit: r.OwnerCUIT, name: r.ClientName, kind: r.Kind}
		agg, ok := groups[k]
		if !ok {
			agg = &models.ClientAggregate{
				ClientCUIT:  r.OwnerCUIT,
				ClientName:  r.ClientName,
				Kind:        r.Kind,
				Apportioned: decimal.Zero,
			}
			groups[k] = agg
		}
		agg.Apportioned = agg.Apportioned.Add(r.Apportioned)
		agg.Records++
		if !r.Matched {
			agg.Unmatched++
		}
	}

	out := make([]*models.ClientAggregate, 0, len(groups))
	for _, agg := range groups {
		out = append(out, agg)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ClientCUIT != b.ClientCUIT {
			return a.ClientCUIT < b.ClientCUIT
		}
		if a.ClientName != b.ClientName {
			return a.ClientName < b.ClientName
		}
		return a.Kind.Order() < b.Kind.Order()
	})
	return out
}

// CountUnmatched returns the number of records without metadata
func CountUnmatched(records []*models.ConsolidatedRecord) int {
	n := 0
	for _, r := range records {
		if !r.Matched {
			n++
		}
	}
	return n
}

// Aggregate groups the records and classifies every group. A sum above
// the highest bracket leaves the row unclassified and adds a problem.
func (a *Aggregator) Aggregate(records []*models.ConsolidatedRecord) *Result {
	result := &Result{
		Aggregates: Group(records),
		Unmatched:  CountUnmatched(records),
	}
	result.Summary = Summary{
		Aggregates:  len(result.Aggregates),
		Unmatched:   result.Unmatched,
		Apportioned: decimal.Zero,
		ByCategory:  make(map[string]int),
	}

	clients := make(map[int64]bool)
	for _, agg := range result.Aggregates {
		clients[agg.ClientCUIT] = true
		result.Summary.Apportioned = result.Summary.Apportioned.Add(agg.Apportioned)

		label, ok := a.table.Classify(agg.Apportioned)
		agg.Category = label
		agg.Classified = ok
		if !ok {
			result.Summary.Unclassified++
			result.Problems = append(result.Problems,
				errors.ClassificationError(agg.ClientName, agg.Kind.String(), agg.Apportioned.StringFixed(2)).
					WithContext("client_cuit", agg.ClientCUIT).
					WithContext("max_bracket", a.table.Max().StringFixed(2)))
			continue
		}
		result.Summary.Classified++
		result.Summary.ByCategory[label]++
	}
	result.Summary.Clients = len(clients)

	a.logger.WithFields(logger.Fields{
		"aggregates":   result.Summary.Aggregates,
		"clients":      result.Summary.Clients,
		"unclassified": result.Summary.Unclassified,
		"unmatched":    result.Unmatched,
	}).Info("Billing aggregated")

	return result
}
