package matcher

import (
	"fmt"
	"sort"
	"strings"

	"monotributo-control/internal/models"
	"monotributo-control/pkg/errors"
)

// RecordDuplicateGroup is a set of export rows sharing one key and kind.
// This happens when exports with overlapping periods are both downloaded.
type RecordDuplicateGroup struct {
	Key     models.CompositeKey
	Kind    models.ExportKind
	Records []*models.ConsolidatedRecord
}

// Problem returns the warning describing the group
func (g RecordDuplicateGroup) Problem() *errors.ControlError {
	locations := make([]string, len(g.Records))
	for i, r := range g.Records {
		locations[i] = fmt.Sprintf("%s:%d", r.SourceFile, r.Line)
	}
	return errors.ReconciliationError(errors.CodeDuplicateRow, g.Key.String(), nil).
		WithContext("kind", g.Kind.String()).
		WithContext("count", len(g.Records)).
		WithContext("rows", strings.Join(locations, ", ")).
		WithContext("file", g.Records[0].SourceFile)
}

// DetectDuplicateRecords finds export rows of the same kind sharing a key.
// Rows stay in the join output; only a warning is raised.
func DetectDuplicateRecords(records []*models.ConsolidatedRecord) []RecordDuplicateGroup {
	type groupKey struct {
		key  models.CompositeKey
		kind models.ExportKind
	}

	seen := make(map[groupKey][]*models.ConsolidatedRecord)
	for _, r := range records {
		if !r.KeyValid {
			continue
		}
		k := groupKey{key: r.Key, kind: r.Kind}
		seen[k] = append(seen[k], r)
	}

	var groups []RecordDuplicateGroup
	for k, rows := range seen {
		if len(rows) > 1 {
			groups = append(groups, RecordDuplicateGroup{Key: k.key, Kind: k.kind, Records: rows})
		}
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Key != groups[j].Key {
			return groups[i].Key < groups[j].Key
		}
		return groups[i].Kind.Order() < groups[j].Kind.Order()
	})

	return groups
}
