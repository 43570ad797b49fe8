package matcher

import (
	"sort"
	"strings"

	"monotributo-control/internal/models"
	"monotributo-control/pkg/errors"
)

// MetadataIndex maps composite keys to metadata documents. The first
// document seen for a key wins; later ones are recorded as duplicates.
type MetadataIndex struct {
	byKey      map[models.CompositeKey]*models.InvoiceMetadata
	order      []models.CompositeKey
	duplicates map[models.CompositeKey][]string
	problems   []*errors.ControlError
}

// DuplicateGroup lists the files sharing one key, the used one first
type DuplicateGroup struct {
	Key   models.CompositeKey
	Files []string
}

// NewMetadataIndex indexes metadata in the given order
func NewMetadataIndex(metadata []*models.InvoiceMetadata) *MetadataIndex {
	idx := &MetadataIndex{
		byKey:      make(map[models.CompositeKey]*models.InvoiceMetadata, len(metadata)),
		duplicates: make(map[models.CompositeKey][]string),
	}

	for _, m := range metadata {
		if m == nil {
			continue
		}
		key, err := MetadataKey(m)
		if err != nil {
			idx.problems = append(idx.problems,
				errors.ReconciliationError(errors.CodeMalformedKey, m.SourceFile, err).
					WithContext("file", m.SourceFile))
			continue
		}
		if first, exists := idx.byKey[key]; exists {
			if len(idx.duplicates[key]) == 0 {
				idx.duplicates[key] = []string{first.SourceFile}
			}
			idx.duplicates[key] = append(idx.duplicates[key], m.SourceFile)
			continue
		}
		idx.byKey[key] = m
		idx.order = append(idx.order, key)
	}

	for _, group := range idx.Duplicates() {
		idx.problems = append(idx.problems,
			errors.ReconciliationError(errors.CodeDuplicateKey, group.Key.String(), nil).
				WithContext("count", len(group.Files)).
				WithContext("files", strings.Join(group.Files, ", ")).
				WithContext("file", group.Files[0]))
	}

	return idx
}

// Lookup returns the metadata indexed under key
func (idx *MetadataIndex) Lookup(key models.CompositeKey) (*models.InvoiceMetadata, bool) {
	m, ok := idx.byKey[key]
	return m, ok
}

// Len returns the number of distinct keys
func (idx *MetadataIndex) Len() int {
	return len(idx.byKey)
}

// Keys returns the indexed keys in insertion order
func (idx *MetadataIndex) Keys() []models.CompositeKey {
	out := make([]models.CompositeKey, len(idx.order))
	copy(out, idx.order)
	return out
}

// Duplicates returns every key seen more than once, sorted by key
func (idx *MetadataIndex) Duplicates() []DuplicateGroup {
	groups := make([]DuplicateGroup, 0, len(idx.duplicates))
	for key, files := range idx.duplicates {
		groups = append(groups, DuplicateGroup{Key: key, Files: files})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	return groups
}

// Problems returns the warnings raised while indexing
func (idx *MetadataIndex) Problems() []*errors.ControlError {
	return idx.problems
}
