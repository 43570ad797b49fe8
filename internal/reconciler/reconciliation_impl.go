package reconciler

import (
	"context"
	"fmt"

	"monotributo-control/internal/aggregator"
	"monotributo-control/internal/matcher"
	"monotributo-control/internal/models"
	"monotributo-control/internal/parsers"
	"monotributo-control/internal/proration"
	"monotributo-control/pkg/errors"
	"monotributo-control/pkg/logger"
)

// Run performs a complete control run without progress reporting
func (s *ControlService) Run(ctx context.Context, req *RunRequest) (*RunResult, error) {
	orchestrator, err := NewOrchestrator(s)
	if err != nil {
		return nil, err
	}
	return orchestrator.Process(ctx, req)
}

// inputFiles is the resolved file list of a run
type inputFiles struct {
	exports  []string
	metadata []string
	problems []*errors.ControlError
}

// discoverInputs resolves the export and metadata files of a request.
// Explicit lists win over discovery. Without exports there is nothing to
// control and the run aborts; an unreadable RCEL directory is recorded as
// a problem and the run goes on with every row unmatched.
func (s *ControlService) discoverInputs(req *RunRequest) (*inputFiles, error) {
	files := &inputFiles{
		exports:  req.ExportFiles,
		metadata: req.MetadataFiles,
	}

	if len(files.exports) == 0 {
		found, err := parsers.DiscoverExports(s.fs, req.MCDir)
		if err != nil {
			return nil, err
		}
		files.exports = found
	}
	if len(files.exports) == 0 {
		return nil, errors.FileError(errors.CodeFileNotFound, req.MCDir,
			fmt.Errorf("no export CSV found in an extraido directory")).
			WithSuggestion("download the Mis Comprobantes exports into <client>/extraido/ folders")
	}

	if len(files.metadata) == 0 && req.RCELDir != "" {
		found, err := parsers.DiscoverMetadata(s.fs, req.RCELDir)
		if err != nil {
			files.problems = append(files.problems,
				errors.WrapIfNeeded(err, errors.CategoryFile, errors.CodeDirectoryError, "cannot list "+req.RCELDir))
		}
		files.metadata = found
	}
	if len(files.metadata) == 0 {
		s.logger.Warn("No metadata documents found; every invoice is billed on its emission date")
	}

	s.logger.WithFields(logger.Fields{
		"exports":  len(files.exports),
		"metadata": len(files.metadata),
	}).Info("Input files resolved")

	return files, nil
}

// loadCategories returns the request's table, reading it from disk when
// only a path was given
func (s *ControlService) loadCategories(req *RunRequest) (*models.CategoryTable, error) {
	if req.Categories != nil {
		if req.Categories.Len() == 0 {
			return nil, errors.ConfigurationError(errors.CodeMissingConfig, "categories", nil,
				fmt.Errorf("category table is empty"))
		}
		return req.Categories, nil
	}
	return s.categories.Load(req.CategoriesFile)
}

// loadExports parses the export files on the worker pool
func (s *ControlService) loadExports(ctx context.Context, paths []string) (*parsers.InvoiceLoadResult, error) {
	return s.loader.LoadInvoices(ctx, paths)
}

// loadMetadata parses the metadata documents on the worker pool
func (s *ControlService) loadMetadata(ctx context.Context, paths []string) (*parsers.MetadataLoadResult, error) {
	if len(paths) == 0 {
		return &parsers.MetadataLoadResult{}, nil
	}
	return s.loader.LoadMetadata(ctx, paths)
}

// join matches export rows against the metadata documents
func (s *ControlService) join(records []*models.InvoiceRecord, metadata []*models.InvoiceMetadata) (*matcher.Result, error) {
	result, err := s.matcherEngine(metadata).Reconcile(records)
	if err != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "join", err)
	}
	return result, nil
}

// prorate fills the effective window and apportioned amount of every row
func (s *ControlService) prorate(period models.ControlPeriod, records []*models.ConsolidatedRecord) proration.Stats {
	return proration.NewProrater(period, s.config.CreditNotes).Apply(records)
}

// aggregate builds and classifies the summary table
func (s *ControlService) aggregate(table *models.CategoryTable, records []*models.ConsolidatedRecord) (*aggregator.Result, error) {
	agg, err := aggregator.NewAggregator(table)
	if err != nil {
		return nil, err
	}
	return agg.Aggregate(records), nil
}

// stageResults carries the stage outputs a summary is built from
type stageResults struct {
	exports   *parsers.InvoiceLoadResult
	metadata  *parsers.MetadataLoadResult
	join      *matcher.Result
	proration proration.Stats
	aggregate *aggregator.Result
	problems  []*errors.ControlError
}

// summarize builds the run summary from the stage outputs
func summarize(st *stageResults) *RunSummary {
	summary := &RunSummary{
		TotalBilled:      st.proration.Total,
		TotalApportioned: st.proration.Apportioned,
		ByCategory:       make(map[string]int),
	}

	if st.exports != nil {
		summary.ExportFiles = st.exports.Files
		summary.ExportFilesFailed = st.exports.Failed
	}
	if st.metadata != nil {
		summary.MetadataFiles = st.metadata.Files
		summary.MetadataFilesFailed = st.metadata.Failed
	}
	if st.join != nil {
		js := st.join.Summary
		summary.Records = js.TotalRecords
		summary.Matched = js.Matched
		summary.Unmatched = js.Unmatched
		summary.MatchedWithoutPeriod = js.MatchedWithoutPeriod
		summary.Unmatchable = js.Unmatchable
		summary.DuplicateKeys = js.DuplicateKeys
		summary.UnusedMetadata = js.UnusedMetadata
	}

	summary.OutsidePeriod = st.proration.Outside
	summary.PartialPeriod = st.proration.Partial
	summary.CreditNotes = st.proration.CreditNotes
	summary.CreditPolicy = st.proration.CreditPolicy

	if st.aggregate != nil {
		summary.Clients = st.aggregate.Summary.Clients
		summary.Aggregates = st.aggregate.Summary.Aggregates
		summary.Unclassified = st.aggregate.Summary.Unclassified
		for label, n := range st.aggregate.Summary.ByCategory {
			summary.ByCategory[label] = n
		}
	}

	for _, p := range st.problems {
		if p.IsWarning() {
			summary.Warnings++
		} else {
			summary.Errors++
		}
	}

	return summary
}
