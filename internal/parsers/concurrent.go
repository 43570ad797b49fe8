package parsers

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"

	"monotributo-control/internal/models"
	"monotributo-control/pkg/errors"
	"monotributo-control/pkg/logger"
)

// Loader reads many input files on a bounded worker pool. Files are
// independent; results are put back in path order so a run is repeatable.
type Loader struct {
	fs       afero.Fs
	config   *LoaderConfig
	invoices *InvoiceParser
	metadata *MetadataParser
	progress logger.ProgressFunc
	logger   logger.Logger
}

// NewLoader creates a Loader reading from fs
func NewLoader(fs afero.Fs, config *LoaderConfig) (*Loader, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if config == nil {
		config = DefaultLoaderConfig()
	}

	invoices, err := NewInvoiceParser(fs, config)
	if err != nil {
		return nil, err
	}
	metadata, err := NewMetadataParser(fs, config)
	if err != nil {
		return nil, err
	}

	return &Loader{
		fs:       fs,
		config:   config,
		invoices: invoices,
		metadata: metadata,
		logger:   logger.GetGlobalLogger().WithComponent("loader"),
	}, nil
}

// SetProgressCallback sets a function called after every loaded file
func (l *Loader) SetProgressCallback(fn logger.ProgressFunc) {
	l.progress = fn
}

// InvoiceLoadResult is the outcome of loading a set of export files
type InvoiceLoadResult struct {
	Records  []*models.InvoiceRecord
	Files    int
	Failed   int
	Problems []*errors.ControlError
}

// MetadataLoadResult is the outcome of loading a set of metadata files
type MetadataLoadResult struct {
	Metadata []*models.InvoiceMetadata
	Files    int
	Failed   int
	Problems []*errors.ControlError
}

type invoiceFileResult struct {
	path     string
	records  []*models.InvoiceRecord
	problems []*errors.ControlError
	failed   bool
}

type metadataFileResult struct {
	path     string
	meta     *models.InvoiceMetadata
	problems []*errors.ControlError
}

// LoadInvoices parses every export file. A failing file contributes a
// problem and no rows; the other files are unaffected.
func (l *Loader) LoadInvoices(ctx context.Context, paths []string) (*InvoiceLoadResult, error) {
	tracker := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: "load_exports",
		Total:     len(paths),
		Logger:    l.logger,
		Callback:  l.progress,
	})

	p := pool.NewWithResults[invoiceFileResult]().WithMaxGoroutines(l.config.Workers)
	for _, path := range paths {
		p.Go(func() invoiceFileResult {
			defer tracker.Increment()
			result := invoiceFileResult{path: path}
			records, stats, err := l.invoices.ParseFile(ctx, path)
			if err != nil {
				result.failed = true
				result.problems = append(result.problems, asProblem(err, path))
			}
			if stats != nil {
				result.problems = append(result.problems, stats.Problems...)
			}
			result.records = records
			return result
		})
	}
	results := p.Wait()
	tracker.Complete()

	if err := ctx.Err(); err != nil {
		return nil, errors.InternalError(errors.CodeCancelled, "loading exports", err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].path < results[j].path })

	out := &InvoiceLoadResult{Files: len(paths)}
	for _, r := range results {
		out.Records = append(out.Records, r.records...)
		out.Problems = append(out.Problems, r.problems...)
		if r.failed {
			out.Failed++
		}
	}

	l.logger.WithFields(logger.Fields{
		"files":    out.Files,
		"failed":   out.Failed,
		"records":  len(out.Records),
		"problems": len(out.Problems),
	}).Info("Exports loaded")

	return out, nil
}

// LoadMetadata parses every metadata document
func (l *Loader) LoadMetadata(ctx context.Context, paths []string) (*MetadataLoadResult, error) {
	tracker := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: "load_metadata",
		Total:     len(paths),
		Logger:    l.logger,
		Callback:  l.progress,
	})

	p := pool.NewWithResults[metadataFileResult]().WithMaxGoroutines(l.config.Workers)
	for _, path := range paths {
		p.Go(func() metadataFileResult {
			defer tracker.Increment()
			meta, err := l.metadata.ParseFile(ctx, path)
			if err != nil {
				return metadataFileResult{path: path, problems: []*errors.ControlError{asProblem(err, path)}}
			}
			return metadataFileResult{path: path, meta: meta}
		})
	}
	results := p.Wait()
	tracker.Complete()

	if err := ctx.Err(); err != nil {
		return nil, errors.InternalError(errors.CodeCancelled, "loading metadata", err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].path < results[j].path })

	out := &MetadataLoadResult{Files: len(paths)}
	for _, r := range results {
		if r.meta != nil {
			out.Metadata = append(out.Metadata, r.meta)
		} else {
			out.Failed++
		}
		out.Problems = append(out.Problems, r.problems...)
	}

	l.logger.WithFields(logger.Fields{
		"files":    out.Files,
		"failed":   out.Failed,
		"problems": len(out.Problems),
	}).Info("Metadata loaded")

	return out, nil
}

func asProblem(err error, path string) *errors.ControlError {
	return errors.WrapIfNeeded(err, errors.CategoryFile, errors.CodeFileCorrupted, "cannot read "+path).
		WithContext("file", path)
}

// DiscoverExports lists the export CSVs under root: any .csv file inside a
// directory named "extraido", at any depth.
func DiscoverExports(fs afero.Fs, root string) ([]string, error) {
	return discover(fs, root, func(path string) bool {
		return strings.EqualFold(filepath.Ext(path), ".csv") &&
			strings.EqualFold(filepath.Base(filepath.Dir(path)), "extraido")
	})
}

// DiscoverMetadata lists every .json file under root
func DiscoverMetadata(fs afero.Fs, root string) ([]string, error) {
	return discover(fs, root, func(path string) bool {
		return strings.EqualFold(filepath.Ext(path), ".json")
	})
}

func discover(fs afero.Fs, root string, match func(string) bool) ([]string, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}

	info, err := fs.Stat(root)
	if err != nil {
		return nil, errors.FileError(errors.CodeDirectoryError, root, err)
	}
	if !info.IsDir() {
		return nil, errors.FileError(errors.CodeDirectoryError, root, nil).
			WithSuggestion("point the input setting at a directory, not a file")
	}

	var paths []string
	err = afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && match(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.FileError(errors.CodeDirectoryError, root, err)
	}

	sort.Strings(paths)
	return paths, nil
}
