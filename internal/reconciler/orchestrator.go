// Package reconciler runs the monotributo control pipeline.
//
// A run discovers the Mis Comprobantes exports and the RCEL metadata
// documents, loads them on a worker pool, joins them by composite key,
// prorates every invoice against the control period and classifies the
// per-client sums against the category table.
//
// Example usage:
//
//	service, err := reconciler.NewControlService(afero.NewOsFs(), reconciler.DefaultConfig())
//	orchestrator, err := reconciler.NewOrchestrator(service)
//	orchestrator.AddProgressCallback(func(p *reconciler.RunProgress) {
//		fmt.Printf("%.0f%% %s\n", p.PercentComplete, p.CurrentStep)
//	})
//	result, err := orchestrator.Process(ctx, &reconciler.RunRequest{
//		MCDir:          "descargas_mis_comprobantes",
//		RCELDir:        "descargas_rcel",
//		Period:         period,
//		CategoriesFile: "configs/categorias.yaml",
//	})
package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"monotributo-control/pkg/errors"
	"monotributo-control/pkg/logger"
)

// Pipeline steps in execution order
const (
	StepValidate     = "Validating request"
	StepDiscover     = "Discovering input files"
	StepLoadExports  = "Loading exports"
	StepLoadMetadata = "Loading metadata"
	StepPreprocess   = "Checking export rows"
	StepJoin         = "Joining with metadata"
	StepProrate      = "Prorating invoices"
	StepAggregate    = "Aggregating and classifying"
	StepDone         = "Completed"
)

var steps = []string{
	StepValidate, StepDiscover, StepLoadExports, StepLoadMetadata,
	StepPreprocess, StepJoin, StepProrate, StepAggregate,
}

// Orchestrator sequences the stages of a control run and reports
// progress. An Orchestrator runs one control at a time.
type Orchestrator struct {
	service      *ControlService
	preprocessor *DataPreprocessor
	logger       logger.Logger

	progressCallbacks []ProgressCallback
	currentProgress   RunProgress
	progressMutex     sync.Mutex
}

// RunProgress tracks the progress of a control run
type RunProgress struct {
	RunID           string        `json:"run_id"`
	TotalSteps      int           `json:"total_steps"`
	CompletedSteps  int           `json:"completed_steps"`
	CurrentStep     string        `json:"current_step"`
	PercentComplete float64       `json:"percent_complete"`
	StartTime       time.Time     `json:"start_time"`
	ElapsedTime     time.Duration `json:"elapsed_time"`

	FilesLoaded int `json:"files_loaded"`
	TotalFiles  int `json:"total_files"`
}

// ProgressCallback receives a snapshot of the run progress. While files
// load it may be called from several goroutines.
type ProgressCallback func(*RunProgress)

// NewOrchestrator creates an orchestrator over service
func NewOrchestrator(service *ControlService) (*Orchestrator, error) {
	if service == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "control_service", nil, nil).
			WithSuggestion("create the service with NewControlService")
	}

	var preprocessor *DataPreprocessor
	if service.config.Preprocessing != nil {
		preprocessor = NewDataPreprocessor(service.config.Preprocessing)
	}

	return &Orchestrator{
		service:         service,
		preprocessor:    preprocessor,
		logger:          logger.GetGlobalLogger().WithComponent("orchestrator"),
		currentProgress: RunProgress{TotalSteps: len(steps)},
	}, nil
}

// AddProgressCallback adds a progress callback function
func (o *Orchestrator) AddProgressCallback(callback ProgressCallback) {
	o.progressCallbacks = append(o.progressCallbacks, callback)
}

// GetProgress returns a snapshot of the current progress
func (o *Orchestrator) GetProgress() RunProgress {
	o.progressMutex.Lock()
	defer o.progressMutex.Unlock()
	return o.currentProgress
}

// Process performs a complete control run. Fatal problems (configuration,
// an unreadable input directory, cancellation) abort the run and are
// returned as the error; everything else is collected in the result.
func (o *Orchestrator) Process(ctx context.Context, req *RunRequest) (*RunResult, error) {
	started := time.Now()
	runID := uuid.New().String()
	log := o.logger.WithField("run_id", runID)

	o.initializeProgress(runID, started)

	o.updateProgress(StepValidate)
	if req == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "request", nil, nil)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	table, err := o.service.loadCategories(req)
	if err != nil {
		return nil, err
	}

	log.WithFields(logger.Fields{
		"period":     req.Period.String(),
		"mc_dir":     req.MCDir,
		"rcel_dir":   req.RCELDir,
		"categories": table.Len(),
	}).Info("Starting control run")

	result := &RunResult{
		RunID:     runID,
		StartedAt: started,
		Period:    req.Period,
		Stats:     &ProcessingStats{},
	}
	collector := errors.NewCollector()
	st := &stageResults{}

	o.updateProgress(StepDiscover)
	var files *inputFiles
	err = timed("discover", log, &result.Stats.DiscoveryTime, func() error {
		var err error
		files, err = o.service.discoverInputs(req)
		return err
	})
	if err != nil {
		return nil, err
	}
	collector.AddAll(files.problems)

	o.setTotalFiles(len(files.exports) + len(files.metadata))
	offset := 0
	o.service.loader.SetProgressCallback(func(processed, _ int) {
		o.updateFiles(offset + processed)
	})
	defer o.service.loader.SetProgressCallback(nil)

	o.updateProgress(StepLoadExports)
	err = timed("load_exports", log, &result.Stats.LoadingTime, func() error {
		var err error
		st.exports, err = o.service.loadExports(ctx, files.exports)
		return err
	})
	if err != nil {
		return nil, err
	}
	collector.AddAll(st.exports.Problems)

	offset = len(files.exports)
	o.updateProgress(StepLoadMetadata)
	err = timed("load_metadata", log, &result.Stats.LoadingTime, func() error {
		var err error
		st.metadata, err = o.service.loadMetadata(ctx, files.metadata)
		return err
	})
	if err != nil {
		return nil, err
	}
	collector.AddAll(st.metadata.Problems)

	o.updateProgress(StepPreprocess)
	if o.preprocessor != nil {
		problems, stats := o.preprocessor.Check(st.exports.Records)
		collector.AddAll(problems)
		log.WithFields(logger.Fields{
			"foreign_currency": stats.ForeignCurrency,
			"number_ranges":    stats.NumberRanges,
		}).Debug("Export rows checked")
	}

	o.updateProgress(StepJoin)
	err = timed("join", log, &result.Stats.JoinTime, func() error {
		var err error
		st.join, err = o.service.join(st.exports.Records, st.metadata.Metadata)
		return err
	})
	if err != nil {
		return nil, err
	}
	collector.AddAll(st.join.Problems)
	result.Records = st.join.Records

	o.updateProgress(StepProrate)
	_ = timed("prorate", log, &result.Stats.ProrationTime, func() error {
		st.proration = o.service.prorate(req.Period, result.Records)
		return nil
	})

	o.updateProgress(StepAggregate)
	err = timed("aggregate", log, &result.Stats.AggregationTime, func() error {
		var err error
		st.aggregate, err = o.service.aggregate(table, result.Records)
		return err
	})
	if err != nil {
		return nil, err
	}
	collector.AddAll(st.aggregate.Problems)
	result.Aggregates = st.aggregate.Aggregates
	result.Unmatched = st.aggregate.Unmatched

	result.Problems = collector.Problems()
	st.problems = result.Problems
	result.Summary = summarize(st)
	result.Stats.TotalTime = time.Since(started)

	o.updateProgress(StepDone)

	log.WithFields(logger.Fields{
		"records":      result.Summary.Records,
		"matched":      result.Summary.Matched,
		"unmatched":    result.Summary.Unmatched,
		"aggregates":   result.Summary.Aggregates,
		"unclassified": result.Summary.Unclassified,
		"errors":       result.Summary.Errors,
		"warnings":     result.Summary.Warnings,
		"duration":     result.Stats.TotalTime.String(),
	}).Info("Control run completed")

	return result, nil
}

// timed runs a stage through logger.TimedStage and adds its duration to d
func timed(stage string, log logger.Logger, d *time.Duration, fn func() error) error {
	start := time.Now()
	err := logger.TimedStage(stage, log, fn)
	*d += time.Since(start)
	return err
}

func (o *Orchestrator) initializeProgress(runID string, started time.Time) {
	o.progressMutex.Lock()
	defer o.progressMutex.Unlock()

	o.currentProgress = RunProgress{
		RunID:      runID,
		TotalSteps: len(steps),
		StartTime:  started,
	}
}

func (o *Orchestrator) updateProgress(step string) {
	o.progressMutex.Lock()
	completed := o.currentProgress.TotalSteps
	for i, s := range steps {
		if s == step {
			completed = i
			break
		}
	}
	o.currentProgress.CurrentStep = step
	o.currentProgress.CompletedSteps = completed
	o.currentProgress.ElapsedTime = time.Since(o.currentProgress.StartTime)
	o.currentProgress.PercentComplete = float64(completed) / float64(o.currentProgress.TotalSteps) * 100
	snapshot := o.currentProgress
	o.progressMutex.Unlock()

	o.notify(&snapshot)
}

func (o *Orchestrator) setTotalFiles(total int) {
	o.progressMutex.Lock()
	defer o.progressMutex.Unlock()
	o.currentProgress.TotalFiles = total
}

func (o *Orchestrator) updateFiles(loaded int) {
	o.progressMutex.Lock()
	if loaded > o.currentProgress.FilesLoaded {
		o.currentProgress.FilesLoaded = loaded
	}
	o.currentProgress.ElapsedTime = time.Since(o.currentProgress.StartTime)
	snapshot := o.currentProgress
	o.progressMutex.Unlock()

	o.notify(&snapshot)
}

func (o *Orchestrator) notify(progress *RunProgress) {
	for _, callback := range o.progressCallbacks {
		callback(progress)
	}
}
