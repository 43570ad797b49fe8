package reconciler

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"

	"monotributo-control/internal/categories"
	"monotributo-control/internal/matcher"
	"monotributo-control/internal/models"
	"monotributo-control/internal/parsers"
	"monotributo-control/internal/proration"
	"monotributo-control/pkg/errors"
	"monotributo-control/pkg/logger"
)

// ControlService holds the components of a control run
type ControlService struct {
	fs         afero.Fs
	loader     *parsers.Loader
	categories *categories.Loader
	config     *Config
	logger     logger.Logger
}

// Config holds configuration options for the control service
type Config struct {
	// Loading options
	Workers  int
	Encoding parsers.Encoding
	Loader   *parsers.LoaderConfig

	// Computation options
	CreditNotes proration.CreditNotePolicy

	// Preprocessing options; nil disables the checks
	Preprocessing *PreprocessingConfig
}

// DefaultConfig returns a default configuration for the control service
func DefaultConfig() *Config {
	return &Config{
		Workers:       4,
		Encoding:      parsers.EncodingUTF8,
		CreditNotes:   proration.CreditNotesAsReported,
		Preprocessing: DefaultPreprocessingConfig(),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if _, err := parsers.ParseEncoding(string(c.Encoding)); err != nil {
		return err
	}
	if _, err := proration.ParseCreditNotePolicy(string(c.CreditNotes)); err != nil {
		return err
	}
	return nil
}

func (c *Config) loaderConfig() *parsers.LoaderConfig {
	lc := parsers.DefaultLoaderConfig()
	if c.Loader != nil {
		copied := *c.Loader
		lc = &copied
	}
	lc.Workers = c.Workers
	if enc, err := parsers.ParseEncoding(string(c.Encoding)); err == nil {
		lc.Encoding = enc
	}
	return lc
}

// RunRequest describes the inputs of one control run. Explicit file lists
// take precedence over directory discovery.
type RunRequest struct {
	MCDir         string
	RCELDir       string
	ExportFiles   []string
	MetadataFiles []string

	Period         models.ControlPeriod
	CategoriesFile string
	Categories     *models.CategoryTable
}

// Validate checks the request. Every failure is a configuration error.
func (r *RunRequest) Validate() error {
	if r.Period.Start.IsZero() || r.Period.End.IsZero() {
		return errors.ConfigurationError(errors.CodeMissingConfig, "from/to", nil, nil).
			WithSuggestion("set the control period with --from and --to")
	}
	if r.Period.Start.After(r.Period.End) {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "from/to", r.Period.String(),
			fmt.Errorf("control period start is after its end"))
	}
	if r.Categories == nil && r.CategoriesFile == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "categories", nil, nil)
	}
	if r.MCDir == "" && len(r.ExportFiles) == 0 {
		return errors.ConfigurationError(errors.CodeMissingConfig, "mc-dir", nil, nil)
	}
	return nil
}

// RunResult contains the complete results of a control run
type RunResult struct {
	RunID     string               `json:"run_id"`
	StartedAt time.Time            `json:"started_at"`
	Period    models.ControlPeriod `json:"period"`

	Records    []*models.ConsolidatedRecord `json:"records"`
	Aggregates []*models.ClientAggregate    `json:"aggregates"`
	Unmatched  int                          `json:"unmatched"`

	Problems []*errors.ControlError `json:"problems"`
	Summary  *RunSummary            `json:"summary"`
	Stats    *ProcessingStats       `json:"stats"`
}

// RunSummary provides a high-level overview of a run
type RunSummary struct {
	// File counts
	ExportFiles         int `json:"export_files"`
	ExportFilesFailed   int `json:"export_files_failed"`
	MetadataFiles       int `json:"metadata_files"`
	MetadataFilesFailed int `json:"metadata_files_failed"`

	// Join counts
	Records              int `json:"records"`
	Matched              int `json:"matched"`
	Unmatched            int `json:"unmatched"`
	MatchedWithoutPeriod int `json:"matched_without_period"`
	Unmatchable          int `json:"unmatchable"`
	DuplicateKeys        int `json:"duplicate_keys"`
	UnusedMetadata       int `json:"unused_metadata"`

	// Proration
	OutsidePeriod    int             `json:"outside_period"`
	PartialPeriod    int             `json:"partial_period"`
	CreditNotes      int             `json:"credit_notes"`
	CreditPolicy     string          `json:"credit_policy"`
	TotalBilled      decimal.Decimal `json:"total_billed"`
	TotalApportioned decimal.Decimal `json:"total_apportioned"`

	// Classification
	Clients      int            `json:"clients"`
	Aggregates   int            `json:"aggregates"`
	Unclassified int            `json:"unclassified"`
	ByCategory   map[string]int `json:"by_category"`

	// Problems
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
}

// ProcessingStats contains stage timings
type ProcessingStats struct {
	DiscoveryTime   time.Duration `json:"discovery_time"`
	LoadingTime     time.Duration `json:"loading_time"`
	JoinTime        time.Duration `json:"join_time"`
	ProrationTime   time.Duration `json:"proration_time"`
	AggregationTime time.Duration `json:"aggregation_time"`
	TotalTime       time.Duration `json:"total_time"`
}

// HasErrors reports whether any problem removed data from the run
func (r *RunResult) HasErrors() bool {
	return r.Summary != nil && r.Summary.Errors > 0
}

// NewControlService creates a control service reading from fs
func NewControlService(fs afero.Fs, config *Config) (*ControlService, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "control", nil, err)
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}

	loader, err := parsers.NewLoader(fs, config.loaderConfig())
	if err != nil {
		return nil, err
	}

	return &ControlService{
		fs:         fs,
		loader:     loader,
		categories: categories.NewLoader(fs),
		config:     config,
		logger:     logger.GetGlobalLogger().WithComponent("control_service"),
	}, nil
}

// GetConfiguration returns the current configuration
func (s *ControlService) GetConfiguration() *Config {
	return s.config
}

// matcherEngine returns a fresh join engine for one run
func (s *ControlService) matcherEngine(metadata []*models.InvoiceMetadata) *matcher.Engine {
	engine := matcher.NewEngine()
	engine.LoadMetadata(metadata)
	return engine
}
