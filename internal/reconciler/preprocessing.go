package reconciler

import (
	"fmt"
	"strings"

	"monotributo-control/internal/models"
	"monotributo-control/pkg/errors"
	"monotributo-control/pkg/logger"
)

// DataPreprocessor checks loaded export rows before the join. It never
// drops or rewrites a row; it only reports what the computation ignores.
type DataPreprocessor struct {
	config *PreprocessingConfig
	logger logger.Logger
}

// PreprocessingConfig contains configuration for the record checks
type PreprocessingConfig struct {
	// Currency codes treated as pesos. Comparison ignores case.
	LocalCurrencies []string

	WarnForeignCurrency bool
	WarnNumberRanges    bool
}

// PreprocessingStats counts what the checks found
type PreprocessingStats struct {
	Records         int `json:"records"`
	ForeignCurrency int `json:"foreign_currency"`
	NumberRanges    int `json:"number_ranges"`
}

// DefaultPreprocessingConfig returns the checks enabled for a normal run
func DefaultPreprocessingConfig() *PreprocessingConfig {
	return &PreprocessingConfig{
		LocalCurrencies:     []string{"$", "PES", "ARS"},
		WarnForeignCurrency: true,
		WarnNumberRanges:    true,
	}
}

// NewDataPreprocessor creates a new data preprocessor
func NewDataPreprocessor(config *PreprocessingConfig) *DataPreprocessor {
	if config == nil {
		config = DefaultPreprocessingConfig()
	}
	return &DataPreprocessor{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("preprocessor"),
	}
}

// IsLocalCurrency reports whether code names pesos. An empty code counts
// as pesos: older exports leave the column blank.
func (dp *DataPreprocessor) IsLocalCurrency(code string) bool {
	code = strings.TrimSpace(code)
	if code == "" {
		return true
	}
	for _, local := range dp.config.LocalCurrencies {
		if strings.EqualFold(code, local) {
			return true
		}
	}
	return false
}

// Check runs the enabled checks over records and returns one warning per
// finding, in record order.
func (dp *DataPreprocessor) Check(records []*models.InvoiceRecord) ([]*errors.ControlError, PreprocessingStats) {
	var problems []*errors.ControlError
	stats := PreprocessingStats{Records: len(records)}

	for _, r := range records {
		if dp.config.WarnForeignCurrency && !dp.IsLocalCurrency(r.Currency) {
			stats.ForeignCurrency++
			problems = append(problems,
				errors.ReconciliationError(errors.CodeForeignCurrency, r.String(), nil).
					WithContext("currency", r.Currency).
					WithContext("exchange_rate", r.ExchangeRate.String()).
					WithContext("file", r.SourceFile).
					WithContext("line", r.Line))
		}
		if dp.config.WarnNumberRanges && r.NumberTo > r.NumberFrom {
			stats.NumberRanges++
			problems = append(problems,
				errors.ReconciliationError(errors.CodeNumberRange,
					fmt.Sprintf("%d..%d", r.NumberFrom, r.NumberTo), nil).
					WithContext("file", r.SourceFile).
					WithContext("line", r.Line))
		}
	}

	if len(problems) > 0 {
		dp.logger.WithFields(logger.Fields{
			"records":          stats.Records,
			"foreign_currency": stats.ForeignCurrency,
			"number_ranges":    stats.NumberRanges,
		}).Warn("Export rows need review")
	}

	return problems, stats
}
