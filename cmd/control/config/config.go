package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"monotributo-control/internal/models"
	"monotributo-control/internal/parsers"
	"monotributo-control/internal/proration"
	"monotributo-control/internal/reconciler"
	"monotributo-control/internal/reporter"
	"monotributo-control/pkg/errors"
)

// Configuration keys shared by flags, the config file and the environment
const (
	KeyMCDir          = "mc-dir"
	KeyRCELDir        = "rcel-dir"
	KeyExportFiles    = "export-files"
	KeyMetadataFiles  = "metadata-files"
	KeyFrom           = "from"
	KeyTo             = "to"
	KeyCategories     = "categories"
	KeyCreditNotes    = "credit-notes"
	KeyWorkers        = "workers"
	KeyEncoding       = "encoding"
	KeyOutputFormat   = "output-format"
	KeyOutputFile     = "output-file"
	KeyCSVTable       = "csv-table"
	KeyIncludeRecords = "include-records"
	KeyMaxProblems    = "max-problems"
	KeyProgress       = "progress"
	KeyLogLevel       = "log-level"
	KeyLogFormat      = "log-format"
	KeyVerbose        = "verbose"
)

// Defaults of the input directories, as the download tools name them
const (
	DefaultMCDir      = "descargas_mis_comprobantes"
	DefaultRCELDir    = "descargas_rcel"
	DefaultCategories = "configs/categorias.yaml"
)

// EnvPrefix prefixes every environment variable read by the CLI
const EnvPrefix = "CONTROL"

// legacyEnv are the variable names the download tools write to .env files
var legacyEnv = map[string]string{
	KeyMCDir:   "DOWNLOADS_MC_PATH",
	KeyRCELDir: "DOWNLOADS_RCEL_PATH",
}

// BindEnvironment makes v read CONTROL_* variables and the legacy
// directory variables. A CONTROL_* variable wins over its legacy name.
func BindEnvironment(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// CreateServiceConfig creates the control service configuration
func CreateServiceConfig(v *viper.Viper) (*reconciler.Config, error) {
	config := reconciler.DefaultConfig()

	if v.IsSet(KeyWorkers) {
		config.Workers = v.GetInt(KeyWorkers)
	}

	enc, err := parsers.ParseEncoding(v.GetString(KeyEncoding))
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyEncoding, v.GetString(KeyEncoding), err)
	}
	config.Encoding = enc

	policy, err := proration.ParseCreditNotePolicy(v.GetString(KeyCreditNotes))
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyCreditNotes, v.GetString(KeyCreditNotes), err)
	}
	config.CreditNotes = policy

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyWorkers, config.Workers, err)
	}
	return config, nil
}

// CreateRunRequest creates the run request from the input and period settings
func CreateRunRequest(v *viper.Viper) (*reconciler.RunRequest, error) {
	period, err := ParsePeriod(v.GetString(KeyFrom), v.GetString(KeyTo))
	if err != nil {
		return nil, err
	}

	req := &reconciler.RunRequest{
		MCDir:          v.GetString(KeyMCDir),
		RCELDir:        v.GetString(KeyRCELDir),
		ExportFiles:    nonEmpty(v.GetStringSlice(KeyExportFiles)),
		MetadataFiles:  nonEmpty(v.GetStringSlice(KeyMetadataFiles)),
		Period:         period,
		CategoriesFile: v.GetString(KeyCategories),
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// ParsePeriod parses the control period bounds. Both are required.
func ParsePeriod(from, to string) (models.ControlPeriod, error) {
	if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
		return models.ControlPeriod{}, errors.ConfigurationError(errors.CodeMissingConfig, "from/to", nil, nil).
			WithSuggestion("set the control period, e.g. --from 2025-01-01 --to 2025-12-31")
	}

	start, err := models.ParseDate(from)
	if err != nil {
		return models.ControlPeriod{}, errors.ConfigurationError(errors.CodeInvalidConfig, KeyFrom, from, err).
			WithSuggestion("use YYYY-MM-DD or DD/MM/YYYY")
	}
	end, err := models.ParseDate(to)
	if err != nil {
		return models.ControlPeriod{}, errors.ConfigurationError(errors.CodeInvalidConfig, KeyTo, to, err).
			WithSuggestion("use YYYY-MM-DD or DD/MM/YYYY")
	}

	period, err := models.NewControlPeriod(start, end)
	if err != nil {
		return models.ControlPeriod{}, errors.ConfigurationError(errors.CodeInvalidConfig, "from/to", from+".."+to, err)
	}
	return period, nil
}

// CreateReportConfig creates a report configuration for the configured output format
func CreateReportConfig(v *viper.Viper) (*reporter.ReportConfig, error) {
	format, err := reporter.ParseOutputFormat(v.GetString(KeyOutputFormat))
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyOutputFormat, v.GetString(KeyOutputFormat), err)
	}

	config := reporter.DefaultReportConfig()
	config.Format = format
	config.IncludeRecords = v.GetBool(KeyIncludeRecords)
	if v.IsSet(KeyMaxProblems) {
		config.MaxProblems = v.GetInt(KeyMaxProblems)
	}

	switch format {
	case reporter.FormatJSON:
		config.IncludeProcessingStats = true
	case reporter.FormatCSV:
		if table := v.GetString(KeyCSVTable); table != "" {
			config.CSVTable = reporter.CSVTable(strings.ToLower(table))
		}
		config.IncludeProcessingStats = false
	case reporter.FormatXLSX:
		config.IncludeRecords = true
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyOutputFormat, format, err)
	}
	return config, nil
}

// OutputFile returns the report destination; empty means stdout. A workbook
// always goes to a file, by default the name the control has always used.
func OutputFile(v *viper.Viper, format reporter.OutputFormat) string {
	if file := v.GetString(KeyOutputFile); file != "" {
		return file
	}
	if format.IsBinary() {
		return reporter.DefaultReportFile
	}
	return ""
}

func nonEmpty(values []string) []string {
	var out []string
	for _, s := range values {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
