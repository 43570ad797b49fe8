package reporter

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"monotributo-control/internal/reconciler"
	"monotributo-control/pkg/errors"
	"monotributo-control/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with fallbacks for failed output
type SafeReportGenerator struct {
	*ReportGenerator
	fs     afero.Fs
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator writing files to fs
func NewSafeReportGenerator(config *ReportConfig, fs afero.Fs, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "output-format", config, err).
			WithSuggestion("check the output-format and output-file settings")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		fs:              fs,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// GenerateReportSafely renders the report into memory first so a failed
// text report can fall back to the console format without leaving partial
// output behind.
func (srg *SafeReportGenerator) GenerateReportSafely(result *reconciler.RunResult, writer io.Writer) error {
	if err := srg.validateInputs(result, writer); err != nil {
		return err
	}
	if srg.config.Format.IsBinary() && isTerminal(writer) {
		return errors.ConfigurationError(errors.CodeConfigConflict, "output-file", "", nil).
			WithSuggestion(fmt.Sprintf("the %s format needs --output-file, e.g. %q", srg.config.Format, DefaultReportFile))
	}

	srg.logger.WithFields(logger.Fields{
		"format": srg.config.Format,
		"output": getWriterDescription(writer),
	}).Debug("Starting report generation")

	var buf bytes.Buffer
	err := srg.GenerateReport(result, &buf)
	if err != nil {
		srg.logger.WithError(err).Warn("Primary report generation failed")
		if !srg.shouldAttemptFormatFallback() {
			return srg.wrapGenerationError(err)
		}
		buf.Reset()
		if fallbackErr := srg.generateWithFormatFallback(result, &buf, err); fallbackErr != nil {
			return fallbackErr
		}
	}

	if _, err := writer.Write(buf.Bytes()); err != nil {
		return srg.wrapGenerationError(err)
	}
	srg.logger.Debug("Report generation completed successfully")
	return nil
}

// WriteReportFile writes the report to path. When the file cannot be
// created, typically because the previous report is still open in a
// spreadsheet program, the report goes to a backup file next to it and
// the backup path is returned.
func (srg *SafeReportGenerator) WriteReportFile(result *reconciler.RunResult, path string) (string, error) {
	if path == "" {
		return "", errors.ConfigurationError(errors.CodeMissingConfig, "output-file", nil, nil)
	}

	var buf bytes.Buffer
	if err := srg.GenerateReportSafely(result, &buf); err != nil {
		return "", err
	}

	err := afero.WriteFile(srg.fs, path, buf.Bytes(), 0o644)
	if err == nil {
		srg.logger.WithField("file", path).Info("Report written")
		return path, nil
	}
	if !srg.isFileError(err) {
		return "", errors.FileError(errors.CodeFilePermission, path, err)
	}

	backupPath := srg.generateBackupPath(path)
	srg.logger.WithFields(logger.Fields{
		"original_file": path,
		"backup_file":   backupPath,
	}).Warn("Attempting output fallback")

	if backupErr := afero.WriteFile(srg.fs, backupPath, buf.Bytes(), 0o644); backupErr != nil {
		return "", errors.FileError(errors.CodeFilePermission, path,
			fmt.Errorf("both primary and backup output failed: primary=%v, backup=%v", err, backupErr))
	}
	return backupPath, nil
}

// validateInputs validates the inputs for report generation
func (srg *SafeReportGenerator) validateInputs(result *reconciler.RunResult, writer io.Writer) error {
	if result == nil {
		return errors.ValidationError(errors.CodeMissingField, "result", nil, nil).
			WithSuggestion("run the control before generating a report")
	}
	if writer == nil {
		return errors.ValidationError(errors.CodeMissingField, "writer", nil, nil)
	}
	return nil
}

// shouldAttemptFormatFallback reports whether a console report may replace
// the requested one. Workbooks never fall back: text in an .xlsx file is
// worse than no file.
func (srg *SafeReportGenerator) shouldAttemptFormatFallback() bool {
	return srg.config.Format == FormatJSON || srg.config.Format == FormatCSV
}

// generateWithFormatFallback renders the console format after a failure
func (srg *SafeReportGenerator) generateWithFormatFallback(result *reconciler.RunResult, writer io.Writer, originalErr error) error {
	fallbackConfig := *srg.config
	fallbackConfig.Format = FormatConsole

	srg.logger.WithField("fallback_format", FormatConsole).Info("Attempting format fallback")

	fallbackGenerator, err := NewReportGenerator(&fallbackConfig)
	if err != nil {
		return srg.wrapGenerationError(originalErr)
	}

	fmt.Fprintf(writer, "NOTE: Report generated in fallback format due to error with requested format\n")
	fmt.Fprintf(writer, "Original error: %v\n\n", originalErr)

	if err := fallbackGenerator.GenerateReport(result, writer); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "report_fallback",
			fmt.Errorf("both primary and fallback generation failed: primary=%v, fallback=%v", originalErr, err))
	}
	return nil
}

// isFileError checks if the error is file-related
func (srg *SafeReportGenerator) isFileError(err error) bool {
	return os.IsPermission(err) || os.IsExist(err) || isSpaceError(err)
}

// generateBackupPath creates a backup file path
func (srg *SafeReportGenerator) generateBackupPath(originalPath string) string {
	dir := filepath.Dir(originalPath)
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)

	return filepath.Join(dir, fmt.Sprintf("%s_backup%s", name, ext))
}

// wrapGenerationError wraps generation errors with context
func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if controlErr, ok := errors.AsControlError(err); ok {
		return controlErr
	}
	return errors.InternalError(errors.CodeUnexpectedError, "report generation", err).
		WithSuggestion("check the output destination and report format settings")
}

func getWriterDescription(writer io.Writer) string {
	switch w := writer.(type) {
	case *os.File:
		if w.Name() != "" {
			return fmt.Sprintf("file:%s", w.Name())
		}
		return "file:unnamed"
	default:
		return fmt.Sprintf("writer:%T", writer)
	}
}

func isTerminal(writer io.Writer) bool {
	return writer == os.Stdout || writer == os.Stderr
}

func isSpaceError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no space left") ||
		strings.Contains(msg, "disk full") ||
		strings.Contains(msg, "device full")
}
