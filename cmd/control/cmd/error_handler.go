package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/viper"

	"monotributo-control/cmd/control/config"
	"monotributo-control/pkg/errors"
	"monotributo-control/pkg/logger"
)

// CLIErrorHandler turns command errors into messages and exit codes
type CLIErrorHandler struct {
	logger  logger.Logger
	out     io.Writer
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler writing to out
func NewCLIErrorHandler(out io.Writer) *CLIErrorHandler {
	if out == nil {
		out = os.Stderr
	}
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		out:     out,
		verbose: viper.GetBool(config.KeyVerbose),
	}
}

// HandleError prints err and returns the process exit code
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Debug("Command failed")

	if controlErr, ok := errors.AsControlError(err); ok {
		return h.handleControlError(controlErr)
	}
	return h.handleGenericError(err)
}

func (h *CLIErrorHandler) handleControlError(err *errors.ControlError) int {
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		keys := make([]string, 0, len(err.Context))
		for key := range err.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprintf(h.out, "\nContext:\n")
		for _, key := range keys {
			fmt.Fprintf(h.out, "  %s: %v\n", key, err.Context[key])
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	fmt.Fprintf(h.out, "\n%s\n", h.getCategoryHelp(err.Category))

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

func (h *CLIErrorHandler) handleGenericError(err error) int {
	if h.isFileNotFoundError(err) {
		fmt.Fprintf(h.out, "Error: File not found\n")
		fmt.Fprintf(h.out, "Suggestion: Check that the path exists: %v\n", err)
		return 2
	}

	if h.isPermissionError(err) {
		fmt.Fprintf(h.out, "Error: Permission denied\n")
		fmt.Fprintf(h.out, "Suggestion: Close the report if it is open in a spreadsheet program and check file permissions\n")
		return 2
	}

	if h.isDiskFullError(err) {
		fmt.Fprintf(h.out, "Error: Insufficient disk space\n")
		fmt.Fprintf(h.out, "Suggestion: Free up disk space and try again\n")
		return 2
	}

	fmt.Fprintf(h.out, "Error: %v\n", err)
	return 1
}

func (h *CLIErrorHandler) getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check that --mc-dir points at the "Mis Comprobantes" downloads
• Exports are read from "extraido" folders, e.g. <mc-dir>/<CUIT>_<name>/extraido/*.csv
• Ensure you have permission to read the inputs and write the report`

	case errors.CategoryParse:
		return `Parse error help:
• Exports must be the unmodified ';'-separated CSV files from "Mis Comprobantes"
• Filenames must keep the "<n> - MCE|MCR - <from> - <to> - <CUIT> - <client>.csv" shape
• Use --encoding latin1 for files re-saved on Windows`

	case errors.CategoryValidation:
		return `Validation error help:
• Dates must be YYYY-MM-DD or DD/MM/YYYY
• Amounts use ',' as decimal separator, e.g. 1.234,56`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• The control period needs --from and --to
• --categories must name an .xlsx, .yaml or .csv table
• Use 'control run --help' to see all available options`

	case errors.CategoryReconciliation, errors.CategoryClassification:
		return `Control error help:
• Check that the RCEL documents belong to the same CUIT as the exports
• Extend the category table if clients exceed its highest bracket`

	default:
		return `For more help:
• Use 'control --help' for general help
• Run with --verbose for the underlying error`
	}
}

func (h *CLIErrorHandler) isFileNotFoundError(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file or directory")
}

func (h *CLIErrorHandler) isPermissionError(err error) bool {
	return os.IsPermission(err) ||
		strings.Contains(err.Error(), "permission denied") ||
		strings.Contains(err.Error(), "access denied")
}

func (h *CLIErrorHandler) isDiskFullError(err error) bool {
	if err == syscall.ENOSPC {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full") ||
		strings.Contains(errStr, "device full")
}
