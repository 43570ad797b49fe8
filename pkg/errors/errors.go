package errors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryFile           ErrorCategory = "file"
	CategoryParse          ErrorCategory = "parse"
	CategoryValidation     ErrorCategory = "validation"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategoryReconciliation ErrorCategory = "reconciliation"
	CategoryClassification ErrorCategory = "classification"
	CategoryInternal       ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// File errors
	CodeFileNotFound   ErrorCode = "file_not_found"
	CodeFilePermission ErrorCode = "file_permission"
	CodeFileCorrupted  ErrorCode = "file_corrupted"
	CodeFileEmpty      ErrorCode = "file_empty"
	CodeDirectoryError ErrorCode = "directory_error"

	// Parse errors
	CodeInvalidFilename ErrorCode = "invalid_filename"
	CodeInvalidFormat   ErrorCode = "invalid_format"
	CodeMissingColumn   ErrorCode = "missing_column"
	CodeUnknownSchema   ErrorCode = "unknown_schema"
	CodeInvalidData     ErrorCode = "invalid_data"
	CodeEncodingError   ErrorCode = "encoding_error"

	// Validation errors
	CodeInvalidAmount ErrorCode = "invalid_amount"
	CodeInvalidDate   ErrorCode = "invalid_date"
	CodeMissingField  ErrorCode = "missing_field"
	CodeOutOfRange    ErrorCode = "out_of_range"

	// Configuration errors
	CodeInvalidConfig  ErrorCode = "invalid_config"
	CodeMissingConfig  ErrorCode = "missing_config"
	CodeConfigConflict ErrorCode = "config_conflict"

	// Reconciliation (data quality) errors
	CodeDuplicateKey    ErrorCode = "duplicate_key"
	CodeMalformedKey    ErrorCode = "malformed_key"
	CodeKindMismatch    ErrorCode = "kind_mismatch"
	CodeDuplicateRow    ErrorCode = "duplicate_invoice"
	CodeForeignCurrency ErrorCode = "foreign_currency"
	CodeNumberRange     ErrorCode = "number_range"

	// Classification errors
	CodeBracketExceeded ErrorCode = "bracket_exceeded"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
	CodeCancelled       ErrorCode = "cancelled"
)

// Severity separates problems that removed data from the run from
// data-quality signals that did not.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ControlError is the base error type for all application errors
type ControlError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Severity   Severity          `json:"severity"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *ControlError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *ControlError) Unwrap() error {
	return e.Cause
}

// IsWarning reports whether the error is a data-quality warning.
func (e *ControlError) IsWarning() bool {
	return e.Severity == SeverityWarning
}

// GetExitCode returns an appropriate exit code for the error
func (e *ControlError) GetExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategoryParse, CategoryValidation:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryReconciliation, CategoryClassification, CategoryInternal:
		return 5
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *ControlError) WithContext(key string, value interface{}) *ControlError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *ControlError) WithSuggestion(suggestion string) *ControlError {
	e.Suggestion = suggestion
	return e
}

// WithSeverity overrides the default severity of the error
func (e *ControlError) WithSeverity(severity Severity) *ControlError {
	e.Severity = severity
	return e
}

// New creates a new ControlError
func New(category ErrorCategory, code ErrorCode, message string) *ControlError {
	return &ControlError{
		Category:   category,
		Code:       code,
		Severity:   SeverityError,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with ControlError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ControlError {
	if err == nil {
		return nil
	}

	return &ControlError{
		Category:   category,
		Code:       code,
		Severity:   SeverityError,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func build(err error, category ErrorCategory, code ErrorCode, message string) *ControlError {
	if err != nil {
		return Wrap(err, category, code, message)
	}
	return New(category, code, message)
}

// FileError creates a file-related error
func FileError(code ErrorCode, path string, err error) *ControlError {
	var message string
	var suggestion string

	switch code {
	case CodeFileNotFound:
		message = fmt.Sprintf("file not found: %s", path)
		suggestion = "check if the file path is correct and the file exists"
	case CodeFilePermission:
		message = fmt.Sprintf("permission denied accessing file: %s", path)
		suggestion = "check file permissions and ensure you have read access"
	case CodeFileCorrupted:
		message = fmt.Sprintf("file appears to be corrupted: %s", path)
		suggestion = "download the export again"
	case CodeFileEmpty:
		message = fmt.Sprintf("file has no data rows: %s", path)
		suggestion = "verify the export period contains invoices"
	case CodeDirectoryError:
		message = fmt.Sprintf("directory error: %s", path)
		suggestion = "ensure the directory exists and is accessible"
	default:
		message = fmt.Sprintf("file error: %s", path)
		suggestion = "check the file and try again"
	}

	return build(err, CategoryFile, code, message).
		WithSuggestion(suggestion).
		WithContext("file_path", path)
}

// ParseError creates a parsing-related error
func ParseError(code ErrorCode, file string, line int, column string, value string, err error) *ControlError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidFilename:
		message = fmt.Sprintf("file name does not follow the expected pattern: %s", file)
		suggestion = "keep the names produced by the download step: '<seq> - <MCE|MCR> - <from> - <to> - <CUIT> - <Client>.csv' or '<CUIT>-<type>-<pos>-<number>.json'"
	case CodeInvalidFormat:
		message = fmt.Sprintf("invalid format in file %s at line %d, column '%s': '%s'", file, line, column, value)
		suggestion = "check the data format and ensure it matches the expected structure"
	case CodeMissingColumn:
		message = fmt.Sprintf("missing required column '%s' in file %s", column, file)
		suggestion = "verify the file has all required columns with correct headers"
	case CodeUnknownSchema:
		message = fmt.Sprintf("cannot tell whether %s is an emitted or received export", file)
		suggestion = "the header must contain either 'Denominación Receptor' or 'Denominación Emisor'"
	case CodeInvalidData:
		message = fmt.Sprintf("invalid data in file %s at line %d, column '%s': '%s'", file, line, column, value)
		suggestion = "correct the data format or remove the invalid entry"
	case CodeEncodingError:
		message = fmt.Sprintf("encoding error in file %s at line %d", file, line)
		suggestion = "save the file in UTF-8 or run with --encoding latin1"
	default:
		message = fmt.Sprintf("parse error in file %s at line %d", file, line)
		suggestion = "check the file format and data integrity"
	}

	return build(err, CategoryParse, code, message).
		WithSuggestion(suggestion).
		WithContext("file", file).
		WithContext("line", line).
		WithContext("column", column).
		WithContext("value", value)
}

// ValidationError creates a validation-related error
func ValidationError(code ErrorCode, field string, value interface{}, err error) *ControlError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidAmount:
		message = fmt.Sprintf("invalid amount in field '%s': %v", field, value)
		suggestion = "amounts use a comma as decimal separator (e.g. '1234,56')"
	case CodeInvalidDate:
		message = fmt.Sprintf("invalid date in field '%s': %v", field, value)
		suggestion = "use YYYY-MM-DD or DD/MM/YYYY"
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing or empty", field)
		suggestion = "provide a value for this required field"
	case CodeOutOfRange:
		message = fmt.Sprintf("value out of range in field '%s': %v", field, value)
		suggestion = "ensure the value is within the acceptable range"
	default:
		message = fmt.Sprintf("validation error in field '%s': %v", field, value)
		suggestion = "check the field value and format"
	}

	return build(err, CategoryValidation, code, message).
		WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("value", value)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *ControlError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this setting as a flag, environment variable or in the config file"
	case CodeConfigConflict:
		message = fmt.Sprintf("configuration conflict with setting '%s': %v", setting, value)
		suggestion = "resolve the conflicting settings"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	return build(err, CategoryConfiguration, code, message).
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// ReconciliationError creates a data-quality problem found while joining
// the two sources. These are warnings unless the caller says otherwise.
func ReconciliationError(code ErrorCode, subject string, err error) *ControlError {
	var message string
	var suggestion string

	switch code {
	case CodeDuplicateKey:
		message = fmt.Sprintf("more than one metadata record shares key %s; the first one was used", subject)
		suggestion = "remove the repeated RCEL JSON files for this invoice"
	case CodeMalformedKey:
		message = fmt.Sprintf("cannot build a matching key for %s; the invoice is left unmatched", subject)
		suggestion = "check the document type, point of sale and number of the invoice"
	case CodeDuplicateRow:
		message = fmt.Sprintf("invoice %s appears in more than one export row; every row is kept", subject)
		suggestion = "check for overlapping export periods or repeated downloads"
	case CodeForeignCurrency:
		message = fmt.Sprintf("invoice %s is not in pesos; its total is used as reported", subject)
		suggestion = "convert foreign currency invoices before the control if the total is not in pesos"
	case CodeNumberRange:
		message = fmt.Sprintf("row %s covers a range of invoice numbers; only the first number is matched", subject)
		suggestion = "check the RCEL documents of the other numbers in the range"
	case CodeKindMismatch:
		message = fmt.Sprintf("export kind in the file name does not match its columns: %s", subject)
		suggestion = "check that MCE files hold emitted invoices and MCR files received ones"
	default:
		message = fmt.Sprintf("reconciliation problem: %s", subject)
		suggestion = "review the input data"
	}

	return build(err, CategoryReconciliation, code, message).
		WithSeverity(SeverityWarning).
		WithSuggestion(suggestion).
		WithContext("subject", subject)
}

// ClassificationError reports an aggregate that no category bracket covers.
func ClassificationError(client string, kind string, amount string) *ControlError {
	return New(CategoryClassification, CodeBracketExceeded,
		fmt.Sprintf("billing of %s (%s) is %s, above every category bracket", client, kind, amount)).
		WithSuggestion("extend the category table with a higher bracket").
		WithContext("client", client).
		WithContext("kind", kind).
		WithContext("amount", amount)
}

// InternalError creates an internal error
func InternalError(code ErrorCode, operation string, err error) *ControlError {
	var message string
	var suggestion string

	switch code {
	case CodeCancelled:
		message = fmt.Sprintf("%s was cancelled", operation)
		suggestion = "run the command again"
	case CodeUnexpectedError:
		message = fmt.Sprintf("unexpected error during %s", operation)
		suggestion = "this is likely a bug - please report it with the error details"
	default:
		message = fmt.Sprintf("internal error during %s", operation)
		suggestion = "try again or contact support if the problem persists"
	}

	return build(err, CategoryInternal, code, message).
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// ErrorSummary provides a summary of multiple errors
type ErrorSummary struct {
	Total        int                   `json:"total"`
	Warnings     int                   `json:"warnings"`
	ByCategory   map[ErrorCategory]int `json:"by_category"`
	ByCode       map[ErrorCode]int     `json:"by_code"`
	Errors       []*ControlError       `json:"errors"`
	SampleErrors []*ControlError       `json:"sample_errors,omitempty"`
}

// NewErrorSummary creates a new error summary
func NewErrorSummary(errs []*ControlError) *ErrorSummary {
	summary := &ErrorSummary{
		Total:      len(errs),
		ByCategory: make(map[ErrorCategory]int),
		ByCode:     make(map[ErrorCode]int),
		Errors:     errs,
	}
	if summary.Errors == nil {
		summary.Errors = []*ControlError{}
	}

	for _, err := range errs {
		summary.ByCategory[err.Category]++
		summary.ByCode[err.Code]++
		if err.IsWarning() {
			summary.Warnings++
		}
	}

	maxSamples := 5
	if len(errs) > maxSamples {
		summary.SampleErrors = errs[:maxSamples]
	} else if len(errs) > 0 {
		summary.SampleErrors = errs
	}

	return summary
}

// Error returns a formatted error message for the summary
func (es *ErrorSummary) Error() string {
	if es.Total == 0 {
		return "no errors"
	}

	if es.Total == 1 {
		return es.Errors[0].Error()
	}

	categories := make([]string, 0, len(es.ByCategory))
	for category, count := range es.ByCategory {
		categories = append(categories, fmt.Sprintf("%s: %d", category, count))
	}
	sort.Strings(categories)

	return fmt.Sprintf("%d problems (%s)", es.Total, strings.Join(categories, ", "))
}

// HasCategory checks if the summary contains errors of the given category
func (es *ErrorSummary) HasCategory(category ErrorCategory) bool {
	return es.ByCategory[category] > 0
}

// HasCode checks if the summary contains errors with the given code
func (es *ErrorSummary) HasCode(code ErrorCode) bool {
	return es.ByCode[code] > 0
}

// GetExitCode returns the highest priority exit code from all errors
func (es *ErrorSummary) GetExitCode() int {
	if es.Total == 0 {
		return 0
	}

	maxCode := 1
	for _, err := range es.Errors {
		if code := err.GetExitCode(); code > maxCode {
			maxCode = code
		}
	}

	return maxCode
}

// IsControlError checks if an error is a ControlError
func IsControlError(err error) bool {
	_, ok := AsControlError(err)
	return ok
}

// AsControlError extracts a ControlError from an error chain
func AsControlError(err error) (*ControlError, bool) {
	var controlErr *ControlError
	if errors.As(err, &controlErr) {
		return controlErr, true
	}
	return nil, false
}

// WrapIfNeeded wraps an error if it's not already a ControlError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *ControlError {
	if err == nil {
		return nil
	}

	if controlErr, ok := AsControlError(err); ok {
		return controlErr
	}

	return Wrap(err, category, code, message)
}
