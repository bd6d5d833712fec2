// Package errors provides structured error handling for memory.core.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (subject store, spool, data directory)
//   - 3XX: Network errors (extractor backend, message broker)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates store and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates network-related errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"
	ErrCodeScopeDisabled  = "ERR_103_SCOPE_DISABLED"

	// IO errors (200-299)
	ErrCodeStoreIO       = "ERR_201_STORE_IO"
	ErrCodeDataDirLocked = "ERR_202_DATA_DIR_LOCKED"
	ErrCodeDiskFull      = "ERR_203_DISK_FULL"
	ErrCodeStoreCorrupt  = "ERR_204_STORE_CORRUPT"
	ErrCodeSpoolIO       = "ERR_205_SPOOL_IO"

	// Network errors (300-399)
	ErrCodeNetworkTimeout       = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeExtractorUnavailable = "ERR_302_EXTRACTOR_UNAVAILABLE"
	ErrCodeBrokerUnavailable    = "ERR_303_BROKER_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidInput     = "ERR_401_INVALID_INPUT"
	ErrCodeExtractorMissing = "ERR_402_EXTRACTOR_MISSING"
	ErrCodeSubjectNotFound  = "ERR_403_SUBJECT_NOT_FOUND"

	// Internal errors (500-599)
	ErrCodeInternal         = "ERR_501_INTERNAL"
	ErrCodeExtractionFailed = "ERR_502_EXTRACTION_FAILED"
	ErrCodeRebuildFailed    = "ERR_503_REBUILD_FAILED"
	ErrCodeIngestFailed     = "ERR_504_INGEST_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "103" from "ERR_103_SCOPE_DISABLED")
	numStr := code[4:7]
	if len(numStr) < 1 {
		return CategoryInternal
	}

	switch numStr[0] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	// Precondition and disk errors abort the whole operation
	switch code {
	case ErrCodeScopeDisabled, ErrCodeExtractorMissing, ErrCodeDataDirLocked, ErrCodeDiskFull, ErrCodeStoreCorrupt:
		return SeverityFatal
	}

	// Per-record extraction failures are counted and skipped
	if code == ErrCodeExtractionFailed {
		return SeverityWarning
	}

	// Retryable network errors get warning severity
	if isRetryableCode(code) {
		return SeverityWarning
	}

	// Default to error severity
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeExtractorUnavailable, ErrCodeBrokerUnavailable:
		return true
	default:
		return false
	}
}
