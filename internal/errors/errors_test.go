package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoreError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("original error")

	// When: wrapping with CoreError
	coreErr := New(ErrCodeStoreIO, "failed to write subject record", originalErr)

	// Then: unwrapping returns original error
	require.NotNil(t, coreErr)
	assert.Equal(t, originalErr, errors.Unwrap(coreErr))
	assert.True(t, errors.Is(coreErr, originalErr))
}

func TestCoreError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "config error",
			code:     ErrCodeConfigNotFound,
			message:  "config file not found",
			expected: "[ERR_101_CONFIG_NOT_FOUND] config file not found",
		},
		{
			name:     "store error",
			code:     ErrCodeStoreIO,
			message:  "cannot open subject store",
			expected: "[ERR_201_STORE_IO] cannot open subject store",
		},
		{
			name:     "network error",
			code:     ErrCodeNetworkTimeout,
			message:  "request timed out",
			expected: "[ERR_301_NETWORK_TIMEOUT] request timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestCoreError_Is_MatchesByCode(t *testing.T) {
	// Given: two errors with same code
	err1 := New(ErrCodeSubjectNotFound, "subject A not found", nil)
	err2 := New(ErrCodeSubjectNotFound, "subject B not found", nil)

	// Then: they match by code
	assert.True(t, errors.Is(err1, err2))
}

func TestCoreError_Is_DoesNotMatchDifferentCodes(t *testing.T) {
	// Given: two errors with different codes
	err1 := New(ErrCodeSubjectNotFound, "subject not found", nil)
	err2 := New(ErrCodeConfigNotFound, "config not found", nil)

	// Then: they don't match
	assert.False(t, errors.Is(err1, err2))
}

func TestCoreError_WithDetails_AddsContext(t *testing.T) {
	// Given: a base error
	err := New(ErrCodeExtractionFailed, "extraction failed", nil)

	// When: adding details
	err = err.WithDetail("record_id", "rec-042")
	err = err.WithDetail("extractor", "ollama:llama3.2:3b")

	// Then: details are available
	assert.Equal(t, "rec-042", err.Details["record_id"])
	assert.Equal(t, "ollama:llama3.2:3b", err.Details["extractor"])
}

func TestCoreError_WithSuggestion_AddsSuggestion(t *testing.T) {
	// Given: a network error
	err := New(ErrCodeExtractorUnavailable, "Ollama is not reachable", nil)

	// When: adding suggestion
	err = err.WithSuggestion("Start Ollama with 'ollama serve'")

	// Then: suggestion is available
	assert.Equal(t, "Start Ollama with 'ollama serve'", err.Suggestion)
}

func TestCoreError_CategoryFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantCategory Category
	}{
		{ErrCodeConfigNotFound, CategoryConfig},
		{ErrCodeScopeDisabled, CategoryConfig},
		{ErrCodeStoreIO, CategoryIO},
		{ErrCodeDataDirLocked, CategoryIO},
		{ErrCodeNetworkTimeout, CategoryNetwork},
		{ErrCodeExtractorUnavailable, CategoryNetwork},
		{ErrCodeInvalidInput, CategoryValidation},
		{ErrCodeSubjectNotFound, CategoryValidation},
		{ErrCodeInternal, CategoryInternal},
		{ErrCodeExtractionFailed, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantCategory, err.Category)
		})
	}
}

func TestCoreError_SeverityFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantSeverity Severity
	}{
		{ErrCodeScopeDisabled, SeverityFatal},
		{ErrCodeExtractorMissing, SeverityFatal},
		{ErrCodeDataDirLocked, SeverityFatal},
		{ErrCodeStoreIO, SeverityError},
		{ErrCodeExtractionFailed, SeverityWarning}, // Counted and skipped per record
		{ErrCodeNetworkTimeout, SeverityWarning},   // Retryable, so warning
		{ErrCodeBrokerUnavailable, SeverityWarning},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantSeverity, err.Severity)
		})
	}
}

func TestCoreError_RetryableFromCode(t *testing.T) {
	tests := []struct {
		code          string
		wantRetryable bool
	}{
		{ErrCodeNetworkTimeout, true},
		{ErrCodeExtractorUnavailable, true},
		{ErrCodeBrokerUnavailable, true},
		{ErrCodeSubjectNotFound, false},
		{ErrCodeConfigInvalid, false},
		{ErrCodeScopeDisabled, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantRetryable, err.Retryable)
		})
	}
}

func TestWrap_CreatesCoreErrorFromError(t *testing.T) {
	// Given: a standard error
	originalErr := errors.New("something went wrong")

	// When: wrapping with a code
	coreErr := Wrap(ErrCodeInternal, originalErr)

	// Then: creates proper CoreError
	require.NotNil(t, coreErr)
	assert.Equal(t, ErrCodeInternal, coreErr.Code)
	assert.Equal(t, "something went wrong", coreErr.Message)
	assert.Equal(t, originalErr, coreErr.Cause)
}

func TestWrap_NilErrorReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestConfigError_CreatesConfigCategoryError(t *testing.T) {
	err := ConfigError("invalid yaml syntax", nil)

	assert.Equal(t, CategoryConfig, err.Category)
	assert.Contains(t, err.Code, "CONFIG")
}

func TestStoreError_CreatesIOCategoryError(t *testing.T) {
	err := StoreError("cannot read subject record", nil)

	assert.Equal(t, CategoryIO, err.Category)
}

func TestNetworkError_CreatesRetryableError(t *testing.T) {
	err := NetworkError("connection refused", nil)

	assert.Equal(t, CategoryNetwork, err.Category)
	assert.True(t, err.Retryable)
}

func TestValidationError_CreatesValidationCategoryError(t *testing.T) {
	err := ValidationError("label cannot be empty", nil)

	assert.Equal(t, CategoryValidation, err.Category)
}

func TestSubjectNotFound_CarriesSubjectID(t *testing.T) {
	err := SubjectNotFound("sub-123")

	assert.Equal(t, ErrCodeSubjectNotFound, err.Code)
	assert.Equal(t, CategoryValidation, err.Category)
	assert.Contains(t, err.Message, "sub-123")
	assert.Equal(t, "sub-123", err.Details["subject_id"])
}

func TestIsRetryable_ChecksRetryableFlag(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "retryable CoreError",
			err:      New(ErrCodeNetworkTimeout, "timeout", nil),
			expected: true,
		},
		{
			name:     "non-retryable CoreError",
			err:      New(ErrCodeSubjectNotFound, "not found", nil),
			expected: false,
		},
		{
			name:     "wrapped retryable error",
			err:      Wrap(ErrCodeExtractorUnavailable, errors.New("wrapped")),
			expected: true,
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal_ChecksFatalSeverity(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "missing extractor",
			err:      New(ErrCodeExtractorMissing, "no extractor configured", nil),
			expected: true,
		},
		{
			name:     "disabled scope",
			err:      New(ErrCodeScopeDisabled, "subjects scope is disabled", nil),
			expected: true,
		},
		{
			name:     "non-fatal error",
			err:      New(ErrCodeSubjectNotFound, "not found", nil),
			expected: false,
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsFatal(tt.err))
		})
	}
}

func TestGetCode_ExtractsCode(t *testing.T) {
	assert.Equal(t, ErrCodeRebuildFailed, GetCode(New(ErrCodeRebuildFailed, "rebuild failed", nil)))
	assert.Equal(t, "", GetCode(errors.New("plain")))
	assert.Equal(t, "", GetCode(nil))
}
