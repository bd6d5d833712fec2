// Package mcp implements the Model Context Protocol (MCP) server for
// memory.core. It exposes the topic service's query and maintenance
// operations as tools and publishes subjects as resources.
package mcp

import (
	"context"
	"errors"
	"fmt"

	mcerrors "github.com/juergengeck/memory.core/internal/errors"
	"github.com/juergengeck/memory.core/internal/store"
)

// Custom MCP error codes for memory.core.
const (
	// ErrCodeSubjectMissing indicates the requested subject does not exist.
	ErrCodeSubjectMissing = -32001

	// ErrCodeExtractionUnavailable indicates no keyword extractor is
	// configured or the configured one failed.
	ErrCodeExtractionUnavailable = -32002

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// ErrCodeRebuildFailed indicates an index rebuild could not complete.
	ErrCodeRebuildFailed = -32004

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
// It maps known error types to appropriate MCP error codes and messages.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var ce *mcerrors.CoreError
	if errors.As(err, &ce) {
		return mapCoreError(ce)
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		return &MCPError{
			Code:    ErrCodeSubjectMissing,
			Message: "Subject not found.",
		}
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request timed out.",
		}
	case errors.Is(err, context.Canceled):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request was canceled.",
		}
	default:
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: "Internal server error.",
		}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{
		Code:    ErrCodeInvalidParams,
		Message: msg,
	}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Resource '%s' not found.", uri),
	}
}

// mapCoreError converts a CoreError to an MCPError. Specific codes are
// matched first, then the category decides.
func mapCoreError(ce *mcerrors.CoreError) *MCPError {
	// Build message with suggestion if available
	message := ce.Message
	if ce.Suggestion != "" {
		message = fmt.Sprintf("%s %s", ce.Message, ce.Suggestion)
	}

	switch ce.Code {
	case mcerrors.ErrCodeSubjectNotFound:
		return &MCPError{
			Code:    ErrCodeSubjectMissing,
			Message: message,
		}
	case mcerrors.ErrCodeScopeDisabled:
		// Config category, but from the caller's side it is bad input.
		return &MCPError{
			Code:    ErrCodeInvalidParams,
			Message: message,
		}
	case mcerrors.ErrCodeExtractorMissing,
		mcerrors.ErrCodeExtractorUnavailable,
		mcerrors.ErrCodeExtractionFailed:
		return &MCPError{
			Code:    ErrCodeExtractionUnavailable,
			Message: message,
		}
	case mcerrors.ErrCodeRebuildFailed:
		return &MCPError{
			Code:    ErrCodeRebuildFailed,
			Message: message,
		}
	}

	switch ce.Category {
	case mcerrors.CategoryValidation:
		return &MCPError{
			Code:    ErrCodeInvalidParams,
			Message: message,
		}
	case mcerrors.CategoryNetwork:
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: message,
		}
	default: // CategoryConfig, CategoryIO, CategoryInternal, and unknown
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: message,
		}
	}
}
