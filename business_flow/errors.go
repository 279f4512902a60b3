// Package businessflow contains the core business logic and use cases for cost estimation workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Article-related errors
	ErrArticleNotFound          = errors.New("article not found")
	ErrArticleNameExists        = errors.New("article name already exists")
	ErrArticleAlreadyProcessing = errors.New("article is already being processed")
	ErrSpecFileRequired         = errors.New("specification file is required")

	// Index-related errors
	ErrIndexNotFound = errors.New("index not found")

	// Order-related errors
	ErrOrderNotFound = errors.New("order not found")

	// Cost-model errors
	ErrCostModelNotFound = errors.New("cost model not found")
	ErrCostModelExists   = errors.New("cost model already exists for this article and index")

	// LLM-related errors
	ErrMissingAPIKey = errors.New("OPENAI_API_KEY is not configured")
	ErrUpstreamLLM   = errors.New("upstream LLM request failed")
	ErrEmptyResponse = errors.New("upstream LLM returned an empty response")

	// Filter errors
	ErrInvalidPage     = errors.New("page must be at least 1")
	ErrInvalidPageSize = errors.New("page size must be between 1 and 100")
	ErrInvalidDate     = errors.New("date must be an ISO date or datetime")

	// Ingestion errors
	ErrInvalidUpload = errors.New("uploaded file cannot be parsed")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsArticleNotFound(err error) bool {
	return errors.Is(err, ErrArticleNotFound)
}

func IsArticleNameExists(err error) bool {
	return errors.Is(err, ErrArticleNameExists)
}

func IsArticleAlreadyProcessing(err error) bool {
	return errors.Is(err, ErrArticleAlreadyProcessing)
}

func IsSpecFileRequired(err error) bool {
	return errors.Is(err, ErrSpecFileRequired)
}

func IsIndexNotFound(err error) bool {
	return errors.Is(err, ErrIndexNotFound)
}

func IsOrderNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound)
}

func IsCostModelNotFound(err error) bool {
	return errors.Is(err, ErrCostModelNotFound)
}

func IsCostModelExists(err error) bool {
	return errors.Is(err, ErrCostModelExists)
}

func IsMissingAPIKey(err error) bool {
	return errors.Is(err, ErrMissingAPIKey)
}

func IsUpstreamLLM(err error) bool {
	return errors.Is(err, ErrUpstreamLLM)
}

func IsEmptyResponse(err error) bool {
	return errors.Is(err, ErrEmptyResponse)
}

func IsInvalidPage(err error) bool {
	return errors.Is(err, ErrInvalidPage)
}

func IsInvalidPageSize(err error) bool {
	return errors.Is(err, ErrInvalidPageSize)
}

func IsInvalidDate(err error) bool {
	return errors.Is(err, ErrInvalidDate)
}

func IsInvalidUpload(err error) bool {
	return errors.Is(err, ErrInvalidUpload)
}
