package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrCode represents an error code
type ErrCode string

const (
	ErrCodeFeedFetch          ErrCode = "FEED_FETCH_FAILED"
	ErrCodeInvalidBatchConfig ErrCode = "INVALID_BATCH_CONFIG"
	ErrCodeCacheRead          ErrCode = "CACHE_READ_FAILED"
	ErrCodeCacheWrite         ErrCode = "CACHE_WRITE_FAILED"
	ErrCodeTimeout            ErrCode = "SUMMARIZATION_TIMEOUT"
	ErrCodeSummarization      ErrCode = "SUMMARIZATION_FAILED"
	ErrCodeUpload             ErrCode = "UPLOAD_FAILED"
	ErrCodeConfig             ErrCode = "CONFIG_INVALID"
	ErrCodeNotFound           ErrCode = "NOT_FOUND"
	ErrCodeBadRequest         ErrCode = "BAD_REQUEST"
	ErrCodeInternal           ErrCode = "INTERNAL_ERROR"
)

// AppError represents an application error
type AppError struct {
	Code    ErrCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError with the given code
func New(code ErrCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewFeedFetchError creates an error for a feed that could not be retrieved
func NewFeedFetchError(url string, err error) *AppError {
	return New(ErrCodeFeedFetch, fmt.Sprintf("failed to fetch feed %s", url), err)
}

// NewInvalidBatchConfigError creates an error for an unusable batch size/offset pair
func NewInvalidBatchConfigError(batchSize, offset int) *AppError {
	return New(ErrCodeInvalidBatchConfig,
		fmt.Sprintf("offset (%d) must satisfy 0 <= offset < batch-size (%d)", offset, batchSize), nil)
}

// NewTimeoutError creates a summarization timeout error
func NewTimeoutError(repoURL string, err error) *AppError {
	return New(ErrCodeTimeout, fmt.Sprintf("summarization of %s timed out", repoURL), err)
}

// NewSummarizationError creates a summarization error
func NewSummarizationError(repoURL string, err error) *AppError {
	return New(ErrCodeSummarization, fmt.Sprintf("summarization of %s failed", repoURL), err)
}

// NewUploadError creates an upload error
func NewUploadError(key string, err error) *AppError {
	return New(ErrCodeUpload, fmt.Sprintf("upload of %s failed", key), err)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), nil)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return New(ErrCodeInternal, message, err)
}

// NewBadRequestError creates a bad request error
func NewBadRequestError(message string, err error) *AppError {
	return New(ErrCodeBadRequest, message, err)
}

// CodeOf returns the code of the first AppError in err's chain, or "" if none
func CodeOf(err error) ErrCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

// IsTimeout checks if the error is a summarization timeout
func IsTimeout(err error) bool {
	return CodeOf(err) == ErrCodeTimeout
}

// IsFatal reports whether err must abort the pipeline before any processing
func IsFatal(err error) bool {
	switch CodeOf(err) {
	case ErrCodeFeedFetch, ErrCodeInvalidBatchConfig, ErrCodeConfig:
		return true
	}
	return false
}
