package bitrix

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// APIError represents an error envelope returned by the Bitrix24 REST API.
type APIError struct {
	Code        string `json:"error"             yaml:"error"`
	Description string `json:"error_description" yaml:"error_description"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code == "" {
		return e.Description
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Well-known Bitrix24 error codes.
const (
	ErrorCodeNotFound           = "NOT_FOUND"
	ErrorCodeMethodNotFound     = "ERROR_METHOD_NOT_FOUND"
	ErrorCodeQueryLimitExceeded = "QUERY_LIMIT_EXCEEDED"
	ErrorCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrorCodeExpiredToken       = "expired_token"
)

// Static errors that can be wrapped with context.
var (
	ErrInvalidFilter          = errors.New("invalid filter")
	ErrPagination             = errors.New("pagination failed")
	ErrBatchSizeExceeded      = errors.New("batch size exceeded")
	ErrBatchIncomplete        = errors.New("batch response incomplete")
	ErrDuplicateBatchKey      = errors.New("duplicate batch correlation key")
	ErrNotFound               = errors.New("entity not found")
	ErrValidation             = errors.New("field validation failed")
	ErrRelationshipResolution = errors.New("relationship resolution failed")
	ErrUnknownEntityType      = errors.New("unknown entity type")
	ErrTransport              = errors.New("transport failure")
	ErrConfigRequired         = errors.New("config is required")
	ErrWebhookURLRequired     = errors.New("webhook URL is required")
	ErrInvalidWebhookURL      = errors.New("invalid webhook URL")
	ErrUnexpectedResponse     = errors.New("unexpected response shape")
	ErrMissingID              = errors.New("record has no ID field")
)

// IsNotFound checks if the error reports a missing entity, either as the
// local ErrNotFound sentinel or as the portal's "Not found" envelope.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}

	apiErr := &APIError{}
	if errors.As(err, &apiErr) {
		if apiErr.Code == ErrorCodeNotFound {
			return true
		}
		// Some portal builds leave the code blank and only fill the description.
		return strings.Contains(strings.ToLower(apiErr.Description), "not found")
	}

	return false
}

// IsValidation checks if the error is a write-field validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsRateLimited checks if the portal rejected the call for exceeding its
// request quota.
func IsRateLimited(err error) bool {
	apiErr := &APIError{}
	if errors.As(err, &apiErr) {
		return apiErr.Code == ErrorCodeQueryLimitExceeded
	}

	return false
}

// ParseAPIError parses an error envelope from JSON. Returns nil if the body
// carries no error field.
func ParseAPIError(data []byte) (*APIError, error) {
	var apiErr APIError

	err := json.Unmarshal(data, &apiErr)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal error envelope: %w", err)
	}

	if apiErr.Code == "" && apiErr.Description == "" {
		return nil, nil
	}

	return &apiErr, nil
}
