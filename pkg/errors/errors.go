package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeTimeout represents a price wait that ran out of time
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeNotFound represents fewer price elements than expected
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeParsing represents price text that could not be parsed
	ErrorTypeParsing ErrorType = "parsing"
	// ErrorTypeBlocked represents a bot wall served instead of results
	ErrorTypeBlocked ErrorType = "blocked"
	// ErrorTypeBrowser represents browser launch and driver failures
	ErrorTypeBrowser ErrorType = "browser"
	// ErrorTypeNetwork represents navigation and HTTP failures
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeRateLimit represents a host that is blocked in the cache
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeCache represents cache-related errors
	ErrorTypeCache ErrorType = "cache"
	// ErrorTypePublisher represents publisher-related errors
	ErrorTypePublisher ErrorType = "publisher"
	// ErrorTypeStorage represents quote storage errors
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// FareError represents an error raised while fetching or handling a fare
type FareError struct {
	Type    ErrorType
	Route   string
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *FareError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Route, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Route, e.Message)
}

// Unwrap returns the underlying error
func (e *FareError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if another attempt might succeed
func (e *FareError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeTimeout, ErrorTypeNetwork, ErrorTypeBrowser:
		return true
	default:
		return false
	}
}

// New creates a new FareError
func New(errType ErrorType, route, message string, err error) *FareError {
	return &FareError{
		Type:    errType,
		Route:   route,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewTimeout creates a new timeout error
func NewTimeout(route string, after time.Duration) *FareError {
	return New(ErrorTypeTimeout, route, fmt.Sprintf("no price elements after %v", after), nil)
}

// NewNotFound creates a new not-found error
func NewNotFound(route, message string) *FareError {
	return New(ErrorTypeNotFound, route, message, nil)
}

// NewParsing creates a new parsing error
func NewParsing(route, message string, err error) *FareError {
	return New(ErrorTypeParsing, route, message, err)
}

// NewBlocked creates a new blocked error
func NewBlocked(route, reason string) *FareError {
	return New(ErrorTypeBlocked, route, "bot wall detected: "+reason, nil)
}

// NewBrowser creates a new browser error
func NewBrowser(route, message string, err error) *FareError {
	return New(ErrorTypeBrowser, route, message, err)
}

// NewNetwork creates a new network error
func NewNetwork(route, message string, err error) *FareError {
	return New(ErrorTypeNetwork, route, message, err)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(route, host string) *FareError {
	return New(ErrorTypeRateLimit, route, "requests to "+host+" are blocked", nil)
}

// NewCache creates a new cache error
func NewCache(route, message string, err error) *FareError {
	return New(ErrorTypeCache, route, message, err)
}

// NewPublisher creates a new publisher error
func NewPublisher(route, message string, err error) *FareError {
	return New(ErrorTypePublisher, route, message, err)
}

// NewStorage creates a new storage error
func NewStorage(route, message string, err error) *FareError {
	return New(ErrorTypeStorage, route, message, err)
}

// NewValidation creates a new validation error
func NewValidation(route, message string) *FareError {
	return New(ErrorTypeValidation, route, message, nil)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *FareError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// TypeOf returns the type of the first FareError in err's chain, or "" if there is none
func TypeOf(err error) ErrorType {
	var fe *FareError
	if stderrors.As(err, &fe) {
		return fe.Type
	}
	return ""
}

// Is reports whether err carries a FareError of the given type
func Is(err error, errType ErrorType) bool {
	return err != nil && TypeOf(err) == errType
}
