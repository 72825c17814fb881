package models

import "fmt"

// BalanceError is a venue rejection caused by insufficient balance, typically
// margin-repay rounding on close.
type BalanceError struct {
	Code    int
	Message string
}

func (e *BalanceError) Error() string {
	return fmt.Sprintf("insufficient balance (code %d): %s", e.Code, e.Message)
}

// NotAllowedError is a venue policy rejection such as a restricted symbol.
type NotAllowedError struct {
	Code    int
	Message string
}

func (e *NotAllowedError) Error() string {
	return fmt.Sprintf("not allowed (code %d): %s", e.Code, e.Message)
}

// ShouldRetryError is a venue rejection the venue marks as transient.
type ShouldRetryError struct {
	Code    int
	Message string
}

func (e *ShouldRetryError) Error() string {
	return fmt.Sprintf("should retry (code %d): %s", e.Code, e.Message)
}

// APIError is any other venue error response.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (http %d, code %d): %s", e.StatusCode, e.Code, e.Message)
}
