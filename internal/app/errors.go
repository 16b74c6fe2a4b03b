package app

import "fmt"

// DomainError is the one error type the HTTP layer renders as-is: Status
// becomes the response code, the rest fills the error envelope. Anything
// else collapses to a generic 500 in mapError.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{Status: status, Code: code, Message: message, Details: details}
}
