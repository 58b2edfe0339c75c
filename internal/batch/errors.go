package batch

import "fmt"

// ValidationError marks request-shape problems the caller can fix. Handlers
// translate it into a 400 response instead of a job failure.
type ValidationError struct {
	message string
}

func (e *ValidationError) Error() string {
	return e.message
}

func errValidationf(format string, args ...any) error {
	return &ValidationError{message: fmt.Sprintf(format, args...)}
}

// ServiceError carries a dotted operation code alongside the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the dotted operation code for logging and response payloads.
func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}
