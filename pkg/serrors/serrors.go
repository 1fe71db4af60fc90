package serrors

import "fmt"

// Error is a coded application error. Code is a stable machine-readable
// identifier, Message is an operator-facing description and Details is
// optional free-form context.
type Error struct {
	Code    string
	Message string
	Details string
}

func NewError(code, message, details string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: details,
	}
}

func (e *Error) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
}

// WithDetails returns a copy of the error carrying extra context. The
// original error remains usable as an errors.Is target because Is matches
// on Code.
func (e *Error) WithDetails(format string, args ...any) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: fmt.Sprintf(format, args...),
	}
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}
