package optimization

import "fmt"

// Kind classifies an optimization error.
type Kind int

const (
	// KindUnknown is the zero Kind.
	KindUnknown Kind = iota
	// KindValidation marks a malformed parameter declaration or input value.
	KindValidation
	// KindConfiguration marks an inconsistent assembly: unknown warp,
	// duplicate parameter names, mismatched index maps.
	KindConfiguration
	// KindSamplingExhausted marks a rejection-sampling loop that hit its
	// attempt cap.
	KindSamplingExhausted
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConfiguration:
		return "configuration"
	case KindSamplingExhausted:
		return "sampling exhausted"
	default:
		return "unknown"
	}
}

// Sentinel errors for use with errors.Is. Any *Error of the same Kind
// matches its sentinel.
var (
	ErrValidation        = &Error{Kind: KindValidation, Message: "validation error"}
	ErrConfiguration     = &Error{Kind: KindConfiguration, Message: "configuration error"}
	ErrSamplingExhausted = &Error{Kind: KindSamplingExhausted, Message: "sampling exhausted"}
)

// Error represents an optimization error with context
// that can be wrapped with additional information.
type Error struct {
	// Kind classifies the error.
	Kind Kind
	// Message describes the error that occurred.
	Message string
	// Op is the operation that caused the error.
	Op string
	// Component is the component where the error occurred.
	Component string
	// Err is the underlying error that triggered this one, if any.
	Err error
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var prefix string
	if e.Component != "" && e.Op != "" {
		prefix = fmt.Sprintf("%s: %s", e.Component, e.Op)
	} else if e.Component != "" {
		prefix = e.Component
	} else if e.Op != "" {
		prefix = e.Op
	}

	if e.Err != nil {
		if prefix != "" {
			return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	if prefix != "" {
		return fmt.Sprintf("%s: %s", prefix, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is the sentinel for e's Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind != KindUnknown && t == sentinel(e.Kind)
}

func sentinel(k Kind) *Error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindConfiguration:
		return ErrConfiguration
	case KindSamplingExhausted:
		return ErrSamplingExhausted
	}
	return nil
}

// WithOperation adds operation context to the error.
func (e *Error) WithOperation(op string) *Error {
	e.Op = op
	return e
}

// WithComponent adds component context to the error.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// NewError creates a new optimization error with the given message.
func NewError(message string) *Error {
	return &Error{
		Message: message,
	}
}

// NewErrorf creates a new optimization error with formatted message.
func NewErrorf(format string, args ...interface{}) *Error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
	}
}

// Validationf creates a KindValidation error with a formatted message.
func Validationf(format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: fmt.Sprintf(format, args...),
	}
}

// Configurationf creates a KindConfiguration error with a formatted message.
func Configurationf(format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindConfiguration,
		Message: fmt.Sprintf(format, args...),
	}
}

// Exhaustedf creates a KindSamplingExhausted error with a formatted message.
func Exhaustedf(format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindSamplingExhausted,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError wraps an existing error with additional context.
// The Kind of a wrapped *Error is carried over.
// If err is nil, WrapError returns nil.
func WrapError(err error, message string) *Error {
	if err == nil {
		return nil
	}
	e := &Error{
		Message: message,
		Err:     err,
	}
	if inner, ok := IsOptimizationError(err); ok {
		e.Kind = inner.Kind
	}
	return e
}

// WrapErrorf wraps an existing error with additional formatted context.
// If err is nil, WrapErrorf returns nil.
func WrapErrorf(err error, format string, args ...interface{}) *Error {
	return WrapError(err, fmt.Sprintf(format, args...))
}

// IsOptimizationError checks if an error is of type Error.
// If the error is an optimization error, it returns the error and true.
// Otherwise, it returns nil and false.
func IsOptimizationError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	if e, ok := err.(*Error); ok {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind != KindUnknown {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return KindUnknown
		}
		err = u.Unwrap()
	}
	return KindUnknown
}
