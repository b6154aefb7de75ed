package trace

import "github.com/pkg/errors"

// Tracing errors
var (
	ErrInvalidLevel   = errors.New("invalid trace level")
	ErrNilRecord      = errors.New("nil trace record")
	ErrServiceClosing = errors.New("tracing service is shutting down")
)
