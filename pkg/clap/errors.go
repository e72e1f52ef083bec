package clap

import "errors"

// Error kinds. Every error returned by this package wraps one of these,
// so callers can branch with errors.Is while still getting the path, field,
// index or ID in the message.
var (
	ErrPath                = errors.New("invalid plugin path")
	ErrLoad                = errors.New("could not load library")
	ErrMissingEntryPoint   = errors.New("missing or invalid entry point")
	ErrInitFailed          = errors.New("plugin library init failed")
	ErrFactoryUnsupported  = errors.New("factory not supported")
	ErrMalformedDescriptor = errors.New("malformed plugin descriptor")
	ErrDuplicatePluginID   = errors.New("duplicate plugin id")
	ErrInstantiationFailed = errors.New("plugin instantiation failed")
	ErrInvalidString       = errors.New("invalid string")
	ErrLibraryClosed       = errors.New("plugin library is closed")
)

// ErrorKind returns a short label for the error kind wrapped by err, for use
// in metrics and API responses.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPath):
		return "path"
	case errors.Is(err, ErrLoad):
		return "load"
	case errors.Is(err, ErrMissingEntryPoint):
		return "missing_entry_point"
	case errors.Is(err, ErrInitFailed):
		return "init_failed"
	case errors.Is(err, ErrFactoryUnsupported):
		return "factory_unsupported"
	case errors.Is(err, ErrMalformedDescriptor):
		return "malformed_descriptor"
	case errors.Is(err, ErrDuplicatePluginID):
		return "duplicate_plugin_id"
	case errors.Is(err, ErrInstantiationFailed):
		return "instantiation_failed"
	case errors.Is(err, ErrLibraryClosed):
		return "closed"
	case errors.Is(err, ErrInvalidString):
		return "invalid_string"
	default:
		return "unknown"
	}
}
