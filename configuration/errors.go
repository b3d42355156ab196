package configuration

import (
	"fmt"

	"github.com/juju/errors"

	"github.com/nci/sdi/servicedef"
)

const (
	// ErrNotRunningService is matched by NotRunningServiceError.
	ErrNotRunningService = errors.ConstError("service not running")
	// ErrNoSuchInstance is matched by NoSuchInstanceError.
	ErrNoSuchInstance = errors.ConstError("no such instance")
	// ErrMissingConfiguration is matched by MissingConfigurationError.
	ErrMissingConfiguration = errors.ConstError("missing configuration file")
	// ErrConfiguration is matched by ConfigurationError.
	ErrConfiguration = errors.ConstError("configuration error")
)

// NotRunningServiceError is returned when no service of the requested
// specification is registered on this server.
type NotRunningServiceError struct {
	Spec servicedef.Specification
}

func (e *NotRunningServiceError) Error() string {
	return fmt.Sprintf("no %s service is running on this server", e.Spec)
}

func (e *NotRunningServiceError) Is(target error) bool {
	return target == ErrNotRunningService
}

// NoSuchInstanceError means the instance directory does not exist.
type NoSuchInstanceError struct {
	Spec       servicedef.Specification
	Identifier string
}

func (e *NoSuchInstanceError) Error() string {
	return fmt.Sprintf("%s instance %q does not exist", e.Spec, e.Identifier)
}

func (e *NoSuchInstanceError) Is(target error) bool {
	return target == ErrNoSuchInstance
}

// MissingConfigurationError means the instance directory exists but holds
// no configuration file.
type MissingConfigurationError struct {
	Spec       servicedef.Specification
	Identifier string
	File       string
}

func (e *MissingConfigurationError) Error() string {
	return fmt.Sprintf("%s instance %q directory exists but no configuration file %s", e.Spec, e.Identifier, e.File)
}

func (e *MissingConfigurationError) Is(target error) bool {
	return target == ErrMissingConfiguration
}

// ConfigurationError reports an unreadable, unwritable or wrongly typed
// configuration.
type ConfigurationError struct {
	Spec       servicedef.Specification
	Identifier string
	Reason     string
	Err        error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("%s instance %q: %s", e.Spec, e.Identifier, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
