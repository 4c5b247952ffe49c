package format

import (
	"errors"
	"fmt"
)

// ErrCorrupt is returned when the format table holds unusable values.
var ErrCorrupt = errors.New("corrupt store format")

// IncompatibleFormatError is returned when a store was written by a newer,
// incompatible version of the format.
type IncompatibleFormatError struct {
	FileVersion      int
	SupportedVersion int
}

func (e *IncompatibleFormatError) Error() string {
	return fmt.Sprintf("store format version %d is newer than supported version %d", e.FileVersion, e.SupportedVersion)
}

// MissingCapabilityError is returned when the store lacks data needed by the
// requested configuration, e.g. per-row magnitudes for non-normalized output.
type MissingCapabilityError struct {
	Capability string
}

func (e *MissingCapabilityError) Error() string {
	return fmt.Sprintf("store does not support %s", e.Capability)
}
