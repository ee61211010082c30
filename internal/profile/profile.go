// Package profile manages the local databases a machine keeps, one per
// profile, so several people or setups can share a workstation.
package profile

import (
	"errors"
	"regexp"
	"strings"
)

// DefaultID is the profile used when none is configured.
const DefaultID = "default"

// Profile ID validation errors.
var (
	// ErrInvalidID indicates the profile ID format is invalid.
	ErrInvalidID = errors.New("invalid profile ID: must be lowercase alphanumeric with hyphens, 1-2 path segments")

	// ErrReservedID indicates the profile ID is reserved and cannot be created.
	ErrReservedID = errors.New("reserved profile ID: cannot create profiles with reserved IDs")
)

// idRegex validates profile IDs: one or two lowercase alphanumeric segments
// of up to 64 characters joined by "/", hyphens allowed inside a segment.
var idRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,62}[a-z0-9])?(\/[a-z0-9]([a-z0-9-]{0,62}[a-z0-9])?)?$`)

var reservedIDs = map[string]bool{
	DefaultID: true,
	"_system": true,
}

// ValidateID validates a profile ID. Reserved IDs are valid targets.
func ValidateID(id string) error {
	if id == "" || len(id) > 129 {
		return ErrInvalidID
	}
	if reservedIDs[id] {
		return nil
	}
	if strings.Contains(id, "--") || !idRegex.MatchString(id) {
		return ErrInvalidID
	}
	return nil
}

// IsReserved reports whether id is reserved.
func IsReserved(id string) bool {
	return reservedIDs[id]
}

// ValidateForCreation rejects reserved IDs on top of ValidateID.
func ValidateForCreation(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if IsReserved(id) {
		return ErrReservedID
	}
	return nil
}
