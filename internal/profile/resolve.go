package profile

import (
	"fmt"
	"os"
)

// EnvVar selects the profile when no explicit one is given.
const EnvVar = "STUDYSYNC_PROFILE"

// Resolve determines the profile ID.
// Priority: explicit > STUDYSYNC_PROFILE env > "default".
func Resolve(explicit string) (string, error) {
	if explicit != "" {
		if err := ValidateID(explicit); err != nil {
			return "", fmt.Errorf("invalid profile ID %q: %w", explicit, err)
		}
		return explicit, nil
	}

	if env := os.Getenv(EnvVar); env != "" {
		if err := ValidateID(env); err != nil {
			return "", fmt.Errorf("invalid %s %q: %w", EnvVar, env, err)
		}
		return env, nil
	}

	return DefaultID, nil
}
