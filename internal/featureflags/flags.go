package featureflags

import (
	"os"
	"strings"
)

const envPrefix = "FLAG_"

// Known flags
const (
	// OpenRoleRegistration lets /api/register honor a client-supplied role
	OpenRoleRegistration = "OPEN_ROLE_REGISTRATION"
)

// Enabled returns true if a flag is enabled via environment variable.
// Flags are read from env as FLAG_<NAME>=true/1/yes/on (case-insensitive).
func Enabled(name string) bool {
	return EnabledOr(name, false)
}

// EnabledOr is Enabled with an explicit default for unset or unparsable values.
func EnabledOr(name string, fallback bool) bool {
	v, ok := os.LookupEnv(envPrefix + strings.ToUpper(name))
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
