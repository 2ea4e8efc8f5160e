package envutil

import (
	"os"
	"strings"
)

// EnvVar selects the runtime mode
const EnvVar = "RESOURCE_DESK_ENV"

// IsDev reports whether the process runs in development mode, where the
// in-memory provider and storage are acceptable defaults
func IsDev() bool {
	env := strings.ToLower(os.Getenv(EnvVar))
	return env == "development" || env == "dev"
}
