package ai

import (
	"os"
	"strings"
)

// debugFlags reads the DOCSMITH_AI_DEBUG environment variable and reports
// whether request logging and prompt dumping are enabled for the given engine.
// Valid values:
//
//	"1", "true", "on", "yes" - log requests and responses
//	"prompts", "full", "2"   - additionally dump the full prompt text
//
// Per-engine overrides (DOCSMITH_<ENGINE>_DEBUG, DOCSMITH_<ENGINE>_DEBUG_PROMPTS)
// scope the logging to a single engine, which keeps the output readable when a
// fallback chain is active.
func debugFlags(engine string) (debug bool, prompts bool) {
	switch strings.TrimSpace(strings.ToLower(os.Getenv("DOCSMITH_AI_DEBUG"))) {
	case "prompts", "full", "2":
		return true, true
	case "1", "true", "on", "yes":
		return true, false
	}

	prefix := "DOCSMITH_" + strings.ToUpper(engine)
	return envTrue(prefix + "_DEBUG"), envTrue(prefix + "_DEBUG_PROMPTS")
}

func envTrue(name string) bool {
	switch strings.TrimSpace(strings.ToLower(os.Getenv(name))) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}
