package featureflags

import (
	"os"
	"strings"
)

const (
	// PublicJoin gates POST /api/public/queues/{id}/tokens
	PublicJoin = "PUBLIC_JOIN"
	// InvariantAudit starts the periodic queue auditor
	InvariantAudit = "INVARIANT_AUDIT"
)

var defaults = map[string]bool{
	PublicJoin:     true,
	InvariantAudit: false,
}

// Enabled reads FLAG_<NAME> as true/1/yes/on or false/0/no/off (case-insensitive).
// Unset or unrecognised values fall back to the flag's default.
func Enabled(name string) bool {
	name = strings.ToUpper(name)
	switch strings.ToLower(strings.TrimSpace(os.Getenv("FLAG_" + name))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaults[name]
	}
}
