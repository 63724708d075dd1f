package policy

import (
	"strings"

	clierr "github.com/ggonzalez94/agent-wallet/internal/errors"
)

// CheckCommandAllowed enforces the --enable-commands allowlist. An entry
// allows the command path it names and every subcommand below it, so
// "wallet" allows "wallet show" but "wallet show" does not allow "wallet".
func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	path := strings.Fields(normalize(commandPath))
	for _, allowed := range allowlist {
		prefix := strings.Fields(normalize(allowed))
		if len(prefix) == 0 || len(prefix) > len(path) {
			continue
		}
		if strings.Join(path[:len(prefix)], " ") == strings.Join(prefix, " ") {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, "command blocked by --enable-commands policy")
}

// IsMutating reports whether commandPath changes wallet state or moves funds.
func IsMutating(commandPath string) bool {
	switch normalize(commandPath) {
	case "wallet create", "wallet rotate", "wallet delete", "transfer":
		return true
	default:
		return false
	}
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	return strings.Join(parts, " ")
}
