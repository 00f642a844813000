package policy

import (
	"strings"

	clierr "github.com/ggonzalez94/distr-cli/internal/errors"
)

func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	normPath := normalize(commandPath)
	for _, allowed := range allowlist {
		if normalize(allowed) == normPath {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, "command blocked by --enable-commands policy")
}

// CheckWriteAllowed blocks transaction-submitting commands in read-only mode.
func CheckWriteAllowed(readOnly, writes bool, commandPath string) error {
	if !readOnly || !writes {
		return nil
	}
	return clierr.New(clierr.CodeBlocked, "command "+normalize(commandPath)+" submits a transaction and is blocked by --read-only")
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	return strings.Join(parts, " ")
}
