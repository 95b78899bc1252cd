package manager

import (
	"strings"

	"github.com/pmr-run/pmr/internal/errdef"
)

// ValidateName rejects names that could traverse paths when used as log
// file stems. Allowed characters: A-Z a-z 0-9 . _ - with no "..".
func ValidateName(s string) error {
	if s == "" {
		return errdef.New(errdef.KindStateConflict, "process name required")
	}
	if strings.Contains(s, "..") || strings.ContainsAny(s, "/\\") {
		return errdef.New(errdef.KindStateConflict, "invalid process name %q", s)
	}
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			continue
		}
		return errdef.New(errdef.KindStateConflict, "invalid process name %q: allowed [A-Za-z0-9._-]", s)
	}
	return nil
}
