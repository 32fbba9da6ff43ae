package runtime

import (
	"os"
	"strings"
)

// Getenv returns fallback for unset or blank variables.
func Getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
