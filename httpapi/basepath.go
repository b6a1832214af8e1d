package httpapi

import "strings"

// normalizeBasePath returns the mount prefix in "/sub/path" form, or
// empty for a root mount. Trailing slashes are stripped so route
// registration can append its own.
func normalizeBasePath(raw string) string {
	trimmed := strings.Trim(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return ""
	}
	return "/" + trimmed
}
