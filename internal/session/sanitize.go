package session

import (
	"fmt"
	"strings"
)

// SanitizeRepoName converts an "owner/name" repo identifier into a
// filesystem-safe directory component, rejecting path traversal and
// any character outside [A-Za-z0-9._-].
func SanitizeRepoName(repo string) (string, error) {
	if strings.Contains(repo, "..") || strings.HasPrefix(repo, "/") || strings.HasPrefix(repo, `\`) {
		return "", fmt.Errorf("invalid repository name: contains path traversal pattern")
	}

	sanitized := strings.ReplaceAll(repo, "/", "_")

	for _, c := range sanitized {
		ok := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
			c == '_' || c == '-' || c == '.'
		if !ok {
			return "", fmt.Errorf("invalid repository name: contains invalid character %q", c)
		}
	}

	if strings.HasPrefix(sanitized, ".") {
		return "", fmt.Errorf("invalid repository name: cannot start with a dot")
	}

	return sanitized, nil
}
