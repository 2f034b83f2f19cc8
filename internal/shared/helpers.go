// Package shared provides small helpers used by more than one adapter.
package shared

import (
	"fmt"
	"net/url"
	"strings"
)

// HTTPStatusError creates a formatted error for non-2xx HTTP responses.
func HTTPStatusError(status int, url string) error {
	return fmt.Errorf("status=%d url=%s", status, url)
}

// ForceHTTP rewrites an https URL to plain http. Other URLs are returned
// unchanged.
func ForceHTTP(rawURL string) string {
	if strings.HasPrefix(rawURL, "https://") {
		return "http://" + strings.TrimPrefix(rawURL, "https://")
	}
	return rawURL
}

// RedactURL drops user info and query so a source URL can be logged or
// used as a metric label.
func RedactURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	parsed.User = nil
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String()
}
