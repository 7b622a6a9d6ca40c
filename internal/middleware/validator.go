package middleware

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidInput wraps every validation failure so handlers can answer 400.
var ErrInvalidInput = errors.New("invalid input")

var clientIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// ValidateScanURL accepts package urls and http(s) repository urls that do
// not point at loopback or private hosts.
func ValidateScanURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return invalid("scan url cannot be empty")
	}
	if strings.HasPrefix(raw, "pkg:") {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return invalid("invalid URL format: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return invalid("invalid URL scheme: %s (allowed: http, https)", u.Scheme)
	}

	// SSRF protection
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return invalid("URL has no host")
	}
	blocked := []string{"localhost", "127.0.0.1", "0.0.0.0", "[::]", "::1"}
	for _, b := range blocked {
		if strings.Contains(host, b) {
			return invalid("localhost/internal IPs are not allowed")
		}
	}
	if strings.HasPrefix(host, "10.") ||
		strings.HasPrefix(host, "192.168.") ||
		strings.HasPrefix(host, "172.16.") ||
		strings.HasPrefix(host, "172.31.") {
		return invalid("private IP ranges are not allowed")
	}
	return nil
}

// ValidateSubfolder rejects traversal and control characters. Empty is allowed.
func ValidateSubfolder(folder string) error {
	if folder == "" {
		return nil
	}
	if strings.HasPrefix(folder, "/") {
		return invalid("subfolder must be relative")
	}
	cleaned := path.Clean(folder)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return invalid("path traversal detected")
	}
	for _, d := range []string{"$(", "`", "&", "|", ";", "\n", "\r", "\x00"} {
		if strings.Contains(folder, d) {
			return invalid("invalid characters in subfolder")
		}
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// ValidateClientID checks websocket client ids: alphanumeric, dash, underscore, max 64 chars.
func ValidateClientID(id string) error {
	if !clientIDPattern.MatchString(id) {
		return invalid("invalid client id format (alphanumeric, dash, underscore only, max 64 chars)")
	}
	return nil
}

// ValidateScanID validates scan ID format
func ValidateScanID(scanID string) error {
	if _, err := uuid.Parse(scanID); err != nil {
		return invalid("invalid scan ID format")
	}
	return nil
}
