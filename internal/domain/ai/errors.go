package ai

import "errors"

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("ai quota exceeded")

// ErrNotConfigured is returned when no AI provider is set up.
var ErrNotConfigured = errors.New("ai advisor not configured")
