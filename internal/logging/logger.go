// Package logging builds the root hclog logger of both binaries.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// New returns a named logger writing to out (stderr when nil). level is
// case-insensitive; unknown levels fall back to info.
func New(name, level string, json bool, out io.Writer) hclog.Logger {
	if out == nil {
		out = os.Stderr
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      Level(level),
		JSONFormat: json,
		Output:     out,
	})
}

func Level(levelStr string) hclog.Level {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "TRACE":
		return hclog.Trace
	case "DEBUG":
		return hclog.Debug
	case "INFO":
		return hclog.Info
	case "WARN":
		return hclog.Warn
	case "ERROR":
		return hclog.Error
	default:
		return hclog.Info
	}
}
