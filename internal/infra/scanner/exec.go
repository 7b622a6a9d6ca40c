// Package scanner runs an external cryptography scanner that prints a CycloneDX
// CBOM on stdout.
package scanner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/bryanwahyu/cbomkit/internal/domain/cbom"
	"github.com/bryanwahyu/cbomkit/internal/domain/scanning"
)

// RootPlaceholder in an argument is replaced by the clone directory.
const RootPlaceholder = "{root}"

// Exec runs Command once per scan. The absolute module directories are
// appended to the arguments.
type Exec struct {
	Language scanning.Language
	Command  []string
	Timeout  time.Duration
	Logger   hclog.Logger
	Now      func() time.Time
}

func (e *Exec) Scan(ctx context.Context, root string, modules []scanning.Module) (scanning.ScanResult, error) {
	if len(e.Command) == 0 {
		return scanning.ScanResult{}, fmt.Errorf("no scanner command configured for %s", e.Language)
	}
	now := e.Now
	if now == nil {
		now = time.Now
	}
	logger := e.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	args := make([]string, 0, len(e.Command)-1+len(modules))
	for _, a := range e.Command[1:] {
		args = append(args, strings.ReplaceAll(a, RootPlaceholder, root))
	}
	for _, m := range modules {
		args = append(args, filepath.Join(root, filepath.FromSlash(m.Dir)))
	}

	started := now()
	cmd := exec.CommandContext(ctx, e.Command[0], args...)
	cmd.Dir = root
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	ended := now()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			logger.Error("scanner exited with error", "language", e.Language, "exitCode", ee.ExitCode(), "stderr", stderr.String())
			return scanning.ScanResult{}, fmt.Errorf("%s scanner exit code %d: %s", e.Language, ee.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return scanning.ScanResult{}, fmt.Errorf("run %s scanner: %w", e.Language, err)
	}

	bom, err := cbom.FromJSON(out)
	if err != nil {
		return scanning.ScanResult{}, fmt.Errorf("%w: %s scanner output: %v", scanning.ErrCBOMSerialization, e.Language, err)
	}

	files, lines := 0, 0
	for _, m := range modules {
		for _, f := range m.Files {
			n, err := countLines(filepath.Join(root, filepath.FromSlash(f)))
			if err != nil {
				logger.Warn("count lines", "file", f, "error", err)
				continue
			}
			files++
			lines += n
		}
	}
	logger.Debug("scanner finished", "language", e.Language, "modules", len(modules), "files", files, "lines", lines, "elapsed", ended.Sub(started))

	return scanning.ScanResult{
		CBOM:         bom,
		StartedAt:    started,
		EndedAt:      ended,
		LinesScanned: lines,
		FilesScanned: files,
	}, nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	n := 0
	for sc.Scan() {
		n++
	}
	return n, sc.Err()
}
