// Package indexer finds the buildable modules of one language in a cloned tree.
package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bryanwahyu/cbomkit/internal/domain/scanning"
)

// directories never worth descending into
var skipDirs = map[string]struct{}{
	".git":         {},
	"node_modules": {},
	"target":       {},
	"build":        {},
	"venv":         {},
	".venv":        {},
	"__pycache__":  {},
}

// Spec describes how to recognise a module of one language.
type Spec struct {
	Language   scanning.Language
	BuildFiles []string
	Extensions []string
}

// FS indexes by walking the filesystem. A module is a directory holding one of
// the build files; every source file belongs to its closest module. Sources
// outside any module form a module at the scanned folder.
type FS struct {
	spec       Spec
	buildFiles map[string]struct{}
	extensions map[string]struct{}
}

func New(spec Spec) *FS {
	x := &FS{
		spec:       spec,
		buildFiles: make(map[string]struct{}, len(spec.BuildFiles)),
		extensions: make(map[string]struct{}, len(spec.Extensions)),
	}
	for _, b := range spec.BuildFiles {
		x.buildFiles[b] = struct{}{}
	}
	for _, e := range spec.Extensions {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		x.extensions[strings.ToLower(e)] = struct{}{}
	}
	return x
}

func (x *FS) Index(ctx context.Context, root, folder string) ([]scanning.Module, error) {
	base := filepath.Join(root, filepath.FromSlash(folder))
	info, err := os.Stat(base)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", scanning.ErrNoProjectDirectory, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", scanning.ErrNoProjectDirectory, base)
	}

	moduleDirs := map[string]struct{}{}
	var sources []string
	err = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if _, skip := skipDirs[d.Name()]; skip && path != base {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if _, ok := x.buildFiles[d.Name()]; ok {
			moduleDirs[dirOf(rel)] = struct{}{}
		}
		if _, ok := x.extensions[strings.ToLower(filepath.Ext(d.Name()))]; ok {
			sources = append(sources, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", x.spec.Language, err)
	}

	baseRel := dirOf(filepath.ToSlash(filepath.Join(folder, "x")))
	files := map[string][]string{}
	for _, src := range sources {
		dir := closestModule(dirOf(src), moduleDirs)
		if dir == "" {
			dir = baseRel
		}
		files[dir] = append(files[dir], src)
	}

	modules := make([]scanning.Module, 0, len(files))
	for dir, srcs := range files {
		sort.Strings(srcs)
		modules = append(modules, scanning.Module{Name: moduleName(dir), Dir: dir, Files: srcs})
	}
	sort.Slice(modules, func(i, j int) bool { return modules[i].Dir < modules[j].Dir })
	return modules, nil
}

// closestModule walks up from dir until it meets a module directory.
func closestModule(dir string, modules map[string]struct{}) string {
	for {
		if _, ok := modules[dir]; ok {
			return dir
		}
		if dir == "." {
			return ""
		}
		dir = dirOf(dir)
	}
}

func dirOf(rel string) string {
	return filepath.ToSlash(filepath.Dir(filepath.FromSlash(rel)))
}

func moduleName(dir string) string {
	if dir == "." {
		return "root"
	}
	return filepath.Base(filepath.FromSlash(dir))
}
