// Package pkgfinder locates the directory of a package inside a cloned repository
// by reading the build descriptors found in the tree.
package pkgfinder

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
)

var errFound = errors.New("found")

// declaredName reads the package name declared by a build file. ok is false
// when the file declares none.
type declaredName func(path string) (name string, ok bool, err error)

// findDir walks root and returns the directory (relative to root) of the first
// build file, accepted by isBuildFile, whose declared name satisfies match.
// Descriptors that fail to parse are skipped.
func findDir(root string, isBuildFile func(name string) bool, read declaredName, match func(string) bool) (string, bool, error) {
	var dir string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !isBuildFile(d.Name()) {
			return nil
		}
		name, ok, err := read(path)
		if err != nil || !ok || !match(name) {
			return nil
		}
		rel, err := filepath.Rel(root, filepath.Dir(path))
		if err != nil {
			return err
		}
		dir = filepath.ToSlash(rel)
		return errFound
	})
	switch {
	case errors.Is(err, errFound):
		return dir, true, nil
	case err != nil:
		return "", false, fmt.Errorf("walk %s: %w", root, err)
	}
	return "", false, nil
}
