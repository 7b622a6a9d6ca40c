package pkgfinder

import (
	"bufio"
	"os"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	packageurl "github.com/package-url/packageurl-go"
	"gopkg.in/ini.v1"
)

const (
	pyprojectFile = "pyproject.toml"
	setupCfgFile  = "setup.cfg"
	setupPyFile   = "setup.py"
)

var (
	setupPyName   = regexp.MustCompile(`name\s*=\s*['"]([^'"]*)['"]`)
	pep503Replace = regexp.MustCompile(`[-_.]+`)
)

// PyPI matches pyproject.toml, setup.cfg and setup.py package names against
// the package url name. Names are compared in PEP 503 normalized form.
type PyPI struct{}

func (PyPI) Find(purl packageurl.PackageURL, root string) (string, bool, error) {
	want := NormalizePyPIName(purl.Name)
	return findDir(root,
		func(name string) bool {
			return name == pyprojectFile || name == setupCfgFile || name == setupPyFile
		},
		readPythonName,
		func(got string) bool { return NormalizePyPIName(got) == want },
	)
}

// NormalizePyPIName lowercases name and collapses runs of "-", "_" and "." into "-".
func NormalizePyPIName(name string) string {
	return pep503Replace.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

func readPythonName(path string) (string, bool, error) {
	switch {
	case strings.HasSuffix(path, pyprojectFile):
		return readPyproject(path)
	case strings.HasSuffix(path, setupCfgFile):
		return readSetupCfg(path)
	default:
		return readSetupPy(path)
	}
}

type pyproject struct {
	Project struct {
		Name string `toml:"name"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Name string `toml:"name"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

func readPyproject(path string) (string, bool, error) {
	var doc pyproject
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return "", false, err
	}
	if doc.Project.Name != "" {
		return doc.Project.Name, true, nil
	}
	if doc.Tool.Poetry.Name != "" {
		return doc.Tool.Poetry.Name, true, nil
	}
	return "", false, nil
}

func readSetupCfg(path string) (string, bool, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return "", false, err
	}
	name := cfg.Section("metadata").Key("name").String()
	return name, name != "", nil
}

func readSetupPy(path string) (string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if m := setupPyName.FindStringSubmatch(sc.Text()); m != nil {
			return m[1], true, nil
		}
	}
	return "", false, sc.Err()
}
