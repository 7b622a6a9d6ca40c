package pkgfinder

import (
	"encoding/xml"
	"os"

	"deps.dev/util/maven"
	packageurl "github.com/package-url/packageurl-go"
)

const pomFile = "pom.xml"

// Maven matches pom.xml groupId (or the parent's) and artifactId against
// the package url namespace and name.
type Maven struct{}

func (Maven) Find(purl packageurl.PackageURL, root string) (string, bool, error) {
	want := purl.Namespace + ":" + purl.Name
	return findDir(root,
		func(name string) bool { return name == pomFile },
		readPom,
		func(got string) bool { return got == want },
	)
}

func readPom(path string) (string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, err
	}
	defer f.Close()

	var project maven.Project
	if err := xml.NewDecoder(f).Decode(&project); err != nil {
		return "", false, err
	}
	group := string(project.GroupID)
	if group == "" {
		group = string(project.Parent.GroupID)
	}
	artifact := string(project.ArtifactID)
	if group == "" || artifact == "" {
		return "", false, nil
	}
	return group + ":" + artifact, true, nil
}
