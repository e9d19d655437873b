package deployment

import (
	"fmt"
	"path"
	"strings"
)

// Version is a repository version label. Equality is an exact string match and
// ordering is plain string comparison; it is deliberately not parsed as semver.
type Version string

// String returns the label.
func (v Version) String() string {
	return string(v)
}

// ContextRoot is the externally visible mount path of a deployed unit, without
// its leading slash.
type ContextRoot string

// UnknownContextRoot is reported when the container exposes no context root.
const UnknownContextRoot ContextRoot = "?"

// NormalizeContextRoot strips surrounding whitespace and a leading slash.
func NormalizeContextRoot(s string) ContextRoot {
	return ContextRoot(strings.TrimPrefix(strings.TrimSpace(s), "/"))
}

// String returns the context root.
func (c ContextRoot) String() string {
	return string(c)
}

// ArtifactLocation is the result of resolving a checksum in the repository.
type ArtifactLocation struct {
	// Path is the repository path of the artifact file; its second-to-last
	// segment is the version folder.
	Path string
	// DownloadURI is the absolute reference used to stream the artifact.
	DownloadURI string
}

// FileName returns the last path segment.
func (l ArtifactLocation) FileName() (string, error) {
	return SegmentFromEnd(l.Path, 1)
}

// Version returns the version folder of the artifact.
func (l ArtifactLocation) Version() (Version, error) {
	segment, err := SegmentFromEnd(l.Path, 2)
	if err != nil {
		return "", err
	}

	return Version(segment), nil
}

// VersionsRoot returns the folder holding all version folders of the artifact.
func (l ArtifactLocation) VersionsRoot() (string, error) {
	return DropSegments(l.Path, 2)
}

// DeployedUnit is the runtime identity of something deployed in the container.
type DeployedUnit struct {
	// Name is the deployment name in the container, e.g. "app.war".
	Name string `yaml:"name"`
	// ContextRoot is unique among the currently deployed units.
	ContextRoot ContextRoot `yaml:"context_root"`
	// Checksum is the digest of the deployed content.
	Checksum Checksum `yaml:"checksum"`
	// Version is empty when the repository does not know the checksum.
	Version Version `yaml:"version,omitempty"`
}

// String renders the unit for logs.
func (u DeployedUnit) String() string {
	return fmt.Sprintf("%s(%s)", u.Name, u.ContextRoot)
}

// UnitFromLocation derives the unit a freshly resolved artifact deploys as:
// "lib/app/1.3.1/app-1.3.1.war" becomes name "app.war", context root "app",
// version "1.3.1".
func UnitFromLocation(loc ArtifactLocation, checksum Checksum) (DeployedUnit, error) {
	fileName, err := loc.FileName()
	if err != nil {
		return DeployedUnit{}, err
	}

	version, err := loc.Version()
	if err != nil {
		return DeployedUnit{}, err
	}

	name := strings.Replace(fileName, "-"+string(version), "", 1)

	return DeployedUnit{
		Name:        name,
		ContextRoot: ContextRoot(strings.TrimSuffix(name, path.Ext(name))),
		Checksum:    checksum,
		Version:     version,
	}, nil
}

// WithName returns a copy of the unit deployed under another name; the
// context root follows the name.
func (u DeployedUnit) WithName(name string) DeployedUnit {
	u.Name = name
	u.ContextRoot = ContextRoot(strings.TrimSuffix(name, path.Ext(name)))

	return u
}
