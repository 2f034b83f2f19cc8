package types

import (
	"net/url"
	"path/filepath"
	"strings"
)

// PathSeparator splits a package path into its directory segments.
const PathSeparator = ";"

// PackagePath uniquely identifies a package within one repository kind,
// e.g. "tools" or "platforms;android-23".
type PackagePath string

func (p PackagePath) Segments() []string {
	return strings.Split(string(p), PathSeparator)
}

// InstallDir is the canonical install directory of the package below root.
func (p PackagePath) InstallDir(root string) string {
	return filepath.Join(append([]string{root}, p.Segments()...)...)
}

// LocalPackage is a package found installed on disk.
type LocalPackage struct {
	Path        PackagePath
	Revision    Revision
	DisplayName string
	// Location is the directory the package is installed in.
	Location string
	// Descriptor is the descriptor file the package was read from, or the
	// fallback that recognized it.
	Descriptor string
}

// Archive is the downloadable payload of a remote package.
type Archive struct {
	URL      string
	Size     int64
	Checksum string
}

// RemotePackage is a package offered by a remote source.
type RemotePackage struct {
	Path        PackagePath
	Revision    Revision
	Channel     Channel
	DisplayName string
	Archive     Archive
	// Origin is the URL of the source document that listed the package.
	Origin string
	// Legacy marks packages produced by a fallback parser.
	Legacy bool
}

// ArchiveURL resolves the archive location against the listing origin.
func (p RemotePackage) ArchiveURL() (*url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(p.Archive.URL))
	if err != nil {
		return nil, err
	}
	if ref.IsAbs() || strings.TrimSpace(p.Origin) == "" {
		return ref, nil
	}
	base, err := url.Parse(p.Origin)
	if err != nil {
		return nil, err
	}
	return base.ResolveReference(ref), nil
}

// HasLocalArchive reports whether the archive can be read without a
// network fetch.
func (p RemotePackage) HasLocalArchive() bool {
	resolved, err := p.ArchiveURL()
	if err != nil {
		return false
	}
	return resolved.Scheme == "file"
}

// RepositorySource is one remote descriptor document.
type RepositorySource struct {
	URL     string
	Name    string
	Enabled bool
	// PermittedModules lists the schema module names this source may be
	// parsed with. Empty means any registered module.
	PermittedModules []string
	// Channel applies to packages that do not declare their own.
	Channel Channel
	// FetchError holds the last failure to fetch or parse this source.
	FetchError string
}

// UpdatablePackage pairs an installed package with a newer remote one.
type UpdatablePackage struct {
	Local  LocalPackage
	Remote RemotePackage
}
