package core

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"pkgrepo/internal/types"
)

const (
	RepositoryModuleName = "repository"
	RepositoryNamespace1 = "urn:pkgrepo:repository:01"
	RepositoryNamespace2 = "urn:pkgrepo:repository:02"
)

// RepositoryModuleV1 is the first descriptor generation: flat revision
// strings and no channels.
func RepositoryModuleV1() SchemaModule {
	return SchemaModule{
		Name:        RepositoryModuleName,
		Version:     1,
		Namespace:   RepositoryNamespace1,
		newDocument: func() schemaDocument { return &repositoryV1{} },
		validate:    validateDescriptor,
	}
}

// RepositoryModuleV2 adds structured revisions, channels and archive
// lists.
func RepositoryModuleV2() SchemaModule {
	return SchemaModule{
		Name:        RepositoryModuleName,
		Version:     2,
		Namespace:   RepositoryNamespace2,
		newDocument: func() schemaDocument { return &repositoryV2{} },
		validate:    validateDescriptor,
	}
}

type repositoryV1 struct {
	XMLName xml.Name          `xml:"urn:pkgrepo:repository:01 repository"`
	Local   *packageV1        `xml:"localPackage"`
	Remote  []remotePackageV1 `xml:"remotePackage"`
}

type packageV1 struct {
	Path        string `xml:"path,attr"`
	Revision    string `xml:"revision,attr"`
	DisplayName string `xml:"displayName"`
}

type remotePackageV1 struct {
	packageV1
	Archive archiveV1 `xml:"archive"`
}

type archiveV1 struct {
	URL      string `xml:"url,attr"`
	Size     int64  `xml:"size,attr"`
	Checksum string `xml:"checksum,attr"`
}

func (d *repositoryV1) toDescriptor(module string) (types.DescriptorDocument, error) {
	doc := types.DescriptorDocument{Module: module}
	if d.Local != nil {
		rev, err := types.ParseRevision(d.Local.Revision)
		if err != nil {
			return doc, err
		}
		doc.LocalPackage = &types.LocalPackage{
			Path:        types.PackagePath(strings.TrimSpace(d.Local.Path)),
			Revision:    rev,
			DisplayName: strings.TrimSpace(d.Local.DisplayName),
		}
	}
	for _, remote := range d.Remote {
		rev, err := types.ParseRevision(remote.Revision)
		if err != nil {
			return doc, err
		}
		doc.RemotePackages = append(doc.RemotePackages, types.RemotePackage{
			Path:        types.PackagePath(strings.TrimSpace(remote.Path)),
			Revision:    rev,
			Channel:     types.ChannelStable,
			DisplayName: strings.TrimSpace(remote.DisplayName),
			Archive: types.Archive{
				URL:      strings.TrimSpace(remote.Archive.URL),
				Size:     remote.Archive.Size,
				Checksum: strings.TrimSpace(remote.Archive.Checksum),
			},
		})
	}
	return doc, nil
}

type repositoryV2 struct {
	XMLName xml.Name          `xml:"urn:pkgrepo:repository:02 repository"`
	Local   *localPackageV2   `xml:"localPackage"`
	Remote  []remotePackageV2 `xml:"remotePackage"`
}

type revisionV2 struct {
	Major   int  `xml:"major"`
	Minor   *int `xml:"minor"`
	Micro   *int `xml:"micro"`
	Preview *int `xml:"preview"`
}

type localPackageV2 struct {
	Path        string     `xml:"path,attr"`
	Revision    revisionV2 `xml:"revision"`
	DisplayName string     `xml:"display-name"`
}

type remotePackageV2 struct {
	Path        string      `xml:"path,attr"`
	Channel     string      `xml:"channel,attr,omitempty"`
	Revision    revisionV2  `xml:"revision"`
	DisplayName string      `xml:"display-name"`
	Archives    []archiveV2 `xml:"archives>archive"`
}

type archiveV2 struct {
	Size     int64  `xml:"complete>size"`
	Checksum string `xml:"complete>checksum"`
	URL      string `xml:"complete>url"`
}

func (r revisionV2) toRevision() types.Revision {
	parts := []int{}
	if r.Minor != nil {
		parts = append(parts, *r.Minor)
	}
	if r.Micro != nil {
		if r.Minor == nil {
			parts = append(parts, 0)
		}
		parts = append(parts, *r.Micro)
	}
	if r.Preview != nil && *r.Preview != types.NotAPreview {
		for len(parts) < 2 {
			parts = append(parts, 0)
		}
		parts = append(parts, *r.Preview)
	}
	return types.NewRevision(r.Major, parts...)
}

func revisionV2From(rev types.Revision) revisionV2 {
	minor, micro := rev.Minor, rev.Micro
	out := revisionV2{Major: rev.Major, Minor: &minor, Micro: &micro}
	if rev.IsPreview() {
		preview := rev.Preview
		out.Preview = &preview
	}
	return out
}

func (d *repositoryV2) toDescriptor(module string) (types.DescriptorDocument, error) {
	doc := types.DescriptorDocument{Module: module}
	if d.Local != nil {
		doc.LocalPackage = &types.LocalPackage{
			Path:        types.PackagePath(strings.TrimSpace(d.Local.Path)),
			Revision:    d.Local.Revision.toRevision(),
			DisplayName: strings.TrimSpace(d.Local.DisplayName),
		}
	}
	for _, remote := range d.Remote {
		channel, err := types.ParseChannel(remote.Channel)
		if err != nil {
			return doc, err
		}
		pkg := types.RemotePackage{
			Path:        types.PackagePath(strings.TrimSpace(remote.Path)),
			Revision:    remote.Revision.toRevision(),
			Channel:     channel,
			DisplayName: strings.TrimSpace(remote.DisplayName),
		}
		if len(remote.Archives) > 0 {
			pkg.Archive = types.Archive{
				URL:      strings.TrimSpace(remote.Archives[0].URL),
				Size:     remote.Archives[0].Size,
				Checksum: strings.TrimSpace(remote.Archives[0].Checksum),
			}
		}
		doc.RemotePackages = append(doc.RemotePackages, pkg)
	}
	return doc, nil
}

func (d *repositoryV2) setLocalPackage(pkg types.LocalPackage) {
	d.Local = &localPackageV2{
		Path:        string(pkg.Path),
		Revision:    revisionV2From(pkg.Revision),
		DisplayName: pkg.DisplayName,
	}
}

func validateDescriptor(doc types.DescriptorDocument) error {
	if doc.LocalPackage != nil {
		if err := validatePath(doc.LocalPackage.Path); err != nil {
			return err
		}
	}
	for i, remote := range doc.RemotePackages {
		if err := validatePath(remote.Path); err != nil {
			return err
		}
		if strings.TrimSpace(remote.Archive.URL) == "" {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("remote package %s (#%d) has no archive url", remote.Path, i))
		}
	}
	return nil
}

func validatePath(path types.PackagePath) error {
	if strings.TrimSpace(string(path)) == "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("package path is empty")
	}
	for _, segment := range path.Segments() {
		if strings.TrimSpace(segment) == "" || segment == "." || segment == ".." {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("package path %q has an invalid segment", path))
		}
	}
	return nil
}
