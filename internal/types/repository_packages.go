package types

import (
	"maps"
	"slices"
)

// RepositoryPackages is a published view of local and remote packages. A
// value is never modified once built; the With* methods return copies.
type RepositoryPackages struct {
	local  map[PackagePath]LocalPackage
	remote map[PackagePath]RemotePackage
}

func NewRepositoryPackages(local map[PackagePath]LocalPackage, remote map[PackagePath]RemotePackage) *RepositoryPackages {
	p := &RepositoryPackages{
		local:  maps.Clone(local),
		remote: maps.Clone(remote),
	}
	if p.local == nil {
		p.local = map[PackagePath]LocalPackage{}
	}
	if p.remote == nil {
		p.remote = map[PackagePath]RemotePackage{}
	}
	return p
}

func (p *RepositoryPackages) WithLocal(local map[PackagePath]LocalPackage) *RepositoryPackages {
	return NewRepositoryPackages(local, p.remote)
}

func (p *RepositoryPackages) WithRemote(remote map[PackagePath]RemotePackage) *RepositoryPackages {
	return NewRepositoryPackages(p.local, remote)
}

// LocalPackages returns a copy of the installed packages by path.
func (p *RepositoryPackages) LocalPackages() map[PackagePath]LocalPackage {
	return maps.Clone(p.local)
}

// RemotePackages returns a copy of the remote packages by path.
func (p *RepositoryPackages) RemotePackages() map[PackagePath]RemotePackage {
	return maps.Clone(p.remote)
}

func (p *RepositoryPackages) Local(path PackagePath) (LocalPackage, bool) {
	pkg, ok := p.local[path]
	return pkg, ok
}

func (p *RepositoryPackages) Remote(path PackagePath) (RemotePackage, bool) {
	pkg, ok := p.remote[path]
	return pkg, ok
}

func (p *RepositoryPackages) LocalCount() int {
	return len(p.local)
}

func (p *RepositoryPackages) RemoteCount() int {
	return len(p.remote)
}

// Updates lists installed packages for which a newer remote revision
// exists, sorted by path.
func (p *RepositoryPackages) Updates() []UpdatablePackage {
	var out []UpdatablePackage
	for _, path := range sortedPaths(p.local) {
		local := p.local[path]
		remote, ok := p.remote[path]
		if !ok || remote.Revision.Compare(local.Revision) <= 0 {
			continue
		}
		out = append(out, UpdatablePackage{Local: local, Remote: remote})
	}
	return out
}

// NewPackages lists remote packages that are not installed, sorted by path.
func (p *RepositoryPackages) NewPackages() []RemotePackage {
	var out []RemotePackage
	for _, path := range sortedPaths(p.remote) {
		if _, installed := p.local[path]; installed {
			continue
		}
		out = append(out, p.remote[path])
	}
	return out
}

// SameLocal reports whether both snapshots hold the same installed packages.
func (p *RepositoryPackages) SameLocal(other *RepositoryPackages) bool {
	return maps.EqualFunc(p.local, other.local, func(a LocalPackage, b LocalPackage) bool {
		return a.Location == b.Location && a.Revision.Equal(b.Revision) && a.DisplayName == b.DisplayName
	})
}

// SameRemote reports whether both snapshots hold the same remote packages.
func (p *RepositoryPackages) SameRemote(other *RepositoryPackages) bool {
	return maps.EqualFunc(p.remote, other.remote, func(a RemotePackage, b RemotePackage) bool {
		return a.Revision.Equal(b.Revision) && a.Channel == b.Channel && a.Archive == b.Archive && a.Origin == b.Origin
	})
}

func sortedPaths[V any](m map[PackagePath]V) []PackagePath {
	return slices.Sorted(maps.Keys(m))
}
