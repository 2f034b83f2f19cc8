package app

import (
	"time"

	"pkgrepo/internal/types"
)

type ListRequest struct {
	ForceRefresh bool
}

type ListResult struct {
	LoadID   string
	Reloaded bool
	Local    []types.LocalPackage
	Remote   []types.RemotePackage
	Updates  []types.UpdatablePackage
	New      []types.RemotePackage
	Sources  []*types.RepositorySource
}

type HashResult struct {
	Root         string
	Hash         string
	LatestUpdate time.Time
}

type ValidateRequest struct {
	Path string
	// Modules restricts the schema modules the document may match.
	Modules []string
}

type ValidateResult struct {
	Module         string
	LocalPath      types.PackagePath
	RemotePackages int
}
