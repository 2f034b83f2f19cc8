package core

import "pkgrepo/internal/types"

// preferCandidate decides whether candidate replaces existing for the same
// path. The order of the tie-breaks is part of the loader's contract:
// higher revision, then schema-parsed over legacy, then an archive already
// on local storage over one that needs a download. Anything else keeps the
// package seen first.
func preferCandidate(existing types.RemotePackage, candidate types.RemotePackage) bool {
	switch order := candidate.Revision.Compare(existing.Revision); {
	case order > 0:
		return true
	case order < 0:
		return false
	}
	if existing.Legacy != candidate.Legacy {
		return existing.Legacy
	}
	if !existing.Legacy {
		return candidate.HasLocalArchive() && !existing.HasLocalArchive()
	}
	return false
}

// mergeCandidate applies preferCandidate to the result map.
func mergeCandidate(result map[types.PackagePath]types.RemotePackage, candidate types.RemotePackage) {
	existing, ok := result[candidate.Path]
	if !ok || preferCandidate(existing, candidate) {
		result[candidate.Path] = candidate
	}
}
