package types

// DescriptorFileName is the canonical descriptor written in every local
// package directory.
const DescriptorFileName = "package.xml"

// DescriptorDocument is a parsed descriptor independent of the schema
// version it was written in. Local descriptors carry one LocalPackage,
// remote listings carry RemotePackages.
type DescriptorDocument struct {
	// Module names the schema module that accepted the document.
	Module         string
	LocalPackage   *LocalPackage
	RemotePackages []RemotePackage
}
