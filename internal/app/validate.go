package app

import (
	"context"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// Validate parses a descriptor file against the registered schema modules.
func (s Service) Validate(_ context.Context, req ValidateRequest) (ValidateResult, error) {
	path := strings.TrimSpace(req.Path)
	if path == "" {
		return ValidateResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("descriptor path is required")
	}
	data, err := s.FileOps.ReadFile(path)
	if err != nil {
		return ValidateResult{}, err
	}
	doc, err := s.Manager.Schemas().Unmarshal(data, req.Modules)
	if err != nil {
		return ValidateResult{}, err
	}
	result := ValidateResult{Module: doc.Module, RemotePackages: len(doc.RemotePackages)}
	if doc.LocalPackage != nil {
		result.LocalPath = doc.LocalPackage.Path
	}
	return result, nil
}
