package core

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	assert "github.com/ZanzyTHEbar/assert-lib"
	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"pkgrepo/internal/types"
)

// SchemaModule is one generation of the descriptor schema: the XML
// namespace that identifies it, a factory for its document model, and the
// validation applied to whatever that model decodes.
type SchemaModule struct {
	Name      string
	Version   int
	Namespace string

	newDocument func() schemaDocument
	validate    func(types.DescriptorDocument) error
}

// ID is the "name/version" identifier used in source module lists.
func (m SchemaModule) ID() string {
	return fmt.Sprintf("%s/%d", m.Name, m.Version)
}

func (m SchemaModule) permittedBy(permitted []string) bool {
	if len(permitted) == 0 {
		return true
	}
	for _, entry := range permitted {
		entry = strings.TrimSpace(entry)
		if entry == m.Name || entry == m.ID() || entry == m.Namespace {
			return true
		}
	}
	return false
}

// schemaDocument is the XML model of one schema version.
type schemaDocument interface {
	toDescriptor(module string) (types.DescriptorDocument, error)
}

// localDocumentWriter is implemented by models that can serialize a local
// package descriptor.
type localDocumentWriter interface {
	schemaDocument
	setLocalPackage(pkg types.LocalPackage)
}

// SchemaRegistry holds the schema modules descriptors are validated
// against. The newest registered version of a family is used for writing.
type SchemaRegistry struct {
	mu      sync.RWMutex
	modules []SchemaModule
}

// NewSchemaRegistry returns a registry preloaded with the built-in
// repository schema generations.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{modules: []SchemaModule{RepositoryModuleV1(), RepositoryModuleV2()}}
}

// Register adds a module. A module with the same namespace replaces the
// previous registration.
func (r *SchemaRegistry) Register(ctx context.Context, module SchemaModule) {
	assert.NotEmpty(ctx, module.Name, "schema module name must be set")
	assert.NotEmpty(ctx, module.Namespace, "schema module namespace must be set")
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules = slices.DeleteFunc(r.modules, func(m SchemaModule) bool {
		return m.Namespace == module.Namespace
	})
	r.modules = append(r.modules, module)
	log.Debug().
		Str("module", module.ID()).
		Str("namespace", module.Namespace).
		Msg("schema module registered")
}

func (r *SchemaRegistry) Modules() []SchemaModule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.modules)
}

// Latest returns the highest version registered for the module family.
func (r *SchemaRegistry) Latest(name string) (SchemaModule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best SchemaModule
	found := false
	for _, m := range r.modules {
		if m.Name != name {
			continue
		}
		if !found || m.Version > best.Version {
			best = m
			found = true
		}
	}
	return best, found
}

// Unmarshal decodes a descriptor with the module matching its root
// namespace. Only modules accepted by permitted are considered.
func (r *SchemaRegistry) Unmarshal(data []byte, permitted []string) (types.DescriptorDocument, error) {
	namespace, err := rootNamespace(data)
	if err != nil {
		return types.DescriptorDocument{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("descriptor is not well-formed XML").
			WithCause(err)
	}
	module, ok := r.moduleFor(namespace, permitted)
	if !ok {
		return types.DescriptorDocument{}, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("no permitted schema module for namespace %q", namespace))
	}
	model := module.newDocument()
	if err := xml.Unmarshal(data, model); err != nil {
		return types.DescriptorDocument{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("failed to parse descriptor as " + module.ID()).
			WithCause(err)
	}
	doc, err := model.toDescriptor(module.ID())
	if err != nil {
		return types.DescriptorDocument{}, err
	}
	if module.validate != nil {
		if err := module.validate(doc); err != nil {
			return types.DescriptorDocument{}, err
		}
	}
	return doc, nil
}

// MarshalLocal writes pkg as a descriptor in the newest repository schema.
func (r *SchemaRegistry) MarshalLocal(pkg types.LocalPackage) ([]byte, error) {
	module, ok := r.Latest(RepositoryModuleName)
	if !ok {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("no repository schema module registered")
	}
	model, ok := module.newDocument().(localDocumentWriter)
	if !ok {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("schema module " + module.ID() + " cannot write local packages")
	}
	model.setLocalPackage(pkg)
	data, err := xml.MarshalIndent(model, "", "    ")
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to marshal descriptor").
			WithCause(err)
	}
	return append([]byte(xml.Header), append(data, '\n')...), nil
}

func (r *SchemaRegistry) moduleFor(namespace string, permitted []string) (SchemaModule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.modules {
		if m.Namespace == namespace && m.permittedBy(permitted) {
			return m, true
		}
	}
	return SchemaModule{}, false
}

func rootNamespace(data []byte) (string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	for {
		token, err := decoder.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", errors.New("document has no root element")
			}
			return "", err
		}
		if start, ok := token.(xml.StartElement); ok {
			return start.Name.Space, nil
		}
	}
}
