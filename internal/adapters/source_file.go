package adapters

import (
	"context"
	"strings"
	"sync"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"pkgrepo/internal/ports"
	"pkgrepo/internal/types"
)

type sourceListFile struct {
	Sources []sourceEntry `yaml:"sources"`
}

type sourceEntry struct {
	URL     string   `yaml:"url"`
	Name    string   `yaml:"name"`
	Enabled *bool    `yaml:"enabled"`
	Channel string   `yaml:"channel"`
	Modules []string `yaml:"modules"`
}

// FileSourceProvider reads a YAML list of sources. The parsed list is
// kept until a forced refresh.
type FileSourceProvider struct {
	path string
	fop  ports.FileOps

	mu      sync.Mutex
	sources []*types.RepositorySource
}

func NewFileSourceProvider(path string, fop ports.FileOps) *FileSourceProvider {
	return &FileSourceProvider{path: path, fop: fop}
}

func (p *FileSourceProvider) Sources(_ context.Context, _ ports.Downloader, _ ports.SettingsController, progress ports.ProgressIndicator, forceRefresh bool) ([]*types.RepositorySource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sources != nil && !forceRefresh {
		return p.sources, nil
	}
	data, err := p.fop.ReadFile(p.path)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to read source list").
			WithCause(err)
	}
	sources, err := parseSourceList(data)
	if err != nil {
		return nil, err
	}
	for _, source := range sources {
		if source.FetchError != "" && progress != nil {
			progress.LogWarning(source.FetchError)
		}
	}
	log.Debug().Str("path", p.path).Int("sources", len(sources)).Msg("source list loaded")
	p.sources = sources
	return sources, nil
}

// parseSourceList turns the YAML document into sources. An entry with an
// unknown channel is kept but disabled, with the reason on FetchError.
func parseSourceList(data []byte) ([]*types.RepositorySource, error) {
	var raw sourceListFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("failed to parse source list").
			WithCause(err)
	}
	out := make([]*types.RepositorySource, 0, len(raw.Sources))
	for _, entry := range raw.Sources {
		sourceURL := strings.TrimSpace(entry.URL)
		if sourceURL == "" {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("source entry is missing url")
		}
		source := &types.RepositorySource{
			URL:              sourceURL,
			Name:             strings.TrimSpace(entry.Name),
			Enabled:          entry.Enabled == nil || *entry.Enabled,
			PermittedModules: entry.Modules,
		}
		if source.Name == "" {
			source.Name = sourceURL
		}
		channel, err := types.ParseChannel(entry.Channel)
		if err != nil {
			source.Enabled = false
			source.FetchError = "source " + source.Name + ": " + err.Error()
		}
		source.Channel = channel
		out = append(out, source)
	}
	return out, nil
}

// StaticSourceProvider serves a fixed list of sources.
type StaticSourceProvider struct {
	sources []*types.RepositorySource
}

func NewStaticSourceProvider(sources ...*types.RepositorySource) StaticSourceProvider {
	return StaticSourceProvider{sources: sources}
}

func (p StaticSourceProvider) Sources(context.Context, ports.Downloader, ports.SettingsController, ports.ProgressIndicator, bool) ([]*types.RepositorySource, error) {
	return p.sources, nil
}

var _ ports.SourceProvider = (*FileSourceProvider)(nil)
var _ ports.SourceProvider = StaticSourceProvider{}
