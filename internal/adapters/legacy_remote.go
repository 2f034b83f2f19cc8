package adapters

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	debversion "github.com/knqyf263/go-deb-version"
	"github.com/rs/zerolog/log"

	"pkgrepo/internal/ports"
	"pkgrepo/internal/shared"
	"pkgrepo/internal/types"
)

// DebianRemoteFallback reads a source as a Debian-style Packages index.
// Each stanza becomes a remote package; when a package appears more than
// once the highest Debian version is kept.
type DebianRemoteFallback struct {
	downloader ports.Downloader
}

func NewDebianRemoteFallback(downloader ports.Downloader) DebianRemoteFallback {
	return DebianRemoteFallback{downloader: downloader}
}

type debStanza struct {
	name     string
	version  debversion.Version
	revision types.Revision
	pkg      types.RemotePackage
}

func (f DebianRemoteFallback) ParseLegacy(ctx context.Context, source *types.RepositorySource, settings ports.SettingsController, progress ports.ProgressIndicator) ([]types.RemotePackage, error) {
	location := source.URL
	if settings != nil && settings.ForceHTTPDownloads() {
		location = shared.ForceHTTP(location)
	}
	stream, err := f.downloader.Fetch(ctx, location, progress)
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	stanzas, err := parseControlStanzas(stream)
	if err != nil {
		return nil, err
	}

	best := map[string]debStanza{}
	var order []string
	for _, fields := range stanzas {
		candidate, ok := stanzaPackage(fields, source, location)
		if !ok {
			continue
		}
		existing, seen := best[candidate.name]
		if !seen {
			order = append(order, candidate.name)
		}
		if !seen || candidate.version.GreaterThan(existing.version) {
			best[candidate.name] = candidate
		}
	}
	out := make([]types.RemotePackage, 0, len(order))
	for _, name := range order {
		out = append(out, best[name].pkg)
	}
	return out, nil
}

func stanzaPackage(fields map[string]string, source *types.RepositorySource, origin string) (debStanza, bool) {
	name := fields["Package"]
	rawVersion := fields["Version"]
	filename := fields["Filename"]
	if name == "" || rawVersion == "" || filename == "" {
		return debStanza{}, false
	}
	version, err := debversion.NewVersion(rawVersion)
	if err != nil {
		log.Debug().Err(err).Str("package", name).Msg("skipping stanza with invalid version")
		return debStanza{}, false
	}
	revision, err := types.ParseRevision(upstreamVersion(rawVersion))
	if err != nil {
		log.Debug().Err(err).Str("package", name).Msg("skipping stanza with unsupported version")
		return debStanza{}, false
	}
	size, _ := strconv.ParseInt(fields["Size"], 10, 64)
	display := fields["Description"]
	if idx := strings.IndexByte(display, '\n'); idx >= 0 {
		display = display[:idx]
	}
	return debStanza{
		name:     name,
		version:  version,
		revision: revision,
		pkg: types.RemotePackage{
			Path:        types.PackagePath(strings.ReplaceAll(name, "/", types.PathSeparator)),
			Revision:    revision,
			Channel:     source.Channel,
			DisplayName: display,
			Archive: types.Archive{
				URL:      filename,
				Size:     size,
				Checksum: fields["SHA256"],
			},
			Origin: origin,
			Legacy: true,
		},
	}, true
}

// upstreamVersion strips the epoch and Debian revision from a version.
func upstreamVersion(raw string) string {
	value := strings.TrimSpace(raw)
	if idx := strings.IndexByte(value, ':'); idx >= 0 {
		value = value[idx+1:]
	}
	if idx := strings.LastIndexByte(value, '-'); idx >= 0 {
		value = value[:idx]
	}
	return value
}

// parseControlStanzas splits a Packages index into field maps. Continuation
// lines are appended to the previous field separated by a newline.
func parseControlStanzas(reader io.Reader) ([]map[string]string, error) {
	var stanzas []map[string]string
	current := map[string]string{}
	var lastKey string
	flush := func() {
		if len(current) > 0 {
			stanzas = append(stanzas, current)
		}
		current = map[string]string{}
		lastKey = ""
	}
	buffered := bufio.NewReader(reader)
	for {
		line, err := buffered.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to read packages index").
				WithCause(err)
		}
		trimmed := strings.TrimRight(line, "\r\n")
		switch {
		case strings.TrimSpace(trimmed) == "":
			flush()
		case trimmed[0] == ' ' || trimmed[0] == '\t':
			if lastKey != "" {
				current[lastKey] += "\n" + strings.TrimSpace(trimmed)
			}
		default:
			key, value, ok := strings.Cut(trimmed, ":")
			if ok {
				lastKey = strings.TrimSpace(key)
				current[lastKey] = strings.TrimSpace(value)
			}
		}
		if err == io.EOF {
			break
		}
	}
	flush()
	if len(stanzas) == 0 {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("packages index has no stanzas")
	}
	return stanzas, nil
}

var _ ports.FallbackRemoteLoader = DebianRemoteFallback{}
