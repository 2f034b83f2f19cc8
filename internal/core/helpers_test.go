package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"pkgrepo/internal/adapters"
	"pkgrepo/internal/ports"
	"pkgrepo/internal/types"
)

var testEpoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// fakeClock is a manually advanced clock shared by the manager and the
// in-memory file system.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: testEpoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingProgress collects everything a loader reports.
type recordingProgress struct {
	mu        sync.Mutex
	canceled  bool
	fractions []float64
	infos     []string
	warnings  []string
	errors    []string
}

func (p *recordingProgress) SetFraction(f float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fractions = append(p.fractions, f)
}

func (p *recordingProgress) SetText(string) {}

func (p *recordingProgress) IsCanceled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.canceled
}

func (p *recordingProgress) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.canceled = true
}

func (p *recordingProgress) LogInfo(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.infos = append(p.infos, msg)
}

func (p *recordingProgress) LogWarning(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.warnings = append(p.warnings, msg)
}

func (p *recordingProgress) LogError(msg string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors = append(p.errors, fmt.Sprintf("%s: %v", msg, err))
}

func (p *recordingProgress) Warnings() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.warnings...)
}

// mapDownloader serves documents from memory and counts fetches.
type mapDownloader struct {
	mu      sync.Mutex
	docs    map[string]string
	fetched map[string]int
}

func newMapDownloader(docs map[string]string) *mapDownloader {
	return &mapDownloader{docs: docs, fetched: map[string]int{}}
}

func (d *mapDownloader) Fetch(_ context.Context, url string, _ ports.ProgressIndicator) (io.ReadCloser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fetched[url]++
	doc, ok := d.docs[url]
	if !ok {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("no document at " + url)
	}
	return io.NopCloser(strings.NewReader(doc)), nil
}

func (d *mapDownloader) Count(url string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fetched[url]
}

func localDescriptorV1(path string, revision string) string {
	return fmt.Sprintf(`<?xml version="1.0"?>
<repository xmlns="urn:pkgrepo:repository:01">
  <localPackage path="%s" revision="%s">
    <displayName>%s</displayName>
  </localPackage>
</repository>
`, path, revision, path)
}

type remoteSpec struct {
	path     string
	major    int
	minor    int
	micro    int
	channel  string
	archive  string
	checksum string
}

func remoteDocumentV2(pkgs ...remoteSpec) string {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0"?>` + "\n")
	b.WriteString(`<repository xmlns="urn:pkgrepo:repository:02">` + "\n")
	for _, p := range pkgs {
		archive := p.archive
		if archive == "" {
			archive = strings.ReplaceAll(p.path, ";", "-") + ".zip"
		}
		channel := ""
		if p.channel != "" {
			channel = fmt.Sprintf(` channel="%s"`, p.channel)
		}
		fmt.Fprintf(&b, `  <remotePackage path="%s"%s>
    <revision><major>%d</major><minor>%d</minor><micro>%d</micro></revision>
    <display-name>%s</display-name>
    <archives><archive><complete><size>10</size><checksum>%s</checksum><url>%s</url></complete></archive></archives>
  </remotePackage>
`, p.path, channel, p.major, p.minor, p.micro, p.path, p.checksum, archive)
	}
	b.WriteString("</repository>\n")
	return b.String()
}

// stubLocalFallback recognizes directories holding a "legacy" marker file
// whose content is "path|revision".
type stubLocalFallback struct {
	fop       ports.FileOps
	refreshed int
	mu        sync.Mutex
}

func (f *stubLocalFallback) ShouldParse(dir string) bool {
	return f.fop.Exists(dir + "/legacy")
}

func (f *stubLocalFallback) ParseLegacy(dir string, _ ports.ProgressIndicator) (*types.LocalPackage, error) {
	data, err := f.fop.ReadFile(dir + "/legacy")
	if err != nil {
		return nil, err
	}
	path, rev, ok := strings.Cut(strings.TrimSpace(string(data)), "|")
	if !ok {
		return nil, fmt.Errorf("bad legacy marker in %s", dir)
	}
	revision, err := types.ParseRevision(rev)
	if err != nil {
		return nil, err
	}
	return &types.LocalPackage{Path: types.PackagePath(path), Revision: revision}, nil
}

func (f *stubLocalFallback) Refresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed++
}

// stubRemoteFallback returns fixed packages for specific source URLs.
type stubRemoteFallback struct {
	packages map[string][]types.RemotePackage
}

func (f stubRemoteFallback) ParseLegacy(_ context.Context, source *types.RepositorySource, _ ports.SettingsController, _ ports.ProgressIndicator) ([]types.RemotePackage, error) {
	pkgs, ok := f.packages[source.URL]
	if !ok {
		return nil, fmt.Errorf("not a legacy source: %s", source.URL)
	}
	return append([]types.RemotePackage(nil), pkgs...), nil
}

func newMemFS(clock *fakeClock) *adapters.MemFileOps {
	if clock == nil {
		clock = newFakeClock()
	}
	return adapters.NewMemFileOps(clock.Now)
}

func writeFile(fs *adapters.MemFileOps, path string, content string) {
	if err := fs.WriteFile(path, []byte(content)); err != nil {
		panic(err)
	}
}

func source(url string) *types.RepositorySource {
	return &types.RepositorySource{URL: url, Name: url, Enabled: true}
}
