// Package vars carries the build metadata of the binary.
//
// Release builds stamp it through the linker:
//
//	-ldflags "-X github.com/woozymasta/sampquery/internal/vars.Version=v1.2.3
//	          -X github.com/woozymasta/sampquery/internal/vars.Commit=$(git rev-parse HEAD)
//	          -X github.com/woozymasta/sampquery/internal/vars.revision=$(git rev-list --count HEAD)
//	          -X github.com/woozymasta/sampquery/internal/vars.buildTime=$(date -u +%FT%TZ)"
//
// Builds without ldflags (go install, go run) fall back to the module version
// and VCS stamp recorded by the Go toolchain.
package vars

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"strconv"
	"text/tabwriter"
	"time"
)

// License of the project.
const License = "AGPL-3.0"

const (
	devVersion    = "dev"
	unknownCommit = "unknown"
)

var (
	// Name of the project.
	Name = "sampquery"

	// Version is the release tag, e.g. v1.2.3.
	Version = devVersion

	// Commit is the full or short git SHA.
	Commit = unknownCommit

	// URL of the repository.
	URL = "https://github.com/woozymasta/sampquery"

	revision  string
	buildTime string
)

// BuildInfo is the build metadata served by GET /api/version.
type BuildInfo struct {
	BuildTime time.Time `json:"build_time,omitzero" yaml:"build_time,omitempty"`
	Name      string    `json:"name" yaml:"name"`
	Version   string    `json:"version" yaml:"version"`
	Commit    string    `json:"commit" yaml:"commit"`
	GoVersion string    `json:"go_version" yaml:"go_version"`
	URL       string    `json:"url,omitempty" yaml:"url,omitempty"`
	License   string    `json:"license,omitempty" yaml:"license,omitempty"`
	Revision  int       `json:"revision,omitempty" yaml:"revision,omitempty"`
}

// Info collects the build metadata.
func Info() BuildInfo {
	info := BuildInfo{
		Name:      Name,
		Version:   Version,
		Commit:    Commit,
		GoVersion: runtime.Version(),
		URL:       URL,
		License:   License,
	}

	if n, err := strconv.Atoi(revision); err == nil {
		info.Revision = n
	}
	if t, err := time.Parse(time.RFC3339, buildTime); err == nil {
		info.BuildTime = t.UTC()
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		info.merge(bi)
	}

	return info
}

// merge fills the fields the linker left unset from the toolchain build info.
func (b *BuildInfo) merge(bi *debug.BuildInfo) {
	if b.Version == devVersion && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		b.Version = bi.Main.Version
	}

	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == unknownCommit {
				b.Commit = s.Value
			}
		case "vcs.time":
			if !b.BuildTime.IsZero() {
				continue
			}
			if t, err := time.Parse(time.RFC3339, s.Value); err == nil {
				b.BuildTime = t.UTC()
			}
		}
	}
}

// ShortCommit returns the first 7 characters of the commit hash.
func (b BuildInfo) ShortCommit() string {
	if len(b.Commit) > 7 {
		return b.Commit[:7]
	}

	return b.Commit
}

// Print writes the build information to w, one aligned field per line.
func Print(w io.Writer) {
	info := Info()

	built := "-"
	if !info.BuildTime.IsZero() {
		built = info.BuildTime.Format(time.RFC3339)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)
	for _, row := range [][2]string{
		{"name", info.Name},
		{"url", info.URL},
		{"version", info.Version},
		{"commit", info.ShortCommit()},
		{"revision", strconv.Itoa(info.Revision)},
		{"built", built},
		{"go", info.GoVersion},
		{"license", info.License},
	} {
		_, _ = fmt.Fprintf(tw, "%s:\t%s\n", row[0], row[1])
	}
	_ = tw.Flush()
}

// UserAgent identifies outgoing HTTP requests, e.g. "sampquery/v1.2.3".
func UserAgent() string {
	return Name + "/" + Info().Version
}
