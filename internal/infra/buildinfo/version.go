// Package buildinfo exposes the version stamped into the binaries.
//
//	go build -ldflags "-X github.com/zephyrite/zephyrite/internal/infra/buildinfo.Version=v0.3.0"
//
// When the linker flags are absent, Commit and BuildTime fall back to the
// VCS stamp the Go toolchain records in the binary.
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// Set via ldflags.
var (
	Version   = "dev"
	Commit    = ""
	BuildTime = ""
)

// Info is reported by the health endpoint and the version flag.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildTime string `json:"build_time" yaml:"build_time"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Modified  bool   `json:"modified,omitempty" yaml:"modified,omitempty"`
}

var (
	once sync.Once
	info Info
)

// Get returns the build information.
func Get() Info {
	once.Do(func() {
		info = resolve(Version, Commit, BuildTime, readVCS)
	})
	return info
}

type vcsStamp struct {
	revision string
	time     string
	modified bool
}

func readVCS() (vcsStamp, bool) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return vcsStamp{}, false
	}
	var s vcsStamp
	for _, kv := range bi.Settings {
		switch kv.Key {
		case "vcs.revision":
			s.revision = kv.Value
		case "vcs.time":
			s.time = kv.Value
		case "vcs.modified":
			s.modified = kv.Value == "true"
		}
	}
	return s, true
}

func resolve(version, commit, buildTime string, vcs func() (vcsStamp, bool)) Info {
	out := Info{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
	}
	if out.Commit == "" || out.BuildTime == "" {
		if s, ok := vcs(); ok {
			if out.Commit == "" {
				out.Commit = s.revision
			}
			if out.BuildTime == "" {
				out.BuildTime = s.time
			}
			out.Modified = s.modified
		}
	}
	if len(out.Commit) > 12 {
		out.Commit = out.Commit[:12]
	}
	if out.Commit == "" {
		out.Commit = "unknown"
	}
	if out.BuildTime == "" {
		out.BuildTime = "unknown"
	}
	return out
}

// String formats the information on one line.
func String() string {
	return Get().String()
}

func (i Info) String() string {
	s := fmt.Sprintf("zephyrite %s (%s) built at %s with %s", i.Version, i.Commit, i.BuildTime, i.GoVersion)
	if i.Modified {
		s += " [modified]"
	}
	return s
}
