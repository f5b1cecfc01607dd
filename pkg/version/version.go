// Package version reports build information for medrag.
//
// Release builds set the variables through ldflags:
//
//	-X github.com/Aman-CERP/medrag/pkg/version.Version=$(VERSION)
//	-X github.com/Aman-CERP/medrag/pkg/version.Commit=$(COMMIT)
//	-X github.com/Aman-CERP/medrag/pkg/version.Date=$(DATE)
//
// Builds without ldflags (go install, go run) fall back to the VCS stamp the
// toolchain embeds in the binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// Name is the program name shown in version output.
const Name = "medrag"

const unknown = "unknown"

var (
	Version = "dev"
	Commit  = unknown
	Date    = unknown
)

// BuildInfo is the structured form used by "medrag version --json".
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	Modified  bool   `json:"modified"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

var (
	infoOnce sync.Once
	info     BuildInfo
)

// GetInfo returns the build information, reading the embedded VCS stamp once.
func GetInfo() BuildInfo {
	infoOnce.Do(func() {
		info = resolve(Version, Commit, Date, readSettings())
	})
	return info
}

func readSettings() map[string]string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	settings := make(map[string]string, len(bi.Settings))
	for _, s := range bi.Settings {
		settings[s.Key] = s.Value
	}
	return settings
}

// resolve fills commit and date from VCS settings when ldflags left them unset.
func resolve(version, commit, date string, vcs map[string]string) BuildInfo {
	if commit == unknown && vcs["vcs.revision"] != "" {
		commit = vcs["vcs.revision"]
	}
	if date == unknown && vcs["vcs.time"] != "" {
		date = vcs["vcs.time"]
	}
	if len(commit) > 12 {
		commit = commit[:12]
	}
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		Date:      date,
		Modified:  vcs["vcs.modified"] == "true",
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// String renders the one-line version banner.
func String() string {
	i := GetInfo()
	commit := i.Commit
	if i.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s %s (commit: %s, built: %s, %s %s/%s)",
		Name, i.Version, commit, i.Date, i.GoVersion, i.OS, i.Arch)
}

// Short returns the bare version.
func Short() string {
	return Version
}
