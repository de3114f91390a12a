// Package version reports what build of automd is running.
package version

import (
	"fmt"
	"runtime"
)

// Stamped by the release build via -ldflags -X; a plain `go build`
// leaves the dev defaults in place.
var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

// Info combines the stamped build identifiers with the runtime they
// execute on.
type Info struct {
	Version   string
	GitCommit string
	BuildTime string
	GoVersion string
	Platform  string
}

func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String is the one-line form printed by the version command.
func (i Info) String() string {
	return fmt.Sprintf("automd %s (commit %s, built %s, %s %s)",
		i.Version, i.GitCommit, i.BuildTime, i.GoVersion, i.Platform)
}
