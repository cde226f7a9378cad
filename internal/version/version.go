package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the semantic version of the binary. Overridden at build time.
	Version = "dev"
	// Commit is the git commit hash. Overridden at build time.
	Commit = "unknown"
	// BuildDate is the build timestamp. Overridden at build time.
	BuildDate = "unknown"
)

// UserAgent identifies outbound quote requests when none is configured.
func UserAgent() string {
	return "pricewatch/" + Version
}

// String renders the build information printed by the version command.
func String() string {
	return fmt.Sprintf("pricewatch %s\ncommit: %s\nbuilt: %s\ngo: %s %s/%s\n",
		Version, Commit, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
