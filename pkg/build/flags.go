// SPDX-License-Identifier: MIT
//
// Package build provides functionality to manage and retrieve build information
// for the STI viewer binary. It allows embedding metadata such as the application
// name, build timestamp, Git commit hash, and semantic version into the binary
// at compile time using linker flags. This information can be useful for debugging,
// logging, and displaying version information to users.
package build

import "fmt"

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// Package-level variables for build information. These are populated by -ldflags
// during compilation. Default values are used during development.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &ldFlags{
		Name:        "sti",
		Description: "spectral time intensity viewer for channelized RF sample archives",
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "unknown",
	}
)

// Initialize copies build information from ldflags variables into the
// buildFlags struct. This must be called early in program startup. Fields
// left unset by the linker keep their development defaults, so an entirely
// unflagged binary is still usable.
func Initialize() error {
	if buildName != "" {
		buildFlags.Name = buildName
	}
	if buildTime != "" {
		buildFlags.Time = buildTime
	}
	if buildCommit != "" {
		buildFlags.Commit = buildCommit
	}
	if buildVersion != "" {
		buildFlags.Version = buildVersion
	}
	if buildFlags.Name == "" {
		return fmt.Errorf("BuildName is required")
	}
	return nil
}

// GetBuildFlags returns the current build information. Initialize()
// must be called before this function.
func GetBuildFlags() *ldFlags {
	return buildFlags
}
