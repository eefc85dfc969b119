// Package version carries build identity, overridable at link time.
package version

var (
	CLIName = "yieldctl"
	Version = "0.1.0"
	Commit  = "dev"
)
