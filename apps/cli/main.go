package main

import "modemprobe/apps/cli/cmd"

// set via -ldflags at build time
var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	cmd.Execute(version, buildTime)
}
