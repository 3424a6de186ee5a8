package main

import (
	"os"

	"bytemomo/narwhal/internal/cli"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	os.Exit(cli.Execute(cli.BuildInfo{Version: version, Commit: commit}))
}
