package main

import (
	"os"

	"github.com/tkingovr/procfilter/cmd/procfilter/cli"
)

func main() {
	os.Exit(cli.ExitCode(cli.Execute()))
}
