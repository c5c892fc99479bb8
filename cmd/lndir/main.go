package main

import (
	"os"

	"github.com/danieljhkim/lndir/internal/cli"
)

var version = "dev"

func main() {
	cli.SetVersion(version)
	os.Exit(cli.Main())
}
