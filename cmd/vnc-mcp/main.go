package main

import (
	"os"

	"github.com/seantiz/vncmcp/internal/cli"
)

var version = "dev"

func main() {
	os.Exit(cli.App{Version: version}.Execute())
}
