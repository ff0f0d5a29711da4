package main

import (
	"os"

	"edgeforge/internal/cli"
)

func main() {
	os.Exit(cli.Main())
}
