// Package main is the entry point for the tdt CLI tool.
package main

import (
	"os"

	"github.com/good-yellow-bee/tdt/cmd/tdt/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
