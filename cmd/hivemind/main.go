package main

import (
	"os"

	"github.com/reza/hivemind/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
