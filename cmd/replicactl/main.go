package main

import (
	"os"

	"github.com/danieledinun/aitreon-sub004/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
