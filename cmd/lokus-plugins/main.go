package main

import (
	"os"

	"github.com/lokus-ai/lokus-plugins/internal/infrastructure/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
