package main

import (
	"fmt"
	"os"

	"github.com/straye-as/indicator-api/internal/cli"
)

func main() {
	if err := cli.NewRootCommand(cli.OpenEnv).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
