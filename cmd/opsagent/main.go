package main

import (
	"fmt"
	"os"

	"opsagent/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "opsagent: %v\n", err)
		os.Exit(1)
	}
}
