package main

import (
	"fmt"
	"os"

	"github.com/zephyrite/zephyrite/internal/cli/command"
)

func main() {
	if err := command.App().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
