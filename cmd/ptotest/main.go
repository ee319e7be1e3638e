// Package main is the entry point for the ptotest CLI.
package main

import (
	"os"

	"github.com/zhusy54/PTOTestingFramework/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
