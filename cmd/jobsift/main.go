// Package main is the entry point for the jobsift CLI.
package main

import (
	"os"

	"github.com/jmylchreest/jobsift/cmd/jobsift/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
