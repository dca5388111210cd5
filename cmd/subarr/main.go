// Package main is the entry point for the subarr application.
package main

import (
	"os"

	"github.com/jmylchreest/subarr/cmd/subarr/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
