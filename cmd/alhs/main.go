// Package main is the entry point for the ALHS CLI.
package main

import (
	"fmt"
	"os"

	"github.com/NK-639/ALHS-Backend/cmd/alhs/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
