// Package main is the entry point for the uoaprobe UOA verification harness.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/uoaprobe/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
