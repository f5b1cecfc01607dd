// Package main provides the entry point for the medrag CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/medrag/cmd/medrag/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
