// Copyright 2025 ParExpr contributors.
// SPDX-License-Identifier: Apache-2.0

// This is the entrypoint for the parexpr binary.
package main

import (
	"fmt"
	"os"

	"github.com/parexpr/parexpr/cmd"
)

func main() {
	rootCmd := cmd.NewRootCommand(os.Stdin, os.Stdout, os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
