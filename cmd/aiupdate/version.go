// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Commit is set at build time with -ldflags "-X main.Commit=..."
var Commit string

func init() {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Display the version of aiupdate",
		Run: func(cmd *cobra.Command, args []string) {
			version := Commit
			if version == "" {
				version = "devel"
			}
			fmt.Println("aiupdate", version)
		},
		Args: cobra.NoArgs,
	}
	rootCmd.AddCommand(cmd)
}
