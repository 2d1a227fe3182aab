// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package main

import (
	"fmt"
	"os"

	"github.com/foundriesio/aiupdate/internal/history"
	"github.com/spf13/cobra"
)

type historyOptions struct {
	limit int
}

func init() {
	opts := historyOptions{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the recorded workflow transitions",
		Run: func(cmd *cobra.Command, args []string) {
			doHistory(&opts)
		},
		Args: cobra.NoArgs,
	}
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 20, "Show at most this many transitions, 0 shows all")
	rootCmd.AddCommand(cmd)
}

func doHistory(opts *historyOptions) {
	dbPath := config.GetHistoryDBPath()
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No workflow runs recorded")
		return
	}
	events, err := history.GetEvents(dbPath, opts.limit)
	DieNotNil(err, "failed to read the workflow history")

	for _, e := range events {
		line := fmt.Sprintf("%s %s %-9s -> %-9s %-14s %s", e.DeviceTime, e.RunId, e.From, e.To, e.Action, e.Artifact)
		if e.Description != "" {
			line += fmt.Sprintf(" (%d: %s)", e.Code, e.Description)
		}
		fmt.Println(line)
	}
}
