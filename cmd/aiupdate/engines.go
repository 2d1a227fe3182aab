// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package main

import (
	"fmt"
	"net/http"

	"github.com/foundriesio/aiupdate/internal/discovery"
	"github.com/foundriesio/aiupdate/internal/engines/native"
	"github.com/foundriesio/aiupdate/pkg/engine"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "engines",
		Short: "List the update engines that can be used",
		Run: func(cmd *cobra.Command, args []string) {
			doListEngines()
		},
		Args: cobra.NoArgs,
	}
	rootCmd.AddCommand(cmd)
}

func doListEngines() {
	current := config.GetEngineName()
	for _, e := range newLoader().List() {
		marker := " "
		if e.Name == current {
			marker = "*"
		}
		fmt.Printf("%s %-20s%-10s%s\n", marker, e.Name, e.Kind, e.Path)
	}
}

func newLoader() *discovery.Loader {
	httpClient := newHTTPClient()
	return discovery.NewLoader(
		discovery.WithSearchPaths(config.GetEngineSearchPaths()...),
		discovery.WithBuiltin(native.Name, func() engine.Adapter {
			return native.New(
				native.WithHTTPClient(httpClient),
				native.WithGitHubAPIURL(config.GetGitHubAPIURL()),
				native.WithKeepOld(config.GetKeepOld()),
			)
		}),
	)
}

// newHTTPClient bounds connection setup and the wait for response headers; a download body
// may take as long as the workflow deadline allows
func newHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSHandshakeTimeout = config.GetHTTPTimeout()
	transport.ResponseHeaderTimeout = config.GetHTTPTimeout()
	return &http.Client{Transport: transport}
}
