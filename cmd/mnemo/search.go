// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mnemo-dev/mnemo/internal/engine"
	"github.com/mnemo-dev/mnemo/internal/store"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

func newSearchCmd() *cobra.Command {
	var (
		text        string
		vectorStr   string
		namespace   string
		k           int
		cutoff      float64
		filterPairs []string
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Find the owning documents of the nearest stored embeddings",
		Example: `  mnemo search --text "what is a widget" --namespace widgets
  mnemo search --vector 0.1,0.2,0.3 --namespace widgets -k 5 --cutoff 0.6`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := wireApp()
			if err != nil {
				return err
			}
			defer app.Close()

			filter, err := parsePairs(filterPairs)
			if err != nil {
				return err
			}

			req := engine.SearchRequest{
				IndexNamespace: namespace,
				K:              k,
				Filter:         filter,
			}
			if req.K <= 0 {
				req.K = app.Config.Search.K
			}
			switch {
			case cmd.Flags().Changed("cutoff"):
				req.Cutoff = &cutoff
			default:
				req.Cutoff = &app.Config.Search.Cutoff
			}

			var docs []*store.Document
			switch {
			case text != "" && vectorStr != "":
				return mnemoerr.New(mnemoerr.CodeCLIInputInvalid, "--text and --vector are mutually exclusive")
			case text != "":
				docs, err = app.Engine.SearchText(cmd.Context(), text, req)
			case vectorStr != "":
				req.Vector, err = parseVector(vectorStr)
				if err != nil {
					return err
				}
				docs, err = app.Engine.Search(cmd.Context(), req)
			default:
				return mnemoerr.New(mnemoerr.CodeCLIInputInvalid, "one of --text or --vector is required")
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(docs)
			}

			for _, doc := range docs {
				fmt.Fprintf(out, "%s\t%v\n", doc.ID, doc.Fields)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "text to normalize and embed as the query")
	cmd.Flags().StringVar(&vectorStr, "vector", "", "comma-separated query vector")
	cmd.Flags().StringVar(&namespace, "namespace", "", "vector index namespace to search")
	cmd.Flags().IntVarP(&k, "k", "k", 0, "neighbor count (default 10)")
	cmd.Flags().Float64Var(&cutoff, "cutoff", 0, "similarity cutoff; matches must strictly exceed it (default 0.4)")
	cmd.Flags().StringArrayVar(&filterPairs, "filter", nil, "metadata equality filter as key=value (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	_ = cmd.MarkFlagRequired("namespace")

	return cmd
}
