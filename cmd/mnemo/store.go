// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mnemo-dev/mnemo/internal/engine"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

func newStoreCmd() *cobra.Command {
	var (
		text      string
		vectorStr string
		table     string
		namespace string
		owningID  string
		infoPairs []string
		metaPairs []string
	)

	cmd := &cobra.Command{
		Use:   "store",
		Short: "Store an embedding linked to an owning document",
		Example: `  mnemo store --text "what is a widget" --table widgets --info name=foo
  mnemo store --vector 0.1,0.2,0.3 --table widgets --id doc-42`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := wireApp()
			if err != nil {
				return err
			}
			defer app.Close()

			info, err := parsePairs(infoPairs)
			if err != nil {
				return err
			}
			meta, err := parsePairs(metaPairs)
			if err != nil {
				return err
			}

			req := engine.StoreRequest{
				OwningTable:    table,
				IndexNamespace: namespace,
				OwningID:       owningID,
				OwningInfo:     info,
				Metadata:       meta,
			}

			var id string
			switch {
			case text != "" && vectorStr != "":
				return mnemoerr.New(mnemoerr.CodeCLIInputInvalid, "--text and --vector are mutually exclusive")
			case text != "":
				id, err = app.Engine.StoreText(cmd.Context(), text, req)
			case vectorStr != "":
				req.Vector, err = parseVector(vectorStr)
				if err != nil {
					return err
				}
				id, err = app.Engine.Store(cmd.Context(), req)
			default:
				return mnemoerr.New(mnemoerr.CodeCLIInputInvalid, "one of --text or --vector is required")
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "text to normalize and embed")
	cmd.Flags().StringVar(&vectorStr, "vector", "", "comma-separated embedding vector")
	cmd.Flags().StringVar(&table, "table", "", "document namespace holding the owning record")
	cmd.Flags().StringVar(&namespace, "namespace", "", "vector index namespace (defaults to --table)")
	cmd.Flags().StringVar(&owningID, "id", "", "existing owning document id")
	cmd.Flags().StringArrayVar(&infoPairs, "info", nil, "owning document field as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&metaPairs, "meta", nil, "index metadata as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("table")

	return cmd
}

// parseVector turns "0.1,0.2,0.3" into a []float32.
func parseVector(raw string) ([]float32, error) {
	parts := strings.Split(raw, ",")
	vec := make([]float32, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, mnemoerr.Errorf(mnemoerr.CodeCLIInputInvalid, "parsing vector component %q: %w", p, err)
		}
		vec = append(vec, float32(f))
	}
	return vec, nil
}

// parsePairs turns repeated key=value flags into a map, or nil when none
// were given. Values that parse as numbers or booleans are typed as such so
// equality filters match documents stored via the JSON API.
func parsePairs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, mnemoerr.Errorf(mnemoerr.CodeCLIInputInvalid, "expected key=value, got %q", pair)
		}
		out[key] = typedValue(value)
	}
	return out, nil
}

func typedValue(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
