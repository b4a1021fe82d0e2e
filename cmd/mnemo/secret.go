// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage API keys in the system keyring",
	}

	cmd.AddCommand(newSecretSetCmd(), newSecretListCmd(), newSecretDeleteCmd())
	return cmd
}

func newSecretSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <name>",
		Short: "Store a secret, reading the value from stdin",
		Example: `  echo -n "sk-..." | mnemo secret set openai
  mnemo secret set openai < key.txt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := bufio.NewReader(cmd.InOrStdin())
			value, err := reader.ReadString('\n')
			if err != nil && value == "" {
				return fmt.Errorf("reading secret value: %w", err)
			}
			value = strings.TrimRight(value, "\r\n")

			ks := secretStoreFactory()
			if err := ks.Store(serviceName, args[0], value); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Stored secret %q. Reference it as keyring://%s/%s\n",
				args[0], serviceName, args[0])
			return nil
		},
	}
}

func newSecretListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored secret names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ks := secretStoreFactory()
			keys, err := ks.List(serviceName)
			if err != nil {
				return err
			}

			if len(keys) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No secrets stored.")
				return nil
			}
			for _, key := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tkeyring://%s/%s\n", key, serviceName, key)
			}
			return nil
		},
	}
}

func newSecretDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a stored secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ks := secretStoreFactory()
			if err := ks.Delete(serviceName, args[0]); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted secret %q.\n", args[0])
			return nil
		},
	}
}
