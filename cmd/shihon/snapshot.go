// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func exportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Write a compressed snapshot of the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg := mustConfig(cmd)
			logger := commonRun()
			ls, err := openLedger(cfg, logger)
			if err != nil {
				return err
			}
			defer ls.Close()
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, f.Close())
			}()
			count, err := ls.Export(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d entries to %s\n", count, args[0])
			return nil
		},
	}
	return cmd
}

func importCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load a snapshot into an empty ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := mustConfig(cmd)
			logger := commonRun()
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			ls, err := openLedger(cfg, logger)
			if err != nil {
				return err
			}
			defer ls.Close()
			count, err := ls.Import(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d entries from %s\n", count, args[0])
			return nil
		},
	}
	return cmd
}
