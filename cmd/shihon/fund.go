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
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func fundCommand() *cobra.Command {
	var mintName string
	cmd := &cobra.Command{
		Use:   "fund <identity> <amount>",
		Short: "Credit a participant wallet with tokens from outside the ledger",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := mustConfig(cmd)
			id, err := parseIdentity(args[0])
			if err != nil {
				return err
			}
			amount, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[1], err)
			}
			logger := commonRun()
			ls, err := openLedger(cfg, logger)
			if err != nil {
				return err
			}
			defer ls.Close()
			mint := parseMint(mintName)
			if err := ls.Fund(cmd.Context(), id, mint, amount); err != nil {
				return err
			}
			if mint.IsZero() {
				mint = ls.Params().StakeMint
			}
			balance, err := ls.WalletBalance(id, mint)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", id.String(), balance)
			return nil
		},
	}
	cmd.Flags().
		StringVar(&mintName, "mint", "", "mint name or address (default: stake mint)")
	return cmd
}
