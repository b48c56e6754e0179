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
	"strings"

	"github.com/blinklabs-io/shihon/ledger/common"
	"github.com/spf13/cobra"
)

func addressCommand() *cobra.Command {
	var mintName string
	cmd := &cobra.Command{
		Use:   "address <reference>...",
		Short: "Derive ledger addresses",
		Long: `Derive ledger addresses from references:

  seed:<name>                          identity derived from name
  mint:<name>                          mint address
  token:<name>                         content token address
  escrow:<kicker>,<coordinator>        escrow address
  ring:<kicker>,<coordinator>,<gen>    Tanistry address
  wallet:<identity>                    wallet holding in --mint`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mint := parseMint(mintName)
			if mint.IsZero() {
				// Resolved from config so that a configured stake mint is honored
				cfg := mustConfig(cmd)
				params, err := cfg.Protocol.Params()
				if err != nil {
					return err
				}
				mint = params.StakeMint
			}
			for _, arg := range args {
				out, err := deriveAddress(arg, mint)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", arg, out)
			}
			return nil
		},
	}
	cmd.Flags().
		StringVar(&mintName, "mint", "", "mint name or address for wallets (default: stake mint)")
	return cmd
}

func deriveAddress(ref string, mint common.Address) (string, error) {
	if id, ok := strings.CutPrefix(ref, "wallet:"); ok {
		owner, err := parseIdentityRef(id)
		if err != nil {
			return "", err
		}
		return common.WalletAddress(owner, mint).String(), nil
	}
	resolved, err := resolveRef(ref)
	if err != nil {
		return "", err
	}
	if resolved == ref {
		return "", fmt.Errorf("unknown reference %q", ref)
	}
	return resolved, nil
}
