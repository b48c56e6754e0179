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
	"io"
	"strconv"

	"github.com/blinklabs-io/shihon/ledger/common"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// writeYAML renders query results, dropping the empty encoding markers
// embedded in ledger records
func writeYAML(w io.Writer, v any) error {
	var node yaml.Node
	if err := node.Encode(v); err != nil {
		return err
	}
	stripMarkers(&node)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	return enc.Close()
}

func stripMarkers(node *yaml.Node) {
	if node.Kind == yaml.MappingNode {
		content := node.Content[:0]
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == "structasarray" {
				continue
			}
			content = append(content, node.Content[i], node.Content[i+1])
		}
		node.Content = content
	}
	for _, child := range node.Content {
		stripMarkers(child)
	}
}

// inspectRun opens the ledger, runs a query and prints its result
func inspectRun(
	cmd *cobra.Command,
	query func(ls *ledgerHandle) (any, error),
) error {
	cfg := mustConfig(cmd)
	logger := commonRun()
	ls, err := openLedger(cfg, logger)
	if err != nil {
		return err
	}
	defer ls.Close()
	ret, err := query(ls)
	if err != nil {
		return err
	}
	return writeYAML(cmd.OutOrStdout(), ret)
}

func inspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Query ledger records",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "token <name>",
			Short: "Show a content token",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return inspectRun(cmd, func(ls *ledgerHandle) (any, error) {
					return ls.ContentToken(args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "tokens <owner>",
			Short: "List the content tokens of an owner",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				owner, err := parseIdentity(args[0])
				if err != nil {
					return err
				}
				return inspectRun(cmd, func(ls *ledgerHandle) (any, error) {
					return ls.ContentTokensByOwner(owner)
				})
			},
		},
		&cobra.Command{
			Use:   "escrow <kicker> <coordinator>",
			Short: "Show an escrow",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				kicker, err := parseIdentity(args[0])
				if err != nil {
					return err
				}
				coordinator, err := parseIdentity(args[1])
				if err != nil {
					return err
				}
				return inspectRun(cmd, func(ls *ledgerHandle) (any, error) {
					return ls.Escrow(kicker, coordinator)
				})
			},
		},
		&cobra.Command{
			Use:   "rings",
			Short: "List every Tanistry address",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return inspectRun(cmd, func(ls *ledgerHandle) (any, error) {
					return ls.Tanistries()
				})
			},
		},
		ringQueryCommand("ring", "Show a Tanistry", func(ls *ledgerHandle, ring common.Address) (any, error) {
			return ls.Tanistry(ring)
		}),
		ringQueryCommand("candidates", "List the candidates of a ring", func(ls *ledgerHandle, ring common.Address) (any, error) {
			return ls.Candidates(ring)
		}),
		ringQueryCommand("listings", "List the open resale listings of a ring", func(ls *ledgerHandle, ring common.Address) (any, error) {
			return ls.Listings(ring, true)
		}),
		ringQueryCommand("verify", "Check the stake totals of a ring", func(ls *ledgerHandle, ring common.Address) (any, error) {
			if err := ls.VerifyHoldings(ring); err != nil {
				return nil, err
			}
			return "ok", nil
		}),
		inspectBalanceCommand(),
		inspectVoteCommand(),
		inspectVotesCommand(),
	)
	return cmd
}

func ringQueryCommand(
	name string,
	short string,
	query func(ls *ledgerHandle, ring common.Address) (any, error),
) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <ring>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ring, err := parseAddressRef(args[0])
			if err != nil {
				return err
			}
			return inspectRun(cmd, func(ls *ledgerHandle) (any, error) {
				return query(ls, ring)
			})
		},
	}
}

func inspectBalanceCommand() *cobra.Command {
	var mintName string
	cmd := &cobra.Command{
		Use:   "balance <identity>",
		Short: "Show the wallet balance of a participant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIdentity(args[0])
			if err != nil {
				return err
			}
			return inspectRun(cmd, func(ls *ledgerHandle) (any, error) {
				mint := parseMint(mintName)
				if mint.IsZero() {
					mint = ls.Params().StakeMint
				}
				return ls.WalletBalance(id, mint)
			})
		},
	}
	cmd.Flags().
		StringVar(&mintName, "mint", "", "mint name or address (default: stake mint)")
	return cmd
}

func inspectVoteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vote <ring> <epoch> <voter>",
		Short: "Show a challenge vote",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ring, err := parseAddressRef(args[0])
			if err != nil {
				return err
			}
			epoch, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid epoch %q: %w", args[1], err)
			}
			voter, err := parseIdentity(args[2])
			if err != nil {
				return err
			}
			return inspectRun(cmd, func(ls *ledgerHandle) (any, error) {
				return ls.Vote(ring, epoch, voter)
			})
		},
	}
	return cmd
}

func inspectVotesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "votes <ring> <epoch>",
		Short: "List the challenge votes of an epoch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ring, err := parseAddressRef(args[0])
			if err != nil {
				return err
			}
			epoch, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid epoch %q: %w", args[1], err)
			}
			return inspectRun(cmd, func(ls *ledgerHandle) (any, error) {
				return ls.Votes(ring, epoch)
			})
		},
	}
}
