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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/blinklabs-io/shihon/ledger"
	"github.com/blinklabs-io/shihon/ledger/common"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// batchFile is a list of instructions applied in order
//
//	requests:
//	  - instruction: KickToCoordinator
//	    signers: [seed:alice]
//	    timestamp: 1700000000
//	    args:
//	      token: song
//	      coordinator: seed:bob
//	      amount: 100
type batchFile struct {
	Requests []batchRequest `yaml:"requests"`
}

type batchRequest struct {
	Instruction string    `yaml:"instruction"`
	Signers     []string  `yaml:"signers"`
	Timestamp   int64     `yaml:"timestamp"`
	Args        yaml.Node `yaml:"args"`
}

type batchEntry struct {
	Signers     []common.Identity
	Timestamp   int64
	Instruction ledger.Instruction
}

// parseBatch decodes a batch file. Requests without a timestamp use now
func parseBatch(r io.Reader, now time.Time) ([]batchEntry, error) {
	var batch batchFile
	if err := yaml.NewDecoder(r).Decode(&batch); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("error parsing batch: %w", err)
	}
	ret := make([]batchEntry, 0, len(batch.Requests))
	for idx, req := range batch.Requests {
		entry, err := req.entry(now)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", idx, err)
		}
		ret = append(ret, entry)
	}
	return ret, nil
}

func (r *batchRequest) entry(now time.Time) (batchEntry, error) {
	var ret batchEntry
	op, err := ledger.ParseOpcode(r.Instruction)
	if err != nil {
		return ret, err
	}
	if ret.Instruction, err = ledger.NewInstruction(op); err != nil {
		return ret, err
	}
	if !r.Args.IsZero() {
		if err := resolveNode(&r.Args); err != nil {
			return ret, err
		}
		if err := r.Args.Decode(ret.Instruction); err != nil {
			return ret, fmt.Errorf("%s args: %w", op, err)
		}
	}
	for _, signer := range r.Signers {
		id, err := parseIdentity(signer)
		if err != nil {
			return ret, fmt.Errorf("signer %q: %w", signer, err)
		}
		ret.Signers = append(ret.Signers, id)
	}
	ret.Timestamp = r.Timestamp
	if ret.Timestamp == 0 {
		ret.Timestamp = now.Unix()
	}
	return ret, nil
}

// resolveNode expands shorthand references in every scalar of an args node
func resolveNode(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		if node.Tag != "!!str" && node.Tag != "" {
			return nil
		}
		resolved, err := resolveRef(node.Value)
		if err != nil {
			return err
		}
		node.Value = resolved
		return nil
	}
	for idx, child := range node.Content {
		// Mapping keys are field names
		if node.Kind == yaml.MappingNode && idx%2 == 0 {
			continue
		}
		if err := resolveNode(child); err != nil {
			return err
		}
	}
	return nil
}

func applyBatch(
	ctx context.Context,
	ls *ledger.LedgerState,
	logger *slog.Logger,
	entries []batchEntry,
	keepGoing bool,
) (int, error) {
	applied := 0
	var errs []error
	for idx, entry := range entries {
		opcode := entry.Instruction.Opcode()
		err := ls.Submit(ctx, entry.Signers, entry.Timestamp, entry.Instruction)
		if err != nil {
			err = fmt.Errorf("request %d (%s): %w", idx, opcode, err)
			logger.Warn(
				"instruction rejected",
				"component", programName,
				"index", idx,
				"opcode", opcode.String(),
				"kind", ledger.ErrorKind(err),
				"error", err,
			)
			if !keepGoing {
				return applied, err
			}
			errs = append(errs, err)
			continue
		}
		applied++
		logger.Info(
			"instruction applied",
			"component", programName,
			"index", idx,
			"opcode", opcode.String(),
		)
	}
	return applied, errors.Join(errs...)
}

func applyCommand() *cobra.Command {
	var keepGoing bool
	cmd := &cobra.Command{
		Use:   "apply <batch.yaml|->",
		Short: "Apply a YAML batch of instructions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := mustConfig(cmd)
			logger := commonRun()
			var input io.Reader = os.Stdin
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				input = f
			}
			entries, err := parseBatch(input, time.Now())
			if err != nil {
				return err
			}
			ls, err := openLedger(cfg, logger)
			if err != nil {
				return err
			}
			defer ls.Close()
			applied, err := applyBatch(cmd.Context(), ls.LedgerState, logger, entries, keepGoing)
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d of %d instructions\n", applied, len(entries))
			return err
		},
	}
	cmd.Flags().
		BoolVar(&keepGoing, "keep-going", false, "continue after a rejected instruction")
	return cmd
}
