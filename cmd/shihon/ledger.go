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
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/blinklabs-io/shihon/event"
	"github.com/blinklabs-io/shihon/internal/config"
	"github.com/blinklabs-io/shihon/ledger"
	"github.com/blinklabs-io/shihon/ledger/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ledgerEventTypes are logged as they are published
var ledgerEventTypes = []event.EventType{
	ledger.TokenEventType,
	ledger.EscrowEventType,
	ledger.TanistryEventType,
	ledger.CandidateEventType,
	ledger.RoundEventType,
	ledger.MixEventType,
	ledger.SaleEventType,
	ledger.CrowningEventType,
	ledger.VoteEventType,
	ledger.ChallengeEventType,
	ledger.RefundEventType,
	ledger.LedgerErrorEventType,
}

type ledgerHandle struct {
	*ledger.LedgerState
	eventBus      *event.EventBus
	metricsServer *http.Server
	logger        *slog.Logger
	shutdownFuncs []func(context.Context) error
}

// openLedger opens the ledger described by cfg. When a metrics port is
// configured, the registry is served over HTTP until the handle is closed
func openLedger(cfg *config.Config, logger *slog.Logger) (*ledgerHandle, error) {
	params, err := cfg.Protocol.Params()
	if err != nil {
		return nil, err
	}
	var shutdownFuncs []func(context.Context) error
	if cfg.Tracing {
		shutdown, err := setupTracing(cfg.TracingStdout)
		if err != nil {
			return nil, err
		}
		shutdownFuncs = append(shutdownFuncs, shutdown)
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	eventBus := event.NewEventBus(registry, logger)
	for _, evtType := range ledgerEventTypes {
		eventBus.SubscribeFunc(evtType, func(evt event.Event) {
			logger.Debug(
				"ledger event",
				"component", programName,
				"type", evt.Type,
				"data", fmt.Sprintf("%+v", evt.Data),
			)
		})
	}
	ls, err := ledger.NewLedgerState(ledger.LedgerStateConfig{
		Logger:         logger,
		EventBus:       eventBus,
		PromRegistry:   registry,
		DataDir:        cfg.DatabasePath,
		BlobPlugin:     cfg.BlobPlugin,
		MetadataPlugin: cfg.MetadataPlugin,
		Params:         &params,
	})
	if err != nil {
		eventBus.Stop()
		for _, fn := range shutdownFuncs {
			_ = fn(context.Background())
		}
		return nil, err
	}
	h := &ledgerHandle{
		LedgerState:   ls,
		eventBus:      eventBus,
		logger:        logger,
		shutdownFuncs: shutdownFuncs,
	}
	if cfg.MetricsPort > 0 {
		h.serveMetrics(cfg, registry)
	}
	return h, nil
}

func (h *ledgerHandle) serveMetrics(cfg *config.Config, registry *prometheus.Registry) {
	addr := fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.MetricsPort)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	h.metricsServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	h.logger.Info(
		"serving prometheus metrics on "+addr,
		"component", programName,
	)
	go func() {
		if err := h.metricsServer.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			h.logger.Error(
				fmt.Sprintf("failed to start metrics listener: %s", err),
				"component", programName,
			)
		}
	}()
}

func (h *ledgerHandle) Close() error {
	var errs []error
	if h.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, h.metricsServer.Shutdown(ctx))
	}
	errs = append(errs, h.LedgerState.Close())
	h.eventBus.Stop()
	// Flush buffered spans once the stores are closed
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, fn := range h.shutdownFuncs {
		errs = append(errs, fn(ctx))
	}
	return errors.Join(errs...)
}

// parseIdentity accepts a base58 identity or seed:<name>
func parseIdentity(s string) (common.Identity, error) {
	if seed, ok := strings.CutPrefix(s, "seed:"); ok {
		if seed == "" {
			return common.Identity{}, errors.New("empty identity seed")
		}
		return common.IdentityFromSeed(seed), nil
	}
	return common.ParseIdentity(s)
}

// parseMint accepts an encoded address or a mint name. An empty string
// selects the zero address, which the ledger reads as the stake mint
func parseMint(s string) common.Address {
	if s == "" {
		return common.Address{}
	}
	if addr, err := common.ParseAddress(s); err == nil {
		return addr
	}
	return common.MintAddress(s)
}

// resolveRef expands the shorthand references accepted in batch files and
// on the command line into their encoded form. Unknown values pass through
//
//	seed:<name>                          identity derived from name
//	mint:<name>                          mint address
//	token:<name>                         content token address
//	escrow:<kicker>,<coordinator>        escrow address
//	ring:<kicker>,<coordinator>,<gen>    Tanistry address
func resolveRef(s string) (string, error) {
	prefix, rest, ok := strings.Cut(s, ":")
	if !ok {
		return s, nil
	}
	switch prefix {
	case "seed":
		id, err := parseIdentity(s)
		if err != nil {
			return "", err
		}
		return id.String(), nil
	case "mint":
		return common.MintAddress(rest).String(), nil
	case "token":
		return common.BcTokenAddress(rest).String(), nil
	case "escrow", "ring":
		parts := strings.Split(rest, ",")
		want := 2
		if prefix == "ring" {
			want = 3
		}
		if len(parts) != want {
			return "", fmt.Errorf("%s reference needs %d parts: %q", prefix, want, s)
		}
		kicker, err := parseIdentityRef(parts[0])
		if err != nil {
			return "", err
		}
		coordinator, err := parseIdentityRef(parts[1])
		if err != nil {
			return "", err
		}
		escrow := common.EscrowAddress(kicker, coordinator)
		if prefix == "escrow" {
			return escrow.String(), nil
		}
		gen, err := strconv.ParseUint(parts[2], 10, 64)
		if err != nil {
			return "", fmt.Errorf("invalid ring generation %q: %w", parts[2], err)
		}
		return common.TanistryAddress(escrow, gen).String(), nil
	}
	return s, nil
}

// parseIdentityRef treats a bare name inside a compound reference as a seed
func parseIdentityRef(s string) (common.Identity, error) {
	if id, err := common.ParseIdentity(s); err == nil {
		return id, nil
	}
	if strings.HasPrefix(s, "seed:") {
		return parseIdentity(s)
	}
	return parseIdentity("seed:" + s)
}

// parseAddressRef parses an encoded address or any address reference
func parseAddressRef(s string) (common.Address, error) {
	resolved, err := resolveRef(s)
	if err != nil {
		return common.Address{}, err
	}
	return common.ParseAddress(resolved)
}
