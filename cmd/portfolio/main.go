// Package main provides a command-line portfolio viewer. Wallets are given
// as chain:address arguments and are never persisted. In watch mode the
// view is redrawn after every refresh, and "add chain:address" or
// "remove chain:address" lines on stdin change the tracked list.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/chain-portfolio/internal/app"
	"github.com/chain-portfolio/internal/config"
	"github.com/chain-portfolio/internal/logging"
	"github.com/chain-portfolio/internal/service"
	"github.com/chain-portfolio/internal/tracker"
	"github.com/chain-portfolio/internal/types"
)

func main() {
	var (
		watch    = flag.Bool("watch", false, "Keep refreshing until interrupted")
		asJSON   = flag.Bool("json", false, "Print the merged view as JSON")
		interval = flag.Duration("interval", 0, "Refresh interval in watch mode (default REFRESH_INTERVAL)")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] chain:address [chain:address ...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logging.GetGlobalLogger().SetOutput(os.Stderr)

	clients := app.NewClients(cfg.Providers.Timeout)
	clients.EnableRetry(cfg.Providers.RetryAttempts)
	prices := app.NewPriceResolver(cfg.Pricing, clients, nil)
	portfolioService := service.NewPortfolioService(app.NewRegistry(cfg.Providers, clients, prices), prices, nil, 0)

	refs := make([]types.WalletRef, 0, flag.NArg())
	for _, arg := range flag.Args() {
		ref, err := parseWallet(portfolioService, arg)
		if err != nil {
			log.Fatalf("Invalid wallet %q: %v", arg, err)
		}
		refs = append(refs, ref)
	}

	trackerCfg := tracker.Config{
		FetchTimeout:    cfg.Tracker.FetchTimeout,
		RefreshInterval: cfg.Tracker.RefreshInterval,
	}
	if *interval > 0 {
		trackerCfg.RefreshInterval = *interval
	}
	var t *tracker.Tracker
	if *watch {
		trackerCfg.OnRefresh = func() { render(t.View(), *asJSON) }
	}
	t = tracker.New(tracker.NewLocalStore(refs...), portfolioService, trackerCfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := t.Load(ctx); err != nil {
		log.Fatalf("Failed to load wallets: %v", err)
	}
	if !*watch {
		render(t.View(), *asJSON)
		return
	}

	t.Start(ctx)
	go readCommands(ctx, t, portfolioService, *asJSON)
	<-ctx.Done()
	t.Stop()
}

// parseWallet validates a chain:address argument
func parseWallet(portfolioService *service.PortfolioService, arg string) (types.WalletRef, error) {
	chain, address, ok := strings.Cut(strings.TrimSpace(arg), ":")
	if !ok {
		return types.WalletRef{}, fmt.Errorf("expected chain:address")
	}
	ref, _, err := portfolioService.ResolveWallet(address, chain)
	return ref, err
}

// readCommands applies add/remove lines from stdin until ctx is done or
// stdin is closed
func readCommands(ctx context.Context, t *tracker.Tracker, portfolioService *service.PortfolioService, asJSON bool) {
	logger := logging.GetGlobalLogger()
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		verb, arg, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		if verb == "" {
			continue
		}
		ref, err := parseWallet(portfolioService, arg)
		if err != nil {
			logger.WithError(err).Warnf("Ignoring %q", scanner.Text())
			continue
		}

		switch verb {
		case "add":
			err = t.AddWallet(ctx, ref, "")
		case "remove":
			err = t.RemoveWallet(ctx, ref)
		default:
			err = fmt.Errorf("unknown command %q, expected add or remove", verb)
		}
		if err != nil {
			logger.WithError(err).Warn("Command failed")
			continue
		}
		render(t.View(), asJSON)
	}
}

func render(v *tracker.View, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(v)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "WALLET\tCHAIN\tVALUE\t\n")
	for _, s := range v.Wallets {
		value := fmt.Sprintf("$%.2f", s.TotalValue)
		if s.Error != "" {
			value = "error: " + s.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", s.Address, s.Chain, value)
	}
	fmt.Fprintf(w, "\t\t\t\n")
	fmt.Fprintf(w, "ASSET\tCHAIN\tBALANCE\tPRICE\tVALUE\t\n")
	for _, a := range v.Assets {
		symbol := a.Symbol
		if a.IsStaked {
			symbol += " (staked)"
		}
		fmt.Fprintf(w, "%s\t%s\t%.6f\t$%.4f\t$%.2f\t\n", symbol, a.Chain, a.Balance, a.Price, a.Value)
	}
	_ = w.Flush()

	fmt.Printf("\nNFTs: %d  Domains: %d  Total: $%.2f  (%s)\n",
		len(v.NFTs), len(v.Domains), v.TotalValue, v.Timestamp.Local().Format(time.Kitchen))
}
