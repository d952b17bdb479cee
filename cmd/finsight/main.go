// Finsight is a conversational financial research assistant.
//
// It routes each user message to a reasoning tier, runs a bounded
// tool-use loop against market data and the user's own notes and
// portfolio, and streams answers over an HTTP API. Configuration is
// loaded from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	finsight serve            Start the API server
//	finsight ask <question>   Ask a single question (for testing)
//	finsight version          Print version and build information
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/finsight-ai/finsight/internal/agent"
	"github.com/finsight-ai/finsight/internal/api"
	"github.com/finsight-ai/finsight/internal/budget"
	"github.com/finsight-ai/finsight/internal/buildinfo"
	"github.com/finsight-ai/finsight/internal/config"
	"github.com/finsight-ai/finsight/internal/conversation"
	"github.com/finsight-ai/finsight/internal/events"
	"github.com/finsight-ai/finsight/internal/fetch"
	"github.com/finsight-ai/finsight/internal/llm"
	"github.com/finsight-ai/finsight/internal/market"
	"github.com/finsight-ai/finsight/internal/notes"
	"github.com/finsight-ai/finsight/internal/portfolio"
	"github.com/finsight-ai/finsight/internal/router"
	"github.com/finsight-ai/finsight/internal/tools"
	"github.com/finsight-ai/finsight/internal/usage"
	"github.com/finsight-ai/finsight/internal/watchlist"
)

// main constructs the OS-level environment and delegates to [run] so
// the full lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run parses arguments and dispatches to a subcommand. Arguments are
// parsed by hand; the flag package's package-level globals interfere
// with calling run concurrently from tests.
func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	var configPath string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: finsight ask <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "version":
		fmt.Fprintln(stdout, buildinfo.String())
		return nil
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Finsight - Conversational Financial Research Assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: finsight [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  init [dir]   Write a starter config.yaml and data directory (default: .)")
	fmt.Fprintln(w, "  ask          Ask a single question (for testing)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/finsight/config.yaml, /etc/finsight/config.yaml")
	return nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// components holds everything buildComponents wires up.
type components struct {
	engine        *agent.Engine
	tracker       *budget.Tracker
	usage         *usage.Store
	conversations *conversation.Store
	compactor     *conversation.Compactor
	bus           *events.Bus
	client        llm.Client
	close         func()
}

// buildComponents opens the stores and wires the registry, router,
// executor, compactor and engine from configuration.
func buildComponents(cfg *config.Config, logger *slog.Logger) (*components, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	convStore, err := conversation.NewStore(filepath.Join(cfg.DataDir, "conversations.db"))
	if err != nil {
		return nil, fmt.Errorf("open conversation store: %w", err)
	}
	usageStore, err := usage.NewStore(filepath.Join(cfg.DataDir, "usage.db"))
	if err != nil {
		convStore.Close()
		return nil, fmt.Errorf("open usage store: %w", err)
	}
	noteStore, err := notes.NewStore(filepath.Join(cfg.DataDir, "notes.db"))
	if err != nil {
		convStore.Close()
		usageStore.Close()
		return nil, fmt.Errorf("open note store: %w", err)
	}
	portfolioStore, err := portfolio.NewStore(filepath.Join(cfg.DataDir, "portfolio.db"))
	if err != nil {
		convStore.Close()
		usageStore.Close()
		noteStore.Close()
		return nil, fmt.Errorf("open portfolio store: %w", err)
	}
	watchlistStore, err := watchlist.NewStore(filepath.Join(cfg.DataDir, "watchlist.db"))
	if err != nil {
		convStore.Close()
		usageStore.Close()
		noteStore.Close()
		portfolioStore.Close()
		return nil, fmt.Errorf("open watchlist store: %w", err)
	}

	client := llm.NewAnthropicClient(cfg.Anthropic.APIKey, logger)

	marketClient := market.NewClient(cfg.MarketData)
	if !marketClient.Configured() {
		logger.Warn("market data provider not configured, market tools will fail")
	}

	registry := tools.NewRegistry()
	tools.RegisterMarketTools(registry, marketClient)
	tools.RegisterPersonalTools(registry, noteStore, portfolioStore)
	tools.RegisterWatchlistTools(registry, watchlistStore)
	tools.RegisterResearchTools(registry, fetch.New())
	logger.Info("tool registry loaded", "tools", len(registry.Names()))

	bus := events.New()
	tracker := budget.New(cfg.Engine.DeepDailyBudget, logger)
	rtr := router.New(registry, tracker, logger)
	executor := tools.NewExecutor(
		registry,
		tracker,
		time.Duration(cfg.Engine.ToolTimeoutSec)*time.Second,
		cfg.Engine.ToolResultMaxChars,
		logger,
		bus,
	)
	compactor := conversation.NewCompactor(convStore, client, cfg.Tiers.Routine, cfg.Summarizer, logger, bus)
	watchlistProvider := watchlist.NewProvider(watchlistStore, marketClient, logger)

	engine := agent.New(agent.Config{
		Client:        client,
		Router:        rtr,
		Executor:      executor,
		Budget:        tracker,
		Conversations: convStore,
		Compactor:     compactor,
		Usage:         usageStore,
		Portfolio:     portfolioStore,
		Context:       []agent.ContextProvider{watchlistProvider},
		Bus:           bus,
		Tiers:         cfg.Tiers,
		Engine:        cfg.Engine,
		Pricing:       cfg.Pricing,
		Logger:        logger,
	})

	return &components{
		engine:        engine,
		tracker:       tracker,
		usage:         usageStore,
		conversations: convStore,
		compactor:     compactor,
		bus:           bus,
		client:        client,
		close: func() {
			watchlistStore.Close()
			portfolioStore.Close()
			noteStore.Close()
			usageStore.Close()
			convStore.Close()
		},
	}, nil
}

// runServe is the primary operating mode: wire everything, start the
// API server, and block until a shutdown signal arrives. In-flight
// requests drain, then background summarizations finish, then stores
// close.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting Finsight",
		"version", buildinfo.Version,
		"commit", buildinfo.GitCommit,
		"built", buildinfo.BuildTime,
	)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = newLogger(stdout, level)
	}
	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"routine_model", cfg.Tiers.Routine.Model,
		"standard_model", cfg.Tiers.Standard.Model,
		"deep_model", cfg.Tiers.Deep.Model,
		"deep_daily_budget", cfg.Engine.DeepDailyBudget,
	)

	comps, err := buildComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer comps.close()

	// Provider reachability is informational; the first turn surfaces
	// real failures.
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := comps.client.Ping(pingCtx); err != nil {
		logger.Warn("reasoning provider unreachable at startup", "error", err)
	}
	cancel()

	server := api.NewServer(
		cfg.Listen.Address,
		cfg.Listen.Port,
		comps.engine,
		comps.tracker,
		comps.usage,
		comps.conversations,
		comps.bus,
		logger,
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("API server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", "error", err)
	}

	// Let in-flight background summarizations finish before stores close.
	comps.compactor.Wait()
	logger.Info("shutdown complete")
	return nil
}

// runAsk processes a single question against the configured stores and
// streams the answer to stdout. Useful for smoke tests without the
// server.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	logger := newLogger(io.Discard, slog.LevelInfo)

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	comps, err := buildComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer comps.close()

	question := strings.Join(args, " ")
	res, err := comps.engine.RunTurn(ctx, "cli", "", question, func(chunk string) {
		fmt.Fprint(stdout, chunk)
	})
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	fmt.Fprintln(stdout)
	fmt.Fprintf(stdout, "\n[%s tier, %s, %d rounds, $%.4f]\n", res.Tier, res.Model, res.Rounds, res.CostUSD)

	comps.compactor.Wait()
	return nil
}
