// Command convoke is the main entry point for the Convoke conversation server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/convoke-ai/convoke/internal/agent"
	"github.com/convoke-ai/convoke/internal/config"
	"github.com/convoke-ai/convoke/internal/health"
	"github.com/convoke-ai/convoke/internal/history"
	"github.com/convoke-ai/convoke/internal/observe"
	"github.com/convoke-ai/convoke/internal/pipeline"
	"github.com/convoke-ai/convoke/internal/resilience"
	"github.com/convoke-ai/convoke/internal/server"
	"github.com/convoke-ai/convoke/internal/toolexec"
	"github.com/convoke-ai/convoke/pkg/provider/llm"
	"github.com/convoke-ai/convoke/pkg/provider/llm/anyllm"
	"github.com/convoke-ai/convoke/pkg/provider/llm/openai"
)

const (
	defaultListenAddr = ":8080"
	defaultAgentsFile = "agents.yaml"
	shutdownTimeout   = 15 * time.Second
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "convoke: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "convoke: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("convoke starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "convoke",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Model providers ───────────────────────────────────────────────────────
	chain, err := buildProviderChain(cfg.Provider)
	if err != nil {
		slog.Error("failed to build model providers", "err", err)
		return 1
	}

	// ── Tool execution service ────────────────────────────────────────────────
	tools := toolexec.NewService()
	defer func() {
		if err := tools.Close(); err != nil {
			slog.Warn("tool service close error", "err", err)
		}
	}()
	for _, srv := range cfg.Tools.Servers {
		err := tools.RegisterServer(ctx, toolexec.ServerConfig{
			Name:      srv.Name,
			Transport: srv.Transport,
			Command:   srv.Command,
			URL:       srv.URL,
			Env:       srv.Env,
		})
		if err != nil {
			slog.Error("failed to register tool server", "name", srv.Name, "err", err)
			return 1
		}
		slog.Info("registered tool server", "name", srv.Name, "transport", srv.Transport)
	}

	invOpts := []toolexec.InvokerOption{
		toolexec.WithAliases(toolexec.DefaultAliases().Merge(toolexec.AliasTable(cfg.Tools.Aliases))),
		toolexec.WithLogger(logger),
	}
	if d := cfg.Pipeline.ToolCallTimeout.Std(); d > 0 {
		invOpts = append(invOpts, toolexec.WithCallTimeout(d))
	}
	invoker, err := toolexec.NewInvoker(tools, invOpts...)
	if err != nil {
		slog.Error("failed to build tool invoker", "err", err)
		return 1
	}

	// ── Conversation history ──────────────────────────────────────────────────
	store, err := buildHistoryStore(ctx, cfg.History)
	if err != nil {
		slog.Error("failed to open history store", "err", err)
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("history store close error", "err", err)
		}
	}()

	// ── Agents ────────────────────────────────────────────────────────────────
	agentsPath := cfg.AgentsFile
	if agentsPath == "" {
		agentsPath = defaultAgentsFile
	}
	agents, err := agent.LoadFile(agentsPath)
	if err != nil {
		slog.Error("failed to load agents", "path", agentsPath, "err", err)
		return 1
	}
	slog.Info("agents loaded", "path", agentsPath, "agents", agents.IDs())

	// ── Pipeline ──────────────────────────────────────────────────────────────
	pipe := buildPipeline(cfg.Pipeline, chain, invoker, agents, store, metrics, logger)

	// ── HTTP server ───────────────────────────────────────────────────────────
	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = defaultListenAddr
	}
	srvOpts := []server.Option{
		server.WithMetrics(metrics),
		server.WithHealth(health.New(
			health.Checker{Name: "history", Check: func(ctx context.Context) error {
				_, err := store.Window(ctx, "readyz-probe", 1)
				return err
			}},
			health.Checker{Name: "tools", Check: func(context.Context) error {
				if len(cfg.Tools.Servers) > 0 && len(tools.Tools()) == 0 {
					return errors.New("no tools discovered")
				}
				return nil
			}},
		)),
	}
	if cfg.Server.TLS != nil {
		srvOpts = append(srvOpts, server.WithTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile))
	}
	srv := server.New(addr, pipe, logger, srvOpts...)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	slog.Info("server ready — press Ctrl+C to shut down",
		"addr", addr,
		"tools", len(tools.Tools()),
		"history_backend", cfg.History.Backend)

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("server error", "err", err)
			return 1
		}
	case <-ctx.Done():
	}

	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildProvider constructs one model backend from its config entry. "openai"
// uses the official SDK; every other name goes through any-llm.
func buildProvider(entry config.ProviderEntry) (llm.Provider, error) {
	switch entry.Name {
	case "openai":
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	default:
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New(entry.Name, entry.Model, opts...)
	}
}

// buildProviderChain wires the primary and fallback backends behind per-backend
// circuit breakers.
func buildProviderChain(cfg config.ProviderConfig) (*resilience.ProviderChain, error) {
	primary, err := buildProvider(cfg.Primary)
	if err != nil {
		return nil, fmt.Errorf("create provider %q: %w", cfg.Primary.Name, err)
	}
	slog.Info("provider created", "name", cfg.Primary.Name, "model", cfg.Primary.Model)

	chain := resilience.NewProviderChain(primary, cfg.Primary.Name, resilience.FallbackConfig{
		CircuitBreaker: resilience.BreakerConfig{Name: "llm"},
	})
	for _, entry := range cfg.Fallbacks {
		fb, err := buildProvider(entry)
		if err != nil {
			return nil, fmt.Errorf("create fallback provider %q: %w", entry.Name, err)
		}
		chain.AddFallback(entry.Name, fb)
		slog.Info("fallback provider created", "name", entry.Name, "model", entry.Model)
	}
	return chain, nil
}

func buildHistoryStore(ctx context.Context, cfg config.HistoryConfig) (history.Store, error) {
	switch cfg.Backend {
	case config.HistoryPostgres:
		return history.NewPostgresStore(ctx, cfg.PostgresDSN)
	default:
		return history.NewMemoryStore(), nil
	}
}

func buildPipeline(cfg config.PipelineConfig, provider llm.Provider, invoker *toolexec.Invoker,
	agents *agent.Registry, store history.Store, metrics *observe.Metrics, logger *slog.Logger) *pipeline.Pipeline {

	callerOpts := []pipeline.CallerOption{pipeline.WithMetrics(metrics)}
	if d := cfg.ModelCallTimeout.Std(); d > 0 {
		callerOpts = append(callerOpts, pipeline.WithCallTimeout(d))
	}
	caller := pipeline.NewModelCaller(provider, logger, callerOpts...)

	orchOpts := []pipeline.OrchestratorOption{pipeline.WithOrchestratorMetrics(metrics)}
	if cfg.AttemptBudget > 0 {
		orchOpts = append(orchOpts, pipeline.WithAttemptBudget(cfg.AttemptBudget))
	}

	pipeOpts := []pipeline.PipelineOption{pipeline.WithPipelineMetrics(metrics)}
	if cfg.HistoryWindow > 0 {
		pipeOpts = append(pipeOpts, pipeline.WithHistoryWindow(cfg.HistoryWindow))
	}

	return pipeline.New(
		pipeline.NewInterpreter(caller, logger),
		pipeline.NewClassifier(caller, logger),
		pipeline.NewOrchestrator(caller, invoker, logger, orchOpts...),
		pipeline.NewSynthesizer(caller, logger),
		invoker, agents, store, logger,
		pipeOpts...,
	)
}

// ── Logger ────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
