// Command arbiter runs an evaluation suite against an AI agent backend
// and reports scored, verdicted results.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/arbiterlabs/arbiter/internal/cache"
	"github.com/arbiterlabs/arbiter/internal/config"
	"github.com/arbiterlabs/arbiter/internal/evaluator"
	"github.com/arbiterlabs/arbiter/internal/evaluator/embed"
	"github.com/arbiterlabs/arbiter/internal/judgeipc"
	"github.com/arbiterlabs/arbiter/internal/provider"
	"github.com/arbiterlabs/arbiter/internal/proxy"
	"github.com/arbiterlabs/arbiter/internal/report"
	"github.com/arbiterlabs/arbiter/internal/runner"
)

const version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "version":
		fmt.Printf("arbiter %s\n", version)
	case "run":
		if err := runCmd(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "arbiter:", err)
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: arbiter <command>")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  run <cases-file>   evaluate the cases in a JSON or JSONL file")
	fmt.Fprintln(os.Stderr, "  version            print the version")
}

func runCmd(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: arbiter run <cases-file>")
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("run takes exactly one cases file")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := cfg.Logger()
	slog.SetDefault(logger)

	cases, err := runner.LoadCases(fs.Arg(0))
	if err != nil {
		return err
	}

	backend, err := buildBackend(cfg)
	if err != nil {
		return err
	}

	var dispatch provider.Backend = backend
	if cfg.RequestsPerMinute > 0 {
		dispatch, err = provider.NewRateLimitedBackend(backend, provider.RateLimitConfig{
			RequestsPerMinute: cfg.RequestsPerMinute,
		})
		if err != nil {
			return err
		}
	}
	gateway := provider.NewGateway(dispatch, provider.DefaultRetryConfig(), logger)

	regOpts, cleanup, err := registryOptions(cfg, backend, logger)
	if err != nil {
		return err
	}
	defer cleanup()
	registry := evaluator.NewRegistry(regOpts...)

	writer, f, err := report.OpenFile(cfg.ResultsPath)
	if err != nil {
		return err
	}
	defer f.Close()

	r := runner.New(gateway, registry, logger,
		runner.WithWriter(writer),
		runner.WithConcurrency(cfg.Workers),
		runner.WithBatch(cfg.Batch),
	)
	out, err := r.Run(context.Background(), cases)
	if err != nil {
		return err
	}

	return out.Summary.WriteText(os.Stdout)
}

// buildBackend constructs the agent backend named by the configuration.
func buildBackend(cfg *config.Config) (provider.Backend, error) {
	switch cfg.Provider {
	case "openai":
		return provider.NewOpenAIBackend(provider.OpenAIConfig{
			APIKey:  cfg.OpenAIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Workers: cfg.Workers,
		})
	case "anthropic":
		return provider.NewAnthropicBackend(provider.AnthropicConfig{
			APIKey:  cfg.AnthropicKey,
			Model:   cfg.Model,
			Workers: cfg.Workers,
		})
	case "mock":
		return &provider.MockBackend{WorkerCount: cfg.Workers}, nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

// registryOptions wires the optional evaluator backends: the LLM judge
// reuses the run's backend, code judges get a script runner (with the
// target proxy when enabled), and semantic similarity gets an embedder.
// The returned cleanup closes caches and stops the proxy.
func registryOptions(cfg *config.Config, backend provider.Backend, logger *slog.Logger) ([]evaluator.RegistryOption, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var opts []evaluator.RegistryOption

	var judgeCache *cache.JudgeCache
	if cfg.JudgeCachePath != "" {
		jc, err := cache.NewJudgeCache(cfg.JudgeCachePath)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("open judge cache: %w", err)
		}
		judgeCache = jc
		closers = append(closers, func() { jc.Close() })
	}
	opts = append(opts, evaluator.WithJudge(runner.NewModelClient(backend, cfg.JudgeModel), judgeCache))

	var ipcOpts []judgeipc.RunnerOption
	if cfg.ProxyEnabled {
		srv, err := proxy.New(proxy.Config{
			Targets:       map[string]provider.Backend{backend.Name(): backend},
			DefaultTarget: backend.Name(),
			Token:         uuid.NewString(),
			MaxCalls:      cfg.ProxyMaxCalls,
			Addr:          cfg.ProxyAddr,
			Logger:        logger,
		})
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		if err := srv.Start(); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("start proxy: %w", err)
		}
		closers = append(closers, func() { _ = srv.Shutdown(context.Background()) })
		ipcOpts = append(ipcOpts, judgeipc.WithProxy(srv.URL(), srv.Token()))
		logger.Info("target proxy listening", "url", srv.URL(), "max_calls", cfg.ProxyMaxCalls)
	}
	opts = append(opts, evaluator.WithScriptRunner(judgeipc.NewRunner(logger, ipcOpts...)))

	if cfg.EmbedProvider != "" {
		emb, err := embed.New(embed.Config{
			Provider:    cfg.EmbedProvider,
			Model:       cfg.EmbedModel,
			APIKey:      cfg.OpenAIKey,
			BaseURL:     cfg.BaseURL,
			ModelPath:   cfg.EmbedModelPath,
			LibraryPath: cfg.EmbedLibPath,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("build embedder: %w", err)
		}
		var embCache *cache.EmbeddingCache
		if cfg.EmbedCachePath != "" {
			ec, err := cache.NewEmbeddingCache(cfg.EmbedCachePath, cfg.EmbedCacheMB)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("open embedding cache: %w", err)
			}
			embCache = ec
			closers = append(closers, func() { ec.Close() })
		}
		opts = append(opts, evaluator.WithEmbedding(emb, embCache))
	}

	return opts, cleanup, nil
}
