package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/praxis/internal/agent"
	"github.com/haasonsaas/praxis/internal/config"
	"github.com/haasonsaas/praxis/internal/files"
	"github.com/haasonsaas/praxis/internal/llm"
	"github.com/haasonsaas/praxis/internal/llm/anthropic"
	"github.com/haasonsaas/praxis/internal/llm/openai"
	"github.com/haasonsaas/praxis/internal/observability"
	"github.com/haasonsaas/praxis/internal/storage"
	"github.com/haasonsaas/praxis/internal/tools"
	"github.com/haasonsaas/praxis/pkg/models"
)

// runtime bundles everything a command needs, built once from the
// config file.
type runtime struct {
	cfg      *config.Config
	logger   *observability.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	provider llm.Provider
	store    storage.Store
	files    files.Backend

	shutdownTracer func(context.Context) error
	metricsServer  *http.Server
}

// loadConfig reads the --config flag, falling back to defaults when the
// flag is absent.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// buildRuntime wires the collaborators from config.
func buildRuntime(ctx context.Context, path string) (*runtime, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		EnableInsecure: cfg.Tracing.Insecure,
	})

	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}
	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	backend, err := buildFiles(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	rt := &runtime{
		cfg:            cfg,
		logger:         logger,
		tracer:         tracer,
		provider:       provider,
		store:          store,
		files:          backend,
		shutdownTracer: shutdown,
	}
	if cfg.Metrics.Enabled {
		rt.metrics = observability.NewMetrics(nil)
		rt.metricsServer = serveMetrics(cfg.Metrics.Addr)
	}
	return rt, nil
}

func (rt *runtime) close(ctx context.Context) {
	if rt.metricsServer != nil {
		_ = rt.metricsServer.Shutdown(ctx)
	}
	_ = rt.shutdownTracer(ctx)
	_ = rt.files.Close()
	_ = rt.store.Close()
}

func buildProvider(cfg *config.Config) (llm.Provider, error) {
	switch cfg.Provider.Name {
	case "anthropic":
		return anthropic.New(anthropic.Config{
			APIKey:       cfg.Provider.APIKey,
			BaseURL:      cfg.Provider.BaseURL,
			DefaultModel: cfg.Agent.Model,
		})
	case "openai":
		return openai.New(openai.Config{
			APIKey:       cfg.Provider.APIKey,
			BaseURL:      cfg.Provider.BaseURL,
			DefaultModel: cfg.Agent.Model,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider.Name)
	}
}

func buildStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return storage.NewMemory(), nil
	case "file":
		return storage.NewFile(cfg.Storage.Path)
	case "sql":
		pool := storage.DefaultSQLConfig()
		if cfg.Storage.MaxConnections > 0 {
			pool.MaxOpenConns = cfg.Storage.MaxConnections
		}
		if cfg.Storage.ConnMaxLifetime > 0 {
			pool.ConnMaxLifetime = cfg.Storage.ConnMaxLifetime
		}
		store, err := storage.NewSQLFromDSN(cfg.Storage.URL, pool)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func buildFiles(ctx context.Context, cfg *config.Config) (files.Backend, error) {
	var s3cfg *files.S3Config
	if cfg.Files.Backend == "s3" {
		s3cfg = &files.S3Config{
			Bucket:       cfg.Files.S3.Bucket,
			Region:       cfg.Files.S3.Region,
			Endpoint:     cfg.Files.S3.Endpoint,
			Prefix:       cfg.Files.S3.Prefix,
			UsePathStyle: cfg.Files.S3.ForcePathStyle,
		}
	}
	return files.New(ctx, cfg.Files.Backend, cfg.Files.Path, s3cfg)
}

// buildAgent assembles an initialized agent on the given identity.
func (rt *runtime) buildAgent(ctx context.Context, agentUUID string, registry *tools.Registry) (*agent.Agent, error) {
	a, err := agent.New(agent.Options{
		AgentUUID: agentUUID,
		Config: models.AgentConfig{
			Model:          rt.cfg.Agent.Model,
			SystemPrompt:   rt.cfg.Agent.SystemPrompt,
			MaxSteps:       rt.cfg.Agent.MaxSteps,
			MaxTokens:      rt.cfg.Agent.MaxTokens,
			ThinkingTokens: rt.cfg.Agent.ThinkingTokens,
			MaxRetries:     rt.cfg.Agent.MaxRetries,
			BaseDelay:      rt.cfg.Agent.BaseDelay,
			Formatter:      rt.cfg.Agent.Formatter,
			Compactor:      rt.cfg.Agent.Compactor,
			MemoryStore:    rt.cfg.Agent.MemoryStore,
			ServerTools:    rt.cfg.Agent.ServerTools,
			BetaHeaders:    rt.cfg.Agent.BetaHeaders,
		},
		Provider: rt.provider,
		Store:    rt.store,
		Registry: registry,
		Files:    rt.files,
		Logger:   rt.logger,
		Metrics:  rt.metrics,
		Tracer:   rt.tracer,
	})
	if err != nil {
		return nil, err
	}
	if err := a.Initialize(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// serveMetrics exposes the default Prometheus registry.
func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		prometheus.DefaultGatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
