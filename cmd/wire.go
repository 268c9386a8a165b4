package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/martinemde/agentbuilder/agentloop"
	"github.com/martinemde/agentbuilder/config"
	"github.com/martinemde/agentbuilder/memory"
	"github.com/martinemde/agentbuilder/sandbox"
	"github.com/martinemde/agentbuilder/skills"
	"github.com/martinemde/agentbuilder/unifiedllm"
)

// app wires components lazily so commands that only touch the durable store
// never need a model endpoint.
type app struct {
	v          *viper.Viper
	configPath string
	stdin      io.Reader

	// newModel builds the model client; tests replace it.
	newModel func(config.LLMConfig, *zap.Logger) (agentloop.ModelClient, error)

	cfg      *config.Config
	logger   *zap.Logger
	mem      *memory.Memory
	registry *skills.Registry
	runner   *sandbox.Executor
	watcher  *skills.Watcher
	closers  []func()
}

func newApp() *app {
	return &app{
		v:        viper.New(),
		stdin:    os.Stdin,
		newModel: newModelClient,
	}
}

func (a *app) config() (config.Config, error) {
	if a.cfg != nil {
		return *a.cfg, nil
	}
	cfg, err := config.Load(a.v, a.configPath)
	if err != nil {
		return config.Config{}, err
	}
	a.cfg = &cfg
	return cfg, nil
}

func (a *app) log() (*zap.Logger, error) {
	if a.logger != nil {
		return a.logger, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("wire logger: %w", err)
	}
	a.logger = logger
	return logger, nil
}

func (a *app) memory() (*memory.Memory, error) {
	if a.mem != nil {
		return a.mem, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	logger, err := a.log()
	if err != nil {
		return nil, err
	}
	mem, err := memory.New(cfg.Workspace,
		memory.WithMaxShortTerm(cfg.Memory.MaxShortTerm),
		memory.WithSummaryThreshold(cfg.Memory.SummaryThreshold),
		memory.WithStoreFile(cfg.Memory.File),
		memory.WithLogger(logger.Named("memory")),
	)
	if err != nil {
		return nil, fmt.Errorf("wire memory: %w", err)
	}
	a.mem = mem
	return mem, nil
}

func (a *app) skills() (*skills.Registry, error) {
	if a.registry != nil {
		return a.registry, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	logger, err := a.log()
	if err != nil {
		return nil, err
	}
	a.registry = skills.NewRegistry(cfg.Skills.Paths, skills.WithLogger(logger.Named("skills")))
	return a.registry, nil
}

func (a *app) executor() (*sandbox.Executor, error) {
	if a.runner != nil {
		return a.runner, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	logger, err := a.log()
	if err != nil {
		return nil, err
	}
	runner, err := sandbox.New(cfg.Workspace,
		sandbox.WithInterpreter(cfg.Exec.Interpreter...),
		sandbox.WithDefaultTimeout(cfg.Exec.Timeout),
		sandbox.WithLogger(logger.Named("sandbox")),
	)
	if err != nil {
		return nil, fmt.Errorf("wire sandbox: %w", err)
	}
	a.runner = runner
	return runner, nil
}

// session builds a full orchestrator. With skills.watch set, the skill
// catalog is rescanned on change until the app is closed.
func (a *app) session(ctx context.Context) (*agentloop.Session, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	logger, err := a.log()
	if err != nil {
		return nil, err
	}
	mem, err := a.memory()
	if err != nil {
		return nil, err
	}
	registry, err := a.skills()
	if err != nil {
		return nil, err
	}
	if _, err := registry.Discover(ctx); err != nil {
		return nil, err
	}
	runner, err := a.executor()
	if err != nil {
		return nil, err
	}
	model, err := a.newModel(cfg.LLM, logger.Named("llm"))
	if err != nil {
		return nil, err
	}
	if c, ok := model.(interface{ Close() error }); ok {
		a.closers = append(a.closers, func() { _ = c.Close() })
	}

	if cfg.Skills.Watch && a.watcher == nil {
		w, err := skills.NewWatcher(registry, skills.WithReloadHook(func(loaded []skills.Skill) {
			logger.Info("skills reloaded", zap.Int("count", len(loaded)))
		}))
		if err != nil {
			return nil, fmt.Errorf("wire skill watcher: %w", err)
		}
		if err := w.Start(ctx); err != nil {
			return nil, fmt.Errorf("start skill watcher: %w", err)
		}
		a.watcher = w
		a.closers = append(a.closers, w.Stop)
	}

	sc := agentloop.DefaultSessionConfig()
	sc.Model = cfg.LLM.Model
	sc.Temperature = cfg.LLM.Temperature
	sc.MaxTokens = cfg.LLM.MaxTokens
	sc.CodeTimeout = cfg.Exec.Timeout
	sc.OutputCharLimit = cfg.Exec.OutputLimit

	session, err := agentloop.NewSession(agentloop.Components{
		Model:  model,
		Memory: mem,
		Skills: registry,
		Runner: runner,
	}, &sc, agentloop.WithLogger(logger.Named("session")))
	if err != nil {
		return nil, fmt.Errorf("wire session: %w", err)
	}
	a.closers = append(a.closers, session.Close)
	return session, nil
}

// close releases everything wired so far, newest first.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}

func newModelClient(cfg config.LLMConfig, logger *zap.Logger) (agentloop.ModelClient, error) {
	var adapter unifiedllm.ProviderAdapter
	switch cfg.Provider {
	case unifiedllm.OpenAICompatProvider:
		adapter = unifiedllm.NewOpenAICompatAdapter(cfg.BaseURL, cfg.APIKey, cfg.Model,
			unifiedllm.WithHTTPTimeout(cfg.Timeout))
	default:
		opts := []unifiedllm.GollmAdapterOption{unifiedllm.WithGollmModel(cfg.Model)}
		if cfg.MaxTokens > 0 {
			opts = append(opts, unifiedllm.WithGollmMaxTokens(cfg.MaxTokens))
		}
		g, err := unifiedllm.NewGollmAdapter(cfg.Provider, cfg.APIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("wire %s provider: %w", cfg.Provider, err)
		}
		adapter = g
	}

	middleware := []unifiedllm.Middleware{unifiedllm.LoggingMiddleware(logger)}
	if cfg.MaxRetries > 0 {
		policy := unifiedllm.DefaultRetryPolicy()
		policy.MaxRetries = cfg.MaxRetries
		policy.OnRetry = func(err error, attempt int, delay time.Duration) {
			logger.Info("retrying model call", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
		}
		middleware = append(middleware, unifiedllm.RetryMiddleware(policy))
	}

	return unifiedllm.NewClient(
		unifiedllm.WithProvider(adapter.Name(), adapter),
		unifiedllm.WithDefaultProvider(adapter.Name()),
		unifiedllm.WithDefaultModel(cfg.Model),
		unifiedllm.WithMiddleware(middleware...),
	), nil
}
