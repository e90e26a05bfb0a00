package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"knowshowgo/internal/agent"
	"knowshowgo/internal/browser"
	"knowshowgo/internal/config"
	"knowshowgo/internal/embedding"
	"knowshowgo/internal/events"
	"knowshowgo/internal/formdata"
	"knowshowgo/internal/ksg"
	"knowshowgo/internal/learning"
	"knowshowgo/internal/llm"
	"knowshowgo/internal/logging"
	"knowshowgo/internal/memory"
	"knowshowgo/internal/queue"
	"knowshowgo/internal/scheduler"
	"knowshowgo/internal/shell"
	"knowshowgo/internal/store"
	"knowshowgo/internal/tools"
)

// runtime holds every wired component for one CLI invocation.
type runtime struct {
	cfg        *config.Config
	store      *store.LocalStore
	graph      *ksg.KnowShowGo
	embedder   embedding.Engine
	chat       llm.ChatClient
	working    *memory.WorkingMemory
	replicator *memory.Replicator
	bus        *events.Bus
	queue      *queue.Manager
	registry   *tools.Registry
	driver     *browser.RodDriver
	scheduler  *scheduler.Scheduler
	agent      *agent.Agent
}

// resolveConfigPath prefers the --config flag over the workspace default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return filepath.Join(workspace, ".ksg", "config.yaml")
}

// newRuntime wires the full stack: config, store, embedding, llm, graph,
// tools, and the agent. Chat and embedding degrade to nil when their
// providers are unreachable; the agent falls back to deterministic paths.
func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logging.Initialize(workspace); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logging.Boot("%s %s starting", cfg.Name, cfg.Version)

	embedder, err := embedding.NewEngine(embedding.Config{
		Provider:       cfg.Embedding.Provider,
		OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
		OllamaModel:    cfg.Embedding.OllamaModel,
		GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
		GenAIModel:     cfg.Embedding.GenAIModel,
		TaskType:       cfg.Embedding.TaskType,
	})
	if err != nil {
		logger.Warn("embedding engine unavailable, vector recall disabled", zap.Error(err))
		embedder = nil
	}

	dbPath := cfg.Memory.DatabasePath
	if dbPath != "" && dbPath != ":memory:" && !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(workspace, dbPath)
	}
	storeOpts := []store.Option{}
	if embedder != nil {
		storeOpts = append(storeOpts, store.WithEmbeddingEngine(embedder))
	}
	if cfg.Memory.RequireVec {
		storeOpts = append(storeOpts, store.WithRequireVec())
	}
	localStore, err := store.NewLocalStore(dbPath, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory store: %w", err)
	}

	graph := ksg.New(localStore, embedder)
	if err := graph.SeedPrototypes(ctx); err != nil {
		localStore.Close()
		return nil, fmt.Errorf("failed to seed prototypes: %w", err)
	}

	chat, err := llm.NewClient(llm.Config{
		Provider:           cfg.LLM.Provider,
		APIKey:             cfg.LLM.APIKey,
		Model:              cfg.LLM.Model,
		BaseURL:            cfg.LLM.BaseURL,
		Timeout:            parseDuration(cfg.LLM.Timeout, 120*time.Second),
		MaxOutputTokens:    cfg.LLM.MaxOutputTokens,
		MinRequestInterval: parseDuration(cfg.LLM.MinRequestInterval, 0),
	})
	if err != nil {
		logger.Warn("llm client unavailable, using deterministic planning only", zap.Error(err))
		chat = nil
	}

	working := memory.NewWorkingMemory(cfg.Memory.ReinforceDelta, cfg.Memory.MaxWeight)
	replicator := memory.NewReplicator(localStore, cfg.Memory.ReplicatorQueueSize,
		parseDuration(cfg.Memory.ReplicatorPoll, time.Second))
	replicator.Start()

	bus := events.NewBus()
	queueMgr := queue.NewManager(localStore, bus)

	registry := tools.NewRegistry(bus)
	driver := browser.NewRodDriver(cfg.Browser)
	tools.RegisterWebTools(registry, driver)

	calendar := tools.NewLocalCalendar(localStore)
	taskBackend := tools.NewLocalTasks(localStore)
	contacts := tools.NewLocalContacts(localStore)
	tools.RegisterCalendarTools(registry, calendar)
	tools.RegisterTaskTools(registry, taskBackend)
	tools.RegisterContactTools(registry, contacts)
	tools.RegisterMemoryTools(registry, graph)
	tools.RegisterQueueTools(registry, queueMgr)
	tools.RegisterPatternTools(registry, graph)
	tools.RegisterFormTools(registry, formdata.NewRetriever(localStore))

	shellExec, err := shell.NewSafeExecutor(cfg.Execution)
	if err != nil {
		replicator.Stop()
		localStore.Close()
		return nil, fmt.Errorf("failed to create shell executor: %w", err)
	}
	tools.RegisterShellTool(registry, shellExec)

	learner := learning.NewEngine(localStore, chat, embedder)
	sched := scheduler.New(localStore, taskBackend, queueMgr)

	a := agent.New(agent.Deps{
		Config:     cfg.Agent,
		Store:      localStore,
		Graph:      graph,
		Embedder:   embedder,
		Chat:       chat,
		Runner:     registry,
		Working:    working,
		Replicator: replicator,
		Learner:    learner,
		Bus:        bus,
	})

	return &runtime{
		cfg:        cfg,
		store:      localStore,
		graph:      graph,
		embedder:   embedder,
		chat:       chat,
		working:    working,
		replicator: replicator,
		bus:        bus,
		queue:      queueMgr,
		registry:   registry,
		driver:     driver,
		scheduler:  sched,
		agent:      a,
	}, nil
}

// Close tears down in dependency order: drain the replicator before the
// store goes away, then the browser, then logging.
func (rt *runtime) Close() {
	if rt.replicator != nil {
		rt.replicator.Flush(2 * time.Second)
		rt.replicator.Stop()
	}
	if rt.driver != nil {
		if err := rt.driver.Close(); err != nil {
			logger.Warn("browser close failed", zap.Error(err))
		}
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			logger.Warn("store close failed", zap.Error(err))
		}
	}
	logging.CloseAll()
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
