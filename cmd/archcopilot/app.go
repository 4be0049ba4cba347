package main

import (
	"fmt"
	"io"
	"log"

	"github.com/rahul/archcopilot/internal/agent"
	"github.com/rahul/archcopilot/internal/cache"
	"github.com/rahul/archcopilot/internal/gateway"
	"github.com/rahul/archcopilot/internal/governance"
	"github.com/rahul/archcopilot/internal/llm"
	"github.com/rahul/archcopilot/internal/observability"
	"github.com/rahul/archcopilot/internal/schema"
	"github.com/rahul/archcopilot/pkg/config"
)

// app holds the process-wide pieces shared by every run.
type app struct {
	cfg     *config.Config
	logger  *observability.Logger
	tracker *observability.Tracker
	gate    *llm.Gate
	cache   *cache.ReportCache
	copilot *agent.Copilot
}

// loadConfig reads the config and, when a model is needed, fails fast on a
// missing credential.
func loadConfig(needsModel bool) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if needsModel {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}
	return cfg, nil
}

// newPolicy builds the content policy from the configured deny patterns and
// fields.
func newPolicy(cfg *config.Config) (*governance.DefaultPolicyEngine, error) {
	policy, err := governance.NewContentPolicy(cfg.Policy.DenyPatterns...)
	if err != nil {
		return nil, err
	}
	for _, field := range cfg.Policy.DenyFields {
		policy.DenyField(field)
	}
	return policy, nil
}

// newValidatorOnly builds a copilot that can validate and estimate but never
// calls a model.
func newValidatorOnly(cfg *config.Config) (*agent.Copilot, error) {
	policy, err := newPolicy(cfg)
	if err != nil {
		return nil, err
	}
	return &agent.Copilot{Validator: schema.NewValidator(), Policy: policy}, nil
}

func newApp(cfg *config.Config, events io.Writer) (*app, error) {
	logger := observability.NewLogger(events, cfg.Logging.LLMLogPath, cfg.Logging.MaxSizeMB)
	tracker := observability.NewTracker()
	gate := llm.NewGate(cfg.Pipeline.MaxConcurrentCalls)

	name, pcfg := cfg.GetDefaultProvider()
	client, err := llm.FromConfig(name, pcfg)
	if err != nil {
		return nil, err
	}
	log.Printf("Using provider %s (model %s)", name, pcfg.Model)

	graph := agent.DefaultGraph()
	prompts, err := agent.NewPromptManager(cfg.Pipeline.PromptsDir, graph)
	if err != nil {
		return nil, err
	}
	policy, err := newPolicy(cfg)
	if err != nil {
		return nil, err
	}

	var reports *cache.ReportCache
	if cfg.Cache.Enabled {
		reports, err = cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
		if err != nil {
			return nil, fmt.Errorf("create report cache: %w", err)
		}
	}

	validator := schema.NewValidator()
	exec := &agent.Executor{
		Client:    client,
		Gate:      gate,
		Prompts:   prompts,
		Validator: validator,
		Policy:    agent.PolicyFromConfig(cfg.Pipeline),
		Logger:    logger,
	}
	copilot := &agent.Copilot{
		Validator: validator,
		Policy:    policy,
		Orchestrator: &agent.Orchestrator{
			Graph:       graph,
			Runner:      exec,
			MaxParallel: cfg.Pipeline.MaxParallelSteps,
			Logger:      logger,
		},
		Cache:      reports,
		Provider:   name + "/" + pcfg.Model,
		RunTimeout: cfg.Pipeline.RunTimeout,
		Tracker:    tracker,
		Logger:     logger,
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		tracker: tracker,
		gate:    gate,
		cache:   reports,
		copilot: copilot,
	}, nil
}

func (a *app) Close() {
	if a.cache != nil {
		a.cache.Close()
	}
}

// notifiers builds every enabled chat gateway. A gateway that cannot start
// is logged and skipped.
func notifiers(cfg *config.Config) gateway.Notifier {
	var out gateway.Multi
	if g, ok := cfg.GetGateway("telegram"); ok {
		tg, err := gateway.NewTelegramGateway(g.Token, g.ChatID)
		if err != nil {
			log.Printf("Warning: telegram gateway disabled: %v", err)
		} else {
			out = append(out, tg)
		}
	}
	if g, ok := cfg.GetGateway("discord"); ok {
		dg, err := gateway.NewDiscordGateway(g.Token, g.ChannelID)
		if err != nil {
			log.Printf("Warning: discord gateway disabled: %v", err)
		} else {
			out = append(out, dg)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
