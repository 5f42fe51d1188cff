// ABOUTME: Wires config, remote service, store and agent directory for the CLI commands
// ABOUTME: Resolves configured agent keys to remote assistants and builds session rosters

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/parley/internal/agent"
	"github.com/2389/parley/internal/config"
	"github.com/2389/parley/internal/dedupe"
	"github.com/2389/parley/internal/remote"
	"github.com/2389/parley/internal/session"
	"github.com/2389/parley/internal/store"
	"github.com/2389/parley/internal/thread"
	"github.com/2389/parley/internal/tools"
)

// Handled tool calls are remembered long enough to outlive any single turn.
const (
	handledTTL  = 30 * time.Minute
	handledSize = 10_000
)

var errNotProvisioned = errors.New("agent is not provisioned")

// app holds everything a command needs.
type app struct {
	cfg      *config.Config
	svc      remote.Service
	store    store.Store
	builtins *tools.Registry
	dir      *agent.Directory
	logger   *slog.Logger
}

func newApp(cfg *config.Config, svc remote.Service, st store.Store, logger *slog.Logger) (*app, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var builtins *tools.Registry
	if cfg.Tools.Root != "" {
		sandbox, err := tools.NewSandbox(cfg.Tools.Root, cfg.Tools.Exclude)
		if err != nil {
			return nil, fmt.Errorf("creating tool sandbox: %w", err)
		}
		builtins, err = tools.NewRegistry(sandbox.Builtins()...)
		if err != nil {
			return nil, fmt.Errorf("registering built-in tools: %w", err)
		}
	}

	engineCfg := thread.EngineConfig{
		PollInterval: cfg.Engine.PollInterval,
		MaxAttempts:  cfg.Engine.MaxAttempts,
		Handled:      dedupe.New(handledTTL, handledSize),
	}

	return &app{
		cfg:      cfg,
		svc:      svc,
		store:    st,
		builtins: builtins,
		dir:      agent.NewDirectory(svc, cfg.Engine.MaxDelegationDepth, logger, agent.WithEngineConfig(engineCfg)),
		logger:   logger,
	}, nil
}

// agentOptions turns an agent's config into agent options: its tool subset,
// fixed arguments, display name and avatar.
func (a *app) agentOptions(ac *config.AgentConfig) ([]agent.Option, error) {
	var opts []agent.Option

	if len(ac.Tools) > 0 {
		if a.builtins == nil {
			return nil, fmt.Errorf("agent %s uses tools but tools.root is not set", ac.Key)
		}
		reg, err := a.builtins.Subset(ac.Tools)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", ac.Key, err)
		}
		opts = append(opts, agent.WithTools(reg))
	}
	overlay := tools.Overlay(a.cfg.Tools.Arguments).Merge(tools.Overlay(ac.Arguments))
	if len(overlay) > 0 {
		opts = append(opts, agent.WithOverlay(overlay))
	}
	if ac.Name != "" {
		opts = append(opts, agent.WithName(ac.Name))
	}
	if ac.Avatar != "" {
		opts = append(opts, agent.WithAvatar(ac.Avatar))
	}
	return opts, nil
}

// assistantID returns the remote id for an agent key: the configured id, or
// the one recorded by provisioning.
func (a *app) assistantID(ctx context.Context, ac *config.AgentConfig) (string, error) {
	if ac.ID != "" {
		return ac.ID, nil
	}
	rec, err := a.store.GetAgent(ctx, ac.Key)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w: %s (run `parley provision %s`)", errNotProvisioned, ac.Key, ac.Key)
	}
	if err != nil {
		return "", fmt.Errorf("looking up agent %s: %w", ac.Key, err)
	}
	return rec.AssistantID, nil
}

// resolve returns the agent configured under key, registered in the directory.
func (a *app) resolve(ctx context.Context, key string) (*agent.Agent, error) {
	ac, ok := a.cfg.Agent(key)
	if !ok {
		return nil, fmt.Errorf("no agent configured with key %q", key)
	}
	id, err := a.assistantID(ctx, ac)
	if err != nil {
		return nil, err
	}
	opts, err := a.agentOptions(ac)
	if err != nil {
		return nil, err
	}
	return a.dir.Wrap(id, opts...), nil
}

// loadAll registers every resolvable configured agent so delegation targets
// pick up their tools and names. Unprovisioned agents are skipped.
func (a *app) loadAll(ctx context.Context) error {
	for i := range a.cfg.Agents {
		key := a.cfg.Agents[i].Key
		if _, err := a.resolve(ctx, key); err != nil {
			if errors.Is(err, errNotProvisioned) {
				a.logger.Debug("skipping unprovisioned agent", "key", key)
				continue
			}
			return err
		}
	}
	return nil
}

// roster resolves agent keys into session participants in order.
func (a *app) roster(ctx context.Context, keys []string) ([]session.Participant, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("session roster is empty")
	}
	out := make([]session.Participant, 0, len(keys))
	for _, key := range keys {
		ag, err := a.resolve(ctx, key)
		if err != nil {
			return nil, err
		}
		out = append(out, ag)
	}
	return out, nil
}

// provisionResult reports what provision did for one agent.
type provisionResult struct {
	Key         string
	AssistantID string
	Created     bool
}

// provision creates remote assistants for configured agents that have no id
// and no recorded assistant. With no keys every such agent is provisioned.
func (a *app) provision(ctx context.Context, keys []string) ([]provisionResult, error) {
	targets := keys
	if len(targets) == 0 {
		for _, ac := range a.cfg.Agents {
			if ac.ID == "" {
				targets = append(targets, ac.Key)
			}
		}
	}

	var results []provisionResult
	for _, key := range targets {
		ac, ok := a.cfg.Agent(key)
		if !ok {
			return results, fmt.Errorf("no agent configured with key %q", key)
		}
		if ac.ID != "" {
			results = append(results, provisionResult{Key: key, AssistantID: ac.ID})
			continue
		}
		if rec, err := a.store.GetAgent(ctx, key); err == nil {
			results = append(results, provisionResult{Key: key, AssistantID: rec.AssistantID})
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return results, fmt.Errorf("looking up agent %s: %w", key, err)
		}

		opts, err := a.agentOptions(ac)
		if err != nil {
			return results, err
		}
		created, err := agent.Create(ctx, a.svc, agent.Definition{
			Name:         ac.Name,
			Description:  ac.Description,
			Instructions: ac.Instructions,
			Model:        ac.Model,
			Temperature:  ac.Temperature,
			TopP:         ac.TopP,
			Metadata:     map[string]string{"parley_key": ac.Key},
			Delegation:   ac.Delegation,
		}, opts...)
		if err != nil {
			return results, fmt.Errorf("provisioning %s: %w", key, err)
		}

		now := time.Now().UTC()
		if err := a.store.SaveAgent(ctx, &store.AgentRecord{
			Key:         key,
			AssistantID: created.ID(),
			Name:        ac.Name,
			Model:       ac.Model,
			Avatar:      ac.Avatar,
			CreatedAt:   now,
			UpdatedAt:   now,
		}); err != nil {
			return results, fmt.Errorf("recording %s: %w", key, err)
		}

		a.logger.Info("provisioned agent", "key", key, "assistant_id", created.ID())
		results = append(results, provisionResult{Key: key, AssistantID: created.ID(), Created: true})
	}
	return results, nil
}

// deprovision deletes the remote assistant recorded for key and its record.
func (a *app) deprovision(ctx context.Context, key string) (string, error) {
	rec, err := a.store.GetAgent(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", errNotProvisioned, key)
	}
	if err != nil {
		return "", fmt.Errorf("looking up agent %s: %w", key, err)
	}

	if err := agent.Delete(ctx, a.svc, rec.AssistantID); err != nil {
		return "", err
	}
	if err := a.store.DeleteAgent(ctx, key); err != nil {
		return "", fmt.Errorf("removing record for %s: %w", key, err)
	}
	a.dir.Remove(rec.AssistantID)

	a.logger.Info("deprovisioned agent", "key", key, "assistant_id", rec.AssistantID)
	return rec.AssistantID, nil
}

// runSession runs limit turns in chunks of chunk, starting a pending session
// and resuming after that.
func runSession(ctx context.Context, s *session.Session, limit, chunk int) error {
	if limit <= 0 {
		limit = session.DefaultLimit
	}
	if chunk <= 0 || chunk > limit {
		chunk = limit
	}

	for done := 0; done < limit; {
		n := min(chunk, limit-done)
		var err error
		if s.Status() == session.StatusPending {
			err = s.Start(ctx, n)
		} else {
			err = s.Resume(ctx, n)
		}
		if err != nil {
			return err
		}
		done += n
	}
	return nil
}
