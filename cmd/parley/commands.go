// ABOUTME: Subcommand implementations for the parley CLI
// ABOUTME: Each command parses its own flags and prints colorized results

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/parley/internal/config"
	"github.com/2389/parley/internal/moderation"
	"github.com/2389/parley/internal/remote/openaiapi"
	"github.com/2389/parley/internal/session"
)

// newFlagSet returns a flag set for a subcommand. Parse errors are returned,
// not fatal.
func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("parley "+name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func nonNegative(name string, n int) error {
	if n < 0 {
		return fmt.Errorf("--%s must be a non-negative integer", name)
	}
	return nil
}

func runProvision(ctx context.Context, a *app, args []string, out io.Writer) error {
	results, err := a.provision(ctx, args)

	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)
	for _, r := range results {
		if r.Created {
			green.Fprint(out, "  ✓ ")
			fmt.Fprintf(out, "%-16s %s\n", r.Key, r.AssistantID)
		} else {
			gray.Fprintf(out, "  - %-16s %s (already provisioned)\n", r.Key, r.AssistantID)
		}
	}
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(out, "Nothing to provision: every agent has an id.")
	}
	return nil
}

func runDeprovision(ctx context.Context, a *app, args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: parley deprovision <key>")
	}
	id, err := a.deprovision(ctx, args[0])
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprint(out, "  ✓ ")
	fmt.Fprintf(out, "deleted %s (%s)\n", args[0], id)
	return nil
}

func runAgents(ctx context.Context, a *app, out io.Writer) error {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	yellow := color.New(color.FgYellow)

	if len(a.cfg.Agents) == 0 {
		fmt.Fprintln(out, "No agents configured.")
		return nil
	}

	for i := range a.cfg.Agents {
		ac := &a.cfg.Agents[i]
		cyan.Fprintf(out, "%-16s ", ac.Key)

		id, err := a.assistantID(ctx, ac)
		switch {
		case errors.Is(err, errNotProvisioned):
			yellow.Fprint(out, "not provisioned")
		case err != nil:
			return err
		default:
			fmt.Fprint(out, id)
		}

		var details []string
		if ac.Model != "" {
			details = append(details, "model="+ac.Model)
		}
		if len(ac.Tools) > 0 {
			details = append(details, "tools="+strings.Join(ac.Tools, ","))
		}
		if ac.Delegation {
			details = append(details, "delegation")
		}
		if len(details) > 0 {
			gray.Fprintf(out, "  %s", strings.Join(details, " "))
		}
		fmt.Fprintln(out)
	}
	return nil
}

func runChat(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("chat")
	threadID := fs.String("thread", "", "continue an existing thread")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return fmt.Errorf("usage: parley chat [--thread ID] <key> <message>")
	}
	key := fs.Arg(0)
	message := strings.Join(fs.Args()[1:], " ")

	if err := a.loadAll(ctx); err != nil {
		return err
	}
	ag, err := a.resolve(ctx, key)
	if err != nil {
		return err
	}

	outcome := ag.Converse(ctx, message, *threadID)
	if outcome.Err != nil {
		return fmt.Errorf("turn failed on thread %q: %w", outcome.ThreadID, outcome.Err)
	}

	name, err := a.dir.ResolveName(ctx, outcome.ResponderID)
	if err != nil {
		name = outcome.ResponderID
	}
	cyan := color.New(color.FgCyan, color.Bold)
	gray := color.New(color.FgHiBlack)

	cyan.Fprintf(out, "%s", name)
	if outcome.Delegated {
		gray.Fprintf(out, " (handed off by %s)", key)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, outcome.Text)
	gray.Fprintf(out, "thread=%s run=%s\n", outcome.ThreadID, outcome.RunID)
	return nil
}

func runSessionCmd(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("session")
	limit := fs.Int("limit", a.cfg.Session.Limit, "total turns to run")
	chunk := fs.Int("chunk", a.cfg.Session.Chunk, "turns per chunk")
	topic := fs.String("topic", a.cfg.Session.Topic, "opening message posted to the thread")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	if err := nonNegative("limit", *limit); err != nil {
		return err
	}
	if err := nonNegative("chunk", *chunk); err != nil {
		return err
	}

	if err := a.loadAll(ctx); err != nil {
		return err
	}

	events := session.NewBroadcaster(a.logger)
	defer events.Close()

	roster, err := a.roster(ctx, a.cfg.Session.Roster)
	if err != nil {
		return err
	}
	s := session.New(roster,
		session.WithTopic(*topic),
		session.WithNameResolver(a.dir.ResolveName),
		session.WithBroadcaster(events),
		session.WithLogger(a.logger),
	)

	// Turns are printed as they land rather than after the whole run.
	feed, subID := events.Subscribe(ctx, s.ID())
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range feed {
			if ev.Kind == session.EventMessage {
				printMessage(out, *ev.Message)
			}
		}
	}()

	runErr := runSession(ctx, s, *limit, *chunk)
	events.Unsubscribe(s.ID(), subID)
	<-printed

	printSummary(out, s.Snapshot())
	return runErr
}

func printMessage(out io.Writer, m session.Message) {
	color.New(color.FgCyan, color.Bold).Fprintf(out, "%s", m.DisplayName)
	fmt.Fprintln(out)
	fmt.Fprintln(out, m.Content)
	fmt.Fprintln(out)
}

func printSummary(out io.Writer, snap session.Snapshot) {
	gray := color.New(color.FgHiBlack)
	status := color.New(color.FgGreen)
	if snap.Status == session.StatusError {
		status = color.New(color.FgRed)
	}

	gray.Fprint(out, "session ")
	fmt.Fprint(out, snap.ID)
	gray.Fprint(out, " status ")
	status.Fprint(out, string(snap.Status))
	gray.Fprintf(out, " messages %d thread %s\n", len(snap.Transcript), snap.ThreadID)
	gray.Fprintf(out, "sha256 %s\n", snap.Hash)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// runModerate works without a config file; the key then comes from OPENAI_API_KEY.
func runModerate(ctx context.Context, args []string, out io.Writer) error {
	var threshold *float64
	fs := newFlagSet("moderate")
	fs.Func("threshold", "flag text when any category score reaches this (0-1)", func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			return errors.New("must be a number between 0 and 1")
		}
		threshold = &f
		return nil
	})
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("usage: parley moderate [--threshold F] <text>")
	}

	clientCfg := openaiapi.Config{}
	logCfg := config.LoggingConfig{Level: "warn"}
	if cfg, err := config.Load(getConfigPath()); err == nil {
		clientCfg.APIKey = cfg.OpenAI.APIKey
		clientCfg.BaseURL = cfg.OpenAI.BaseURL
		clientCfg.ModerationModel = cfg.OpenAI.ModerationModel
		logCfg = cfg.Logging
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(logCfg, os.Stderr)
	checker := moderation.NewChecker(openaiapi.New(clientCfg, logger), logger)

	res, err := checker.Check(ctx, strings.Join(fs.Args(), " "), threshold)
	if err != nil {
		return err
	}
	printModeration(out, res)
	return nil
}

func printModeration(out io.Writer, res moderation.Result) {
	if res.Flagged {
		color.New(color.FgRed, color.Bold).Fprintln(out, "flagged")
	} else {
		color.New(color.FgGreen).Fprintln(out, "ok")
	}
	for _, c := range res.Categories {
		fmt.Fprintf(out, "  %-24s %.4f\n", c.Name, c.Score)
	}
}
