// ABOUTME: Entry point for the parley CLI
// ABOUTME: Provisions assistants and runs single turns or multi-agent sessions against them

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"

	"github.com/2389/parley/internal/config"
	"github.com/2389/parley/internal/remote/openaiapi"
	"github.com/2389/parley/internal/store"
)

// Version is set at build time.
var version = "dev"

const banner = `
                   _
 _ __   __ _ _ __| | ___ _   _
| '_ \ / _' | '__| |/ _ \ | | |
| |_) | (_| | |  | |  __/ |_| |
| .__/ \__,_|_|  |_|\___|\__, |
|_|                      |___/
`

// getConfigPath returns the path to the config file.
// Priority: PARLEY_CONFIG env var > XDG_CONFIG_HOME/parley/parley.yaml > ~/.config/parley/parley.yaml
func getConfigPath() string {
	if envPath := os.Getenv("PARLEY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "parley.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "parley", "parley.yaml")
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: parley <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  init                              Create a new config file interactively")
	fmt.Fprintln(w, "  provision [key...]                Create remote assistants for configured agents")
	fmt.Fprintln(w, "  deprovision <key>                 Delete a provisioned assistant")
	fmt.Fprintln(w, "  agents                            List configured agents")
	fmt.Fprintln(w, "  chat [--thread ID] <key> <text>   Run one turn with an agent")
	fmt.Fprintln(w, "  session [--limit N] [--chunk N] [--topic T]")
	fmt.Fprintln(w, "                                    Run a conversation over the configured roster")
	fmt.Fprintln(w, "  moderate [--threshold F] <text>   Check text with the moderation endpoint")
	fmt.Fprintln(w, "  version                           Print the version")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stdout)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "init":
		err = runInit(bufio.NewReader(os.Stdin), os.Stdout)
	case "provision":
		err = withApp(func(a *app) error { return runProvision(ctx, a, args, os.Stdout) })
	case "deprovision":
		err = withApp(func(a *app) error { return runDeprovision(ctx, a, args, os.Stdout) })
	case "agents":
		err = withApp(func(a *app) error { return runAgents(ctx, a, os.Stdout) })
	case "chat":
		err = withApp(func(a *app) error { return runChat(ctx, a, args, os.Stdout) })
	case "session":
		err = withApp(func(a *app) error { return runSessionCmd(ctx, a, args, os.Stdout) })
	case "moderate":
		err = runModerate(ctx, args, os.Stdout)
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withApp loads config, opens the store and builds the app for fn.
func withApp(fn func(a *app) error) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)
	logger.Debug("loaded config", "config", configPath, "agents", len(cfg.Agents))

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	client := openaiapi.New(openaiapi.Config{
		APIKey:          cfg.OpenAI.APIKey,
		BaseURL:         cfg.OpenAI.BaseURL,
		ModerationModel: cfg.OpenAI.ModerationModel,
	}, logger)

	a, err := newApp(cfg, client, st, logger)
	if err != nil {
		return err
	}
	return fn(a)
}

func setupLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05",
			NoColor:    color.NoColor,
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				if a.Value.Kind() == slog.KindAny {
					if _, ok := a.Value.Any().(error); ok {
						return tint.Attr(9, a)
					}
				}
				return a
			},
		})
	}

	return slog.New(handler)
}

func runInit(reader *bufio.Reader, out io.Writer) error {
	cyan := color.New(color.FgCyan)
	cyan.Fprint(out, banner)
	fmt.Fprintln(out, "parley configuration setup")
	fmt.Fprintln(out, "==========================")
	fmt.Fprintln(out)

	outputFile := prompt(reader, out, "Config file path", getConfigPath())

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, out, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	fmt.Fprintln(out, "\n--- Remote Service ---")
	apiKey := prompt(reader, out, "API key (or ${ENV_VAR})", "${OPENAI_API_KEY}")
	baseURL := prompt(reader, out, "Base URL (leave empty for default)", "")

	fmt.Fprintln(out, "\n--- Agents ---")
	firstName := prompt(reader, out, "First agent name", "Alice")
	secondName := prompt(reader, out, "Second agent name", "Bob")
	model := prompt(reader, out, "Model", "gpt-4o-mini")
	topic := prompt(reader, out, "Conversation topic", "Introduce yourselves.")

	fmt.Fprintln(out, "\n--- Tools ---")
	toolsRoot := prompt(reader, out, "Directory the file tools may read (leave empty to disable)", "")

	fmt.Fprintln(out, "\n--- Logging ---")
	logLevel := prompt(reader, out, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, out, "Log format (text/json)", "text")

	content := renderInitConfig(initAnswers{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		FirstName:  firstName,
		SecondName: secondName,
		Model:      model,
		Topic:      topic,
		ToolsRoot:  toolsRoot,
		LogLevel:   logLevel,
		LogFormat:  logFormat,
	})

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Fprintf(out, "\nConfig written to %s\n", outputFile)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  parley provision    # create the assistants")
	fmt.Fprintln(out, "  parley session      # let them talk")
	return nil
}

type initAnswers struct {
	APIKey     string
	BaseURL    string
	FirstName  string
	SecondName string
	Model      string
	Topic      string
	ToolsRoot  string
	LogLevel   string
	LogFormat  string
}

func agentKey(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.Join(strings.Fields(key), "-")
	if key == "" {
		return "agent"
	}
	return key
}

func renderInitConfig(ans initAnswers) string {
	first, second := agentKey(ans.FirstName), agentKey(ans.SecondName)
	if first == second {
		second += "-2"
	}

	var cfg strings.Builder
	cfg.WriteString("# parley configuration\n")
	cfg.WriteString("# Generated by parley init\n\n")

	cfg.WriteString("openai:\n")
	cfg.WriteString(fmt.Sprintf("  api_key: %q\n", ans.APIKey))
	if ans.BaseURL != "" {
		cfg.WriteString(fmt.Sprintf("  base_url: %q\n", ans.BaseURL))
	}
	cfg.WriteString("\n")

	cfg.WriteString("engine:\n")
	cfg.WriteString("  poll_interval: \"1s\"\n")
	cfg.WriteString("  max_attempts: 10\n")
	cfg.WriteString("  max_delegation_depth: 3\n")
	cfg.WriteString("\n")

	if ans.ToolsRoot != "" {
		cfg.WriteString("tools:\n")
		cfg.WriteString(fmt.Sprintf("  root: %q\n", ans.ToolsRoot))
		cfg.WriteString("  exclude: [\".git\", \"node_modules\"]\n")
		cfg.WriteString("\n")
	}

	cfg.WriteString("database:\n")
	cfg.WriteString("  path: \"parley.db\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", ans.LogLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", ans.LogFormat))
	cfg.WriteString("\n")

	cfg.WriteString("agents:\n")
	for _, a := range []struct{ key, name string }{{first, ans.FirstName}, {second, ans.SecondName}} {
		cfg.WriteString(fmt.Sprintf("  - key: %s\n", a.key))
		cfg.WriteString(fmt.Sprintf("    name: %q\n", a.name))
		cfg.WriteString(fmt.Sprintf("    model: %q\n", ans.Model))
		cfg.WriteString(fmt.Sprintf("    instructions: %q\n", "You are "+a.name+". Keep replies short and stay in character."))
		cfg.WriteString("    delegation: true\n")
		if ans.ToolsRoot != "" {
			cfg.WriteString("    tools: [cat, tree]\n")
		}
	}
	cfg.WriteString("\n")

	cfg.WriteString("session:\n")
	cfg.WriteString(fmt.Sprintf("  topic: %q\n", ans.Topic))
	cfg.WriteString(fmt.Sprintf("  roster: [%s, %s]\n", first, second))
	cfg.WriteString("  limit: 4\n")
	cfg.WriteString("  chunk: 2\n")

	return cfg.String()
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Fprintln(out)
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
