// Command loopkit is an interactive REPL around a tool-using LLM agent. It
// can read files, search, run shell commands in a persistent session, and
// edit files through structured patches.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/loopkit/loopkit/agent"
	"github.com/loopkit/loopkit/config"
	"github.com/loopkit/loopkit/history"
	"github.com/loopkit/loopkit/llm"
	"github.com/loopkit/loopkit/tools"
)

func main() {
	var (
		configPath    = flag.String("config", "loopkit.yaml", "Path to optional YAML config file")
		debug         = flag.Bool("debug", false, "Print LLM requests/responses and tool calls/results")
		model         = flag.String("model", "", "Override model (otherwise uses OPENAI_MODEL)")
		maxToolRounds = flag.Int("max-tool-rounds", 0, "Maximum tool-call/response iterations per user message")
		historyPath   = flag.String("history-path", "", "Where to append JSONL history events")
		stateDir      = flag.String("state-dir", "", "Directory for terminal/session state")
		planning      = flag.Bool("planning", false, "Decompose complex requests into an approved multi-step plan")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	// Flags override the config file; the config file overrides defaults.
	if *model != "" {
		cfg.Model = *model
	}
	if *maxToolRounds > 0 {
		cfg.MaxToolRounds = *maxToolRounds
	}
	if *debug {
		cfg.Debug = true
	}
	if *planning {
		cfg.EnablePlanning = true
	}
	if *historyPath != "" {
		cfg.HistoryPath = *historyPath
	}
	if *stateDir != "" {
		cfg.StateDir = *stateDir
	}
	if cfg.StateDir == "" {
		cfg.StateDir = ".agent"
	}
	if cfg.HistoryPath == "" {
		cfg.HistoryPath = filepath.Join(cfg.StateDir, "history.jsonl")
	}

	level := zerolog.WarnLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	hist := &history.Store{Path: cfg.HistoryPath}

	registry := tools.NewRegistry(".", cfg.StateDir)
	registry.Shell = cfg.Shell
	defer registry.Close()

	client := llm.NewClient(cfg.Model)

	ag := agent.New(hist, registry, client, agent.Config{
		MaxToolRounds:  cfg.MaxToolRounds,
		Debug:          cfg.Debug,
		EnablePlanning: cfg.EnablePlanning,
	}, log)

	settingsPath := filepath.Join(cfg.StateDir, "ui.json")
	theme := getTheme(loadUISettings(settingsPath).Theme)

	modelLabel := cfg.Model
	if modelLabel == "" {
		modelLabel = os.Getenv("OPENAI_MODEL")
	}
	if modelLabel == "" {
		modelLabel = "(default)"
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	r := &repl{
		agent:      ag,
		history:    hist,
		theme:      theme,
		uiPath:     settingsPath,
		model:      modelLabel,
		in:         scanner,
		debugPrint: cfg.Debug,
	}
	r.run(context.Background())
}
