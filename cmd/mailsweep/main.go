package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"

	"mailsweep/internal/config"
	"mailsweep/internal/history"
	"mailsweep/internal/logger"
	"mailsweep/internal/ratelimit"
	"mailsweep/internal/store"
	"mailsweep/internal/tui"
)

func main() {
	home, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot determine home directory: %v\n", err)
		os.Exit(1)
	}

	configDir := filepath.Join(home, ".config", "mailsweep")
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "Cannot create config directory: %v\n", err)
		os.Exit(1)
	}

	cfgPath := filepath.Join(configDir, "config.toml")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	logger.Initialize(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err := config.WriteExample(cfgPath); err != nil {
		logger.Warn("write example config", "error", err)
	}

	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(configDir, "mailsweep.db")
	}
	db, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot open message cache: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	hist, err := history.Open(filepath.Join(configDir, "history.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot open decision history: %v\n", err)
		os.Exit(1)
	}
	defer hist.Close()

	// A threshold adjusted in the UI is persisted in the history store and
	// wins over the config file on the next start.
	ctx := context.Background()
	if v, err := hist.GetSetting(ctx, "score_threshold"); err == nil && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ScoreThreshold = n
		}
	} else if err == nil {
		if err := hist.SetSetting(ctx, "score_threshold", strconv.Itoa(cfg.ScoreThreshold)); err != nil {
			logger.Warn("seed threshold setting", "error", err)
		}
	}

	limiter := ratelimit.New(ratelimit.Config{
		MaxConcurrent: cfg.MaxConcurrent,
		DelayMin:      cfg.DelayMin.Duration,
		DelayMax:      cfg.DelayMax.Duration,
		Ceiling:       cfg.DelayCeiling.Duration,
		Cooldown:      cfg.Cooldown.Duration,
	})

	appModel := tui.NewAppModel(tui.Deps{
		Store:     db,
		History:   hist,
		Limiter:   limiter,
		Config:    cfg,
		ConfigDir: configDir,
	})
	p := tea.NewProgram(&appModel, tea.WithAltScreen())
	appModel.SetProgram(p)
	finalModel, err := p.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Alas, there's been an error: %v\n", err)
		os.Exit(1)
	}
	if m, ok := finalModel.(*tui.AppModel); ok && m.Err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", m.Err)
		os.Exit(1)
	}
}
