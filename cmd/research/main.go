package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ChanlerDev/deep-research/internal/api"
	"github.com/ChanlerDev/deep-research/internal/app"
	"github.com/ChanlerDev/deep-research/internal/archive"
	"github.com/ChanlerDev/deep-research/internal/research"
	"github.com/ChanlerDev/deep-research/internal/tui"
)

const version = "1.0.0"

var (
	flagConfig string
	flagServer string
	flagToken  string
	flagUser   string
	flagArena  bool
)

func loadConfig() (app.Config, error) {
	path := flagConfig
	if path == "" {
		path = app.DefaultConfigPath()
	}
	cfg, err := app.LoadConfig(path)
	if err != nil {
		return app.Config{}, err
	}
	if flagServer != "" {
		cfg.ServerURL = flagServer
	}
	if flagToken != "" {
		cfg.Token = flagToken
	}
	if flagUser != "" {
		cfg.UserID = flagUser
	}
	return cfg, nil
}

func newLogger(cfg app.Config) (*app.Logger, func()) {
	if cfg.LogPath == "" {
		return app.NopLogger(), func() {}
	}
	f, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot open log file %s: %v\n", cfg.LogPath, err)
		return app.NopLogger(), func() {}
	}
	return app.NewLogger(f), func() { f.Close() }
}

func newClient(cfg app.Config) *api.Client {
	creds := app.NewCredentials(cfg.Token, cfg.UserID)
	return api.NewClient(cfg.ServerURL, creds.Token, creds.UserID())
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog := newLogger(cfg)
	defer closeLog()

	client := newClient(cfg)

	var reports *archive.Archive
	if cfg.ArchivePath != "" {
		reports, err = archive.Open(cfg.ArchivePath)
		if err != nil {
			// Research still works without the local archive.
			logger.Warn("archive unavailable", map[string]any{"error": err.Error()})
			reports = nil
		} else {
			defer reports.Close()
		}
	}

	updates := make(chan struct{}, 64)
	notify := func() {
		select {
		case updates <- struct{}{}:
		default:
		}
	}

	bus := research.NewBus()
	var archiver research.ReportArchiver
	if reports != nil {
		archiver = reports
	}
	controller := research.NewController(research.ControllerConfig{
		Backend:   client,
		StreamURL: client.StreamURL(),
		Decorate:  client.Decorate,
		Bus:       bus,
		Logger:    logger,
		Archive:   archiver,
		OnUpdate:  notify,
	})
	defer controller.Close()

	arena := research.NewArena(research.ArenaConfig{
		Backend:      client,
		Bus:          bus,
		Logger:       logger,
		Archive:      archiver,
		OnUpdate:     notify,
		PollInterval: time.Duration(cfg.PollIntervalMs) * time.Millisecond,
	})
	defer arena.Close()

	model := tui.New(tui.Deps{
		Config:     cfg,
		Client:     client,
		Controller: controller,
		Arena:      arena,
		Archive:    reports,
		Logger:     logger,
		Updates:    updates,
		StartArena: flagArena,
	})
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.ArchivePath == "" {
		return fmt.Errorf("no archive path configured")
	}
	reports, err := archive.Open(cfg.ArchivePath)
	if err != nil {
		return err
	}
	defer reports.Close()

	list, err := reports.List()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No archived reports.")
		return nil
	}
	for _, r := range list {
		title := r.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%s  %-40s  %s  %s\n",
			r.CompletedAt.Format("2006-01-02 15:04"), title, r.Model, r.ResearchID)
	}
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.ArchivePath == "" {
		return fmt.Errorf("no archive path configured")
	}
	reports, err := archive.Open(cfg.ArchivePath)
	if err != nil {
		return err
	}
	defer reports.Close()

	r, err := reports.Get(args[0])
	if err != nil {
		return fmt.Errorf("report %s not found in archive: %w", args[0], err)
	}
	fmt.Printf("# %s\n\n", r.Title)
	fmt.Printf("Model: %s  Completed: %s\n\n", r.Model, r.CompletedAt.Format(time.RFC3339))
	fmt.Println(r.Report)
	return nil
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	models, err := newClient(cfg).GetModels(ctx)
	if err != nil {
		return err
	}
	if len(models) == 0 {
		fmt.Println("No platform models available.")
		return nil
	}
	for _, m := range models {
		fmt.Printf("%-32s %s\n", m.ModelName, m.Model)
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := flagConfig
	if path == "" {
		path = app.DefaultConfigPath()
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := app.SaveConfig(app.DefaultConfig(), path); err != nil {
		return err
	}
	fmt.Printf("Wrote default config to %s\n", path)
	return nil
}

func main() {
	root := &cobra.Command{
		Use:     "research",
		Short:   "Terminal client for the deep research service",
		Long:    "An interactive terminal client for a deep research service: start research sessions, watch the agent pipeline stream live, race models against each other, and keep completed reports in a local archive.",
		Version: version,
		RunE:    runTUI,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "config file path (default ~/.config/deep-research/config.yml)")
	root.PersistentFlags().StringVar(&flagServer, "server", "", "research server base URL")
	root.PersistentFlags().StringVar(&flagToken, "token", "", "bearer token")
	root.PersistentFlags().StringVar(&flagUser, "user", "", "user id sent with every request")
	root.Flags().BoolVar(&flagArena, "arena", false, "open directly on the model arena board")

	root.AddCommand(
		&cobra.Command{
			Use:   "history",
			Short: "List locally archived reports",
			RunE:  runHistory,
		},
		&cobra.Command{
			Use:   "show <research-id>",
			Short: "Print an archived report",
			Args:  cobra.ExactArgs(1),
			RunE:  runShow,
		},
		&cobra.Command{
			Use:   "models",
			Short: "List platform-provided models",
			RunE:  runModels,
		},
		&cobra.Command{
			Use:   "init",
			Short: "Write a default config file",
			RunE:  runConfigInit,
		},
	)

	if err := root.Execute(); err != nil {
		io.WriteString(os.Stderr, "Error: "+err.Error()+"\n")
		os.Exit(1)
	}
}
