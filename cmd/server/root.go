package main

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AnshRaj112/tasklist-backend/internal/config"
	"github.com/AnshRaj112/tasklist-backend/internal/database"
	"github.com/AnshRaj112/tasklist-backend/internal/logging"
	"github.com/AnshRaj112/tasklist-backend/internal/services"
)

// app holds what every subcommand needs once flags and env are resolved.
type app struct {
	cfg *config.Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	v := viper.New()

	root := &cobra.Command{
		Use:   "tasklist-server",
		Short: "Self-hosted task list server",
		Long: `tasklist-server serves per-password task lists over HTTP and pushes
every change to the owner's open browser tabs over a WebSocket.

Data lives in plain JSON files under the data directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd, v)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (yaml, json or toml)")
	flags.String("port", "", "listen port (overrides PORT)")
	flags.String("data-dir", "", "data directory (overrides DATA_DIR)")
	_ = v.BindPFlag("tasklist_config", flags.Lookup("config"))
	_ = v.BindPFlag("port", flags.Lookup("port"))
	_ = v.BindPFlag("data_dir", flags.Lookup("data-dir"))

	root.AddCommand(
		newServeCmd(a),
		newCleanupCmd(a),
		newVersionCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, v *viper.Viper) error {
	envErr := godotenv.Load()

	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg
	a.log = logging.New(cfg.Environment)

	if envErr != nil {
		a.log.Debug("no .env file found")
	}
	a.log.Debug("configuration loaded", "command", cmd.Name(), "env", cfg.Environment, "data_dir", cfg.DataDir)
	return nil
}

// core is the storage side of the server, shared by serve and cleanup.
type core struct {
	layout   database.Layout
	hub      *services.Hub
	tasks    *services.TaskStore
	identity *services.IdentityService
	sessions *services.SessionRegistry
	reaper   *services.Reaper
}

func (a *app) buildCore() (*core, error) {
	layout, err := database.OpenLayout(a.cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open data dir: %w", err)
	}

	hub := services.NewHub(a.log, services.DefaultClientQueue)
	tasks := services.NewTaskStore(layout, a.log,
		services.WithWriteDebounce(a.cfg.WriteDebounce),
		services.WithNotifier(hub),
	)

	identity, err := services.NewIdentityService(layout, tasks, a.log)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	sessions, err := services.NewSessionRegistry(layout, a.cfg.SessionMaxAge, a.log)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	return &core{
		layout:   layout,
		hub:      hub,
		tasks:    tasks,
		identity: identity,
		sessions: sessions,
		reaper:   services.NewReaper(identity, sessions, tasks, a.log),
	}, nil
}
