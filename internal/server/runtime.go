package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/valkey-io/valkey-go"
	"gorm.io/gorm"

	"github.com/bitrifttech/rose/internal/api"
	"github.com/bitrifttech/rose/internal/config"
	"github.com/bitrifttech/rose/internal/db"
	"github.com/bitrifttech/rose/internal/files"
	"github.com/bitrifttech/rose/internal/logstream"
	"github.com/bitrifttech/rose/internal/process"
	"github.com/bitrifttech/rose/internal/sandbox"
	"github.com/bitrifttech/rose/internal/snapshot"
	"github.com/bitrifttech/rose/internal/terminal"
	"github.com/bitrifttech/rose/internal/workspace"
)

// Runtime holds every component serving one workspace. It owns their
// lifetimes and is shared by the HTTP gateway and the CLI.
type Runtime struct {
	Config *config.Config
	DB     *gorm.DB
	Root   *sandbox.Root

	Files      *files.Store
	Session    *terminal.Session
	Runner     *terminal.Runner
	Supervisor *process.Supervisor
	Broker     *logstream.LogBroker
	Installer  *workspace.Installer
	Restorer   *workspace.Restorer
	Workspace  *snapshot.LocalTarget
	Versions   *snapshot.Manager

	valkey valkey.Client
	logger *slog.Logger
}

// NewRuntime opens the database, prepares the workspace root and builds the
// components configured by cfg. Nothing is spawned until first use.
func NewRuntime(cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}

	root, err := sandbox.New(cfg.Workspace.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare workspace root: %w", err)
	}
	logger.Info("Workspace root ready", "path", root.Path())

	database, err := db.New(cfg.Database, cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("Database initialized", "driver", cfg.Database.Driver)

	if err := db.Migrate(database); err != nil {
		db.Close(database)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	rt := &Runtime{
		Config: cfg,
		DB:     database,
		Root:   root,
		Broker: logstream.NewBroker(),
		logger: logger,
	}

	// Optional fan-out of app output to Valkey subscribers.
	var remote io.Writer
	if cfg.LogStream.ValkeyAddr != "" {
		client, err := logstream.NewValkeyClient(cfg.LogStream.ValkeyAddr)
		if err != nil {
			db.Close(database)
			return nil, err
		}
		rt.valkey = client
		w := logstream.NewValkeyLogWriter(client, cfg.LogStream.ChannelPrefix, logstream.TopicApp)
		remote = w
		logger.Info("Publishing app output to Valkey", "channel", w.Channel())
	}

	rt.Files = files.NewStore(root)
	rt.Session = terminal.NewSession(terminal.Options{
		Shell:      cfg.Terminal.Shell,
		Cols:       cfg.Terminal.Cols,
		Rows:       cfg.Terminal.Rows,
		BufferSize: cfg.Terminal.BufferSize,
	}, root.Path(), logger.With("component", "terminal"))
	rt.Runner = terminal.NewRunner(rt.Session, terminal.RunnerOptions{
		Completion:  terminal.Completion(cfg.Terminal.Completion),
		IdleTimeout: cfg.Terminal.IdleTimeout,
		Ceiling:     cfg.Terminal.Ceiling,
	})
	rt.Supervisor = process.NewSupervisor(root.Path(), process.Options{
		StopTimeout: cfg.Process.StopTimeout,
		LogLines:    cfg.Process.LogLines,
	}, logger.With("component", "process"), rt.Broker, remote)

	rt.Installer = workspace.NewInstaller(workspace.InstallOptions{
		Command:  cfg.Install.Command,
		Manifest: cfg.Install.Manifest,
	}, logger.With("component", "install"), rt.Broker)
	rt.Restorer = workspace.NewRestorer(root, rt.Installer, cfg.Snapshot.Ignore, logger.With("component", "restore"))
	rt.Workspace = snapshot.NewLocalTarget(root.Path(), cfg.Snapshot.Ignore, rt.Restorer)

	var target snapshot.Target = rt.Workspace
	if cfg.Snapshot.Target == "remote" {
		target = snapshot.NewRemoteTarget(cfg.Snapshot.InstanceURL)
		logger.Info("Snapshots target a remote instance", "url", cfg.Snapshot.InstanceURL)
	}
	rt.Versions = snapshot.NewManager(database, target, logger.With("component", "snapshot"))

	return rt, nil
}

// Services returns the components exposed over HTTP.
func (rt *Runtime) Services() api.Services {
	return api.Services{
		Files:      rt.Files,
		Session:    rt.Session,
		Runner:     rt.Runner,
		Supervisor: rt.Supervisor,
		Broker:     rt.Broker,
		Workspace:  rt.Workspace,
		Versions:   rt.Versions,
	}
}

// Close stops the shell and the application process and releases the
// database and Valkey connections.
func (rt *Runtime) Close(ctx context.Context) error {
	if err := rt.Session.Stop(); err != nil {
		rt.logger.Warn("Failed to stop terminal", "error", err)
	}
	if rt.Supervisor.Status().Running {
		if err := rt.Supervisor.Stop(ctx); err != nil {
			rt.logger.Warn("Failed to stop server process", "error", err)
		}
	}
	if rt.valkey != nil {
		rt.valkey.Close()
	}
	return db.Close(rt.DB)
}
