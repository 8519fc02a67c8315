// Package cli builds the vnc-mcp command line.
package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/seantiz/vncmcp/internal/api"
	"github.com/seantiz/vncmcp/internal/config"
	"github.com/seantiz/vncmcp/internal/managed"
	"github.com/seantiz/vncmcp/internal/remote"
	"github.com/seantiz/vncmcp/internal/service"
	"github.com/seantiz/vncmcp/internal/store"
)

// App holds what the command line cannot express: build version and
// replacement collaborators for stub and test builds.
type App struct {
	Name           string
	Version        string
	ServiceOptions []service.Option
	RunnerOptions  []managed.Option
}

// NewRootCommand returns the root command. Every flag is bound to a fresh
// viper instance so flags, VNCMCP_* variables and the config file merge.
func (a App) NewRootCommand() *cobra.Command {
	v := config.NewViper()
	name := a.Name
	if name == "" {
		name = "vnc-mcp"
	}

	cmd := &cobra.Command{
		Use:   name + " [host] [port]",
		Short: "MCP server that drives a VNC desktop",
		Long: `Connects to a VNC server and exposes its screen, keyboard and mouse
as MCP tools over stdio. Logs go to stderr.`,
		Args:          cobra.MaximumNArgs(2),
		Version:       a.Version,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyArgs(v, args); err != nil {
				return err
			}
			if cfgFile := v.GetString("config"); cfgFile != "" {
				v.SetConfigFile(cfgFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config %s: %w", cfgFile, err)
				}
			}
			return a.run(cmd, config.Load(v))
		},
	}

	f := cmd.Flags()
	f.Duration("timeout", 0, "connection timeout (default 5s)")
	f.String("username", "", "VNC username")
	f.String("password", "", "VNC password")
	f.String("log-level", "", "log level: debug, info, warn, error (default info)")
	f.Int("workers", 0, "worker pool size (default: min(32, CPUs+4))")
	f.String("diag-addr", "", "diagnostics HTTP listen address; empty disables it")
	f.String("db-path", "", "SQLite run journal path; empty disables it")
	f.String("scheduler", "", "task scheduler: auto, plain, labeled (default auto)")
	f.StringP("config", "c", "", "config file (yaml, toml or json)")

	bind := map[string]string{
		config.KeyTimeout:   "timeout",
		config.KeyUsername:  "username",
		config.KeyPassword:  "password",
		config.KeyLogLevel:  "log-level",
		config.KeyWorkers:   "workers",
		config.KeyDiagAddr:  "diag-addr",
		config.KeyDBPath:    "db-path",
		config.KeyScheduler: "scheduler",
		"config":            "config",
	}
	for key, flag := range bind {
		_ = v.BindPFlag(key, f.Lookup(flag))
	}

	return cmd
}

// applyArgs lets the positional host and port override every other source.
func applyArgs(v *viper.Viper, args []string) error {
	if len(args) > 0 {
		v.Set(config.KeyHost, args[0])
	}
	if len(args) > 1 {
		port, err := strconv.Atoi(args[1])
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid port %q", args[1])
		}
		v.Set(config.KeyPort, port)
	}
	return nil
}

func (a App) run(cmd *cobra.Command, cfg config.Config) error {
	logger := config.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel)

	target := remote.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Timeout:  cfg.Timeout,
		Username: cfg.Username,
		Password: cfg.Password,
	}

	sched, err := managed.ResolveScheduler(cfg.Scheduler, cfg.DiagAddr != "")
	if err != nil {
		return err
	}

	runnerOpts := []managed.Option{
		managed.WithLogger(logger),
		managed.WithPoolCapacity(cfg.Workers),
		managed.WithScheduler(sched),
	}
	var svcOpts []service.Option

	var journal store.Store
	if cfg.DBPath != "" {
		db, err := store.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open run journal: %w", err)
		}
		defer db.Close()
		journal = db
		runnerOpts = append(runnerOpts, managed.WithObserver(service.NewJournalObserver(db, target, logger)))
	}
	if cfg.DiagAddr != "" {
		svcOpts = append(svcOpts, service.WithDiagnostics(api.NewServer(cfg.DiagAddr, journal, logger)))
	}

	runner := managed.NewRunner(append(runnerOpts, a.RunnerOptions...)...)
	svc := service.New(a.Version, logger, append(svcOpts, a.ServiceOptions...)...)

	logger.Info("vnc-mcp: starting",
		"addr", target.Addr(),
		"scheduler", sched.Name(),
		"diag_addr", cfg.DiagAddr,
		"db_path", cfg.DBPath,
	)

	_, err = managed.Sync(runner, svc.Main()).Invoke(target)
	var cancelled *managed.CancelledError
	if errors.As(err, &cancelled) {
		logger.Info("vnc-mcp: stopped", "signal", managed.SignalName(cancelled.Signal))
		return nil
	}
	return err
}

// Execute runs the root command and returns the process exit code.
func (a App) Execute() int {
	if err := a.NewRootCommand().Execute(); err != nil {
		return 1
	}
	return 0
}
