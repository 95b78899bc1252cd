package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/pmr-run/pmr"
	"github.com/pmr-run/pmr/internal/auth"
	"github.com/pmr-run/pmr/internal/config"
	"github.com/pmr-run/pmr/internal/errdef"
	"github.com/pmr-run/pmr/internal/history"
	"github.com/pmr-run/pmr/internal/logger"
	"github.com/pmr-run/pmr/internal/manager"
	"github.com/pmr-run/pmr/internal/metrics"
	"github.com/pmr-run/pmr/internal/server"
	"github.com/pmr-run/pmr/internal/store"
)

const reapInterval = 5 * time.Second

func createServeCommand(g *GlobalFlags, f *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP control plane",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.Daemon {
				return spawnDaemon(g, f)
			}
			return runServe(g, f)
		},
	}
	cmd.Flags().IntVar(&f.Port, "port", 0, "listen port (default from config)")
	cmd.Flags().BoolVar(&f.Daemon, "daemon", false, "run as a supervised background process")
	return cmd
}

// spawnDaemon supervises a copy of this binary under the reserved catalog
// name. Uniqueness of the record guarantees a single daemon per catalog.
func spawnDaemon(g *GlobalFlags, f *ServeFlags) error {
	executable, err := os.Executable()
	if err != nil {
		return errdef.Wrap(errdef.KindSpawn, err, "resolve executable")
	}
	sup, cfg, err := openSupervisor(g)
	if err != nil {
		return err
	}
	defer func() { _ = sup.Close() }()

	port := f.Port
	if port == 0 {
		port = cfg.ServePort
	}
	args := []string{"serve", "--port", strconv.Itoa(port)}
	if g.ConfigPath != "" {
		args = append(args, "--config", g.ConfigPath)
	}
	// the spawner replaces the environment wholesale, so the few variables
	// the daemon needs must be forwarded explicitly
	env := map[string]string{
		"PMR_HOME": cfg.DataDir,
		"PATH":     os.Getenv("PATH"),
	}
	if home := os.Getenv("HOME"); home != "" {
		env["HOME"] = home
	}

	rec, err := sup.Start(context.Background(), pmr.StartSpec{
		Name:    manager.DaemonName,
		Command: executable,
		Args:    args,
		Env:     env,
		LogDir:  cfg.LogDir,
	})
	if err != nil {
		if errdef.Is(err, errdef.KindAlreadyExists) {
			return errdef.StateConflict("daemon already running; use serve-stop or serve-restart")
		}
		return err
	}
	fmt.Printf("Daemon started with PID %d on port %d\n", rec.PID, port)
	return nil
}

// runServe is the daemon foreground loop: open everything, serve until
// SIGTERM/SIGINT, reap children on a timer, drain within the grace window.
func runServe(g *GlobalFlags, f *ServeFlags) error {
	cfg, err := config.Load(g.ConfigPath)
	if err != nil {
		return err
	}
	layout := cfg.Layout()
	if err := layout.Ensure(); err != nil {
		return err
	}

	log := logger.New(logger.Config{
		Level:    slog.LevelInfo,
		FilePath: layout.ServeLogPath(),
	})

	st, err := store.Open(cfg.StoreDSN)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	if err := st.EnsureSchema(context.Background()); err != nil {
		return err
	}

	sink, err := history.NewSinkFromDSN(cfg.HistoryDSN)
	if err != nil {
		return err
	}
	defer func() { _ = sink.Close() }()

	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		return err
	}

	mgr := manager.New(st, layout,
		manager.WithRotator(cfg.Rotator()),
		manager.WithHistory(sink),
		manager.WithGrace(time.Duration(cfg.GraceSeconds)*time.Second),
		manager.WithLogger(log))
	authSvc := auth.NewService(st)
	router := server.NewRouter(mgr, authSvc, log, reg)

	port := f.Port
	if port == 0 {
		port = cfg.ServePort
	}
	addr := ":" + strconv.Itoa(port)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		ticker := time.NewTicker(reapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mgr.Reap()
			}
		}
	}()

	log.Info("pmr control plane starting", "port", port)
	log.Info("endpoints",
		"list", "GET /api/processes",
		"start", "POST /api/processes",
		"status", "GET /api/processes/{name}",
		"stop", "PUT /api/processes/{name}/stop",
		"restart", "PUT /api/processes/{name}/restart",
		"delete", "DELETE /api/processes/{name}",
		"logs", "GET /api/processes/{name}/logs",
		"metrics", "GET /metrics")

	grace := time.Duration(cfg.GraceSeconds) * time.Second
	if err := server.Serve(ctx, addr, router.Handler(), grace, log); err != nil {
		log.Error("server exited", "error", err)
		return err
	}
	log.Info("pmr control plane stopped")
	return nil
}

func createServeStopCommand(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve-stop",
		Short: "Stop the control plane daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, _, err := openSupervisor(g)
			if err != nil {
				return err
			}
			defer func() { _ = sup.Close() }()

			if _, err := sup.Stop(context.Background(), manager.DaemonName); err != nil {
				if errdef.Is(err, errdef.KindNotFound) {
					return errdef.New(errdef.KindStateConflict, "daemon is not registered")
				}
				return err
			}
			fmt.Println("Daemon stopped")
			return nil
		},
	}
}

func createServeStatusCommand(g *GlobalFlags, f *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve-status",
		Short: "Show the daemon's record and HTTP reachability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, cfg, err := openSupervisor(g)
			if err != nil {
				return err
			}
			defer func() { _ = sup.Close() }()

			rec, err := sup.Status(context.Background(), manager.DaemonName)
			if err != nil {
				return err
			}
			if g.Format == "json" {
				printJSON(rec)
				return nil
			}
			printRecordDetail(g, rec)
			if f.Token != "" {
				url := f.APIUrl
				if url == "" {
					url = fmt.Sprintf("http://localhost:%d", cfg.ServePort)
				}
				client := NewAPIClient(url, f.Token, 0)
				if client.Ping() {
					fmt.Println("HTTP: reachable")
				} else {
					fmt.Println("HTTP: unreachable")
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.APIUrl, "url", "", "daemon base URL for the reachability probe")
	cmd.Flags().StringVar(&f.Token, "token", "", "bearer token for the reachability probe")
	return cmd
}

func createServeRestartCommand(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve-restart",
		Short: "Restart the control plane daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, _, err := openSupervisor(g)
			if err != nil {
				return err
			}
			defer func() { _ = sup.Close() }()

			rec, err := sup.Restart(context.Background(), manager.DaemonName)
			if err != nil {
				return err
			}
			fmt.Printf("Daemon restarted with PID %d\n", rec.PID)
			return nil
		},
	}
}
