package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pmr-run/pmr"
	"github.com/pmr-run/pmr/internal/errdef"
	"github.com/pmr-run/pmr/internal/manager"
)

func createStartCommand(g *GlobalFlags, f *ProcessFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <name> [flags] -- <command> [args...]",
		Short: "Start a supervised process",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if name == manager.DaemonName {
				return errdef.StateConflict("name %q is reserved for the control plane daemon", manager.DaemonName)
			}
			// everything after "--" is the command line to supervise
			rest := args[1:]
			if at := cmd.ArgsLenAtDash(); at >= 0 && at <= len(args) {
				if at < 1 {
					return errdef.New(errdef.KindStateConflict, "process name must come before --")
				}
				rest = args[at:]
			}
			if len(rest) == 0 {
				return errdef.New(errdef.KindStateConflict, "command required after --")
			}
			env, err := parseEnvPairs(f.Env)
			if err != nil {
				return err
			}

			sup, _, err := openSupervisor(g)
			if err != nil {
				return err
			}
			defer func() { _ = sup.Close() }()

			rec, err := sup.Start(context.Background(), pmr.StartSpec{
				Name:    name,
				Command: rest[0],
				Args:    rest[1:],
				Env:     env,
				WorkDir: f.WorkDir,
				LogDir:  f.LogDir,
			})
			if err != nil {
				return err
			}
			if g.Format == "json" {
				printJSON(rec)
			} else {
				fmt.Printf("Process '%s' started with PID %d\n", rec.Name, rec.PID)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&f.Env, "env", nil, "environment variable KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&f.WorkDir, "workdir", "", "working directory for the child")
	cmd.Flags().StringVar(&f.LogDir, "log-dir", "", "log directory for this process")
	return cmd
}

func createListCommand(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all supervised processes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, _, err := openSupervisor(g)
			if err != nil {
				return err
			}
			defer func() { _ = sup.Close() }()

			recs, err := sup.List(context.Background())
			if err != nil {
				return err
			}
			if len(recs) == 0 && g.Format != "json" {
				fmt.Println("No processes found")
				return nil
			}
			printRecords(g, recs)
			return nil
		},
	}
}

func createStatusCommand(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status <name>",
		Short: "Show one process record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, _, err := openSupervisor(g)
			if err != nil {
				return err
			}
			defer func() { _ = sup.Close() }()

			rec, err := sup.Status(context.Background(), args[0])
			if err != nil {
				return err
			}
			printRecordDetail(g, rec)
			return nil
		},
	}
}

func createLogsCommand(g *GlobalFlags, f *LogsFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs <name>",
		Short: "Read, tail or rotate a process's logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, _, err := openSupervisor(g)
			if err != nil {
				return err
			}
			defer func() { _ = sup.Close() }()
			ctx := context.Background()
			name := args[0]

			if f.Rotate {
				if err := sup.RotateLogs(ctx, name); err != nil {
					return err
				}
				fmt.Printf("Logs rotated for process '%s'\n", name)
				return nil
			}
			if f.Follow {
				followCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer cancel()
				// print the requested tail first, then stream
				lines, err := sup.Logs(ctx, name, f.Lines, f.Rotated)
				if err != nil {
					return err
				}
				for _, line := range lines {
					fmt.Println(line)
				}
				err = sup.FollowLogs(followCtx, name, os.Stdout)
				if err == context.Canceled {
					return nil
				}
				return err
			}
			lines, err := sup.Logs(ctx, name, f.Lines, f.Rotated)
			if err != nil {
				return err
			}
			if g.Format == "json" {
				printJSON(lines)
				return nil
			}
			for _, line := range lines {
				fmt.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&f.Lines, "lines", "n", 50, "number of lines to show (0 for all)")
	cmd.Flags().BoolVar(&f.Follow, "follow", false, "stream appended output until interrupted")
	cmd.Flags().BoolVar(&f.Rotated, "rotated", false, "include rotated generations")
	cmd.Flags().BoolVar(&f.Rotate, "rotate", false, "rotate the live log once and exit")
	return cmd
}

func createStopCommand(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <name>",
		Short: "Gracefully stop a process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, _, err := openSupervisor(g)
			if err != nil {
				return err
			}
			defer func() { _ = sup.Close() }()

			rec, err := sup.Stop(context.Background(), args[0])
			if err != nil {
				return err
			}
			if g.Format == "json" {
				printJSON(rec)
			} else {
				fmt.Printf("Process '%s' stopped\n", rec.Name)
			}
			return nil
		},
	}
}

func createRestartCommand(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "restart <name>",
		Short: "Stop then start a process with its stored parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, _, err := openSupervisor(g)
			if err != nil {
				return err
			}
			defer func() { _ = sup.Close() }()

			rec, err := sup.Restart(context.Background(), args[0])
			if err != nil {
				return err
			}
			if g.Format == "json" {
				printJSON(rec)
			} else {
				fmt.Printf("Process '%s' restarted with PID %d\n", rec.Name, rec.PID)
			}
			return nil
		},
	}
}

func createDeleteCommand(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a stopped process from the catalog (logs are kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, _, err := openSupervisor(g)
			if err != nil {
				return err
			}
			defer func() { _ = sup.Close() }()

			if err := sup.Delete(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Process '%s' deleted\n", args[0])
			return nil
		},
	}
}

func createClearCommand(g *GlobalFlags, f *ClearFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove all stopped and failed processes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, _, err := openSupervisor(g)
			if err != nil {
				return err
			}
			defer func() { _ = sup.Close() }()

			removed, err := sup.Clear(context.Background(), f.All)
			if err != nil {
				return err
			}
			if g.Format == "json" {
				printJSON(map[string]any{"removed": removed})
				return nil
			}
			if len(removed) == 0 {
				fmt.Println("Nothing to clear")
				return nil
			}
			fmt.Printf("Removed: %s\n", strings.Join(removed, ", "))
			return nil
		},
	}
	cmd.Flags().BoolVar(&f.All, "all", false, "also stop and remove running processes")
	return cmd
}

func createEnvCommand(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "env <name> KEY=VALUE...",
		Short: "Update environment variables of a non-running process",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs, err := parseEnvPairs(args[1:])
			if err != nil {
				return err
			}
			sup, _, err := openSupervisor(g)
			if err != nil {
				return err
			}
			defer func() { _ = sup.Close() }()

			rec, err := sup.SetEnv(context.Background(), args[0], pairs)
			if err != nil {
				return err
			}
			if g.Format == "json" {
				printJSON(rec)
				return nil
			}
			fmt.Printf("Environment variables updated for process '%s'\n", rec.Name)
			return nil
		},
	}
}
