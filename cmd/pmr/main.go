package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pmr-run/pmr/internal/errdef"
)

func main() {
	root, globalFlags := buildRoot()
	if err := root.Execute(); err != nil {
		printError(globalFlags, err)
		os.Exit(1)
	}
}

// buildRoot assembles the command tree. Commands return tagged errors;
// rendering happens once, in main, honoring --format.
func buildRoot() (*cobra.Command, *GlobalFlags) {
	globalFlags := &GlobalFlags{}
	processFlags := &ProcessFlags{}
	logsFlags := &LogsFlags{}
	clearFlags := &ClearFlags{}
	serveFlags := &ServeFlags{}
	authFlags := &AuthFlags{}

	root := &cobra.Command{
		Use:           "pmr",
		Short:         "pmr supervises long-lived processes",
		Long:          "pmr starts programs detached from the terminal, tracks them in a durable catalog, captures and rotates their logs, and offers an authenticated HTTP control plane.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "", "path to config.toml (default: $PMR_HOME/config.toml)")
	root.PersistentFlags().StringVar(&globalFlags.Format, "format", "table", "output format: table or json")

	root.AddCommand(
		createStartCommand(globalFlags, processFlags),
		createListCommand(globalFlags),
		createStatusCommand(globalFlags),
		createLogsCommand(globalFlags, logsFlags),
		createStopCommand(globalFlags),
		createRestartCommand(globalFlags),
		createDeleteCommand(globalFlags),
		createClearCommand(globalFlags, clearFlags),
		createEnvCommand(globalFlags),
		createServeCommand(globalFlags, serveFlags),
		createServeStopCommand(globalFlags),
		createServeStatusCommand(globalFlags, serveFlags),
		createServeRestartCommand(globalFlags),
		createAuthCommand(globalFlags, authFlags),
	)
	return root, globalFlags
}

func printError(f *GlobalFlags, err error) {
	if f.Format == "json" {
		fmt.Fprintf(os.Stderr, `{"error":{"kind":%q,"message":%q}}`+"\n", errdef.KindOf(err), err.Error())
		return
	}
	fmt.Fprintln(os.Stderr, "pmr: "+err.Error())
}
