package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/pmr-run/pmr"
	"github.com/pmr-run/pmr/internal/errdef"
	"github.com/pmr-run/pmr/internal/store"
)

// openSupervisor loads config and opens the catalog for one invocation.
// Callers must Close.
func openSupervisor(f *GlobalFlags) (*pmr.Supervisor, pmr.Config, error) {
	cfg, err := pmr.LoadConfig(f.ConfigPath)
	if err != nil {
		return nil, pmr.Config{}, err
	}
	sup, err := pmr.Open(cfg)
	if err != nil {
		return nil, pmr.Config{}, err
	}
	return sup, cfg, nil
}

// parseEnvPairs turns KEY=VALUE arguments into a map.
func parseEnvPairs(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, errdef.New(errdef.KindStateConflict, "invalid env pair %q, want KEY=VALUE", p)
		}
		out[k] = v
	}
	return out, nil
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func printRecords(f *GlobalFlags, recs []store.ProcessRecord) {
	if f.Format == "json" {
		printJSON(recs)
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATUS\tPID\tRESTARTS\tCOMMAND")
	for _, rec := range recs {
		pid := "-"
		if rec.PID != 0 {
			pid = fmt.Sprintf("%d", rec.PID)
		}
		command := rec.Command
		if len(rec.Args) > 0 {
			command += " " + strings.Join(rec.Args, " ")
		}
		if len(command) > 40 {
			command = command[:37] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", rec.Name, rec.Status, pid, rec.RestartCount, command)
	}
	_ = w.Flush()
}

func printRecordDetail(f *GlobalFlags, rec store.ProcessRecord) {
	if f.Format == "json" {
		printJSON(rec)
		return
	}
	fmt.Printf("Process: %s\n", rec.Name)
	fmt.Printf("ID: %s\n", rec.ID)
	fmt.Printf("Status: %s\n", rec.Status)
	command := rec.Command
	if len(rec.Args) > 0 {
		command += " " + strings.Join(rec.Args, " ")
	}
	fmt.Printf("Command: %s\n", command)
	if rec.WorkDir != "" {
		fmt.Printf("Working Directory: %s\n", rec.WorkDir)
	}
	if rec.PID != 0 {
		fmt.Printf("PID: %d\n", rec.PID)
	}
	fmt.Printf("Restart Count: %d\n", rec.RestartCount)
	fmt.Printf("Log Directory: %s\n", rec.LogDir)
	fmt.Printf("Created: %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("Updated: %s\n", rec.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
	if len(rec.Env) > 0 {
		fmt.Println("Environment Variables:")
		for k, v := range rec.Env {
			fmt.Printf("  %s=%s\n", k, v)
		}
	}
}
