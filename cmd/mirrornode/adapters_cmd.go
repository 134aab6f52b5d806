package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/Mindburn-Labs/mirrornode/pkg/config"
)

type adapterRow struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Model      string `json:"model,omitempty"`
	Credential string `json:"credential"`
}

// runAdaptersCmd lists the adapter pool a serve would build. It never
// contacts a provider.
func runAdaptersCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("adapters", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var adaptersFile string
	var jsonOutput bool
	cmd.StringVar(&adaptersFile, "adapters", "", "Adapters YAML file")
	cmd.BoolVar(&jsonOutput, "json", false, "Output as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if adaptersFile == "" {
		adaptersFile = config.Load().AdaptersFile
	}

	specs, err := config.LoadAdapterSpecs(adaptersFile)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	rows := make([]adapterRow, 0, len(specs))
	for _, s := range specs {
		cred := "none needed"
		if s.APIKeyEnv != "" {
			cred = s.APIKeyEnv + " (missing)"
			if os.Getenv(s.APIKeyEnv) != "" {
				cred = s.APIKeyEnv + " (set)"
			}
		}
		rows = append(rows, adapterRow{Name: s.Name, Kind: s.Kind, Model: s.Model, Credential: cred})
	}

	if jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(rows)
		return 0
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tMODEL\tCREDENTIAL")
	for _, r := range rows {
		model := r.Model
		if model == "" {
			model = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Name, r.Kind, model, r.Credential)
	}
	_ = tw.Flush()
	return 0
}
