package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/Mindburn-Labs/mirrornode/pkg/config"
	"github.com/Mindburn-Labs/mirrornode/pkg/events"
	"github.com/Mindburn-Labs/mirrornode/pkg/orchestrator"
)

// runRouteCmd implements `mirrornode route`.
//
// Exit codes:
//
//	0 = routed
//	1 = dispatch failed
//	2 = usage or input error
func runRouteCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("route", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var eventFile, target, adaptersFile string
	cmd.StringVar(&eventFile, "event", "", "Path to event JSON, or - for stdin (REQUIRED)")
	cmd.StringVar(&target, "target", "", "Adapter name; empty broadcasts to all")
	cmd.StringVar(&adaptersFile, "adapters", "", "Adapters YAML file")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	return dispatchOnce(eventFile, adaptersFile, stdout, stderr, func(ctx context.Context, o *orchestrator.Orchestrator, e *events.Event) (any, error) {
		return o.RouteEvent(ctx, e, target)
	})
}

// runConsensusCmd implements `mirrornode consensus`. Exit codes match route;
// a consensus that is not reached still exits 0.
func runConsensusCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("consensus", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var eventFile, adaptersFile string
	cmd.StringVar(&eventFile, "event", "", "Path to event JSON, or - for stdin (REQUIRED)")
	cmd.StringVar(&adaptersFile, "adapters", "", "Adapters YAML file")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	return dispatchOnce(eventFile, adaptersFile, stdout, stderr, func(ctx context.Context, o *orchestrator.Orchestrator, e *events.Event) (any, error) {
		return o.RequestConsensus(ctx, e)
	})
}

type dispatchFunc func(ctx context.Context, o *orchestrator.Orchestrator, e *events.Event) (any, error)

func dispatchOnce(eventFile, adaptersFile string, stdout, stderr io.Writer, fn dispatchFunc) int {
	if eventFile == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --event is required")
		return 2
	}
	data, err := readInput(eventFile)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: read event: %v\n", err)
		return 2
	}
	e, err := events.Decode(data)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx := context.Background()
	l, err := openLattice(ctx, config.Load(), adaptersFile)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer l.close(ctx)

	result, err := fn(ctx, l.orch, e)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, events.ErrInvalidEvent) {
			return 2
		}
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: encode result: %v\n", err)
		return 1
	}
	return 0
}
