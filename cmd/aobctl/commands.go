package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
)

func flagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	url := fs.String("url", envOr("AOB_CONTROL_API_URL", "http://localhost:8080"), "Control API base URL")
	return fs, url
}

func runCompile(args []string) error {
	fs, baseURL := flagSet("compile")
	specPath := fs.String("spec", "", "path to a WorkflowSpec YAML file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *specPath == "" {
		return fmt.Errorf("-spec is required")
	}

	doc, err := os.ReadFile(*specPath)
	if err != nil {
		return fmt.Errorf("read spec file: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, *baseURL+"/v1/specs", bytes.NewReader(doc))
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("call compile: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("compile failed: %s", string(raw))
	}

	var envelope struct {
		Data struct {
			GraphID string `json:"graph_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	fmt.Println(envelope.Data.GraphID)
	return nil
}

func runRender(args []string) error {
	fs, baseURL := flagSet("render")
	graphID := fs.String("graph", "", "compiled graph id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *graphID == "" {
		return fmt.Errorf("-graph is required")
	}

	resp, err := http.Get(*baseURL + "/v1/specs/" + *graphID + "/render")
	if err != nil {
		return fmt.Errorf("call render: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("render failed: %s", string(raw))
	}
	fmt.Println(string(raw))
	return nil
}

func runStart(args []string) error {
	fs, baseURL := flagSet("start")
	graphID := fs.String("graph", "", "compiled graph id")
	bagJSON := fs.String("bag", "{}", "initial bag as a JSON object")
	tenant := fs.String("tenant", "", "optional tenant tag")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *graphID == "" {
		return fmt.Errorf("-graph is required")
	}

	var bag map[string]any
	if err := json.Unmarshal([]byte(*bagJSON), &bag); err != nil {
		return fmt.Errorf("-bag must be a JSON object: %w", err)
	}

	var out struct {
		CorrelationID string `json:"correlation_id"`
	}
	body := map[string]any{"graph_id": *graphID, "initial_bag": bag, "tenant": *tenant}
	if err := doJSON(*baseURL, http.MethodPost, "/v1/runs", body, &out); err != nil {
		return err
	}
	fmt.Println(out.CorrelationID)
	return nil
}

func runResume(args []string) error {
	fs, baseURL := flagSet("resume")
	runID := fs.String("run", "", "correlation id")
	nodeID := fs.String("node", "", "human checkpoint node id")
	approve := fs.Bool("approve", false, "approve the checkpoint (default: reject)")
	valueJSON := fs.String("value", "null", "approval value as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" || *nodeID == "" {
		return fmt.Errorf("-run and -node are required")
	}

	var value any
	if err := json.Unmarshal([]byte(*valueJSON), &value); err != nil {
		return fmt.Errorf("-value must be JSON: %w", err)
	}

	body := map[string]any{"node_id": *nodeID, "approved": *approve, "approval_value": value}
	var out struct {
		Status string `json:"status"`
	}
	if err := doJSON(*baseURL, http.MethodPost, "/v1/runs/"+*runID+"/resume", body, &out); err != nil {
		return err
	}
	fmt.Println(out.Status)
	return nil
}

func runCancel(args []string) error {
	fs, baseURL := flagSet("cancel")
	runID := fs.String("run", "", "correlation id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return fmt.Errorf("-run is required")
	}
	var out struct {
		Status string `json:"status"`
	}
	if err := doJSON(*baseURL, http.MethodPost, "/v1/runs/"+*runID+"/cancel", nil, &out); err != nil {
		return err
	}
	fmt.Println(out.Status)
	return nil
}

func runEvents(args []string) error {
	fs, baseURL := flagSet("events")
	runID := fs.String("run", "", "correlation id")
	fromSeq := fs.Int64("from-seq", 0, "only events after this sequence number")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return fmt.Errorf("-run is required")
	}

	path := fmt.Sprintf("/v1/runs/%s/events?from_seq=%d", *runID, *fromSeq)
	var out []json.RawMessage
	if err := doJSON(*baseURL, http.MethodGet, path, nil, &out); err != nil {
		return err
	}
	for _, ev := range out {
		fmt.Println(string(ev))
	}
	return nil
}

func runSnapshot(args []string) error {
	fs, baseURL := flagSet("snapshot")
	runID := fs.String("run", "", "correlation id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return fmt.Errorf("-run is required")
	}

	var out struct {
		SnapshotID string `json:"snapshot_id"`
	}
	if err := doJSON(*baseURL, http.MethodPost, "/v1/runs/"+*runID+"/snapshot", nil, &out); err != nil {
		return err
	}
	fmt.Println(out.SnapshotID)
	return nil
}

func runListSnapshots(args []string) error {
	fs, baseURL := flagSet("list-snapshots")
	runID := fs.String("run", "", "correlation id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return fmt.Errorf("-run is required")
	}

	var out []string
	if err := doJSON(*baseURL, http.MethodGet, "/v1/runs/"+*runID+"/snapshots", nil, &out); err != nil {
		return err
	}
	for _, id := range out {
		fmt.Println(id)
	}
	return nil
}

func runReplay(args []string) error {
	fs, baseURL := flagSet("replay")
	runID := fs.String("run", "", "correlation id")
	snapshotID := fs.String("snapshot", "", "snapshot id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" || *snapshotID == "" {
		return fmt.Errorf("-run and -snapshot are required")
	}

	var out struct {
		ReconstructedState json.RawMessage `json:"reconstructed_state"`
	}
	body := map[string]any{"snapshot_id": *snapshotID}
	if err := doJSON(*baseURL, http.MethodPost, "/v1/runs/"+*runID+"/replay", body, &out); err != nil {
		return err
	}
	fmt.Println(string(out.ReconstructedState))
	return nil
}

func runDLQ(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("dlq requires a subcommand: list, requeue, purge")
	}

	switch args[0] {
	case "list":
		fs, baseURL := flagSet("dlq list")
		runID := fs.String("run", "", "restrict to a single correlation id")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		path := "/v1/dlq"
		if *runID != "" {
			path += "?correlation_id=" + *runID
		}
		var out []json.RawMessage
		if err := doJSON(*baseURL, http.MethodGet, path, nil, &out); err != nil {
			return err
		}
		for _, entry := range out {
			fmt.Println(string(entry))
		}
		return nil

	case "requeue":
		fs, baseURL := flagSet("dlq requeue")
		eventID := fs.String("event", "", "event id")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *eventID == "" {
			return fmt.Errorf("-event is required")
		}
		var out struct {
			Status string `json:"status"`
		}
		if err := doJSON(*baseURL, http.MethodPost, "/v1/dlq/"+*eventID+"/requeue", nil, &out); err != nil {
			return err
		}
		fmt.Println(out.Status)
		return nil

	case "purge":
		fs, baseURL := flagSet("dlq purge")
		eventID := fs.String("event", "", "event id")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *eventID == "" {
			return fmt.Errorf("-event is required")
		}
		var out struct {
			Status string `json:"status"`
		}
		if err := doJSON(*baseURL, http.MethodDelete, "/v1/dlq/"+*eventID, nil, &out); err != nil {
			return err
		}
		fmt.Println(out.Status)
		return nil

	default:
		return fmt.Errorf("unknown dlq subcommand %q", args[0])
	}
}
