// aobctl is a command-line client for the Control API: compile, start,
// resume, events, snapshot, list-snapshots, replay, and dlq
// list/requeue/purge subcommands over net/http and encoding/json.
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "compile":
		err = runCompile(args)
	case "start":
		err = runStart(args)
	case "resume":
		err = runResume(args)
	case "cancel":
		err = runCancel(args)
	case "events":
		err = runEvents(args)
	case "snapshot":
		err = runSnapshot(args)
	case "list-snapshots":
		err = runListSnapshots(args)
	case "replay":
		err = runReplay(args)
	case "dlq":
		err = runDLQ(args)
	case "render":
		err = runRender(args)
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "aobctl: unknown command %q\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "aobctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `aobctl <command> [flags]

Commands:
  compile -spec <file>                                compile a WorkflowSpec, print its graph id
  render -graph <id>                                  print a compiled graph as Mermaid
  start -graph <id> [-bag <json>] [-tenant <name>]     start a run, print its correlation id
  resume -run <id> -node <id> [-approve] [-value <json>]   answer a human checkpoint
  cancel -run <id>                                     cancel a run
  events -run <id> [-from-seq <n>]                     list a run's events
  snapshot -run <id>                                   force a snapshot, print its id
  list-snapshots -run <id>                             list a run's snapshot ids
  replay -run <id> -snapshot <id>                      reconstruct state at a snapshot
  dlq list [-run <id>]                                 list dead-lettered events
  dlq requeue -event <id>                               requeue a dead-lettered event
  dlq purge -event <id>                                 permanently remove a dead-lettered event

Every command accepts -url (default $AOB_CONTROL_API_URL or http://localhost:8080).`)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
