package main

import (
	"fmt"
	"os"
)

// Populated via -ldflags at build time.
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var commands = map[string]func(args []string){
	"pause":   runPause,
	"inspect": runInspect,
	"version": func([]string) {
		fmt.Printf("regia version %s (built %s, commit %s)\n", version, buildTime, gitCommit)
	},
}

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-version") {
		fmt.Printf("regia version %s (built %s)\n", version, buildTime)
		return
	}
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	name := os.Args[1]
	if name == "help" || name == "-h" || name == "--help" {
		printUsage()
		return
	}
	run, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", name)
		printUsage()
		os.Exit(1)
	}
	run(os.Args[2:])
}

func printUsage() {
	fmt.Println(`Usage: regia <command> [options]

Commands:
  pause       Simulate collection pauses and run the post-evacuation cleanup
  inspect     Print the contents of a heap snapshot file
  version     Print version information

Run 'regia <command> --help' for more information on a command.`)
}
