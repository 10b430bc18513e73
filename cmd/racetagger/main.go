package main

import (
	"fmt"
	"os"
)

const version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	command := os.Args[1]

	switch command {
	case "version", "--version", "-v":
		fmt.Printf("racetagger version %s\n", version)
		fmt.Println("Race photography batch tagger")
		printBuildInfo()
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	case "process":
		if err := processCommand(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "Error: Unknown command '%s'\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Racetagger - Race Photography Batch Tagger")
	fmt.Println("")
	fmt.Println("Usage:")
	fmt.Println("  racetagger <command> [options]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  process    Process a folder of photos against a roster")
	fmt.Println("  version    Show version information")
	fmt.Println("  help       Show this help message")
	fmt.Println("")
	fmt.Println("Run 'racetagger process --help' for options.")
}
