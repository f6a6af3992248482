// Package main provides the database migration CLI for the supermarket
// processor. Migrations are embedded in the binary, so deployment needs
// nothing beyond DATABASE_URL.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
)

// Set at build time with -ldflags.
var (
	Version   = "1.0.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

const name = "migrator"

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help information")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		printVersionInfo()
		os.Exit(0)
	}

	if *showHelp || flag.NArg() < 1 {
		printUsage()
		os.Exit(0)
	}

	config, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	runner, err := NewMigrationRunner(config)
	if err != nil {
		log.Fatalf("Failed to create migration runner: %v", err)
	}

	defer func() {
		_ = runner.Close()
	}()

	if err := executeCommand(flag.Arg(0), runner); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
}

// executeCommand dispatches one migration command.
func executeCommand(command string, runner MigrationRunner) error {
	switch command {
	case "up":
		return runner.Up()
	case "down":
		return runner.Down()
	case "status":
		return runner.Status()
	case "version":
		return runner.Version()
	case "drop":
		if !confirmDrop() {
			fmt.Println("Operation cancelled.")

			return nil
		}

		return runner.Drop()
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func confirmDrop() bool {
	fmt.Print("WARNING: This will drop all tables. Are you sure? (y/N): ")

	var response string
	_, _ = fmt.Scanln(&response)

	return response == "y" || response == "Y"
}

func printVersionInfo() {
	fmt.Printf("%s v%s\n", name, Version)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Printf("Build Time: %s\n", BuildTime)
}

func printUsage() {
	fmt.Printf(`%s v%s - schema migrations for the supermarket processor

USAGE:
    %s [OPTIONS] COMMAND

COMMANDS:
    up      Apply all pending migrations
    down    Roll back the last migration
    status  Show migration status
    version Show current migration version
    drop    Drop all tables (requires confirmation)

OPTIONS:
    --help     Show this help message
    --version  Show version information

ENVIRONMENT VARIABLES:
    DATABASE_URL     PostgreSQL connection string (required)
    MIGRATION_TABLE  Version tracking table (default: schema_migrations)
`, name, Version, name)
}
