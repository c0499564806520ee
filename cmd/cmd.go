// Package cmd provides CLI commands for gen-bionic.
//
// Commands:
//   - serve: HTTP API server with SSE streaming
//   - migrate: apply database migrations and exit
//
// Signal handling and graceful shutdown are implemented via context
// cancellation.
package cmd

import (
	"fmt"
	"os"
)

// Execute is the main entry point for the gen-bionic CLI.
func Execute() error {
	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe()
	case "migrate":
		return runMigrate()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("gen-bionic - Conversational assistant backend")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  gen-bionic serve       Start the HTTP API server")
	fmt.Println("  gen-bionic migrate     Apply database migrations and exit")
	fmt.Println("  gen-bionic --version   Show version information")
	fmt.Println("  gen-bionic --help      Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  OPENAI_API_KEY      OpenAI API key (required for provider openai)")
	fmt.Println("  GEMINI_API_KEY      Gemini API key (required for provider googleai)")
	fmt.Println("  POSTGRES_PASSWORD   Database password")
	fmt.Println("  DATABASE_URL        Full connection URL (overrides postgres_* settings)")
	fmt.Println("  BIONIC_ADDR         Listen address (default :8080)")
	fmt.Println("  BIONIC_LOG_LEVEL    Log level: debug, info, warn, error")
}
