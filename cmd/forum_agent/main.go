// Package main provides the entry point for the forum responder service.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "forum_agent",
	Short: "Forum question responder service",
	Long:  "Forum responder accepts forum webhook notifications, classifies student questions through a staged LLM pipeline, and posts HTML answers back to the forum.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
