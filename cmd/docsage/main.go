package main

import (
	"fmt"
	"os"

	"github.com/docsage-ai/docsage/internal/cli"
	"github.com/docsage-ai/docsage/internal/cli/client"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "docsage",
		Short: "Docsage CLI - Ask questions over tenant documents",
		Long: `Docsage CLI streams answers from a docsage server.

Environment variables:
  DOCSAGE_API_URL   API base URL (default: http://localhost:8080)
  DOCSAGE_ORG_ID    Organization ID sent with every request
  DOCSAGE_USER_ID   Default user ID for ask`,
		Version: version,
	}

	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env)")
	rootCmd.PersistentFlags().String("org", "", "Organization ID (overrides env)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.AskCmd())
	rootCmd.AddCommand(client.HistoryCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
