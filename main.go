// Package main is the command line front end of the loan advisory agent.
//
//	loanadvisor chat --user 1
//	loanadvisor ingest documents
//	loanadvisor users
//
// Configuration comes from the environment (or a local .env file). See
// .env.example for the full list of variables.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	logx "github.com/Chative-core-poc-v1/loanadvisor/pkg/logger"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := buildRootCmd().ExecuteContext(ctx); err != nil {
		logx.Error().Err(err).Msg("Command failed")
		stop()
		os.Exit(1)
	}
}

// buildRootCmd is separated from main so the command tree can be tested.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "loanadvisor",
		Short:        "Conversational loan advisory agent",
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.AddCommand(
		buildChatCmd(),
		buildIngestCmd(),
		buildUsersCmd(),
	)
	return rootCmd
}
