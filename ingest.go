package main

import (
	"fmt"

	"github.com/spf13/cobra"

	logx "github.com/Chative-core-poc-v1/loanadvisor/pkg/logger"
)

func buildIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [dir]",
		Short: "Load .txt and .md documents into the knowledge base",
		Long: `Splits every .txt and .md file under dir into chunks, embeds them and
stores them in the vector store. Re-ingesting a file replaces its chunks.
dir defaults to RAG_DOCUMENTS_DIR.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			dir := a.cfg.RAG.DocumentsDir
			if len(args) == 1 {
				dir = args[0]
			}
			stats, err := a.rag.IngestDirectory(ctx, dir)
			if err != nil {
				return err
			}
			logx.Info().Str("dir", dir).Int("files", stats.Files).Int("chunks", stats.Chunks).Msg("Ingest finished")
			fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d files (%d chunks) from %s\n", stats.Files, stats.Chunks, dir)
			return nil
		},
	}
	return cmd
}
