// Package medragcmder
package medragcmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/clidram/medrag/cmd/medrag/config"
	indexcmder "github.com/clidram/medrag/cmd/medrag/index"
	querycmder "github.com/clidram/medrag/cmd/medrag/query"
	servecmder "github.com/clidram/medrag/cmd/medrag/serve"
	statuscmder "github.com/clidram/medrag/cmd/medrag/status"
	versioncmder "github.com/clidram/medrag/cmd/version"
)

const medragLongDesc string = `Medrag indexes clinical EMR records into a vector store and answers
questions over them with retrieval-augmented generation.

Common workflows:
  medrag serve             Run the API server
  medrag index             Pull records from the EMR and index them
  medrag query "question"  Ask a one-shot question against a running server
  medrag status            Show index contents and sync watermarks`

const medragShortDesc string = "Medrag - clinical records RAG"

func NewMedragCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "medrag",
		Short: medragShortDesc,
		Long:  medragLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Directory holding config.toml (default: .medrag/ or ~/.medrag/)")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(indexcmder.NewIndexCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(querycmder.NewQueryCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
